package pipeline

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-pilot/prospect-cli/internal/area"
	"github.com/carpool-pilot/prospect-cli/internal/cache"
	"github.com/carpool-pilot/prospect-cli/internal/config"
	"github.com/carpool-pilot/prospect-cli/internal/geocode"
	"github.com/carpool-pilot/prospect-cli/internal/postal"
	"github.com/carpool-pilot/prospect-cli/pkg/geonorge"
)

// The polygon spans lon 10.85..10.95, lat 60.00..60.10.
const areaFixture = `{
  "type": "Feature",
  "properties": {"name": "Hagan"},
  "geometry": {
    "type": "Polygon",
    "coordinates": [[[10.85, 60.00], [10.95, 60.00], [10.95, 60.10], [10.85, 60.10], [10.85, 60.00]]]
  }
}`

const postalTable = `Postnummerfil for Noreg
Oppdatert 2025-01-02
Kjelde: testdata
-
POSTNR	POSTSTAD	KOMMUNE	LAT	LON
1481	HAGAN	NITTEDAL	60.0470	10.8710
1482	NITTEDAL	NITTEDAL	60.0790	10.8800
0150	OSLO	OSLO	59.9110	10.7450
`

const filterEnheter = `organisasjonsnummer,navn,antallAnsatte,forretningsadresse.adresse,forretningsadresse.postnummer,forretningsadresse.poststed,forretningsadresse.kommunenummer,naeringskode1.kode,naeringskode1.beskrivelse
910000001,Hagan Mek Verksted AS,45,Industriveien 5,1481,HAGAN,3024,25.620,Produksjon av metallkonstruksjoner
910000002,Oslo Kontor AS,60,Storgata 1,0150,OSLO,0301,70.220,Bedriftsrådgivning
910000003,Fjellveien Eiendom AS,30,Fjellveien 2,1482,NITTEDAL,3024,68.209,Utleie av egen eiendom
910000004,Ukjent Adresse AS,50,Borte Bortevei 9,1481,HAGAN,3024,46.900,Engroshandel
910000005,Liten AS,5,Industriveien 7,1481,HAGAN,3024,43.210,Elektrisk installasjonsarbeid
910000006,Kantinedrift AS,25,Industriveien 5,1481,HAGAN,3024,56.290,Kantiner drevet som selvstendig virksomhet
910000007,Lager Øst AS,30,Lagerveien 3,1482,NITTEDAL,3024,52.100,Lagring
910000008,Lager Øst Drift AS,90,Lagerveien 3,1482,NITTEDAL,3024,52.100,Lagring
`

const filterUnderenheter = `organisasjonsnummer,navn,antallAnsatte,beliggenhetsadresse.adresse,beliggenhetsadresse.postnummer,beliggenhetsadresse.poststed,beliggenhetsadresse.kommunenummer,naeringskode1.kode,naeringskode1.beskrivelse,overordnetEnhet
920000001,Fjellveien Eiendom avd Nittedal,30,Fjellveien 2,1482,NITTEDAL,3024,68.209,Utleie av egen eiendom,910000003
`

type fakeGeo struct {
	points map[string]geonorge.Result
	calls  int
}

func (f *fakeGeo) Search(_ context.Context, addr geonorge.Address) (*geonorge.Result, error) {
	f.calls++
	if r, ok := f.points[addr.Street]; ok {
		return &r, nil
	}
	return &geonorge.Result{}, nil
}

func writeGzCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func writeAreaFile(t *testing.T, dir string) *area.Area {
	t.Helper()
	path := filepath.Join(dir, "hagan.geojson")
	require.NoError(t, os.WriteFile(path, []byte(areaFixture), 0o644))
	ar, err := area.Load(path)
	require.NoError(t, err)
	return ar
}

func loadPostalIndex(t *testing.T, dir string) *postal.Index {
	t.Helper()
	path := filepath.Join(dir, "postnummer.txt")
	require.NoError(t, os.WriteFile(path, []byte(postalTable), 0o644))
	idx, err := postal.Load(context.Background(), path)
	require.NoError(t, err)
	return idx
}

func insideResults() map[string]geonorge.Result {
	return map[string]geonorge.Result{
		"Industriveien 5": {Latitude: 60.0155, Longitude: 10.9377, Matched: true},
		"Fjellveien 2":    {Latitude: 60.2000, Longitude: 10.8800, Matched: true},
		"Lagerveien 3":    {Latitude: 60.0500, Longitude: 10.9000, Matched: true},
	}
}

func TestFilterStage_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ar := writeAreaFile(t, dir)
	idx := loadPostalIndex(t, dir)
	cfg := &config.Config{
		Postal: config.PostalConfig{Margin: 0.05},
		Data: config.DataConfig{
			EnheterPath:      writeGzCSV(t, dir, "enheter.csv.gz", filterEnheter),
			UnderenheterPath: writeGzCSV(t, dir, "underenheter.csv.gz", filterUnderenheter),
		},
	}

	fake := &fakeGeo{points: insideResults()}
	store, err := cache.Open[geocode.Entry](filepath.Join(dir, "geocode_cache.json"))
	require.NoError(t, err)
	stage := NewFilterStage(cfg, idx, geocode.NewResolver(fake, store))

	outPath := filepath.Join(dir, "out", "bedrifter_raa.csv")
	summary, err := stage.Run(context.Background(), ar, FilterParams{
		MinEmployees: 20,
		MaxEmployees: 200,
		OutputPath:   outPath,
	})
	require.NoError(t, err)

	// 910000002 sits on a postal code outside the candidate set and is
	// never counted. 910000003 is superseded by its sub-unit, which then
	// geocodes outside the polygon.
	assert.Equal(t, 8, summary.Input)
	assert.Equal(t, 1, summary.OutOfRange)
	assert.Equal(t, 0, summary.MissingAddress)
	assert.Equal(t, 1, summary.Unresolved)
	assert.Equal(t, 1, summary.OutsidePolygon)
	assert.Equal(t, 2, summary.Duplicates)
	assert.Equal(t, 2, summary.Output)
	assert.Equal(t, 4, summary.GeocodeCalls)
	assert.Equal(t, 2, summary.GeocodeCacheHits)
	assert.Equal(t, 4, fake.calls)

	got, err := ReadEntities(outPath)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "910000001", got[0].OrgNumber)
	assert.Equal(t, 45, got[0].Employees)
	require.True(t, got[0].HasCoordinates())
	assert.InDelta(t, 60.0155, *got[0].Latitude, 1e-9)
	assert.InDelta(t, 10.9377, *got[0].Longitude, 1e-9)

	// The busier unit wins the shared address.
	assert.Equal(t, "910000008", got[1].OrgNumber)
	assert.Equal(t, 90, got[1].Employees)
}

func TestFilterStage_KeepsHighestEmployeeCountPerAddress(t *testing.T) {
	t.Parallel()

	const enheter = `organisasjonsnummer,navn,antallAnsatte,forretningsadresse.adresse,forretningsadresse.postnummer,forretningsadresse.poststed,forretningsadresse.kommunenummer,naeringskode1.kode,naeringskode1.beskrivelse
911000001,Første AS,10,Felles Vei 1,1481,HAGAN,3024,70.220,Bedriftsrådgivning
911000002,Andre AS,50,Felles Vei 1,1481,HAGAN,3024,70.220,Bedriftsrådgivning
`
	const underenheter = `organisasjonsnummer,navn,antallAnsatte,beliggenhetsadresse.adresse,beliggenhetsadresse.postnummer,beliggenhetsadresse.poststed,beliggenhetsadresse.kommunenummer,naeringskode1.kode,naeringskode1.beskrivelse,overordnetEnhet
`

	dir := t.TempDir()
	ar := writeAreaFile(t, dir)
	idx := loadPostalIndex(t, dir)
	cfg := &config.Config{
		Postal: config.PostalConfig{Margin: 0.05},
		Data: config.DataConfig{
			EnheterPath:      writeGzCSV(t, dir, "enheter.csv.gz", enheter),
			UnderenheterPath: writeGzCSV(t, dir, "underenheter.csv.gz", underenheter),
		},
	}

	fake := &fakeGeo{points: map[string]geonorge.Result{
		"Felles Vei 1": {Latitude: 60.05, Longitude: 10.90, Matched: true},
	}}
	store, err := cache.Open[geocode.Entry](filepath.Join(dir, "cache.json"))
	require.NoError(t, err)
	stage := NewFilterStage(cfg, idx, geocode.NewResolver(fake, store))

	outPath := filepath.Join(dir, "out.csv")
	summary, err := stage.Run(context.Background(), ar, FilterParams{
		MinEmployees: 5,
		MaxEmployees: 500,
		OutputPath:   outPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Duplicates)

	got, err := ReadEntities(outPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "911000002", got[0].OrgNumber)
	assert.Equal(t, 50, got[0].Employees)
}

func TestFilterStage_NoPostalCandidates(t *testing.T) {
	t.Parallel()

	const farAway = `{
  "type": "Feature",
  "properties": {"name": "Vestkyst"},
  "geometry": {
    "type": "Polygon",
    "coordinates": [[[5.00, 58.00], [5.10, 58.00], [5.10, 58.10], [5.00, 58.10], [5.00, 58.00]]]
  }
}`

	dir := t.TempDir()
	areaPath := filepath.Join(dir, "vestkyst.geojson")
	require.NoError(t, os.WriteFile(areaPath, []byte(farAway), 0o644))
	ar, err := area.Load(areaPath)
	require.NoError(t, err)

	idx := loadPostalIndex(t, dir)
	// Registry paths stay absent: with no candidate codes the exports are
	// never opened.
	cfg := &config.Config{
		Postal: config.PostalConfig{Margin: 0.05},
		Data: config.DataConfig{
			EnheterPath:      filepath.Join(dir, "absent_enheter.csv.gz"),
			UnderenheterPath: filepath.Join(dir, "absent_underenheter.csv.gz"),
		},
	}

	fake := &fakeGeo{}
	store, err := cache.Open[geocode.Entry](filepath.Join(dir, "cache.json"))
	require.NoError(t, err)
	stage := NewFilterStage(cfg, idx, geocode.NewResolver(fake, store))

	outPath := filepath.Join(dir, "out.csv")
	summary, err := stage.Run(context.Background(), ar, FilterParams{
		MinEmployees: 20,
		MaxEmployees: 200,
		OutputPath:   outPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Input)
	assert.Equal(t, 0, summary.Output)
	assert.Equal(t, 0, fake.calls)

	got, err := ReadEntities(outPath)
	require.NoError(t, err)
	assert.Empty(t, got)
}
