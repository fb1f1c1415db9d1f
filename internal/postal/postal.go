package postal

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/carpool-pilot/prospect-cli/internal/area"
	"github.com/carpool-pilot/prospect-cli/internal/fetcher"
)

// preambleLines is the number of descriptive lines before the header row
// in the postal code table.
const preambleLines = 4

// Point is the reference coordinate for one postal code.
type Point struct {
	Lat float64
	Lon float64
}

// Index maps four digit postal codes to reference coordinates.
type Index struct {
	points map[string]Point
}

// Load reads the tab separated postal code table at path. The table
// carries a fixed preamble before its header row; data rows without a
// usable coordinate pair are skipped. Tables that are not valid UTF-8 are
// decoded as ISO-8859-1, the encoding of Bring's postnummerregister.
func Load(ctx context.Context, path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "postal: read %s", path)
	}
	if !utf8.Valid(data) {
		data, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, eris.Wrapf(err, "postal: decode %s", path)
		}
		zap.L().Debug("postal table decoded from latin-1", zap.String("path", path))
	}

	br := bufio.NewReader(bytes.NewReader(data))
	for i := 0; i < preambleLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return nil, eris.Wrapf(err, "postal: %s shorter than expected preamble", path)
		}
	}

	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamCSV(ctx, br, fetcher.CSVOptions{
		Delimiter:  '\t',
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	// The parser delivers the header before any data row, but a header-only
	// file closes the stream with the header still buffered.
	var header []string
	select {
	case header = <-headerCh:
	case err, ok := <-errs:
		if ok && err != nil {
			return nil, eris.Wrapf(err, "postal: parse %s", path)
		}
		select {
		case header = <-headerCh:
		default:
			return nil, eris.Errorf("postal: %s has no header row", path)
		}
	}

	idxCode := fieldIndex(header, "POSTNR")
	idxLat := fieldIndex(header, "LAT")
	idxLon := fieldIndex(header, "LON")
	if idxCode < 0 || idxLat < 0 || idxLon < 0 {
		return nil, eris.Errorf("postal: %s is missing required columns POSTNR, LAT, LON", path)
	}

	idx := &Index{points: make(map[string]Point)}
	for row := range rows {
		if len(row) <= idxCode || len(row) <= idxLat || len(row) <= idxLon {
			continue
		}
		code := row[idxCode]
		if code == "" {
			continue
		}
		lat, latErr := strconv.ParseFloat(row[idxLat], 64)
		lon, lonErr := strconv.ParseFloat(row[idxLon], 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		idx.points[code] = Point{Lat: lat, Lon: lon}
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "postal: parse %s", path)
	}

	zap.L().Info("postal table loaded", zap.String("path", path), zap.Int("codes", len(idx.points)))
	return idx, nil
}

// Lookup returns the reference coordinate for a postal code.
func (i *Index) Lookup(code string) (Point, bool) {
	p, ok := i.points[code]
	return p, ok
}

// Len returns the number of postal codes in the index.
func (i *Index) Len() int {
	return len(i.points)
}

// CandidatesNear returns every postal code whose reference point lies
// within the bounds expanded by margin degrees. The margin compensates for
// postal code centroids sitting just outside the target polygon.
func (i *Index) CandidatesNear(b area.Bounds, margin float64) map[string]struct{} {
	expanded := b.Expand(margin)
	codes := make(map[string]struct{})
	for code, p := range i.points {
		if expanded.Contains(p.Lat, p.Lon) {
			codes[code] = struct{}{}
		}
	}
	return codes
}

// fieldIndex returns the index of a named column in the header, or -1.
func fieldIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}
