package area

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareFeatureCollection = `{
	"type": "FeatureCollection",
	"features": [{
		"type": "Feature",
		"properties": {},
		"geometry": {
			"type": "Polygon",
			"coordinates": [[[10.8, 60.0], [10.9, 60.0], [10.9, 60.1], [10.8, 60.1], [10.8, 60.0]]]
		}
	}]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGeoJSON_FeatureCollection(t *testing.T) {
	t.Parallel()

	a, err := LoadGeoJSON(writeTemp(t, "hagan.geojson", squareFeatureCollection))
	require.NoError(t, err)

	assert.Equal(t, "hagan", a.Name)
	assert.True(t, a.Contains(60.05, 10.85))
	assert.False(t, a.Contains(59.95, 10.85), "south of the square")
	assert.False(t, a.Contains(60.05, 10.95), "east of the square")
}

func TestLoadGeoJSON_Feature(t *testing.T) {
	t.Parallel()

	feature := `{
		"type": "Feature",
		"properties": {},
		"geometry": {
			"type": "Polygon",
			"coordinates": [[[10.8, 60.0], [10.9, 60.0], [10.9, 60.1], [10.8, 60.1], [10.8, 60.0]]]
		}
	}`
	a, err := LoadGeoJSON(writeTemp(t, "skytta.json", feature))
	require.NoError(t, err)
	assert.Equal(t, "skytta", a.Name)
	assert.True(t, a.Contains(60.05, 10.85))
}

func TestLoadGeoJSON_BareGeometry(t *testing.T) {
	t.Parallel()

	g := `{"type": "Polygon", "coordinates": [[[10.8, 60.0], [10.9, 60.0], [10.9, 60.1], [10.8, 60.1], [10.8, 60.0]]]}`
	a, err := LoadGeoJSON(writeTemp(t, "raw.geojson", g))
	require.NoError(t, err)
	assert.True(t, a.Contains(60.05, 10.85))
}

func TestLoadGeoJSON_NoFeatures(t *testing.T) {
	t.Parallel()

	_, err := LoadGeoJSON(writeTemp(t, "empty.geojson", `{"type": "FeatureCollection", "features": []}`))
	assert.Error(t, err)
}

func TestLoadGeoJSON_NotAPolygon(t *testing.T) {
	t.Parallel()

	g := `{"type": "Point", "coordinates": [10.85, 60.05]}`
	_, err := LoadGeoJSON(writeTemp(t, "point.geojson", g))
	assert.Error(t, err)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	_, err := Load("omraade.kml")
	assert.Error(t, err)
}

func TestContains_BoundaryIsIdempotent(t *testing.T) {
	t.Parallel()

	a, err := LoadGeoJSON(writeTemp(t, "hagan.geojson", squareFeatureCollection))
	require.NoError(t, err)

	// Whether a boundary point counts as inside is not promised, but the
	// answer must not change between calls.
	first := a.Contains(60.0, 10.85)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Contains(60.0, 10.85))
	}
}

func TestContains_HoleExcluded(t *testing.T) {
	t.Parallel()

	g := `{"type": "Polygon", "coordinates": [
		[[10.0, 60.0], [11.0, 60.0], [11.0, 61.0], [10.0, 61.0], [10.0, 60.0]],
		[[10.4, 60.4], [10.6, 60.4], [10.6, 60.6], [10.4, 60.6], [10.4, 60.4]]
	]}`
	a, err := LoadGeoJSON(writeTemp(t, "donut.geojson", g))
	require.NoError(t, err)

	assert.True(t, a.Contains(60.1, 10.1), "inside the outer ring")
	assert.False(t, a.Contains(60.5, 10.5), "inside the hole")
}

func TestBoundsAndExpand(t *testing.T) {
	t.Parallel()

	a, err := LoadGeoJSON(writeTemp(t, "hagan.geojson", squareFeatureCollection))
	require.NoError(t, err)

	b := a.Bounds()
	assert.InDelta(t, 60.0, b.MinLat, 1e-9)
	assert.InDelta(t, 10.8, b.MinLon, 1e-9)
	assert.InDelta(t, 60.1, b.MaxLat, 1e-9)
	assert.InDelta(t, 10.9, b.MaxLon, 1e-9)

	e := b.Expand(0.05)
	assert.InDelta(t, 59.95, e.MinLat, 1e-9)
	assert.InDelta(t, 10.75, e.MinLon, 1e-9)
	assert.True(t, e.Contains(59.97, 10.78))
	assert.False(t, e.Contains(59.80, 10.78))
}

func TestDeriveName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"Hagan.geojson", "hagan"},
		{"/tmp/somewhere/Gjelleråsen (2).geojson", "gjelleråsen"},
		{"map.geojson", "omraade"},
		{"map (14).geojson", "omraade"},
		{"Campus Ås.geojson", "campus_ås"},
		{"___.geojson", "omraade"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, deriveName(tt.path))
		})
	}
}

func TestShapePolygons_SinglePart(t *testing.T) {
	t.Parallel()

	poly := &shp.Polygon{
		NumParts: 1,
		Parts:    []int32{0},
		Points: []shp.Point{
			{X: 10.8, Y: 60.0},
			{X: 10.9, Y: 60.0},
			{X: 10.9, Y: 60.1},
			{X: 10.8, Y: 60.1},
			{X: 10.8, Y: 60.0},
		},
	}

	polygons, err := shapePolygons(poly)
	require.NoError(t, err)
	require.Len(t, polygons, 1)

	a := &Area{Name: "industriomraade", polygons: polygons}
	assert.True(t, a.Contains(60.05, 10.85))
	assert.False(t, a.Contains(60.05, 10.75))
}

func TestShapePolygons_MultiPartBecomesSeparateAreas(t *testing.T) {
	t.Parallel()

	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			{X: 10.0, Y: 60.0},
			{X: 10.1, Y: 60.0},
			{X: 10.1, Y: 60.1},
			{X: 10.0, Y: 60.1},
			{X: 10.0, Y: 60.0},
			{X: 11.0, Y: 61.0},
			{X: 11.1, Y: 61.0},
			{X: 11.1, Y: 61.1},
			{X: 11.0, Y: 61.1},
			{X: 11.0, Y: 61.0},
		},
	}

	polygons, err := shapePolygons(poly)
	require.NoError(t, err)
	require.Len(t, polygons, 2)

	a := &Area{polygons: polygons}
	assert.True(t, a.Contains(60.05, 10.05))
	assert.True(t, a.Contains(61.05, 11.05))
	assert.False(t, a.Contains(60.5, 10.5), "between the two parts")
}

func TestShapePolygons_ClosesOpenRing(t *testing.T) {
	t.Parallel()

	poly := &shp.Polygon{
		NumParts: 1,
		Parts:    []int32{0},
		Points: []shp.Point{
			{X: 10.8, Y: 60.0},
			{X: 10.9, Y: 60.0},
			{X: 10.9, Y: 60.1},
			{X: 10.8, Y: 60.1},
		},
	}

	polygons, err := shapePolygons(poly)
	require.NoError(t, err)
	require.Len(t, polygons, 1)

	a := &Area{polygons: polygons}
	assert.True(t, a.Contains(60.05, 10.85))
}

func TestShapePolygons_EmptyShape(t *testing.T) {
	t.Parallel()

	polygons, err := shapePolygons(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, polygons)
}
