package area

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/carpool-pilot/prospect-cli/internal/fetcher"
)

// Area is a named target polygon in WGS84 lon/lat coordinates.
type Area struct {
	Name     string
	polygons []*geom.Polygon
}

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Expand returns the bounds grown by margin degrees on every side.
func (b Bounds) Expand(margin float64) Bounds {
	return Bounds{
		MinLat: b.MinLat - margin,
		MinLon: b.MinLon - margin,
		MaxLat: b.MaxLat + margin,
		MaxLon: b.MaxLon + margin,
	}
}

// Contains reports whether the point lies inside the box.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Load reads the target polygon at path. GeoJSON, bare shapefiles and
// zipped shapefiles are supported; the area name is derived from the
// file name.
func Load(path string) (*Area, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		return LoadGeoJSON(path)
	case ".shp":
		return LoadShapefile(path)
	case ".zip":
		return loadZippedShapefile(path)
	default:
		return nil, eris.Errorf("area: unsupported polygon format %q", ext)
	}
}

// LoadGeoJSON reads a GeoJSON file holding a FeatureCollection, a single
// Feature or a bare geometry. Only the first feature of a collection is
// used.
func LoadGeoJSON(path string) (*Area, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "area: read %s", path)
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, eris.Wrapf(err, "area: parse %s", path)
	}

	var g geom.T
	switch envelope.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrapf(err, "area: parse feature collection %s", path)
		}
		if len(fc.Features) == 0 {
			return nil, eris.Errorf("area: %s contains no features", path)
		}
		g = fc.Features[0].Geometry
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "area: parse feature %s", path)
		}
		g = f.Geometry
	default:
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrapf(err, "area: parse geometry %s", path)
		}
	}

	polygons, err := asPolygons(g)
	if err != nil {
		return nil, eris.Wrapf(err, "area: %s", path)
	}

	a := &Area{Name: deriveName(path), polygons: polygons}
	zap.L().Debug("area loaded",
		zap.String("name", a.Name),
		zap.String("path", path),
		zap.Int("polygons", len(polygons)),
	)
	return a, nil
}

// LoadShapefile reads the polygon shapes from an ESRI shapefile. Each part
// of a multipart shape is treated as its own polygon.
func LoadShapefile(path string) (*Area, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "area: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var polygons []*geom.Polygon
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		converted, err := shapePolygons(poly)
		if err != nil {
			return nil, eris.Wrapf(err, "area: convert shape in %s", path)
		}
		polygons = append(polygons, converted...)
	}

	if len(polygons) == 0 {
		return nil, eris.Errorf("area: no polygon shapes in %s", path)
	}

	a := &Area{Name: deriveName(path), polygons: polygons}
	zap.L().Debug("area loaded",
		zap.String("name", a.Name),
		zap.String("path", path),
		zap.Int("polygons", len(polygons)),
	)
	return a, nil
}

// loadZippedShapefile extracts a zipped shapefile to a temp directory and
// loads the first .shp inside. The area keeps the ZIP's name.
func loadZippedShapefile(path string) (*Area, error) {
	destDir, err := os.MkdirTemp("", "area-shp-*")
	if err != nil {
		return nil, eris.Wrap(err, "area: create temp dir")
	}
	defer os.RemoveAll(destDir)

	extracted, err := fetcher.ExtractZIP(path, destDir)
	if err != nil {
		return nil, eris.Wrapf(err, "area: extract %s", path)
	}

	for _, f := range extracted {
		if strings.EqualFold(filepath.Ext(f), ".shp") {
			a, err := LoadShapefile(f)
			if err != nil {
				return nil, err
			}
			a.Name = deriveName(path)
			return a, nil
		}
	}
	return nil, eris.Errorf("area: no .shp file in %s", path)
}

// Contains reports whether the point lies inside the area. Containment is
// ray-casting over each polygon's rings; points inside a hole ring do not
// count. Boundary points resolve consistently across calls.
func (a *Area) Contains(lat, lon float64) bool {
	p := geom.Coord{lon, lat}
	for _, poly := range a.polygons {
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !xy.IsPointInRing(geom.XY, p, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for i := 1; i < poly.NumLinearRings(); i++ {
			if xy.IsPointInRing(geom.XY, p, poly.LinearRing(i).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// Bounds returns the bounding box over all polygons.
func (a *Area) Bounds() Bounds {
	b := Bounds{MinLat: 90, MinLon: 180, MaxLat: -90, MaxLon: -180}
	for _, poly := range a.polygons {
		pb := poly.Bounds()
		b.MinLon = math.Min(b.MinLon, pb.Min(0))
		b.MinLat = math.Min(b.MinLat, pb.Min(1))
		b.MaxLon = math.Max(b.MaxLon, pb.Max(0))
		b.MaxLat = math.Max(b.MaxLat, pb.Max(1))
	}
	return b
}

var (
	copyCounterRe = regexp.MustCompile(`\s*\(\d+\)$`)
	nonWordRe     = regexp.MustCompile(`[^\p{L}\p{N}_-]`)
)

// deriveName turns a polygon file name into a safe area slug. Download
// counters like "map (3)" are stripped first; a meaningless result falls
// back to "omraade".
func deriveName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = copyCounterRe.ReplaceAllString(stem, "")
	name := strings.ToLower(strings.Trim(nonWordRe.ReplaceAllString(stem, "_"), "_"))
	if name == "" || name == "map" {
		name = "omraade"
	}
	return name
}

// asPolygons unwraps a geometry into its polygons.
func asPolygons(g geom.T) ([]*geom.Polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{t}, nil
	case *geom.MultiPolygon:
		polygons := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			polygons = append(polygons, t.Polygon(i))
		}
		return polygons, nil
	default:
		return nil, eris.New("polygon geometry required")
	}
}

// shapePolygons converts a shapefile polygon to go-geom polygons, one per
// part. Rings are closed if the source left them open.
func shapePolygons(p *shp.Polygon) ([]*geom.Polygon, error) {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil, nil
	}

	var polygons []*geom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		flat := make([]float64, 0, (end-start+1)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		flat = closeRing(flat)

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			return nil, eris.Wrap(err, "build ring")
		}
		polygons = append(polygons, poly)
	}
	return polygons, nil
}

// closeRing appends the first vertex if the ring is not closed.
func closeRing(flat []float64) []float64 {
	n := len(flat)
	if n < 6 {
		return flat
	}
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return flat
}
