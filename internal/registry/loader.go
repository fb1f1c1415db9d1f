// Package registry loads the bulk CSV exports of the national business
// register: hovedenheter (main entities) and underenheter (sub-entities).
// The exports run to millions of rows, so both files are streamed and
// filtered down to the candidate set before anything else happens.
package registry

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carpool-pilot/prospect-cli/internal/fetcher"
	"github.com/carpool-pilot/prospect-cli/internal/model"
)

// Filter narrows the loaded rows to the candidate set for one run.
type Filter struct {
	PostalCodes  map[string]struct{}
	MinEmployees int
	MaxEmployees int
}

// Counts reports what happened to the rows that were read.
type Counts struct {
	Read           int // data rows across both files
	Matched        int // rows within the candidate postal codes
	OutOfRange     int // matched rows outside the employee bounds
	MissingAddress int // matched rows without a street address
	Superseded     int // parents dropped in favor of a located sub-entity
}

// Load reads both register exports and returns candidate entities in source
// order: main entities first, then sub-entities. A parent whose sub-entity
// survives the filters is dropped; the sub-entity carries the physical
// address while the parent holds only the registered legal one.
func Load(ctx context.Context, enheterPath, underenheterPath string, f Filter) ([]model.Entity, Counts, error) {
	var counts Counts

	parents, err := loadFile(ctx, enheterPath, "forretningsadresse", model.SourceHovedenhet, f, &counts)
	if err != nil {
		return nil, counts, err
	}
	subs, err := loadFile(ctx, underenheterPath, "beliggenhetsadresse", model.SourceUnderenhet, f, &counts)
	if err != nil {
		return nil, counts, err
	}

	located := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		if s.parent != "" {
			located[s.parent] = struct{}{}
		}
	}

	entities := make([]model.Entity, 0, len(parents)+len(subs))
	for _, p := range parents {
		if _, ok := located[p.entity.OrgNumber]; ok {
			counts.Superseded++
			continue
		}
		entities = append(entities, p.entity)
	}
	for _, s := range subs {
		entities = append(entities, s.entity)
	}

	zap.L().Info("register loaded",
		zap.Int("rows", counts.Read),
		zap.Int("candidates", len(entities)),
		zap.Int("out_of_range", counts.OutOfRange),
		zap.Int("superseded", counts.Superseded))
	return entities, counts, nil
}

// row pairs an entity with the parent org number of the source record,
// which only sub-entity rows carry.
type row struct {
	entity model.Entity
	parent string
}

// columns holds the resolved header positions for one export file.
type columns struct {
	org, name, employees       int
	address, postal, city      int
	municipality               int
	industryCode, industryText int
	parent                     int
}

func loadFile(ctx context.Context, path, addressPrefix string, source model.Source, f Filter, counts *Counts) ([]row, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: open %s", path)
	}
	defer fh.Close() //nolint:errcheck

	var r io.Reader = fh
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(fh)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: gunzip %s", path)
		}
		defer gz.Close() //nolint:errcheck
		r = gz
	}

	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter:  ',',
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
	})

	// The parser delivers the header before any data row, but a header-only
	// file closes the stream with the header still buffered.
	var header []string
	select {
	case header = <-headerCh:
	case err, ok := <-errs:
		if ok && err != nil {
			return nil, eris.Wrapf(err, "registry: parse %s", path)
		}
		select {
		case header = <-headerCh:
		default:
			return nil, eris.Errorf("registry: %s has no header row", path)
		}
	}

	cols, err := resolveColumns(header, addressPrefix, source == model.SourceUnderenhet)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: %s", path)
	}

	var out []row
	for rec := range rows {
		counts.Read++

		postalCode := field(rec, cols.postal)
		if postalCode == "" {
			continue
		}
		if _, ok := f.PostalCodes[postalCode]; !ok {
			continue
		}
		counts.Matched++

		employees, convErr := strconv.Atoi(field(rec, cols.employees))
		if convErr != nil || employees < f.MinEmployees || employees > f.MaxEmployees {
			counts.OutOfRange++
			continue
		}

		address := field(rec, cols.address)
		if address == "" {
			counts.MissingAddress++
			continue
		}

		out = append(out, row{
			entity: model.Entity{
				OrgNumber:    field(rec, cols.org),
				Name:         field(rec, cols.name),
				Employees:    employees,
				Address:      address,
				PostalCode:   postalCode,
				City:         field(rec, cols.city),
				IndustryCode: field(rec, cols.industryCode),
				IndustryText: field(rec, cols.industryText),
				Source:       source,
				Municipality: field(rec, cols.municipality),
			},
			parent: field(rec, cols.parent),
		})
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}
	return out, nil
}

// resolveColumns locates the needed columns by header name. The exports
// carry dozens of columns and their order is not contractual, so position
// means nothing. Kommunenummer is optional; everything else is required.
func resolveColumns(header []string, addressPrefix string, wantParent bool) (columns, error) {
	cols := columns{
		org:          fieldIndex(header, "organisasjonsnummer"),
		name:         fieldIndex(header, "navn"),
		employees:    fieldIndex(header, "antallAnsatte"),
		address:      fieldIndex(header, addressPrefix+".adresse"),
		postal:       fieldIndex(header, addressPrefix+".postnummer"),
		city:         fieldIndex(header, addressPrefix+".poststed"),
		municipality: fieldIndex(header, addressPrefix+".kommunenummer"),
		industryCode: fieldIndex(header, "naeringskode1.kode"),
		industryText: fieldIndex(header, "naeringskode1.beskrivelse"),
		parent:       -1,
	}
	if wantParent {
		cols.parent = fieldIndex(header, "overordnetEnhet")
	}

	required := map[string]int{
		"organisasjonsnummer":         cols.org,
		"navn":                        cols.name,
		"antallAnsatte":               cols.employees,
		addressPrefix + ".adresse":    cols.address,
		addressPrefix + ".postnummer": cols.postal,
		addressPrefix + ".poststed":   cols.city,
		"naeringskode1.kode":          cols.industryCode,
		"naeringskode1.beskrivelse":   cols.industryText,
	}
	if wantParent {
		required["overordnetEnhet"] = cols.parent
	}

	var missing []string
	for name, idx := range required {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return columns{}, eris.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// field returns the trimmed cell at idx, or "" when the row is short or the
// column was not resolved.
func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func fieldIndex(header []string, name string) int {
	for i, h := range header {
		h = strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}
