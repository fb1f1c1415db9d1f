package pipeline

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/carpool-pilot/prospect-cli/internal/model"
)

// WriteEntities writes entities to path as CSV with the full column set,
// creating parent directories as needed. A run with zero survivors still
// produces a header-only file so downstream steps have something to read.
func WriteEntities(path string, entities []model.Entity) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "pipeline: create output dir %s", dir)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(model.Entity{}); err != nil {
		return eris.Wrap(err, "pipeline: encode header")
	}
	for i := range entities {
		if err := enc.Encode(entities[i]); err != nil {
			return eris.Wrapf(err, "pipeline: encode row %d of %s", i+1, path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "pipeline: close %s", path)
	}
	return nil
}

// ReadEntities loads a CSV previously written by WriteEntities. Columns it
// does not know are ignored, so files edited by hand survive a round trip.
func ReadEntities(path string) ([]model.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.Errorf("pipeline: %s has no header row", path)
		}
		return nil, eris.Wrapf(err, "pipeline: read header of %s", path)
	}

	var out []model.Entity
	for {
		var e model.Entity
		if err := dec.Decode(&e); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "pipeline: parse %s", path)
		}
		out = append(out, e)
	}
	return out, nil
}
