// Package fetcher downloads the bulk register snapshots and streams the
// delimited files they contain.
package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Fetcher downloads one remote source.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes
	// written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// writeFile streams r to path through a sibling .partial file, so an
// interrupted download never leaves a truncated snapshot behind.
func writeFile(path string, r io.Reader) (int64, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, eris.Wrapf(err, "fetcher: create dir %s", dir)
		}
	}

	tmp := path + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", tmp)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return n, eris.Wrapf(err, "fetcher: write %s", tmp)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrapf(err, "fetcher: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrapf(err, "fetcher: move %s into place", tmp)
	}
	return n, nil
}
