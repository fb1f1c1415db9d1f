package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Option configures a cache file.
type Option func(*options)

type options struct {
	flushEvery int
}

// FlushEvery makes the cache write itself to disk after every n stores, so
// a long run keeps most of its lookups if it is interrupted partway.
func FlushEvery(n int) Option {
	return func(o *options) { o.flushEvery = n }
}

// File is a JSON-backed key-value cache. The whole map is loaded at open
// and rewritten on flush; entries never expire.
type File[V any] struct {
	mu         sync.Mutex
	path       string
	entries    map[string]V
	dirty      bool
	writes     int
	flushEvery int
}

// Open loads the cache at path. A missing file yields an empty cache.
func Open[V any](path string, opts ...Option) (*File[V], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	f := &File[V]{
		path:       path,
		entries:    make(map[string]V),
		flushEvery: o.flushEvery,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	if err := json.Unmarshal(data, &f.entries); err != nil {
		return nil, eris.Wrapf(err, "cache: parse %s", path)
	}

	zap.L().Debug("cache loaded", zap.String("path", path), zap.Int("entries", len(f.entries)))
	return f, nil
}

// Get returns the cached value for key.
func (f *File[V]) Get(key string) (V, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[key]
	return v, ok
}

// Put stores a value. When a flush interval is configured the cache writes
// itself to disk every n stores; those flush failures are logged, not
// returned, so a transient disk problem cannot abort the run mid-batch.
func (f *File[V]) Put(key string, value V) {
	f.mu.Lock()
	f.entries[key] = value
	f.dirty = true
	f.writes++
	flush := f.flushEvery > 0 && f.writes%f.flushEvery == 0
	f.mu.Unlock()

	if flush {
		if err := f.Flush(); err != nil {
			zap.L().Warn("cache: periodic flush failed", zap.String("path", f.path), zap.Error(err))
		}
	}
}

// Len returns the number of cached entries.
func (f *File[V]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Flush writes the cache to disk if it changed since the last flush. The
// file is replaced via temp file and rename so an interrupted write cannot
// corrupt the previous contents.
func (f *File[V]) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		return nil
	}

	data, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "cache: marshal")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "cache: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "cache: create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrap(err, "cache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "cache: close temp file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "cache: replace %s", f.path)
	}

	f.dirty = false
	zap.L().Debug("cache flushed", zap.String("path", f.path), zap.Int("entries", len(f.entries)))
	return nil
}
