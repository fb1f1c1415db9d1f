package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	f, err := Open[point](filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
}

func TestPutGetFlushRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")

	f, err := Open[point](path)
	require.NoError(t, err)

	lat, lon := 60.01, 10.87
	f.Put("industriveien 5|1481|hagan", point{Lat: &lat, Lon: &lon})
	f.Put("ukjent vei 1|9999|ingensteds", point{})
	require.NoError(t, f.Flush())

	// Fresh open sees both entries, including the negative marker.
	again, err := Open[point](path)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())

	hit, ok := again.Get("industriveien 5|1481|hagan")
	require.True(t, ok)
	require.NotNil(t, hit.Lat)
	assert.InDelta(t, 60.01, *hit.Lat, 0.0001)

	neg, ok := again.Get("ukjent vei 1|9999|ingensteds")
	require.True(t, ok)
	assert.Nil(t, neg.Lat)
	assert.Nil(t, neg.Lon)
}

func TestFlushSkipsWhenClean(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")

	f, err := Open[point](path)
	require.NoError(t, err)
	require.NoError(t, f.Flush())

	// Nothing was stored, so no file should exist.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPeriodicFlush(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")

	f, err := Open[point](path, FlushEvery(2))
	require.NoError(t, err)

	lat := 59.66
	f.Put("a", point{Lat: &lat})
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "first put should not flush yet")

	f.Put("b", point{})
	_, statErr = os.Stat(path)
	assert.NoError(t, statErr, "second put should trigger a flush")
}

func TestOpenCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open[point](path)
	assert.Error(t, err)
}

func TestFlushCreatesParentDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "cache.json")

	f, err := Open[point](path)
	require.NoError(t, err)

	f.Put("k", point{})
	require.NoError(t, f.Flush())

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
