package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "omraade.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractZIP(t *testing.T) {
	t.Parallel()

	zipPath := writeZip(t, map[string]string{
		"omraade.shp":    "shape bytes",
		"doc/lesmeg.txt": "dokumentasjon",
		"omraade.shx":    "index bytes",
	})

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, extracted, 3)

	data, err := os.ReadFile(filepath.Join(destDir, "omraade.shp"))
	require.NoError(t, err)
	assert.Equal(t, "shape bytes", string(data))

	data, err = os.ReadFile(filepath.Join(destDir, "doc", "lesmeg.txt"))
	require.NoError(t, err)
	assert.Equal(t, "dokumentasjon", string(data))
}

func TestExtractZIP_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	zipPath := writeZip(t, map[string]string{
		"../utenfor.txt": "skal ikke ut",
	})

	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal zip path")
}

func TestExtractZIP_MissingArchive(t *testing.T) {
	t.Parallel()

	_, err := ExtractZIP(filepath.Join(t.TempDir(), "absent.zip"), t.TempDir())
	assert.Error(t, err)
}
