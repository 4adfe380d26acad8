package assetd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupPaths(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "cache", "leveldb")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "000001.log"), []byte("x"), 0o644))

	res := cleanupPaths(filepath.Join(dir, "cache"), filepath.Join(dir, "never-existed"), "")

	assert.True(t, res.OK())
	assert.NoError(t, res.Err())
	assert.Len(t, res.Removed, 2)
	_, err := os.Stat(filepath.Join(dir, "cache"))
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupResultErr(t *testing.T) {
	res := CleanupResult{Failed: map[string]error{"/x": os.ErrPermission}}
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err(), os.ErrPermission)
}

func TestPurgeDiskCache(t *testing.T) {
	var cfg Config
	cfg.Storage.Disk.Path = filepath.Join(t.TempDir(), "db")
	d, err := openDiskCache(cfg.Storage.Disk.Path, 0, "v1")
	require.NoError(t, err)
	d.close()

	res := PurgeDiskCache(cfg)
	assert.True(t, res.OK())
	_, err = os.Stat(cfg.Storage.Disk.Path)
	assert.True(t, os.IsNotExist(err))
}
