package sysfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIsZoned(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "block/sdb/queue/zoned"), "host-managed\n")
	writeFile(t, filepath.Join(root, "block/sdb/queue/chunk_sectors"), "524288\n")
	writeFile(t, filepath.Join(root, "block/sdc/queue/zoned"), "none\n")
	writeFile(t, filepath.Join(root, "class/block/sdd1/queue/zoned"), "host-aware\n")

	r := New(root)

	zoned, err := r.IsZoned("/dev/sdb")
	require.NoError(t, err)
	assert.True(t, zoned)

	sectors, err := r.ZoneSectors("/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, uint64(524288), sectors)

	zoned, err = r.IsZoned("/dev/sdc")
	require.NoError(t, err)
	assert.False(t, zoned)

	zoned, err = r.IsZoned("/dev/sdd1")
	require.NoError(t, err)
	assert.True(t, zoned)

	zoned, err = r.IsZoned("/dev/nvme9n1")
	require.NoError(t, err)
	assert.False(t, zoned)

	_, err = r.ZoneSectors("/dev/nvme9n1")
	assert.Error(t, err)
}

func TestStopBacking(t *testing.T) {
	root := t.TempDir()
	stop := filepath.Join(root, "block/sdb/bcache/stop")
	writeFile(t, stop, "")

	r := New(root)
	require.NoError(t, r.StopBacking("/dev/sdb"))

	data, err := os.ReadFile(stop)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	assert.Error(t, r.StopBacking("/dev/sdc"))
}

func TestUnregisterSet(t *testing.T) {
	root := t.TempDir()
	set := uuid.MustParse("6a2b9f3c-1e44-4c0d-8e6f-5a7b8c9d0e1f")
	knob := filepath.Join(root, "fs/bcache", set.String(), "unregister")
	writeFile(t, knob, "")

	r := New(root)
	require.NoError(t, r.UnregisterSet(set))

	data, err := os.ReadFile(knob)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	assert.Error(t, r.UnregisterSet(uuid.New()))
}

func TestBlockNameFollowsSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sdb")
	writeFile(t, target, "")
	link := filepath.Join(dir, "by-id-disk")
	require.NoError(t, os.Symlink(target, link))

	assert.Equal(t, "sdb", blockName(link))
	assert.Equal(t, "sdz", blockName("/dev/sdz"))
}

func TestNewDefaultRoot(t *testing.T) {
	assert.Equal(t, "/sys", New("").Root)
}
