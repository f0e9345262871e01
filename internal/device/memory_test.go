package device

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	mem := NewMemory(1024)
	assert.Equal(t, int64(1024), mem.Size())
	assert.Len(t, mem.Bytes(), 1024)
}

func TestMemoryReadWrite(t *testing.T) {
	mem := NewMemory(1024)
	defer mem.Close()

	testData := []byte("bcache superblock")
	n, err := mem.WriteAt(testData, 4)
	require.NoError(t, err)
	assert.Equal(t, len(testData), n)

	readBuf := make([]byte, len(testData))
	n, err = mem.ReadAt(readBuf, 4)
	require.NoError(t, err)
	assert.Equal(t, len(testData), n)
	assert.Equal(t, testData, readBuf)
}

func TestMemoryBoundaryConditions(t *testing.T) {
	mem := NewMemory(100)

	buf := make([]byte, 50)
	n, err := mem.ReadAt(buf, 80)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 20, n)

	n, err = mem.WriteAt([]byte("test"), 98)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 2, n)

	_, err = mem.WriteAt([]byte("test"), 101)
	assert.Error(t, err)
}

func TestMemoryFaults(t *testing.T) {
	mem := NewMemory(4096)
	mem.ShortWrite = true
	n, err := mem.WriteAt(make([]byte, 100), 0)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 50, n)

	mem.ShortWrite = false
	mem.SyncErr = errors.New("flush failed")
	assert.Error(t, mem.Sync())
	assert.Equal(t, 1, mem.Syncs())

	mem.DiscardErr = errors.New("not supported")
	assert.Error(t, mem.Discard(0, 4096))
	count, off, length := mem.Discards()
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(0), off)
	assert.Equal(t, int64(4096), length)
}

func TestMemoryDiscard(t *testing.T) {
	mem := NewMemory(100)
	_, err := mem.WriteAt([]byte("Hello, World!"), 10)
	require.NoError(t, err)

	require.NoError(t, mem.Discard(10, 5))
	data := mem.Bytes()
	assert.Equal(t, make([]byte, 5), data[10:15])
	assert.Equal(t, ", World!", string(data[15:23]))

	require.NoError(t, mem.Discard(90, 50))
	require.NoError(t, mem.Discard(200, 10))
}

func TestMemoryClose(t *testing.T) {
	mem := NewMemory(512)
	_, err := mem.WriteAt([]byte{1}, 0)
	require.NoError(t, err)

	require.NoError(t, mem.Close())
	assert.True(t, mem.Closed())
	_, err = mem.WriteAt([]byte{1}, 0)
	assert.Error(t, err)

	mem.Reopen()
	assert.False(t, mem.Closed())
	assert.Equal(t, byte(1), mem.Bytes()[0])
}
