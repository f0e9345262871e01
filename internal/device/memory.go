// Package device provides the targets a superblock is written to: real
// block devices and files on Linux, and an in-memory device for tests.
package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/ehrlich-b/go-bcache/internal/interfaces"
)

// Memory is a RAM-backed device. Its fault hooks let tests exercise the
// error paths of the writer without a real disk.
type Memory struct {
	data []byte
	size int64
	mu   sync.RWMutex

	// Fault injection; zero values mean "behave normally"
	ShortWrite  bool
	WriteErr    error
	SyncErr     error
	DiscardErr  error
	CloseErr    error
	closed      bool
	syncs       int
	discards    int
	lastDiscard [2]int64
}

// NewMemory creates a new memory device of the specified size
func NewMemory(size int64) *Memory {
	return &Memory{
		data: make([]byte, size),
		size: size,
	}
}

// ReadAt implements the Device interface
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, fmt.Errorf("read from closed device")
	}
	if off >= m.size {
		return 0, io.EOF
	}

	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the Device interface
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("write to closed device")
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	if off >= m.size {
		return 0, fmt.Errorf("write beyond end of device")
	}

	if m.ShortWrite && len(p) > 1 {
		p = p[:len(p)/2]
	}

	n := copy(m.data[off:], p)
	if m.ShortWrite || n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Size implements the Device interface
func (m *Memory) Size() int64 {
	return m.size
}

// Sync implements the Device interface
func (m *Memory) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncs++
	return m.SyncErr
}

// Close implements the Device interface. The contents survive Close so
// tests can inspect what was written.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return m.CloseErr
}

// Discard implements the DiscardDevice interface
func (m *Memory) Discard(offset, length int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discards++
	m.lastDiscard = [2]int64{offset, length}
	if m.DiscardErr != nil {
		return m.DiscardErr
	}
	if offset >= m.size {
		return nil
	}

	end := offset + length
	if end > m.size {
		end = m.size
	}
	clear(m.data[offset:end])
	return nil
}

// Reopen clears the closed flag so the same contents can be opened again
func (m *Memory) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

// Closed reports whether Close has been called
func (m *Memory) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Syncs returns the number of Sync calls
func (m *Memory) Syncs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncs
}

// Discards returns the number of Discard calls and the last range requested
func (m *Memory) Discards() (int, int64, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.discards, m.lastDiscard[0], m.lastDiscard[1]
}

// Bytes returns a copy of the device contents
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Compile-time interface checks
var (
	_ interfaces.Device        = (*Memory)(nil)
	_ interfaces.DiscardDevice = (*Memory)(nil)
)
