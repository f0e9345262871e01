package interfaces

import "os"

// Device is a target opened for one format operation. It is intentionally
// close to io.ReaderAt and io.WriterAt so files and in-memory buffers can
// stand in for real block devices.
type Device interface {
	// ReadAt reads len(p) bytes into p starting at offset off.
	// When ReadAt returns n < len(p), it returns a non-nil error explaining
	// why more bytes were not returned.
	//
	// Implementations must not retain p.
	ReadAt(p []byte, off int64) (n int, err error)

	// WriteAt writes len(p) bytes from p at offset off.
	// WriteAt must return a non-nil error if it returns n < len(p).
	//
	// Implementations must not retain p.
	WriteAt(p []byte, off int64) (n int, err error)

	// Size returns the size of the device in bytes.
	Size() int64

	// Sync flushes written data to stable storage.
	Sync() error

	// Close releases the device. After Close is called, no other methods
	// should be called.
	Close() error
}

// DiscardDevice is an optional interface for devices that support
// TRIM/DISCARD.
type DiscardDevice interface {
	Device

	// Discard tells the device the given byte range holds no data.
	// offset and length are in bytes.
	Discard(offset, length int64) error
}

// FileDevice is an optional interface for devices backed by an open file.
// Signature probing needs the descriptor itself.
type FileDevice interface {
	Device

	File() *os.File
}

// DeviceInfo holds the facts gathered about a target before it is opened
// exclusively.
type DeviceInfo struct {
	// IsBlockDevice is false for regular files and other node types
	IsBlockDevice bool

	// SizeSectors is the device size in 512-byte sectors
	SizeSectors uint64

	// LogicalBlockSize is the native logical block size in bytes
	LogicalBlockSize uint32
}
