//go:build linux

package device

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/interfaces"
)

// Block is an open block device or regular file
type Block struct {
	f        *os.File
	path     string
	size     int64
	blkdev   bool
	sectorSz uint32
}

// OpenExclusive opens path read-write with O_EXCL. On a block device the
// kernel refuses the open with EBUSY while anything else holds it, which is
// how a device still claimed by the bcache driver is detected.
func OpenExclusive(path string) (*Block, error) {
	return open(path, unix.O_RDWR|unix.O_EXCL|unix.O_CLOEXEC)
}

// OpenReadOnly opens path without claiming it
func OpenReadOnly(path string) (*Block, error) {
	return open(path, unix.O_RDONLY|unix.O_CLOEXEC)
}

func open(path string, flags int) (*Block, error) {
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	f := os.NewFile(uintptr(fd), path)

	b := &Block{f: f, path: path, sectorSz: constants.SectorSize}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		f.Close()
		return nil, &os.PathError{Op: "fstat", Path: path, Err: err}
	}

	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		b.blkdev = true
		size, err := ioctlUint64(fd, unix.BLKGETSIZE64)
		if err != nil {
			f.Close()
			return nil, &os.PathError{Op: "BLKGETSIZE64", Path: path, Err: err}
		}
		b.size = int64(size)

		ssz, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
		if err != nil {
			f.Close()
			return nil, &os.PathError{Op: "BLKSSZGET", Path: path, Err: err}
		}
		b.sectorSz = uint32(ssz)
	} else {
		b.size = st.Size
		if st.Blksize > 0 {
			b.sectorSz = uint32(st.Blksize)
		}
	}

	return b, nil
}

func ioctlUint64(fd int, req uint) (uint64, error) {
	var v uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return 0, errno
	}
	return v, nil
}

// ReadAt implements the Device interface
func (b *Block) ReadAt(p []byte, off int64) (int, error) {
	return b.f.ReadAt(p, off)
}

// WriteAt implements the Device interface
func (b *Block) WriteAt(p []byte, off int64) (int, error) {
	return b.f.WriteAt(p, off)
}

// Size implements the Device interface
func (b *Block) Size() int64 {
	return b.size
}

// Sync implements the Device interface
func (b *Block) Sync() error {
	return unix.Fsync(int(b.f.Fd()))
}

// Close implements the Device interface
func (b *Block) Close() error {
	return b.f.Close()
}

// File implements the FileDevice interface
func (b *Block) File() *os.File {
	return b.f
}

// Path returns the path the device was opened with
func (b *Block) Path() string {
	return b.path
}

// IsBlockDevice reports whether the open file is a block device node
func (b *Block) IsBlockDevice() bool {
	return b.blkdev
}

// LogicalBlockSize returns the logical sector size in bytes. For regular
// files this is the preferred I/O size reported by stat.
func (b *Block) LogicalBlockSize() uint32 {
	return b.sectorSz
}

// Discard issues BLKDISCARD over the given byte range, trimmed inward to
// logical sector boundaries. Regular files get a hole punched instead.
func (b *Block) Discard(offset, length int64) error {
	ssz := int64(b.sectorSz)
	start := (offset + ssz - 1) / ssz * ssz
	end := (offset + length) / ssz * ssz
	if end <= start {
		return nil
	}

	if !b.blkdev {
		return unix.Fallocate(int(b.f.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, start, end-start)
	}

	rng := [2]uint64{uint64(start), uint64(end - start)}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), unix.BLKDISCARD, uintptr(unsafe.Pointer(&rng[0])))
	if errno != 0 {
		return fmt.Errorf("BLKDISCARD: %w", errno)
	}
	return nil
}

// Stat gathers the facts needed before formatting without claiming the device
func Stat(path string) (interfaces.DeviceInfo, error) {
	b, err := OpenReadOnly(path)
	if err != nil {
		return interfaces.DeviceInfo{}, err
	}
	defer b.Close()

	return interfaces.DeviceInfo{
		IsBlockDevice:    b.blkdev,
		SizeSectors:      uint64(b.size) / constants.SectorSize,
		LogicalBlockSize: b.sectorSz,
	}, nil
}

// IsBlockDevice reports whether path names a block device node
func IsBlockDevice(path string) bool {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFBLK
}

// IsBusy reports whether an open failed because the device is claimed
func IsBusy(err error) bool {
	return errors.Is(err, unix.EBUSY)
}

// Compile-time interface checks
var (
	_ interfaces.Device        = (*Block)(nil)
	_ interfaces.DiscardDevice = (*Block)(nil)
	_ interfaces.FileDevice    = (*Block)(nil)
)
