//go:build !linux

package device

import (
	"errors"
	"os"

	"github.com/ehrlich-b/go-bcache/internal/interfaces"
)

// ErrUnsupported is returned on platforms without the bcache driver
var ErrUnsupported = errors.New("block devices are only supported on linux")

// Block is unavailable on this platform
type Block struct{}

func OpenExclusive(path string) (*Block, error) { return nil, ErrUnsupported }
func OpenReadOnly(path string) (*Block, error)  { return nil, ErrUnsupported }

func (b *Block) ReadAt(p []byte, off int64) (int, error)  { return 0, ErrUnsupported }
func (b *Block) WriteAt(p []byte, off int64) (int, error) { return 0, ErrUnsupported }
func (b *Block) Size() int64                              { return 0 }
func (b *Block) Sync() error                              { return ErrUnsupported }
func (b *Block) Close() error                             { return nil }
func (b *Block) File() *os.File                           { return nil }
func (b *Block) Path() string                             { return "" }
func (b *Block) IsBlockDevice() bool                      { return false }
func (b *Block) LogicalBlockSize() uint32                 { return 0 }
func (b *Block) Discard(offset, length int64) error       { return ErrUnsupported }

func Stat(path string) (interfaces.DeviceInfo, error) {
	return interfaces.DeviceInfo{}, ErrUnsupported
}

func IsBlockDevice(path string) bool { return false }

func IsBusy(err error) bool { return false }
