//go:build linux

package ctrl

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

type fileChannel struct {
	fd int
}

// OpenChannel opens the control device at path
func OpenChannel(path string) (Channel, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &fileChannel{fd: fd}, nil
}

func (f *fileChannel) Ioctl(req uint32, payload []byte) error {
	var arg uintptr
	if len(payload) > 0 {
		arg = uintptr(unsafe.Pointer(&payload[0]))
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(f.fd), uintptr(req), arg)
	// Keep payload alive until the kernel has copied it
	runtime.KeepAlive(payload)
	if errno != 0 {
		return errno
	}
	return nil
}

func (f *fileChannel) Close() error {
	if f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}
