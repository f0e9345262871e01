package errs

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewDeviceError("WRITE_SB", "/dev/sdb", CodeIOFailure, "short write")

	assert.Equal(t, "WRITE_SB", err.Op)
	assert.Equal(t, CodeIOFailure, err.Code)
	assert.Equal(t, "bcache: short write (op=WRITE_SB, dev=/dev/sdb)", err.Error())
}

func TestErrorWithoutContext(t *testing.T) {
	err := &Error{Code: CodeExistingState}
	assert.Equal(t, "bcache: device already holds a superblock", err.Error())
}

func TestWrapErrno(t *testing.T) {
	inner := &os.PathError{Op: "open", Path: "/dev/sdb", Err: syscall.EBUSY}
	err := Wrap("OPEN", "/dev/sdb", CodeIOFailure, inner)

	assert.Equal(t, CodeDeviceAccess, err.Code)
	assert.Equal(t, syscall.EBUSY, err.Errno)
	assert.True(t, errors.Is(err, syscall.EBUSY))
	assert.True(t, IsErrno(err, syscall.EBUSY))
	assert.False(t, IsErrno(err, syscall.EIO))
}

func TestWrapPlainError(t *testing.T) {
	err := Wrap("PROBE", "/dev/sdc", CodeIOFailure, fmt.Errorf("probe exploded"))

	assert.Equal(t, CodeIOFailure, err.Code)
	assert.Equal(t, "probe exploded", err.Msg)
	assert.Nil(t, Wrap("PROBE", "", CodeIOFailure, nil))
}

func TestWrapStructuredKeepsCode(t *testing.T) {
	inner := NewDeviceCause("RELEASE", "", CodeQuiescingFailure, ErrStillBusy, "still busy")
	err := Wrap("FORMAT", "/dev/sdd", CodeIOFailure, inner)

	assert.Equal(t, "FORMAT", err.Op)
	assert.Equal(t, "/dev/sdd", err.Device)
	assert.Equal(t, CodeQuiescingFailure, err.Code)
	assert.ErrorIs(t, err, ErrStillBusy)
}

func TestCodeAsTarget(t *testing.T) {
	err := fmt.Errorf("device 1: %w", NewDeviceCause("INSPECT", "/dev/sdb", CodeExistingState, ErrAlreadyFormatted, "already formatted"))

	require.ErrorIs(t, err, CodeExistingState)
	require.ErrorIs(t, err, ErrAlreadyFormatted)
	assert.NotErrorIs(t, err, CodeIOFailure)
	assert.True(t, IsCode(err, CodeExistingState))
	assert.False(t, IsCode(nil, CodeExistingState))
}

func TestErrnoMapping(t *testing.T) {
	testCases := []struct {
		errno    syscall.Errno
		expected Code
	}{
		{syscall.ENOENT, CodeDeviceAccess},
		{syscall.EBUSY, CodeDeviceAccess},
		{syscall.EACCES, CodeDeviceAccess},
		{syscall.EIO, CodeIOFailure},
		{syscall.EINVAL, CodeControlChannel},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, MapErrno(tc.errno, CodeControlChannel), "errno %v", tc.errno)
	}
}
