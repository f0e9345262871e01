// Package errs defines the structured error shared by every formatting stage
package errs

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error represents a structured bcache error with context and errno mapping
type Error struct {
	Op     string        // Operation that failed (e.g., "OPEN", "WRITE_SB")
	Device string        // Device path ("" if not applicable)
	Code   Code          // High-level error category
	Errno  syscall.Errno // Kernel errno (0 if not applicable)
	Msg    string        // Human-readable message
	Inner  error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}

	if e.Device != "" {
		parts = append(parts, fmt.Sprintf("dev=%s", e.Device))
	}

	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("bcache: %s (%s)", msg, strings.Join(parts, ", "))
	}

	return fmt.Sprintf("bcache: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches on the error category, so both a bare Code and another *Error
// work as errors.Is targets
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if c, ok := target.(Code); ok {
		return e.Code == c
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	return false
}

// Code represents high-level error categories
type Code string

// Error lets a Code be used directly as an errors.Is target
func (c Code) Error() string {
	return "bcache: " + string(c)
}

const (
	CodeConfigValidation    Code = "invalid configuration"
	CodeInsufficientBuckets Code = "not enough buckets"
	CodeDeviceAccess        Code = "device access failed"
	CodeExistingState       Code = "device already holds a superblock"
	CodeQuiescingFailure    Code = "could not release busy device"
	CodeIOFailure           Code = "I/O error"
	CodeControlChannel      Code = "control channel request failed"
)

// Distinguishing causes carried in Error.Inner
var (
	ErrNotBcacheDevice  = errors.New("not a bcache device")
	ErrReleaseRejected  = errors.New("stop/unregister request rejected")
	ErrStillBusy        = errors.New("bcache device has not completely closed")
	ErrAlreadyFormatted = errors.New("already a bcache device")
	ErrForeignSignature = errors.New("non-bcache superblock present")
)

// New creates a new structured error
func New(op string, code Code, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewDeviceError creates a new device-specific error
func NewDeviceError(op, device string, code Code, msg string) *Error {
	return &Error{
		Op:     op,
		Device: device,
		Code:   code,
		Msg:    msg,
	}
}

// NewDeviceCause creates a device-specific error wrapping a sentinel cause
func NewDeviceCause(op, device string, code Code, cause error, msg string) *Error {
	return &Error{
		Op:     op,
		Device: device,
		Code:   code,
		Msg:    msg,
		Inner:  cause,
	}
}

// Wrap wraps an existing error with bcache context. Errnos are mapped to a
// category; anything else falls back to the given code.
func Wrap(op, device string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}

	// If it's already a structured error, just update the operation
	var be *Error
	if errors.As(inner, &be) {
		out := *be
		out.Op = op
		if out.Device == "" {
			out.Device = device
		}
		return &out
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:     op,
			Device: device,
			Code:   MapErrno(errno, code),
			Errno:  errno,
			Msg:    inner.Error(),
			Inner:  inner,
		}
	}

	return &Error{
		Op:     op,
		Device: device,
		Code:   code,
		Msg:    inner.Error(),
		Inner:  inner,
	}
}

// MapErrno maps a syscall errno to an error category
func MapErrno(errno syscall.Errno, fallback Code) Code {
	switch errno {
	case syscall.ENOENT, syscall.ENXIO, syscall.ENODEV,
		syscall.EBUSY, syscall.EPERM, syscall.EACCES:
		return CodeDeviceAccess
	case syscall.EIO, syscall.ENOSPC:
		return CodeIOFailure
	default:
		return fallback
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code Code) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Errno == errno
	}
	return false
}
