package bcache

import (
	"syscall"

	"github.com/ehrlich-b/go-bcache/internal/errs"
)

// Error is the structured error returned by every stage of Format. It
// carries the failing operation, the device path, an error category and,
// when the kernel reported one, the errno.
type Error = errs.Error

// ErrorCode represents high-level error categories
type ErrorCode = errs.Code

// Error categories. Each can be used directly as an errors.Is target.
const (
	CodeConfigValidation    = errs.CodeConfigValidation
	CodeInsufficientBuckets = errs.CodeInsufficientBuckets
	CodeDeviceAccess        = errs.CodeDeviceAccess
	CodeExistingState       = errs.CodeExistingState
	CodeQuiescingFailure    = errs.CodeQuiescingFailure
	CodeIOFailure           = errs.CodeIOFailure
	CodeControlChannel      = errs.CodeControlChannel
)

// Causes wrapped by Error for the failures that need telling apart
var (
	ErrNotBcacheDevice  = errs.ErrNotBcacheDevice
	ErrReleaseRejected  = errs.ErrReleaseRejected
	ErrStillBusy        = errs.ErrStillBusy
	ErrAlreadyFormatted = errs.ErrAlreadyFormatted
	ErrForeignSignature = errs.ErrForeignSignature
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return errs.New(op, code, msg)
}

// WrapError wraps an existing error with bcache context
func WrapError(op, device string, code ErrorCode, inner error) *Error {
	return errs.Wrap(op, device, code, inner)
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	return errs.IsCode(err, code)
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	return errs.IsErrno(err, errno)
}
