package bcache

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("VALIDATE", CodeConfigValidation, "bucket size must be a power of two")

	if err.Op != "VALIDATE" {
		t.Errorf("Expected Op=VALIDATE, got %s", err.Op)
	}

	if err.Code != CodeConfigValidation {
		t.Errorf("Expected Code=CodeConfigValidation, got %s", err.Code)
	}

	expected := "bcache: bucket size must be a power of two (op=VALIDATE)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError("OPEN", "/dev/sdb", CodeIOFailure, syscall.ENOENT)

	if err.Code != CodeDeviceAccess {
		t.Errorf("Expected Code=CodeDeviceAccess, got %s", err.Code)
	}

	if err.Errno != syscall.ENOENT {
		t.Errorf("Expected Errno=ENOENT, got %v", err.Errno)
	}

	if !errors.Is(err, syscall.ENOENT) {
		t.Error("Expected wrapped error to satisfy errors.Is for ENOENT")
	}

	if WrapError("OPEN", "/dev/sdb", CodeIOFailure, nil) != nil {
		t.Error("Wrapping nil should return nil")
	}
}

func TestCodesAsTargets(t *testing.T) {
	structuredErr := &Error{Code: CodeExistingState, Inner: ErrAlreadyFormatted}

	if !errors.Is(structuredErr, CodeExistingState) {
		t.Error("Structured error should match its code via errors.Is")
	}

	if !errors.Is(structuredErr, ErrAlreadyFormatted) {
		t.Error("Structured error should match its cause via errors.Is")
	}

	if errors.Is(structuredErr, CodeIOFailure) {
		t.Error("Structured error should not match a different code")
	}

	wrapped := fmt.Errorf("format: %w", structuredErr)
	if !IsCode(wrapped, CodeExistingState) {
		t.Error("IsCode should see through fmt wrapping")
	}
}

func TestIsErrno(t *testing.T) {
	err := WrapError("WRITE_SB", "/dev/sdb", CodeIOFailure, syscall.EIO)

	if !IsErrno(err, syscall.EIO) {
		t.Error("Expected IsErrno to match EIO")
	}

	if IsErrno(err, syscall.EBUSY) {
		t.Error("Expected IsErrno not to match EBUSY")
	}

	if IsErrno(errors.New("plain"), syscall.EIO) {
		t.Error("Plain errors carry no errno")
	}
}
