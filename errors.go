// Package sectorfs defines the error taxonomy shared by every layer of the
// file system, from the block device up to the public volume operations.
package sectorfs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// FSError is the error type returned by all sectorfs packages. Every failure
// is rooted in one of the package-level sentinel values below, so callers can
// classify a failure with errors.Is regardless of how many layers annotated it
// on the way up.
type FSError interface {
	error
	WithMessage(message string) FSError
	Wrap(err error) FSError
}

type baseFSError string

const rootError = baseFSError("")

var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrInvalidPath = rootError.WithMessage("Invalid path")
var ErrNameTooLong = rootError.WithMessage("File name too long")
var ErrExists = rootError.WithMessage("File exists")
var ErrNotFound = rootError.WithMessage("No such file or directory")
var ErrDirectoryNotEmpty = rootError.WithMessage("Directory not empty")
var ErrNotADirectory = rootError.WithMessage("Not a directory")
var ErrIsADirectory = rootError.WithMessage("Is a directory")
var ErrInvalidFileDescriptor = rootError.WithMessage("Bad file descriptor")
var ErrTooManyOpenFiles = rootError.WithMessage("Too many open files in system")
var ErrFileTooLarge = rootError.WithMessage("File too large")
var ErrNoSpaceOnDevice = rootError.WithMessage("No space left on device")
var ErrArgumentOutOfRange = rootError.WithMessage("Numerical argument out of domain")
var ErrBufferTooSmall = rootError.WithMessage("Buffer too small")
var ErrFileInUse = rootError.WithMessage("Device or resource busy")
var ErrInvalidFileSystem = rootError.WithMessage("Wrong medium type")
var ErrDeviceSizeMismatch = rootError.WithMessage("Backing store size mismatch")

func (e baseFSError) Error() string {
	return string(e)
}

func (e baseFSError) WithMessage(message string) FSError {
	return customFSError{
		message:       message,
		originalError: e,
	}
}

func (e baseFSError) Wrap(err error) FSError {
	return customFSError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customFSError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a
// string describing the error.
func (e customFSError) Error() string {
	return e.message
}

func (e customFSError) WithMessage(message string) FSError {
	return customFSError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customFSError) Wrap(err error) FSError {
	return customFSError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customFSError) Unwrap() error {
	return e.originalError
}
