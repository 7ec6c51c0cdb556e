package sectorfs_test

import (
	"errors"
	"testing"

	"github.com/dsalter/sectorfs"
	"github.com/stretchr/testify/assert"
)

func TestErrorWithMessage(t *testing.T) {
	newErr := sectorfs.ErrNoSpaceOnDevice.WithMessage("asdfqwerty")
	assert.Equal(
		t, "No space left on device: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, sectorfs.ErrNoSpaceOnDevice)
}

func TestErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := sectorfs.ErrExists.Wrap(originalErr)
	expectedMessage := "File exists: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, sectorfs.ErrExists, "sentinel not set as parent")
}

func TestErrorSentinelsAreDistinct(t *testing.T) {
	wrapped := sectorfs.ErrNotADirectory.WithMessage("/a/b")
	assert.ErrorIs(t, wrapped, sectorfs.ErrNotADirectory)
	assert.NotErrorIs(t, wrapped, sectorfs.ErrIsADirectory)
	assert.NotErrorIs(t, wrapped, sectorfs.ErrNotFound)
}
