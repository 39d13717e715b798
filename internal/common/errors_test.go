package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorChain(t *testing.T) {
	err := NewAppError("ENGINE_UNAVAILABLE", "engine init failed", ErrEngineUnavailable)

	assert.Equal(t, "ENGINE_UNAVAILABLE", CodeOf(err))
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Contains(t, err.Error(), "engine init failed")

	wrapped := fmt.Errorf("starting up: %w", err)
	assert.Equal(t, "ENGINE_UNAVAILABLE", CodeOf(wrapped))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Empty(t, CodeOf(errors.New("plain")))
	assert.Empty(t, CodeOf(nil))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "context"))

	err := WrapError(ErrNotFound, "loading supplier")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "loading supplier: resource not found", err.Error())
}
