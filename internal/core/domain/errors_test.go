package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadErrorWrapsCause(t *testing.T) {
	cause := fmt.Errorf("%w: reset by peer", ErrConnectionLost)
	le := &LoadError{Track: 3, Name: "alice", Kind: FailureTransport, Err: cause}

	assert.ErrorIs(t, le, ErrConnectionLost)
	assert.Contains(t, le.Error(), "track 3 (alice)")
	assert.Contains(t, le.Error(), "transport")
}

func TestAsLoadError(t *testing.T) {
	le := &LoadError{Track: 1, Kind: FailureDecode, Err: errors.New("bad page")}
	wrapped := fmt.Errorf("loading: %w", le)

	got, ok := AsLoadError(wrapped)
	require.True(t, ok)
	assert.Equal(t, FailureDecode, got.Kind)

	_, ok = AsLoadError(errors.New("unrelated"))
	assert.False(t, ok)
}
