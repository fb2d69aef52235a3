package gwerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors_WrapAndUnwrap(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("dial tcp: %w", ErrUpstreamUnavailable)
	assert.True(t, errors.Is(wrapped, ErrUpstreamUnavailable))
	assert.False(t, errors.Is(wrapped, ErrUpstreamProtocolError))
}

func TestUpstreamError_Message(t *testing.T) {
	t.Parallel()

	err := &UpstreamError{Upstream: "github", Code: -32602, Message: "invalid params"}
	assert.Equal(t, `upstream github: jsonrpc error -32602: invalid params`, err.Error())
	assert.True(t, err.NotRetryable())
}

func TestUpstreamError_AsTarget(t *testing.T) {
	t.Parallel()

	var target *UpstreamError
	wrapped := fmt.Errorf("call failed: %w", &UpstreamError{Upstream: "x", Code: 1, Message: "boom"})
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "x", target.Upstream)
}
