package upstream

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portofcontext/pctx/pkg/gwerrors"
)

func TestAsJSONRPCError_ExtractsCodeAndMessage(t *testing.T) {
	t.Parallel()

	err := errors.New("tool call failed: jsonrpc error -32000: rate limit exceeded")
	rpcErr, ok := asJSONRPCError(err)
	require.True(t, ok)
	assert.Equal(t, -32000, rpcErr.code)
	assert.Equal(t, "rate limit exceeded", rpcErr.message)
}

func TestAsJSONRPCError_NoMatch(t *testing.T) {
	t.Parallel()

	_, ok := asJSONRPCError(errors.New("connection refused"))
	assert.False(t, ok)

	_, ok = asJSONRPCError(nil)
	assert.False(t, ok)
}

func TestIsNetworkFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "context deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "context canceled", err: context.Canceled, want: true},
		{name: "net.Error", err: &net.DNSError{IsTimeout: true}, want: true},
		{name: "connection refused string", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "eof string", err: errors.New("unexpected EOF"), want: true},
		{name: "unrelated error", err: errors.New("invalid argument"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isNetworkFailure(tt.err))
		})
	}
}

func TestIsSessionError(t *testing.T) {
	t.Parallel()

	assert.True(t, isSessionError(errors.New("Mcp-Session-Id header missing")))
	assert.True(t, isSessionError(errors.New("session not found")))
	assert.True(t, isSessionError(errors.New("unexpected status code: 404")))
	assert.False(t, isSessionError(errors.New("connection refused")))
	assert.False(t, isSessionError(nil))
}

func TestIsUnsupportedCapability(t *testing.T) {
	t.Parallel()

	assert.True(t, isUnsupportedCapability(errors.New("method not found")))
	assert.True(t, isUnsupportedCapability(errors.New("tools/list is not supported by this server")))
	assert.False(t, isUnsupportedCapability(errors.New("connection refused")))
	assert.False(t, isUnsupportedCapability(nil))
}

func TestClassifyInitError_NetworkVsProtocol(t *testing.T) {
	t.Parallel()

	netErr := classifyInitError(errors.New("connection refused"), "github")
	assert.True(t, errors.Is(netErr, gwerrors.ErrUpstreamUnavailable))

	protoErr := classifyInitError(errors.New("malformed response"), "github")
	assert.True(t, errors.Is(protoErr, gwerrors.ErrUpstreamProtocolError))
}

func TestNew_DefaultsToStreamableHTTPTransport(t *testing.T) {
	t.Parallel()

	c := New("github", "https://example.com/mcp", nil)
	assert.Equal(t, "github", c.Name())
	assert.Equal(t, "https://example.com/mcp", c.BaseURL())
}

func TestWithTransport_OverridesDefault(t *testing.T) {
	t.Parallel()

	c := New("github", "https://example.com/mcp", nil, WithTransport("sse"))
	assert.Equal(t, "sse", c.transport)
}

func TestNewTransportClient_UnsupportedTransportIsConfigInvalid(t *testing.T) {
	t.Parallel()

	c := New("github", "https://example.com/mcp", nil, WithTransport("carrier-pigeon"))
	_, err := c.newTransportClient()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrConfigInvalid))
}
