package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseSize caps a single upstream HTTP response body, protecting the
// gateway process against memory exhaustion from a malicious or misbehaving
// upstream. Grounded on
// stacklok-toolhive/pkg/vmcp/client/client.go's maxResponseSize (there set
// to 100MB for a multi-tenant virtual-MCP gateway); this gateway's
// per-upstream blast radius is smaller so the ceiling is tighter.
const maxResponseSize = 25 * 1024 * 1024 // 25 MB

// CredentialProvider is the subset of internal/config.CredentialProvider
// this package needs. Declared locally (rather than imported) so that
// upstream never depends on internal/config; any type with this method,
// including *config.StaticCredentialProvider, satisfies it structurally.
type CredentialProvider interface {
	HeadersFor(ctx context.Context, upstreamName string) (map[string]string, error)
}

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// authRoundTripper re-queries the CredentialProvider for every outgoing
// request (spec.md §4.1: "the client must re-query the provider for each
// request (not cache the header in the client itself), so rotation is
// transparent").
type authRoundTripper struct {
	base         http.RoundTripper
	credentials  CredentialProvider
	upstreamName string
}

func (a *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	headers, err := a.credentials.HeadersFor(req.Context(), a.upstreamName)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials for upstream %s: %w", a.upstreamName, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return a.base.RoundTrip(req)
}

// sizeLimitingRoundTripper truncates response bodies to maxResponseSize
// before they reach JSON deserialization.
type sizeLimitingRoundTripper struct {
	base http.RoundTripper
}

func (s *sizeLimitingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, maxResponseSize),
		Closer: resp.Body,
	}
	return resp, nil
}

func newHTTPClient(upstreamName string, credentials CredentialProvider) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	transport = &authRoundTripper{base: transport, credentials: credentials, upstreamName: upstreamName}
	transport = &sizeLimitingRoundTripper{base: transport}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}
