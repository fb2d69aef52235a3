// Package gwerrors defines the error taxonomy shared across the gateway's
// core packages (upstream, catalog, sandbox, gateway). Callers should check
// these with errors.Is/errors.As rather than string matching.
package gwerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigInvalid is fatal at startup: identifier rules violated or a
	// base URL failed to parse. No gateway starts while this is unresolved.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrUpstreamUnavailable covers network, TLS, and 5xx failures talking to
	// an upstream. Retried once; on persistent failure the upstream is marked
	// degraded and its tools stay listed but calls fail.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamProtocolError covers malformed JSON-RPC framing from an
	// upstream. Unlike ErrUpstreamUnavailable, this is not retried.
	ErrUpstreamProtocolError = errors.New("upstream protocol error")

	// ErrHostNotAllowed is thrown into the execution sandbox when code calls
	// fetch() against a host outside the AllowList.
	ErrHostNotAllowed = errors.New("host not allowed")

	// ErrUnknownUpstream is thrown into the execution sandbox when code calls
	// callMCPTool against an upstream name that isn't registered.
	ErrUnknownUpstream = errors.New("unknown upstream")

	// ErrCancelled marks a sandbox operation cancelled by the execution
	// deadline. Terminal for the VM.
	ErrCancelled = errors.New("operation cancelled")

	// ErrTimedOut marks an execution that did not settle before its deadline.
	ErrTimedOut = errors.New("execution timed out")

	// ErrInternal covers VM init/snapshot-load failures. Never propagates as
	// a process crash; always reduces to an ExecutionResult.
	ErrInternal = errors.New("internal error")
)

// UpstreamError represents a JSON-RPC error object returned by an upstream's
// tools/call response. It propagates verbatim into the sandbox as a thrown
// error, per spec: the sandboxed caller sees the upstream's own message.
type UpstreamError struct {
	Upstream string
	Code     int
	Message  string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: jsonrpc error %d: %s", e.Upstream, e.Code, e.Message)
}

// NotRetryable reports whether the gateway should avoid retrying a request
// that produced this error. JSON-RPC level errors (as opposed to transport
// failures) are never retried per spec §4.1.
func (*UpstreamError) NotRetryable() bool { return true }
