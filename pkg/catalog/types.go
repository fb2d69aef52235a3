// Package catalog holds the gateway's central domain model: the aggregated
// view of every upstream's tools, the TypeScript declaration synthesizer
// built on top of it, and the Client interface upstream implementations
// satisfy. Other packages (upstream, sandbox, gateway) depend on catalog;
// catalog depends on none of them, mirroring how the teacher's pkg/vmcp
// sits underneath pkg/vmcp/client and pkg/vmcp/server.
package catalog

import (
	"context"
	"encoding/json"
)

// UpstreamDescriptor is the immutable per-upstream record described in
// spec.md §3: a stable identifier-safe name used as the TS namespace, a
// base URL, and an opaque auth-header map. Build does not fill AuthHeaders;
// headers are fetched from the credential provider per request instead.
type UpstreamDescriptor struct {
	Name        string
	BaseURL     string
	AuthHeaders map[string]string
}

// ToolDescriptor is the authoritative per-tool record used for both TS
// signature generation and call_mcp_tool routing (spec.md §3).
type ToolDescriptor struct {
	Name        string
	Title       string
	Description string
	InputSchema json.RawMessage
	// OutputSchema is nil when none is set; the synthesizer then renders the
	// return type as Promise<any>. The upstream client does not copy an
	// upstream's declared output schema here, so for tools listed from an
	// upstream it is always nil.
	OutputSchema json.RawMessage
}

// Diagnostic mirrors the type-check stage's output shape (spec.md §3):
// message plus optional 1-based line/column, a severity, and an optional
// compiler code. Diagnostics produced internally by the execution sandbox
// (timeouts, unhandled errors) omit Code.
type Diagnostic struct {
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Severity string `json:"severity"`
	Code     int    `json:"code,omitempty"`
}

// Severity values a Diagnostic may carry.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ExecutionResult is the contract every execute() call returns, success or
// failure alike (spec.md §3, §6 "Error envelope surfaced to the agent").
type ExecutionResult struct {
	Success     bool         `json:"success"`
	Stdout      []string     `json:"stdout"`
	Stderr      []string     `json:"stderr"`
	ReturnValue any          `json:"return_value"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Client is the Upstream MCP Client's contract as seen by the catalog and
// the execution sandbox (spec.md §4.1). Concrete implementations live in
// package upstream; catalog only depends on this interface so that it never
// needs to import upstream.
type Client interface {
	// Initialize performs the MCP handshake, caching the session id and
	// protocol version for subsequent calls.
	Initialize(ctx context.Context) error
	// ListTools returns the upstream's advertised tools, or an empty slice
	// if tools/list is unsupported.
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	// CallTool invokes one tool by name and returns its structured result.
	// The returned error is an *gwerrors.UpstreamError when the upstream
	// replied with a JSON-RPC error object, propagated verbatim.
	CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error)
	// Close releases any held connection/session state.
	Close(ctx context.Context) error
}

// ToolCallResult is what CallTool returns: the upstream's result.content
// array (already reduced to its text/structured form) plus the
// structuredContent object when the upstream provided one.
type ToolCallResult struct {
	Content           []Content      `json:"content"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// Content is one typed content part of a tool call result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// UpstreamEntry bundles one upstream's descriptor with its resolved tools,
// the unit the Catalog indexes by name.
type UpstreamEntry struct {
	Descriptor UpstreamDescriptor
	Tools      []ToolDescriptor
}
