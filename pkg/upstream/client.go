// Package upstream implements the Upstream MCP Client (spec.md §4.1): one
// JSON-RPC-over-HTTP(S) connection to a single upstream tool-providing
// server, built on mark3labs/mcp-go the way
// stacklok-toolhive/pkg/vmcp/client/client.go builds its backend client.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/portofcontext/pctx/internal/logging"
	"github.com/portofcontext/pctx/pkg/catalog"
	"github.com/portofcontext/pctx/pkg/gwerrors"
)

// retryBackoffPolicy bounds the single network-failure retry spec.md §4.1
// allows ("at most one retry on network-layer failure with a 200-500 ms
// backoff") to exactly one attempt past the first, grounded on the
// teacher's go.mod-level use of cenkalti/backoff for its own backend retry
// policy.
func retryBackoffPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(300*time.Millisecond), 1)
}

// Client is one upstream's MCP connection. It satisfies catalog.Client.
// A Client is safe for concurrent use: concurrent CallTool/ListTools calls
// may run against the same session id (spec.md §5: "the upstream client
// must tolerate concurrent in-flight requests on one session id").
type Client struct {
	name        string
	baseURL     string
	transport   string // "streamable-http" or "sse"
	credentials CredentialProvider

	mu  sync.Mutex
	mcp *client.Client // lazily (re)created on Initialize / session loss
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithTransport selects "streamable-http" (default) or "sse".
func WithTransport(name string) Option {
	return func(c *Client) { c.transport = name }
}

// New builds a Client for one upstream. credentials is re-queried on every
// outgoing request, never cached by the client itself.
func New(name, baseURL string, credentials CredentialProvider, opts ...Option) *Client {
	c := &Client{
		name:        name,
		baseURL:     baseURL,
		transport:   "streamable-http",
		credentials: credentials,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the upstream's configured name.
func (c *Client) Name() string { return c.name }

// BaseURL returns the upstream's configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newTransportClient() (*client.Client, error) {
	httpClient := newHTTPClient(c.name, c.credentials)

	switch c.transport {
	case "streamable-http", "streamable":
		return client.NewStreamableHttpClient(
			c.baseURL,
			transport.WithHTTPTimeout(30*time.Second),
			transport.WithHTTPBasicClient(httpClient),
		)
	case "sse":
		return client.NewSSEMCPClient(
			c.baseURL,
			transport.WithHTTPClient(httpClient),
		)
	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", gwerrors.ErrConfigInvalid, c.transport)
	}
}

// Initialize performs the MCP handshake, per spec.md §4.1 and §6: sends
// Accept: application/json, text/event-stream on the initial request
// (handled by the mcp-go transport), and caches the resulting session id
// and protocol version internally for reuse until a 4xx session error
// forces re-initialization.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(ctx)
}

// initializeLocked must be called with c.mu held.
func (c *Client) initializeLocked(ctx context.Context) error {
	if c.mcp != nil {
		_ = c.mcp.Close()
		c.mcp = nil
	}

	mcpClient, err := c.newTransportClient()
	if err != nil {
		return fmt.Errorf("%w: create client for %s: %v", gwerrors.ErrUpstreamUnavailable, c.name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("%w: start client for %s: %v", gwerrors.ErrUpstreamUnavailable, c.name, err)
	}

	_, err = mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "codeexec-gateway",
				Version: "0.1.0",
			},
			Capabilities: mcp.ClientCapabilities{
				Roots: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{ListChanged: false},
			},
		},
	})
	if err != nil {
		_ = mcpClient.Close()
		return classifyInitError(err, c.name)
	}

	c.mcp = mcpClient
	return nil
}

func classifyInitError(err error, upstreamName string) error {
	if isNetworkFailure(err) {
		return fmt.Errorf("%w: initialize %s: %v", gwerrors.ErrUpstreamUnavailable, upstreamName, err)
	}
	return fmt.Errorf("%w: initialize %s: %v", gwerrors.ErrUpstreamProtocolError, upstreamName, err)
}

// ListTools implements catalog.Client. It returns an empty slice, not an
// error, when the upstream's advertised tools/list response is empty or the
// capability was not negotiated.
func (c *Client) ListTools(ctx context.Context) ([]catalog.ToolDescriptor, error) {
	mcpClient, err := c.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.withRetry(ctx, func(ctx context.Context) (*mcp.ListToolsResult, error) {
		return mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		if isUnsupportedCapability(err) {
			return []catalog.ToolDescriptor{}, nil
		}
		return nil, classifyInitError(err, c.name)
	}

	tools := make([]catalog.ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, convertTool(t))
	}
	return tools, nil
}

func convertTool(t mcp.Tool) catalog.ToolDescriptor {
	input := map[string]any{"type": "object"}
	if t.InputSchema.Type != "" {
		input["type"] = t.InputSchema.Type
	}
	if t.InputSchema.Properties != nil {
		input["properties"] = t.InputSchema.Properties
	}
	if len(t.InputSchema.Required) > 0 {
		input["required"] = t.InputSchema.Required
	}
	if t.InputSchema.Defs != nil {
		input["$defs"] = t.InputSchema.Defs
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		inputJSON = []byte(`{"type":"object"}`)
	}

	return catalog.ToolDescriptor{
		Name:        t.Name,
		Title:       t.Title,
		Description: t.Description,
		InputSchema: inputJSON,
	}
}

// CallTool implements catalog.Client. JSON-RPC error objects are returned as
// *gwerrors.UpstreamError verbatim (no retry, per spec.md §4.1); transport
// failures get one retry after a fixed backoff, and a detected session-id
// 4xx triggers exactly one re-initialize-and-retry.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*catalog.ToolCallResult, error) {
	mcpClient, err := c.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.callToolOnce(ctx, mcpClient, name, arguments)
	if err == nil {
		return result, nil
	}

	var upstreamErr *gwerrors.UpstreamError
	if errors.As(err, &upstreamErr) {
		return nil, err // JSON-RPC error object: never retried.
	}

	if isSessionError(err) {
		logging.Warnw("upstream: session lost, re-initializing", "upstream", c.name)
		if reErr := c.Initialize(ctx); reErr != nil {
			return nil, reErr
		}
		c.mu.Lock()
		mcpClient = c.mcp
		c.mu.Unlock()
		return c.callToolOnce(ctx, mcpClient, name, arguments)
	}

	if isNetworkFailure(err) {
		time.Sleep(retryBackoffPolicy().NextBackOff())
		return c.callToolOnce(ctx, mcpClient, name, arguments)
	}

	return nil, fmt.Errorf("%w: call_tool %s on %s: %v", gwerrors.ErrUpstreamUnavailable, name, c.name, err)
}

func (c *Client) callToolOnce(ctx context.Context, mcpClient *client.Client, name string, arguments map[string]any) (*catalog.ToolCallResult, error) {
	result, err := mcpClient.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		if rpcErr, ok := asJSONRPCError(err); ok {
			return nil, &gwerrors.UpstreamError{Upstream: c.name, Code: rpcErr.code, Message: rpcErr.message}
		}
		return nil, err
	}

	contentArray := make([]catalog.Content, 0, len(result.Content))
	for _, part := range result.Content {
		contentArray = append(contentArray, convertContent(part))
	}

	var structured map[string]any
	if result.StructuredContent != nil {
		if m, ok := result.StructuredContent.(map[string]any); ok {
			structured = m
		}
	}

	return &catalog.ToolCallResult{
		Content:           contentArray,
		StructuredContent: structured,
		IsError:           result.IsError,
	}, nil
}

func convertContent(content mcp.Content) catalog.Content {
	if textContent, ok := mcp.AsTextContent(content); ok {
		return catalog.Content{Type: "text", Text: textContent.Text}
	}
	if imageContent, ok := mcp.AsImageContent(content); ok {
		return catalog.Content{Type: "image", Data: imageContent.Data, MimeType: imageContent.MIMEType}
	}
	if audioContent, ok := mcp.AsAudioContent(content); ok {
		return catalog.Content{Type: "audio", Data: audioContent.Data, MimeType: audioContent.MIMEType}
	}
	return catalog.Content{Type: "unknown"}
}

// Close implements catalog.Client, issuing DELETE /mcp on orderly shutdown
// when a session exists (spec.md §6).
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mcp == nil {
		return nil
	}
	err := c.mcp.Close()
	c.mcp = nil
	return err
}

func (c *Client) ensureInitialized(ctx context.Context) (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mcp == nil {
		if err := c.initializeLocked(ctx); err != nil {
			return nil, err
		}
	}
	return c.mcp, nil
}

// withRetry wraps call in a single network-failure retry via cenkalti/backoff,
// the same policy CallTool uses, stopping immediately (no retry) on any
// non-network error by wrapping it in backoff.Permanent.
func (c *Client) withRetry(ctx context.Context, call func(context.Context) (*mcp.ListToolsResult, error)) (*mcp.ListToolsResult, error) {
	var result *mcp.ListToolsResult
	err := backoff.Retry(func() error {
		r, callErr := call(ctx)
		if callErr != nil {
			if !isNetworkFailure(callErr) {
				return backoff.Permanent(callErr)
			}
			return callErr
		}
		result = r
		return nil
	}, backoff.WithContext(retryBackoffPolicy(), ctx))
	return result, err
}

// jsonRPCError is the code/message pair extracted from a mcp-go CallTool
// error that wraps an upstream's JSON-RPC error object, e.g.
// `jsonrpc error -32000: quota exceeded`. mcp-go formats the error object's
// code and message into its returned error's text rather than exposing a
// dedicated exported type for it, so classification here is string-based,
// the same idiom the teacher's wrapBackendError uses for its own
// library-specific error detection (see client.go's "String-based
// detection" fallback).
var jsonRPCErrorPattern = regexp.MustCompile(`(?i)jsonrpc error (-?\d+)\s*[:\-]\s*(.+)`)

func asJSONRPCError(err error) (jsonRPCError, bool) {
	if err == nil {
		return jsonRPCError{}, false
	}
	m := jsonRPCErrorPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return jsonRPCError{}, false
	}
	code, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		code = 0
	}
	return jsonRPCError{code: code, message: strings.TrimSpace(m[2])}, true
}

type jsonRPCError struct {
	code    int
	message string
}

func isNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"connection refused", "connection reset", "no such host", "eof", "broken pipe"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func isSessionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"mcp-session-id", "session not found", "session expired", "404", "400"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func isUnsupportedCapability(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") || strings.Contains(msg, "not supported")
}
