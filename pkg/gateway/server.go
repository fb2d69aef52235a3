// Package gateway wires the Catalog, the two sandbox VMs, and the fetch
// allow-list behind the three downstream meta-tools (spec.md §4.1, §4.2):
// list_functions, get_function_details, and execute.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/portofcontext/pctx/internal/logging"
	"github.com/portofcontext/pctx/pkg/allowlist"
	"github.com/portofcontext/pctx/pkg/catalog"
	"github.com/portofcontext/pctx/pkg/sandbox/exec"
	"github.com/portofcontext/pctx/pkg/sandbox/typecheck"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Config holds the downstream server's own settings, separate from upstream
// configuration (internal/config.Config).
type Config struct {
	Name         string
	Version      string
	Host         string
	Port         int
	EndpointPath string

	// MaxFetchBodyBytes and MaxUpstreamCalls are per-execution soft limits
	// forwarded into every exec.Deps (spec.md §5).
	MaxFetchBodyBytes int64
	MaxUpstreamCalls  int
}

// ClientSet maps an upstream's configured name to the catalog.Client used
// to reach it, the same set buildOne used to populate the Catalog.
type ClientSet map[string]catalog.Client

// Server is the downstream MCP endpoint: three meta-tools over an
// MCP-protocol Streamable HTTP transport, plus unauthenticated /healthz and
// /readyz probes.
type Server struct {
	config Config

	mcpServer  *server.MCPServer
	httpServer *http.Server
	listener   net.Listener

	catalogStore *catalog.Store
	typeChecker  *typecheck.Checker
	mu           sync.RWMutex // guards clients and allowList
	clients      ClientSet
	allowList    *allowlist.AllowList

	ready chan struct{}
}

// New constructs a Server. clients and allowList correspond to the Catalog
// snapshot currently held by store; callers replacing the Catalog (upstream
// refresh, spec.md §9) should also call SetClients/SetAllowList so that
// subsequent execute calls see the new set.
func New(cfg Config, store *catalog.Store, clients ClientSet, allowList *allowlist.AllowList) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if cfg.Name == "" {
		cfg.Name = "codeexec-gateway"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}

	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		config:       cfg,
		mcpServer:    mcpServer,
		catalogStore: store,
		typeChecker:  typecheck.New(),
		clients:      clients,
		allowList:    allowList,
		ready:        make(chan struct{}),
	}

	s.registerTools()
	return s
}

// SetClients and SetAllowList update the live set used by subsequent
// execute calls. Safe to call concurrently with request handling; in-flight
// executions keep the ClientSet/AllowList they were handed.
func (s *Server) SetClients(clients ClientSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = clients
}

func (s *Server) SetAllowList(a *allowlist.AllowList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowList = a
}

func (s *Server) execDeps(snapshot *catalog.Catalog) exec.Deps {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exec.Deps{
		Catalog:           snapshot,
		Clients:           s.clients,
		AllowList:         s.allowList,
		MaxFetchBodyBytes: s.config.MaxFetchBodyBytes,
		MaxUpstreamCalls:  s.config.MaxUpstreamCalls,
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_functions",
		Description: "List every callable function across all registered upstream MCP servers, grouped by namespace.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListFunctions)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_function_details",
		Description: "Fetch TypeScript signatures, descriptions, and JSON schemas for one or more fully-qualified functions (namespace.function).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"names": map[string]interface{}{
					"type":        "array",
					"description": "Fully-qualified function names, e.g. \"github.search_issues\".",
					"items":       map[string]interface{}{"type": "string"},
				},
			},
			Required: []string{"names"},
		},
	}, s.handleGetFunctionDetails)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "execute",
		Description: "Type-check and run a short TypeScript program in a sandboxed VM. The program may call registered upstream functions and fetch() allow-listed hosts.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "TypeScript source to type-check and run.",
				},
				"timeout_ms": map[string]interface{}{
					"type":        "integer",
					"description": "Execution deadline in milliseconds, clamped to [1, 10000]. Defaults to 10000.",
				},
			},
			Required: []string{"code"},
		},
	}, s.handleExecute)
}

// Start begins serving the MCP endpoint and health probes, blocking until
// ctx is cancelled or the HTTP server fails.
func (s *Server) Start(ctx context.Context) error {
	streamableServer := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath(s.config.EndpointPath),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReadiness)
	mux.Handle(s.config.EndpointPath, streamableServer)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	close(s.ready)
	logging.Infow("gateway listening", "addr", listener.Addr().String(), "endpoint", s.config.EndpointPath)

	select {
	case <-ctx.Done():
		logging.Info("context cancelled, shutting down gateway")
		return s.Stop(context.Background())
	case err := <-errCh:
		logging.Errorw("http server error", "error", err)
		if stopErr := s.Stop(context.Background()); stopErr != nil {
			return fmt.Errorf("server error: %w; stop error: %v", err, stopErr)
		}
		return err
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down gateway: %w", err)
	}
	logging.Info("gateway stopped")
	return nil
}

// Ready returns a channel closed once the listener is bound and serving.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Address returns the server's actual listen address, resolving port 0 to
// the OS-assigned port once bound.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.catalogStore.Snapshot()
	if snapshot == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready","reason":"catalog not built"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf(`{"status":"ready","upstreams":%d}`, len(snapshot.Upstreams()))))
}
