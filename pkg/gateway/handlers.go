package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/portofcontext/pctx/internal/logging"
	"github.com/portofcontext/pctx/pkg/catalog"
	"github.com/portofcontext/pctx/pkg/sandbox/exec"
)

const (
	// minTimeoutMillis and maxTimeoutMillis bound execute's timeout_ms
	// argument (spec.md §4.6): requests outside the range are clamped, not
	// rejected.
	minTimeoutMillis = 1
	maxTimeoutMillis = 10_000

	defaultTimeoutMillis = 10_000
)

// handleListFunctions implements list_functions (spec.md §4.2): the
// namespace/function name index, no schemas.
func (s *Server) handleListFunctions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot := s.catalogStore.Snapshot()
	namespaces := catalog.ListFunctions(snapshot)
	return structuredResult(namespaces)
}

// handleGetFunctionDetails implements get_function_details (spec.md §4.5):
// resolves one or more fully-qualified names into signatures and schemas.
func (s *Server) handleGetFunctionDetails(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Names []string `json:"names"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if len(args.Names) == 0 {
		return mcp.NewToolResultError("names must be a non-empty array of fully-qualified function names"), nil
	}

	snapshot := s.catalogStore.Snapshot()
	details := catalog.GetFunctionDetails(snapshot, args.Names)
	return structuredResult(details)
}

// handleExecute implements execute (spec.md §4.6, §5): type-checks code
// against the current Catalog's synthesized declarations, and, if no
// blocking diagnostics are found, runs it in the execution sandbox.
func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Code      string `json:"code"`
		TimeoutMs int    `json:"timeout_ms"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Code == "" {
		return mcp.NewToolResultError("code must not be empty"), nil
	}

	timeout := clampTimeout(args.TimeoutMs)
	snapshot := s.catalogStore.Snapshot()

	executionID := uuid.NewString()
	logging.Infow("execute: starting", "execution_id", executionID, "timeout_ms", timeout.Milliseconds())

	declarations := catalog.RenderDeclarations(snapshot)
	manifest := catalog.BuildTypeManifest(snapshot)
	diagnostics, err := s.typeChecker.Check(args.Code, declarations, manifest)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("type-check failed: %v", err)), nil
	}
	if hasBlockingDiagnostic(diagnostics) {
		logging.Infow("execute: rejected at type-check", "execution_id", executionID)
		return structuredResult(&catalog.ExecutionResult{
			Success:     false,
			Diagnostics: diagnostics,
		})
	}

	runner := exec.New(s.execDeps(snapshot))
	result := runner.Execute(ctx, args.Code, timeout)
	result.Diagnostics = append(diagnostics, result.Diagnostics...)
	logging.Infow("execute: finished", "execution_id", executionID, "success", result.Success)
	return structuredResult(result)
}

func hasBlockingDiagnostic(diagnostics []catalog.Diagnostic) bool {
	for _, d := range diagnostics {
		if d.Severity == catalog.SeverityError {
			return true
		}
	}
	return false
}

func clampTimeout(requestedMs int) time.Duration {
	ms := requestedMs
	if ms == 0 {
		ms = defaultTimeoutMillis
	}
	if ms < minTimeoutMillis {
		ms = minTimeoutMillis
	}
	if ms > maxTimeoutMillis {
		ms = maxTimeoutMillis
	}
	return time.Duration(ms) * time.Millisecond
}

// structuredResult wraps v as the tool result's structured content,
// matching the teacher's mcp.NewToolResultStructuredOnly usage for handlers
// whose output is data rather than prose.
func structuredResult(v any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultStructuredOnly(v), nil
}
