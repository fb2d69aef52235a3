// Package exec implements the Execution Sandbox (spec.md §4.4, §5, §6): a
// disposable goja VM with an event loop, a minimal web-platform ambient
// surface, and host ops bridging into the upstream Catalog and fetch
// allow-list, torn down after every call.
package exec

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/portofcontext/pctx/internal/logging"
	"github.com/portofcontext/pctx/pkg/allowlist"
	"github.com/portofcontext/pctx/pkg/catalog"
)

//go:embed assets/exec_runtime.js
var execRuntimeSource string

// defaultMaxFetchBodyBytes bounds a single fetch() response body when a
// Deps value leaves MaxFetchBodyBytes unset.
const defaultMaxFetchBodyBytes = 10 * 1024 * 1024

// Deps is everything one Execute call needs from the rest of the gateway:
// the live Catalog snapshot, a client per upstream named in it, the fetch
// allow-list derived from the same snapshot, and the soft resource limits
// spec.md §5 calls out.
type Deps struct {
	Catalog           *catalog.Catalog
	Clients           map[string]catalog.Client
	AllowList         *allowlist.AllowList
	MaxFetchBodyBytes int64
	MaxUpstreamCalls  int
}

// Runner executes one program per call inside a fresh VM and event loop;
// nothing is reused across calls (spec.md §4.4: "the execution VM ... is
// disposed after each call", unlike the type-check VM's pool).
type Runner struct {
	deps Deps
}

// New constructs a Runner bound to deps. deps.Catalog/Clients/AllowList are
// expected to reflect the same snapshot; callers rebuild a Runner (or at
// least its Deps) whenever the Catalog is replaced.
func New(deps Deps) *Runner {
	return &Runner{deps: deps}
}

// Execute runs code inside a fresh VM for up to timeout, returning a
// catalog.ExecutionResult reflecting the COMPLETED/TIMED_OUT/FAILED_RUNTIME
// states from spec.md §4.4's lifecycle. It never returns a Go error for
// failures originating in user code; those are reported in the result.
func (r *Runner) Execute(ctx context.Context, code string, timeout time.Duration) *catalog.ExecutionResult {
	loop := eventloop.NewEventLoop()
	buffers := &consoleBuffers{}
	diagnostics := &diagnosticsBuffer{}
	var upstreamCalls int64

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *catalog.ExecutionResult, 1)

	loop.Start()

	loop.RunOnLoop(func(vm *goja.Runtime) {
		// Host ops exchange plain JSON-shaped objects with user code
		// (callMCPTool({name, tool, arguments}), fetch's response {status,
		// headers, body}); without this mapper goja's ExportTo/ToValue match
		// Go struct fields by their literal Go name instead of their json tag.
		vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

		if _, err := vm.RunString(execRuntimeSource); err != nil {
			done <- failedRuntime(buffers, diagnostics, fmt.Sprintf("execution runtime failed to load: %v", err))
			return
		}
		installConsole(vm, buffers)
		registerHostOps(vm, loop, runCtx, r.deps, &upstreamCalls, diagnostics)
		if r.deps.Catalog != nil {
			seedUpstreams(vm, r.deps.Catalog)
		}

		value, err := vm.RunString(code)
		if err != nil {
			done <- failedRuntime(buffers, diagnostics, describeGojaError(err))
			return
		}

		// If the program's top-level result is a thenable (e.g. an async
		// function's returned Promise.all over concurrent upstream calls),
		// defer completion to its resolution instead of exporting the
		// Promise object itself. The then() call below only schedules the
		// callbacks; they fire later as the loop drains its job queue, so
		// this callback must return without sending on done itself.
		if obj, ok := value.(*goja.Object); ok {
			if thenFn, ok := goja.AssertFunction(obj.Get("then")); ok {
				onResolve := vm.ToValue(func(call goja.FunctionCall) goja.Value {
					done <- completed(buffers, diagnostics, call.Argument(0).Export())
					return goja.Undefined()
				})
				onReject := vm.ToValue(func(call goja.FunctionCall) goja.Value {
					done <- failedRuntime(buffers, diagnostics, describeGojaValue(call.Argument(0)))
					return goja.Undefined()
				})
				if _, err := thenFn(obj, onResolve, onReject); err != nil {
					done <- failedRuntime(buffers, diagnostics, describeGojaError(err))
				}
				return
			}
		}

		done <- completed(buffers, diagnostics, value.Export())
	})

	select {
	case result := <-done:
		loop.Stop()
		return result
	case <-runCtx.Done():
		// The VM may be blocked waiting on a promise that will never
		// resolve (a hung upstream); don't wait for it to drain.
		loop.StopNoWait()
		stdout, stderr := buffers.snapshot()
		logging.Warnw("execution timed out", "timeout_ms", timeout.Milliseconds())
		return &catalog.ExecutionResult{
			Success: false,
			Stdout:  stdout,
			Stderr:  append(stderr, fmt.Sprintf("execution timed out after %dms", timeout.Milliseconds())),
			Diagnostics: append(diagnostics.snapshot(), catalog.Diagnostic{
				Message:  fmt.Sprintf("execution timed out after %dms", timeout.Milliseconds()),
				Severity: catalog.SeverityError,
			}),
		}
	}
}

func completed(buffers *consoleBuffers, diagnostics *diagnosticsBuffer, returnValue any) *catalog.ExecutionResult {
	stdout, stderr := buffers.snapshot()
	return &catalog.ExecutionResult{
		Success:     true,
		Stdout:      stdout,
		Stderr:      stderr,
		ReturnValue: returnValue,
		Diagnostics: diagnostics.snapshot(),
	}
}

func failedRuntime(buffers *consoleBuffers, diagnostics *diagnosticsBuffer, message string) *catalog.ExecutionResult {
	stdout, stderr := buffers.snapshot()
	return &catalog.ExecutionResult{
		Success: false,
		Stdout:  stdout,
		Stderr:  append(stderr, message),
		Diagnostics: append(diagnostics.snapshot(), catalog.Diagnostic{
			Message:  message,
			Severity: catalog.SeverityError,
		}),
	}
}

// describeGojaError extracts a goja exception's message, falling back to
// the error's own text for non-JS errors (panics surfaced by goja as Go
// errors, e.g. a native op's vm.NewTypeError).
func describeGojaError(err error) string {
	if exc, ok := err.(*goja.Exception); ok {
		return exc.Error()
	}
	return err.Error()
}

// describeGojaValue renders a rejected promise's reason, which need not be
// an Error instance (JS code may reject with a string or plain object).
func describeGojaValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "promise rejected with no reason"
	}
	return fmt.Sprintf("%v", v.Export())
}
