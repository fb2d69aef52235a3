package exec

import (
	"context"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/portofcontext/pctx/pkg/catalog"
	"github.com/portofcontext/pctx/pkg/gwerrors"
)

// registerHostOps installs the sandbox-to-host boundary (spec.md §6):
// registerMCP, callMCPTool, and fetch as VM globals. All three close over
// vm directly, which is safe because every call they make back into vm
// (via loop.RunOnLoop) is scheduled onto the event loop's own goroutine —
// the same goroutine vm was created on — never invoked directly from the
// background goroutines that perform the actual I/O.
func registerHostOps(vm *goja.Runtime, loop *eventloop.EventLoop, ctx context.Context, deps Deps, upstreamCalls *int64, diagnostics *diagnosticsBuffer) {
	_ = vm.Set("registerMCP", registerMCPOp(vm, deps))
	_ = vm.Set("callMCPTool", callMCPToolOp(vm, loop, ctx, deps, upstreamCalls, diagnostics))
	_ = vm.Set("fetch", fetchOp(vm, loop, ctx, deps))
}

// seedUpstreams pre-registers every upstream in the Catalog snapshot so
// user code can reference them by name without calling registerMCP itself
// first (spec.md §4.4: "the host seeds the VM by calling registerMCP for
// every upstream in the Catalog snapshot").
func seedUpstreams(vm *goja.Runtime, c *catalog.Catalog) {
	registered := vm.Get("registerMCP")
	fn, ok := goja.AssertFunction(registered)
	if !ok {
		return
	}
	for _, name := range c.Upstreams() {
		entry := c.Entry(name)
		if entry == nil {
			continue
		}
		arg := vm.NewObject()
		_ = arg.Set("name", entry.Descriptor.Name)
		_ = arg.Set("url", entry.Descriptor.BaseURL)
		_, _ = fn(goja.Undefined(), arg)
	}
}

func registerMCPOp(vm *goja.Runtime, deps Deps) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var cfg struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		}
		if err := vm.ExportTo(call.Argument(0), &cfg); err != nil {
			panic(vm.NewTypeError("registerMCP: invalid config: %v", err))
		}
		if _, ok := deps.Clients[cfg.Name]; !ok {
			panic(vm.NewGoError(gwerrors.ErrUnknownUpstream))
		}
		// Idempotent: the client map is fixed for the lifetime of this VM,
		// so re-registering a known upstream is always a no-op success.
		return goja.Undefined()
	}
}

func callMCPToolOp(vm *goja.Runtime, loop *eventloop.EventLoop, ctx context.Context, deps Deps, upstreamCalls *int64, diagnostics *diagnosticsBuffer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := vm.NewPromise()

		var req struct {
			Name      string         `json:"name"`
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := vm.ExportTo(call.Argument(0), &req); err != nil {
			reject(vm.ToValue(err.Error()))
			return vm.ToValue(promise)
		}

		client, ok := deps.Clients[req.Name]
		if !ok {
			reject(vm.ToValue(gwerrors.ErrUnknownUpstream.Error()))
			return vm.ToValue(promise)
		}

		count := atomic.AddInt64(upstreamCalls, 1)
		warnUpstreamCallSoftCap(diagnostics, count, deps.MaxUpstreamCalls)

		go func() {
			result, err := client.CallTool(ctx, req.Tool, req.Arguments)
			loop.RunOnLoop(func(vm *goja.Runtime) {
				if err != nil {
					reject(vm.ToValue(upstreamErrorMessage(err)))
					return
				}
				resolve(vm.ToValue(toolResultToJS(result)))
			})
		}()

		return vm.ToValue(promise)
	}
}

// upstreamErrorMessage extracts the message agent code should see for a
// failed callMCPTool: a *gwerrors.UpstreamError's Message verbatim (spec.md
// §4.1, §7: "the error is surfaced unchanged to the sandboxed caller"), or
// the error's own text otherwise.
func upstreamErrorMessage(err error) string {
	var upstreamErr *gwerrors.UpstreamError
	if as, ok := err.(*gwerrors.UpstreamError); ok {
		upstreamErr = as
	}
	if upstreamErr != nil {
		return upstreamErr.Message
	}
	return err.Error()
}

// toolResultToJS reduces a catalog.ToolCallResult to the plain JSON value
// callMCPTool's contract promises: structuredContent when present, else an
// object {text} holding the content array's concatenated text parts.
func toolResultToJS(result *catalog.ToolCallResult) any {
	if result.StructuredContent != nil {
		return result.StructuredContent
	}
	text := ""
	for _, c := range result.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return map[string]any{"text": text}
}
