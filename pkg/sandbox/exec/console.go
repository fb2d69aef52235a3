package exec

import (
	"encoding/json"
	"sync"

	"github.com/dop251/goja"
)

// consoleBuffers backs the VM's console global with two mutex-guarded
// string slices, owned by the Go host rather than the VM's own memory, so
// that a deadline expiry can read the accumulated output safely from
// outside the VM's single goroutine (spec.md §5: "Buffers __stdout and
// __stderr are per-VM ... only produced via console.*").
type consoleBuffers struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
}

func (c *consoleBuffers) append(dst *[]string, args []goja.Value) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, stringifyArg(a))
	}
	line := joinWithSpace(parts)

	c.mu.Lock()
	*dst = append(*dst, line)
	c.mu.Unlock()
}

func (c *consoleBuffers) snapshot() (stdout, stderr []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.stdout...), append([]string(nil), c.stderr...)
}

func stringifyArg(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "null"
	}
	if s, ok := v.Export().(string); ok {
		return s
	}
	encoded, err := json.Marshal(v.Export())
	if err != nil {
		return v.String()
	}
	return string(encoded)
}

func joinWithSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// installConsole registers globalThis.console backed by buffers.
func installConsole(vm *goja.Runtime, buffers *consoleBuffers) {
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		buffers.append(&buffers.stdout, call.Arguments)
		return goja.Undefined()
	}
	errFn := func(call goja.FunctionCall) goja.Value {
		buffers.append(&buffers.stderr, call.Arguments)
		return goja.Undefined()
	}
	_ = console.Set("log", logFn)
	_ = console.Set("info", logFn)
	_ = console.Set("warn", logFn)
	_ = console.Set("debug", logFn)
	_ = console.Set("error", errFn)
	_ = vm.Set("console", console)
}
