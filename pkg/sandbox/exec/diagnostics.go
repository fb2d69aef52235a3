package exec

import (
	"fmt"
	"sync"

	"github.com/portofcontext/pctx/pkg/catalog"
)

// diagnosticsBuffer collects non-fatal diagnostics raised by host ops
// during execution (spec.md §5: the upstream-call soft-cap "surfaced as a
// diagnostic when exceeded" rather than aborting the run). Guarded the same
// way consoleBuffers is, since host ops append from goroutines scheduled
// back onto the VM loop as well as, potentially, straight from the loop
// goroutine itself.
type diagnosticsBuffer struct {
	mu    sync.Mutex
	items []catalog.Diagnostic
}

func (d *diagnosticsBuffer) add(diag catalog.Diagnostic) {
	d.mu.Lock()
	d.items = append(d.items, diag)
	d.mu.Unlock()
}

func (d *diagnosticsBuffer) snapshot() []catalog.Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]catalog.Diagnostic(nil), d.items...)
}

// warnUpstreamCallSoftCap appends a one-shot warning when count reaches
// limit (the limit-th call); subsequent calls past the cap are otherwise left
// to proceed normally, since the cap is observational, not enforced.
func warnUpstreamCallSoftCap(d *diagnosticsBuffer, count int64, limit int) {
	if limit <= 0 || int64(limit) != count {
		return
	}
	d.add(catalog.Diagnostic{
		Message:  fmt.Sprintf("execution reached the soft cap of %d upstream tool calls", limit),
		Severity: catalog.SeverityWarning,
	})
}
