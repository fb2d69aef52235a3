package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/portofcontext/pctx/pkg/catalog"
)

func TestWarnUpstreamCallSoftCap_FiresExactlyAtLimit(t *testing.T) {
	t.Parallel()

	d := &diagnosticsBuffer{}
	warnUpstreamCallSoftCap(d, 1, 3)
	assert.Empty(t, d.snapshot())

	warnUpstreamCallSoftCap(d, 2, 3)
	assert.Empty(t, d.snapshot())

	warnUpstreamCallSoftCap(d, 3, 3)
	items := d.snapshot()
	assert.Len(t, items, 1)
	assert.Equal(t, catalog.SeverityWarning, items[0].Severity)

	// Past the cap: no further diagnostics (observational, not enforced).
	warnUpstreamCallSoftCap(d, 4, 3)
	assert.Len(t, d.snapshot(), 1)
}

func TestWarnUpstreamCallSoftCap_DisabledWhenLimitNonPositive(t *testing.T) {
	t.Parallel()

	d := &diagnosticsBuffer{}
	warnUpstreamCallSoftCap(d, 1, 0)
	warnUpstreamCallSoftCap(d, 1, -1)
	assert.Empty(t, d.snapshot())
}

func TestDiagnosticsBuffer_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	d := &diagnosticsBuffer{}
	d.add(catalog.Diagnostic{Message: "one"})
	snap := d.snapshot()
	snap[0].Message = "mutated"

	assert.Equal(t, "one", d.snapshot()[0].Message)
}
