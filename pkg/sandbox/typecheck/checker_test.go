package typecheck

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portofcontext/pctx/pkg/catalog"
)

func TestCheck_CleanCodeReturnsNoDiagnostics(t *testing.T) {
	t.Parallel()

	checker := New()
	diagnostics, err := checker.Check(`const x = 1 + 2; console.log(x);`, "", nil)
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
}

func TestCheck_SyntaxErrorSurfacesAsDiagnostic(t *testing.T) {
	t.Parallel()

	checker := New()
	diagnostics, err := checker.Check(`const x = ;`, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, diagnostics)
	assert.Equal(t, "error", diagnostics[0].Severity)
}

func TestCheck_ReusesPooledRuntimeAcrossCalls(t *testing.T) {
	t.Parallel()

	checker := New()
	for i := 0; i < 5; i++ {
		_, err := checker.Check(`const ok = true;`, "", nil)
		require.NoError(t, err)
	}
}

// TestCheck_MismatchedArgumentLiteralYieldsCompilerDiagnostic exercises the
// documented "sheetId is typed string but called with a number" scenario: a
// call-site argument literal whose property type doesn't match the
// upstream's declared input schema must surface as a blocking TS2322
// diagnostic, not be silently accepted because it happens to be valid JS.
func TestCheck_MismatchedArgumentLiteralYieldsCompilerDiagnostic(t *testing.T) {
	t.Parallel()

	manifest := catalog.TypeManifest{
		"gdrive.getSheet": json.RawMessage(`{
			"type": "object",
			"properties": { "sheetId": { "type": "string" } },
			"required": ["sheetId"]
		}`),
	}

	checker := New()
	diagnostics, err := checker.Check(
		`const result = await gdrive.getSheet({ sheetId: 123 });`,
		"declare namespace gdrive { function getSheet(args: { sheetId: string }): Promise<any>; }",
		manifest,
	)
	require.NoError(t, err)
	require.NotEmpty(t, diagnostics)

	found := false
	for _, d := range diagnostics {
		if d.Code == 2322 {
			found = true
			assert.Equal(t, catalog.SeverityError, d.Severity)
			assert.Contains(t, d.Message, "sheetId")
		}
	}
	assert.True(t, found, "expected a 2322 diagnostic for the mistyped sheetId argument, got %+v", diagnostics)
}

func TestCheck_MatchingArgumentLiteralIsClean(t *testing.T) {
	t.Parallel()

	manifest := catalog.TypeManifest{
		"gdrive.getSheet": json.RawMessage(`{
			"type": "object",
			"properties": { "sheetId": { "type": "string" } },
			"required": ["sheetId"]
		}`),
	}

	checker := New()
	diagnostics, err := checker.Check(
		`const result = await gdrive.getSheet({ sheetId: "abc123" });`,
		"declare namespace gdrive { function getSheet(args: { sheetId: string }): Promise<any>; }",
		manifest,
	)
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
}

func TestCheck_MissingRequiredPropertyYieldsDiagnostic(t *testing.T) {
	t.Parallel()

	manifest := catalog.TypeManifest{
		"gdrive.getSheet": json.RawMessage(`{
			"type": "object",
			"properties": { "sheetId": { "type": "string" } },
			"required": ["sheetId"]
		}`),
	}

	checker := New()
	diagnostics, err := checker.Check(
		`const result = await gdrive.getSheet({});`,
		"declare namespace gdrive { function getSheet(args: { sheetId: string }): Promise<any>; }",
		manifest,
	)
	require.NoError(t, err)
	require.NotEmpty(t, diagnostics)
	assert.Equal(t, 2741, diagnostics[0].Code)
}

func TestCheck_NonLiteralArgumentDegradesToNoOpinion(t *testing.T) {
	t.Parallel()

	manifest := catalog.TypeManifest{
		"gdrive.getSheet": json.RawMessage(`{
			"type": "object",
			"properties": { "sheetId": { "type": "string" } },
			"required": ["sheetId"]
		}`),
	}

	checker := New()
	diagnostics, err := checker.Check(
		`const args = computeArgs(); const result = await gdrive.getSheet(args);`,
		"declare namespace gdrive { function getSheet(args: { sheetId: string }): Promise<any>; }",
		manifest,
	)
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
}

func TestIsIgnored(t *testing.T) {
	t.Parallel()

	assert.True(t, IsIgnored(2307))
	assert.True(t, IsIgnored(2584))
	assert.False(t, IsIgnored(99999))
}

func TestIgnoreReason(t *testing.T) {
	t.Parallel()

	reason, ok := IgnoreReason(2580)
	require.True(t, ok)
	assert.NotEmpty(t, reason)

	_, ok = IgnoreReason(0)
	assert.False(t, ok)
}
