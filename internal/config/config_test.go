package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portofcontext/pctx/pkg/gwerrors"
)

func TestValidIdentifier(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidIdentifier("github"))
	assert.True(t, ValidIdentifier("_private_v2"))
	assert.False(t, ValidIdentifier("2fast"))
	assert.False(t, ValidIdentifier("git-hub"))
	assert.False(t, ValidIdentifier(""))
}

func TestDefaults_FillsOnlyZeroValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{Execution: ExecutionConfig{MaxUpstreamCalls: 50}}
	cfg.Defaults()

	assert.Equal(t, "codeexec-gateway", cfg.Name)
	assert.Equal(t, "0.1.0", cfg.Version)
	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.Equal(t, "/mcp", cfg.Endpoint)
	assert.Equal(t, 10_000, cfg.Execution.DefaultTimeoutMS)
	assert.Equal(t, 10_000, cfg.Execution.MaxTimeoutMS)
	// Explicitly-set value is preserved, not overwritten.
	assert.Equal(t, 50, cfg.Execution.MaxUpstreamCalls)
	assert.EqualValues(t, 10*1024*1024, cfg.Execution.MaxFetchBodyBytes)
}

func TestValidate_RejectsInvalidIdentifier(t *testing.T) {
	t.Parallel()

	cfg := &Config{Servers: []ServerConfig{{Name: "bad-name", URL: "https://example.com"}}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrConfigInvalid))
}

func TestValidate_RejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	cfg := &Config{Servers: []ServerConfig{
		{Name: "github", URL: "https://a.example.com"},
		{Name: "github", URL: "https://b.example.com"},
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrConfigInvalid))
}

func TestValidate_RejectsMissingURL(t *testing.T) {
	t.Parallel()

	cfg := &Config{Servers: []ServerConfig{{Name: "github"}}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrConfigInvalid))
}

func TestValidate_AcceptsWellFormedServers(t *testing.T) {
	t.Parallel()

	cfg := &Config{Servers: []ServerConfig{
		{Name: "github", URL: "https://a.example.com"},
		{Name: "linear", URL: "https://b.example.com"},
	}}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_AppliesDefaultsAndValidates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
name: test-gateway
servers:
  - name: github
    url: https://api.github.com/mcp
    auth:
      type: bearer
      token: "${GITHUB_TOKEN}"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-gateway", cfg.Name)
	assert.Equal(t, "127.0.0.1:9090", cfg.Listen) // default applied
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "github", cfg.Servers[0].Name)
	require.NotNil(t, cfg.Servers[0].Auth)
	assert.Equal(t, AuthTypeBearer, cfg.Servers[0].Auth.Type)
}

func TestLoad_MissingFileIsConfigInvalid(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrConfigInvalid))
}

func TestLoad_InvalidServerNameFailsValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
servers:
  - name: "not valid!"
    url: https://example.com
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrConfigInvalid))
}

func TestExecutionTimeout(t *testing.T) {
	t.Parallel()

	cfg := &Config{Execution: ExecutionConfig{DefaultTimeoutMS: 2500}}
	assert.Equal(t, 2500*1e6, float64(cfg.ExecutionTimeout()))
}
