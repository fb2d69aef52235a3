package app

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portofcontext/pctx/internal/config"
)

// withTestConfigPath points the package-level viper instance's "config" key
// at a file under a fresh temp directory for the duration of one test. Not
// run with t.Parallel() since viper's default instance is process-global.
func withTestConfigPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codeexecgw.yaml")
	previous := viper.GetString("config")
	viper.Set("config", path)
	t.Cleanup(func() { viper.Set("config", previous) })
	return path
}

func TestUpstreamAdd_WritesNewEntry(t *testing.T) {
	withTestConfigPath(t)

	cmd := newUpstreamAddCmd()
	require.NoError(t, cmd.RunE(cmd, []string{"github", "https://api.github.com/mcp"}))

	doc, err := loadDocument()
	require.NoError(t, err)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "github", doc.Servers[0].Name)
	assert.Equal(t, "https://api.github.com/mcp", doc.Servers[0].URL)
}

func TestUpstreamAdd_RejectsInvalidName(t *testing.T) {
	withTestConfigPath(t)

	cmd := newUpstreamAddCmd()
	err := cmd.RunE(cmd, []string{"not valid!", "https://example.com"})
	assert.Error(t, err)
}

func TestUpstreamAdd_RejectsDuplicateName(t *testing.T) {
	withTestConfigPath(t)

	cmd := newUpstreamAddCmd()
	require.NoError(t, cmd.RunE(cmd, []string{"github", "https://a.example.com"}))
	err := cmd.RunE(cmd, []string{"github", "https://b.example.com"})
	assert.Error(t, err)
}

func TestUpstreamRemove_RemovesExistingEntry(t *testing.T) {
	withTestConfigPath(t)

	add := newUpstreamAddCmd()
	require.NoError(t, add.RunE(add, []string{"github", "https://api.github.com/mcp"}))

	remove := newUpstreamRemoveCmd()
	require.NoError(t, remove.RunE(remove, []string{"github"}))

	doc, err := loadDocument()
	require.NoError(t, err)
	assert.Empty(t, doc.Servers)
}

func TestUpstreamRemove_UnknownNameIsError(t *testing.T) {
	withTestConfigPath(t)

	remove := newUpstreamRemoveCmd()
	err := remove.RunE(remove, []string{"does-not-exist"})
	assert.Error(t, err)
}

func TestUpstreamAuth_RequiresType(t *testing.T) {
	withTestConfigPath(t)

	add := newUpstreamAddCmd()
	require.NoError(t, add.RunE(add, []string{"github", "https://api.github.com/mcp"}))

	auth := newUpstreamAuthCmd()
	err := auth.RunE(auth, []string{"github"})
	assert.Error(t, err)
}

func TestUpstreamAuth_BearerTokenReference(t *testing.T) {
	withTestConfigPath(t)

	add := newUpstreamAddCmd()
	require.NoError(t, add.RunE(add, []string{"github", "https://api.github.com/mcp"}))

	auth := newUpstreamAuthCmd()
	require.NoError(t, auth.Flags().Set("type", config.AuthTypeBearer))
	require.NoError(t, auth.Flags().Set("token", "${GITHUB_TOKEN}"))
	require.NoError(t, auth.RunE(auth, []string{"github"}))

	doc, err := loadDocument()
	require.NoError(t, err)
	require.NotNil(t, doc.Servers[0].Auth)
	assert.Equal(t, config.AuthTypeBearer, doc.Servers[0].Auth.Type)
	assert.Equal(t, "${GITHUB_TOKEN}", doc.Servers[0].Auth.Token)
}

func TestUpstreamAuth_UnknownUpstreamIsError(t *testing.T) {
	withTestConfigPath(t)

	auth := newUpstreamAuthCmd()
	require.NoError(t, auth.Flags().Set("type", config.AuthTypeBearer))
	err := auth.RunE(auth, []string{"missing"})
	assert.Error(t, err)
}

func TestLoadDocument_MissingFileReturnsEmptyConfig(t *testing.T) {
	withTestConfigPath(t)

	doc, err := loadDocument()
	require.NoError(t, err)
	assert.Empty(t, doc.Servers)
}
