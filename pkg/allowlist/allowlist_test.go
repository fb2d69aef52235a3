package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_DerivesHostsFromUpstreamURLs(t *testing.T) {
	t.Parallel()

	al := Build([]string{"https://api.github.com/mcp", "http://localhost:8080/mcp"}, nil)

	assert.True(t, al.Allowed("api.github.com"))
	assert.True(t, al.Allowed("https://api.github.com/anything"))
	assert.True(t, al.Allowed("localhost:8080"))
	assert.False(t, al.Allowed("evil.example.com"))
}

func TestBuild_AcceptsSchemeLessOperatorAdditions(t *testing.T) {
	t.Parallel()

	al := Build(nil, []string{"internal.example.com"})
	assert.True(t, al.Allowed("internal.example.com"))
	assert.True(t, al.Allowed("https://internal.example.com/path"))
}

func TestAllowed_CaseInsensitive(t *testing.T) {
	t.Parallel()

	al := Build([]string{"https://API.GitHub.com"}, nil)
	assert.True(t, al.Allowed("api.github.com"))
	assert.True(t, al.Allowed("API.GITHUB.COM"))
}

func TestAllowed_NoWildcardMatching(t *testing.T) {
	t.Parallel()

	al := Build([]string{"https://api.github.com"}, nil)
	assert.False(t, al.Allowed("sub.api.github.com"))
	assert.False(t, al.Allowed("github.com"))
}

func TestHosts_ReturnsAllEntries(t *testing.T) {
	t.Parallel()

	al := Build([]string{"https://a.example.com"}, []string{"b.example.com"})
	assert.ElementsMatch(t, []string{"a.example.com", "b.example.com"}, al.Hosts())
}
