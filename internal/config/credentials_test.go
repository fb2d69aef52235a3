package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTokenRef_EnvironmentVariable(t *testing.T) {
	t.Setenv("PCTX_TEST_TOKEN", "env-value")

	val, err := ResolveTokenRef("${PCTX_TEST_TOKEN}")
	require.NoError(t, err)
	assert.Equal(t, "env-value", val)
}

func TestResolveTokenRef_MissingEnvironmentVariable(t *testing.T) {
	t.Parallel()

	_, err := ResolveTokenRef("${PCTX_DOES_NOT_EXIST}")
	assert.Error(t, err)
}

func TestResolveTokenRef_Command(t *testing.T) {
	t.Parallel()

	val, err := ResolveTokenRef("command://echo -n command-value")
	require.NoError(t, err)
	assert.Equal(t, "command-value", val)
}

func TestResolveTokenRef_CommandFailureIsError(t *testing.T) {
	t.Parallel()

	_, err := ResolveTokenRef("command://exit 1")
	assert.Error(t, err)
}

func TestResolveTokenRef_Plain(t *testing.T) {
	t.Parallel()

	val, err := ResolveTokenRef("plain://literal-value")
	require.NoError(t, err)
	assert.Equal(t, "literal-value", val)
}

func TestResolveTokenRef_BareLiteralIsBackwardCompatible(t *testing.T) {
	t.Parallel()

	val, err := ResolveTokenRef("just-a-literal-token")
	require.NoError(t, err)
	assert.Equal(t, "just-a-literal-token", val)
}

func TestStaticCredentialProvider_NoAuthConfiguredReturnsEmptyHeaders(t *testing.T) {
	t.Parallel()

	provider := NewStaticCredentialProvider([]ServerConfig{{Name: "github", URL: "https://example.com"}})
	headers, err := provider.HeadersFor(context.Background(), "github")
	require.NoError(t, err)
	assert.Empty(t, headers)
}

func TestStaticCredentialProvider_UnknownUpstreamReturnsEmptyHeaders(t *testing.T) {
	t.Parallel()

	provider := NewStaticCredentialProvider(nil)
	headers, err := provider.HeadersFor(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, headers)
}

func TestStaticCredentialProvider_Bearer(t *testing.T) {
	t.Parallel()

	provider := NewStaticCredentialProvider([]ServerConfig{
		{Name: "github", URL: "https://example.com", Auth: &AuthConfig{Type: AuthTypeBearer, Token: "plain://secret-token"}},
	})
	headers, err := provider.HeadersFor(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", headers["Authorization"])
}

func TestStaticCredentialProvider_Custom(t *testing.T) {
	t.Parallel()

	provider := NewStaticCredentialProvider([]ServerConfig{
		{Name: "linear", URL: "https://example.com", Auth: &AuthConfig{
			Type:    AuthTypeCustom,
			Headers: map[string]string{"X-Api-Key": "plain://api-key-value"},
		}},
	})
	headers, err := provider.HeadersFor(context.Background(), "linear")
	require.NoError(t, err)
	assert.Equal(t, "api-key-value", headers["X-Api-Key"])
}

func TestStaticCredentialProvider_UnsupportedAuthTypeIsUnavailable(t *testing.T) {
	t.Parallel()

	provider := NewStaticCredentialProvider([]ServerConfig{
		{Name: "weird", URL: "https://example.com", Auth: &AuthConfig{Type: "unsupported-scheme"}},
	})
	_, err := provider.HeadersFor(context.Background(), "weird")
	require.Error(t, err)
	var target *ErrCredentialsUnavailable
	assert.ErrorAs(t, err, &target)
}

func TestStaticCredentialProvider_OAuthClientCredentialsCachesToken(t *testing.T) {
	t.Parallel()

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"token-value","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	provider := NewStaticCredentialProvider([]ServerConfig{
		{Name: "oauth-upstream", URL: "https://example.com", Auth: &AuthConfig{
			Type:         AuthTypeOAuthClientCredentials,
			ClientID:     "client-id",
			ClientSecret: "plain://client-secret",
			TokenURL:     server.URL,
		}},
	})

	headers, err := provider.HeadersFor(context.Background(), "oauth-upstream")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-value", headers["Authorization"])

	// Second call within the token's lifetime must hit the cache, not the
	// token endpoint again.
	_, err = provider.HeadersFor(context.Background(), "oauth-upstream")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
