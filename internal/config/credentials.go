package config

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/portofcontext/pctx/internal/secrets"
)

// CredentialProvider is the core's abstract collaborator (spec.md §4.6):
// headers_for(upstream_name) -> {header_name: value} or Unavailable. It must
// be safe to call concurrently and cheap on the steady state.
type CredentialProvider interface {
	HeadersFor(ctx context.Context, upstreamName string) (map[string]string, error)
}

// ErrCredentialsUnavailable is returned when no auth is configured or a
// referenced secret cannot be resolved.
type ErrCredentialsUnavailable struct {
	Upstream string
	Reason   string
}

func (e *ErrCredentialsUnavailable) Error() string {
	return fmt.Sprintf("credentials unavailable for upstream %q: %s", e.Upstream, e.Reason)
}

// StaticCredentialProvider resolves AuthConfig entries from a loaded Config.
// Bearer/Custom token references are resolved again on every HeadersFor
// call (nothing is cached for them); OAuth client-credentials grants are
// cached by expiry and refreshed transparently on each HeadersFor call, satisfying spec.md §4.1's "the client must re-query the
// provider for each request (not cache the header in the client itself)".
type StaticCredentialProvider struct {
	mu     sync.Mutex
	byName map[string]*AuthConfig
	tokens map[string]*cachedToken // oauth-client-credentials cache, keyed by upstream
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// NewStaticCredentialProvider builds a provider from a Config's servers.
func NewStaticCredentialProvider(servers []ServerConfig) *StaticCredentialProvider {
	byName := make(map[string]*AuthConfig, len(servers))
	for _, s := range servers {
		if s.Auth != nil {
			byName[s.Name] = s.Auth
		}
	}
	return &StaticCredentialProvider{
		byName: byName,
		tokens: make(map[string]*cachedToken),
	}
}

// HeadersFor implements CredentialProvider.
func (p *StaticCredentialProvider) HeadersFor(ctx context.Context, upstreamName string) (map[string]string, error) {
	p.mu.Lock()
	auth, ok := p.byName[upstreamName]
	p.mu.Unlock()
	if !ok || auth == nil {
		return map[string]string{}, nil
	}

	switch auth.Type {
	case AuthTypeBearer:
		token, err := ResolveTokenRef(auth.Token)
		if err != nil {
			return nil, &ErrCredentialsUnavailable{Upstream: upstreamName, Reason: err.Error()}
		}
		return map[string]string{"Authorization": "Bearer " + token}, nil

	case AuthTypeCustom:
		headers := make(map[string]string, len(auth.Headers))
		for k, v := range auth.Headers {
			resolved, err := ResolveTokenRef(v)
			if err != nil {
				return nil, &ErrCredentialsUnavailable{Upstream: upstreamName, Reason: err.Error()}
			}
			headers[k] = resolved
		}
		return headers, nil

	case AuthTypeOAuthClientCredentials:
		token, err := p.oauthToken(ctx, upstreamName, auth)
		if err != nil {
			return nil, &ErrCredentialsUnavailable{Upstream: upstreamName, Reason: err.Error()}
		}
		return map[string]string{"Authorization": "Bearer " + token}, nil

	default:
		return nil, &ErrCredentialsUnavailable{Upstream: upstreamName, Reason: fmt.Sprintf("unsupported auth type %q", auth.Type)}
	}
}

// oauthToken returns a cached access token or performs the client-credentials
// grant and caches the result, refreshing 30s before expiry.
func (p *StaticCredentialProvider) oauthToken(ctx context.Context, upstreamName string, auth *AuthConfig) (string, error) {
	p.mu.Lock()
	if cached, ok := p.tokens[upstreamName]; ok && time.Now().Before(cached.expiresAt) {
		tok := cached.accessToken
		p.mu.Unlock()
		return tok, nil
	}
	p.mu.Unlock()

	secret, err := ResolveTokenRef(auth.ClientSecret)
	if err != nil {
		return "", fmt.Errorf("resolve client secret: %w", err)
	}

	ccConfig := clientcredentials.Config{
		ClientID:     auth.ClientID,
		ClientSecret: secret,
		TokenURL:     auth.TokenURL,
	}
	if auth.Scope != "" {
		ccConfig.Scopes = []string{auth.Scope}
	}

	tok, err := ccConfig.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("client-credentials grant: %w", err)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(10 * time.Minute)
	} else {
		expiresAt = expiresAt.Add(-30 * time.Second)
	}

	p.mu.Lock()
	p.tokens[upstreamName] = &cachedToken{accessToken: tok.AccessToken, expiresAt: expiresAt}
	p.mu.Unlock()

	return tok.AccessToken, nil
}

// secretStore backs the "local://" scheme, opened lazily on first use so
// that packages never touching local:// references never need an XDG data
// directory to exist.
var (
	secretStoreOnce sync.Once
	secretStore     *secrets.Store
	secretStoreErr  error
)

func loadedSecretStore() (*secrets.Store, error) {
	secretStoreOnce.Do(func() {
		secretStore, secretStoreErr = secrets.Open()
	})
	return secretStore, secretStoreErr
}

// ResolveTokenRef resolves a secret reference to its literal value. Supports
// "${VAR_NAME}" (environment variable), "command://shell command" (external
// command, stdout trimmed), "plain://literal" (explicit literal, no
// indirection), "local://key" (file-backed secret store, see
// internal/secrets), and bare literals (backward-compatible with unprefixed
// values). Grounded on
// original_source/crates/ptx/src/mcp/token_resolver.rs::resolve_token;
// the keychain:// scheme from the original is intentionally not implemented
// here — OS keychain access is an external collaborator spec.md carves out,
// and wiring a real OS keyring library is orthogonal to the gateway core.
// "local://" is the teacher's own non-keychain fallback for the same
// problem (stacklok-toolhive/pkg/secrets/basic.go's BasicManager), not a
// keychain substitute.
func ResolveTokenRef(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "local://"):
		key := ref[len("local://"):]
		store, err := loadedSecretStore()
		if err != nil {
			return "", fmt.Errorf("open secret store: %w", err)
		}
		val, ok := store.Get(key)
		if !ok {
			return "", fmt.Errorf("no local secret named %q", key)
		}
		return val, nil

	case strings.HasPrefix(ref, "${") && strings.HasSuffix(ref, "}"):
		varName := ref[2 : len(ref)-1]
		val, ok := os.LookupEnv(varName)
		if !ok {
			return "", fmt.Errorf("environment variable %q not found", varName)
		}
		return val, nil

	case strings.HasPrefix(ref, "command://"):
		command := ref[len("command://"):]
		out, err := exec.Command("sh", "-c", command).Output()
		if err != nil {
			return "", fmt.Errorf("auth command failed: %w", err)
		}
		token := strings.TrimSpace(string(out))
		if token == "" {
			return "", fmt.Errorf("auth command returned empty output")
		}
		return token, nil

	case strings.HasPrefix(ref, "plain://"):
		return ref[len("plain://"):], nil

	default:
		return ref, nil
	}
}
