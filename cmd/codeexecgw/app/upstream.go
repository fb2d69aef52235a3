package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/portofcontext/pctx/internal/config"
	"github.com/portofcontext/pctx/internal/logging"
	"github.com/portofcontext/pctx/internal/secrets"
)

// newUpstreamCmd groups the upstream-management subcommands, the Go
// equivalent of the original's `pctx mcp add/list/remove/auth` (see
// original_source/crates/pctx/src/commands). These edit the configuration
// file directly; the gateway process itself never calls into this package.
func newUpstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upstream",
		Short: "Manage configured upstream MCP servers",
	}
	cmd.AddCommand(newUpstreamAddCmd())
	cmd.AddCommand(newUpstreamListCmd())
	cmd.AddCommand(newUpstreamRemoveCmd())
	cmd.AddCommand(newUpstreamAuthCmd())
	return cmd
}

func newUpstreamAddCmd() *cobra.Command {
	var authType, token string
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Register a new upstream MCP server",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			name, url := args[0], args[1]
			if !config.ValidIdentifier(name) {
				return fmt.Errorf("invalid upstream name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
			}

			doc, err := loadDocument()
			if err != nil {
				return err
			}
			for _, s := range doc.Servers {
				if s.Name == name {
					return fmt.Errorf("upstream %q already exists", name)
				}
			}

			server := config.ServerConfig{Name: name, URL: url}
			if authType != "" {
				server.Auth = &config.AuthConfig{Type: authType, Token: token}
			}
			doc.Servers = append(doc.Servers, server)

			if err := saveDocument(doc); err != nil {
				return err
			}
			logging.Infof("added upstream %q (%s)", name, url)
			return nil
		},
	}
	cmd.Flags().StringVar(&authType, "auth-type", "", "auth type: bearer, custom, or oauth-client-credentials")
	cmd.Flags().StringVar(&token, "token", "", "bearer token reference (${VAR}, command://..., plain://..., or a literal)")
	return cmd
}

func newUpstreamListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured upstream MCP servers",
		RunE: func(_ *cobra.Command, _ []string) error {
			doc, err := loadDocument()
			if err != nil {
				return err
			}
			if len(doc.Servers) == 0 {
				logging.Info("no upstreams configured")
				return nil
			}
			for _, s := range doc.Servers {
				authType := "none"
				if s.Auth != nil {
					authType = s.Auth.Type
				}
				logging.Infof("%-20s %-40s auth=%s", s.Name, s.URL, authType)
			}
			return nil
		},
	}
}

func newUpstreamRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a configured upstream MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			doc, err := loadDocument()
			if err != nil {
				return err
			}
			kept := make([]config.ServerConfig, 0, len(doc.Servers))
			found := false
			for _, s := range doc.Servers {
				if s.Name == name {
					found = true
					continue
				}
				kept = append(kept, s)
			}
			if !found {
				return fmt.Errorf("no such upstream: %q", name)
			}
			doc.Servers = kept
			if err := saveDocument(doc); err != nil {
				return err
			}
			logging.Infof("removed upstream %q", name)
			return nil
		},
	}
}

func newUpstreamAuthCmd() *cobra.Command {
	var authType, token, secretValue, clientID, clientSecret, tokenURL, scope string
	cmd := &cobra.Command{
		Use:   "auth <name>",
		Short: "Set or update the credential configuration for an upstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			if authType == "" {
				return fmt.Errorf("--type is required (bearer, custom, or oauth-client-credentials)")
			}

			if secretValue != "" {
				resolved, err := storeLocalSecret(name, secretValue)
				if err != nil {
					return fmt.Errorf("store secret for %q: %w", name, err)
				}
				token = resolved
			}

			doc, err := loadDocument()
			if err != nil {
				return err
			}
			idx := -1
			for i, s := range doc.Servers {
				if s.Name == name {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("no such upstream: %q", name)
			}

			doc.Servers[idx].Auth = &config.AuthConfig{
				Type:         authType,
				Token:        token,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenURL:     tokenURL,
				Scope:        scope,
			}
			if err := saveDocument(doc); err != nil {
				return err
			}
			logging.Infof("updated auth for upstream %q (type=%s)", name, authType)
			return nil
		},
	}
	cmd.Flags().StringVar(&authType, "type", "", "bearer, custom, or oauth-client-credentials")
	cmd.Flags().StringVar(&token, "token", "", "bearer/custom token reference")
	cmd.Flags().StringVar(&secretValue, "secret", "", "bearer token literal to store in the local secret store instead of the config file; sets --token to the resulting local:// reference")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id reference")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret reference")
	cmd.Flags().StringVar(&tokenURL, "token-url", "", "OAuth token endpoint")
	cmd.Flags().StringVar(&scope, "scope", "", "OAuth scope")
	return cmd
}

// storeLocalSecret saves value in the local secret store under a key derived
// from the upstream name and returns the "local://" reference to put in the
// config file in its place, so `upstream auth --secret` never writes a
// literal bearer token to disk unencrypted-but-visible in version control.
func storeLocalSecret(upstreamName, value string) (string, error) {
	store, err := secrets.Open()
	if err != nil {
		return "", err
	}
	key := upstreamName + ".token"
	if err := store.Set(key, value); err != nil {
		return "", err
	}
	return "local://" + key, nil
}

// loadDocument reads the configuration file as a raw YAML document (no
// viper env-override or Defaults() application), so upstream subcommands
// only ever rewrite what the operator actually wrote.
func loadDocument() (*config.Config, error) {
	path := viper.GetString("config")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &config.Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc config.Config
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &doc, nil
}

func saveDocument(doc *config.Config) error {
	path := viper.GetString("config")
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
