package app

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/portofcontext/pctx/internal/config"
	"github.com/portofcontext/pctx/internal/logging"
	"github.com/portofcontext/pctx/pkg/allowlist"
	"github.com/portofcontext/pctx/pkg/catalog"
	"github.com/portofcontext/pctx/pkg/gateway"
	"github.com/portofcontext/pctx/pkg/upstream"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the code-execution gateway",
		Long: `Load the configuration file, connect to every configured upstream, build the
initial function Catalog, and start serving the downstream MCP endpoint.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	configPath := viper.GetString("config")

	logging.Infof("loading configuration from %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	credentials := config.NewStaticCredentialProvider(cfg.Servers)

	sources := make([]catalog.UpstreamSource, 0, len(cfg.Servers))
	clients := make(gateway.ClientSet, len(cfg.Servers))
	upstreamURLs := make([]string, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		c := upstream.New(server.Name, server.URL, credentials)
		sources = append(sources, catalog.UpstreamSource{Name: server.Name, BaseURL: server.URL, Client: c})
		clients[server.Name] = c
		upstreamURLs = append(upstreamURLs, server.URL)
	}

	logging.Infof("connecting to %d upstream(s)", len(sources))
	initial, err := catalog.Build(ctx, sources)
	if err != nil {
		return fmt.Errorf("failed to build catalog: %w", err)
	}
	store := catalog.NewStore(initial)

	allowList := allowlist.Build(upstreamURLs, cfg.AllowHosts)

	host, port, err := splitListen(cfg.Listen)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", cfg.Listen, err)
	}

	srv := gateway.New(gateway.Config{
		Name:              cfg.Name,
		Version:           cfg.Version,
		Host:              host,
		Port:              port,
		EndpointPath:      cfg.Endpoint,
		MaxFetchBodyBytes: cfg.Execution.MaxFetchBodyBytes,
		MaxUpstreamCalls:  cfg.Execution.MaxUpstreamCalls,
	}, store, clients, allowList)

	logging.Infof("starting gateway at %s%s", cfg.Listen, cfg.Endpoint)
	return srv.Start(ctx)
}

func splitListen(listen string) (host string, port int, err error) {
	h, p, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, err
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", p, err)
	}
	return h, portNum, nil
}
