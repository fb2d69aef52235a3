// Package app provides the entry point for the codeexecgw command-line
// application, mirroring stacklok-toolhive/cmd/vmcp/app's cobra layout.
package app

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/portofcontext/pctx/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:               "codeexecgw",
	DisableAutoGenTag: true,
	Short:             "Code-execution MCP gateway",
	Long: `codeexecgw aggregates multiple upstream MCP tool-providing servers behind a
single downstream MCP endpoint exposing three meta-tools: list_functions,
get_function_details, and execute. Agent code runs inside a sandboxed VM
that may call upstream tools and fetch() allow-listed hosts.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logging.Errorf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if viper.GetBool("debug") {
			logging.Initialize(slog.LevelDebug, false)
		}
	},
}

// NewRootCmd creates the root command for the codeexecgw CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.PersistentFlags().StringP("config", "c", "codeexecgw.yaml", "path to the gateway configuration file")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newUpstreamCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logging.Infof("codeexecgw version: %s", version)
		},
	}
}

// version is overridden at build time via -ldflags.
var version = "dev"
