package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analysis tools over MCP (stdio)",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing the tools
analyze_investment, list_agents, agent_logs, agent_stats and
clear_agent_logs. Logs are written to stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger(appConfig)
		app, err := newApplication(appConfig, log, generatorOverride)
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return mcpserver.New(app.driver, appVersion, log).ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
