package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/adapters/rest"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/mcp"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect the agents of a running server",
	Long: `Query a running "diligence serve" instance for its registered agents,
the invocation audit log and per-agent statistics.`,
}

var (
	agentsServer string
	agentsJSON   bool
	agentsFilter string
)

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.PersistentFlags().StringVar(&agentsServer, "server", "", "server URL (default from server.host and server.port)")
	agentsCmd.PersistentFlags().BoolVar(&agentsJSON, "json", false, "print raw JSON")

	agentsLogsCmd.Flags().StringVar(&agentsFilter, "agent", "", "only show entries for this agent")
	agentsCmd.AddCommand(agentsListCmd, agentsLogsCmd, agentsStatsCmd, agentsClearCmd)
}

func agentsClient() *rest.Client {
	base := agentsServer
	if base == "" {
		host := appConfig.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		base = "http://" + net.JoinHostPort(host, strconv.Itoa(appConfig.Server.Port))
	}
	return rest.New(rest.Config{
		BaseURL: base + "/api/v1/agents",
		Timeout: 10 * time.Second,
		Code:    "SERVER_UNAVAILABLE",
		Logger:  newLogger(appConfig),
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var body struct {
			Agents []string `json:"agents"`
		}
		if err := agentsClient().Do(cmd.Context(), http.MethodGet, "", nil, &body); err != nil {
			return err
		}
		if agentsJSON {
			return printJSON(cmd, body)
		}
		for _, a := range body.Agents {
			fmt.Fprintln(cmd.OutOrStdout(), a)
		}
		return nil
	},
}

var agentsLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the agent invocation audit log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := "/logs"
		if agentsFilter != "" {
			path += "?agent=" + url.QueryEscape(agentsFilter)
		}
		var body struct {
			Logs  []mcp.MCPLog `json:"logs"`
			Count int          `json:"count"`
		}
		if err := agentsClient().Do(cmd.Context(), http.MethodGet, path, nil, &body); err != nil {
			return err
		}
		if agentsJSON {
			return printJSON(cmd, body)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tAGENT\tREQUEST\tDURATION\tRESULT")
		for _, l := range body.Logs {
			result := "ok"
			if !l.Result.Success {
				result = "error: " + l.Result.Error
			} else if l.Result.CitationsCount != nil {
				result = fmt.Sprintf("ok (%d citations)", *l.Result.CitationsCount)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n",
				l.Timestamp.Local().Format(time.TimeOnly), l.AgentName, l.RequestID, l.DurationMS, result)
		}
		return tw.Flush()
	},
}

var agentsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-agent statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var body struct {
			Stats map[string]mcp.AgentStats `json:"stats"`
		}
		if err := agentsClient().Do(cmd.Context(), http.MethodGet, "/stats", nil, &body); err != nil {
			return err
		}
		if agentsJSON {
			return printJSON(cmd, body)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AGENT\tTOTAL\tSUCCESS\tFAILED")
		names := make([]string, 0, len(body.Stats))
		for name := range body.Stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := body.Stats[name]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", name, s.Total, s.Success, s.Failed)
		}
		return tw.Flush()
	},
}

var agentsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the audit log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := agentsClient().Do(cmd.Context(), http.MethodDelete, "/logs", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "audit log cleared")
		return nil
	},
}
