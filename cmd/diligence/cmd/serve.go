package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/api"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Endpoints:
  POST   /api/v1/analyze      multipart form with "query" and one or more "files"
  GET    /api/v1/agents       registered agents
  GET    /api/v1/agents/logs  agent invocation audit log (?agent=name)
  GET    /api/v1/agents/stats per-agent statistics
  DELETE /api/v1/agents/logs  clear the audit log
  GET    /api/v1/events       server-sent pipeline events (?request=id&type=t)
  GET    /health

Guardrail settings are reloaded when the config file changes.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	log := newLogger(cfg)
	app, err := newApplication(cfg, log, generatorOverride)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if appConfigFile != "" {
		path := appConfigFile
		w := config.NewWatcher(path,
			func() (*config.Config, error) { return config.NewLoader().WithConfigFile(path).Load() },
			func(c *config.Config) {
				app.driver.SetPolicy(c.Guardrails.Policy())
				log.Info("guardrail policy reloaded", "config", path)
			},
			log)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	opts := []api.ServerOption{
		api.WithLogger(log),
		api.WithRequestTimeout(cfg.Server.RequestTimeout),
		api.WithMaxUploadBytes(int64(cfg.Server.MaxUploadMB) << 20),
		api.WithVersion(appVersion),
	}
	if cfg.Server.EnableCORS {
		opts = append(opts, api.WithCORS(cfg.Server.CORSOrigins...))
	}
	srv := api.NewServer(app.driver, app.bus, opts...)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	fmt.Fprintf(cmd.ErrOrStderr(), "diligence API listening on http://%s\n", addr)
	return srv.ListenAndServe(ctx, addr)
}
