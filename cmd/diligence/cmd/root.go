package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/config"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool
	quiet     bool

	appVersion string
	appCommit  string
	appDate    string

	// Set by PersistentPreRunE for commands that need configuration.
	appConfig     *config.Config
	appConfigFile string
)

// skipConfig lists commands that run without loading configuration.
var skipConfig = map[string]bool{
	"init":    true,
	"version": true,
	"help":    true,
}

var rootCmd = &cobra.Command{
	Use:   "diligence",
	Short: "Multi-agent investment due diligence",
	Long: `diligence analyzes financial reports and business plans with a team of
agents: a financial analyst, a market analyst and a decision agent that
synthesizes both into a PROCEED / REVIEW / REJECT recommendation with
citations back to the source documents.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if skipConfig[cmd.Name()] {
			return nil
		}
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion injects build information.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./.diligence.yaml or ~/.config/diligence/.diligence.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress progress output")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	appConfig = cfg
	appConfigFile = loader.ConfigFileUsed()
	return nil
}

// newLogger builds the CLI logger. Logs always go to stderr so stdout stays
// clean for reports and the MCP protocol.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  os.Stderr,
		NoColor: noColor,
	})
}
