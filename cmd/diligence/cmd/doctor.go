package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/config"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/tui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and host resources",
	RunE:  runDoctor,
}

var doctorJSON bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the report as JSON")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	diskPath := "."
	if appConfig.Retrieval.Backend == config.BackendSQLite {
		diskPath = filepath.Dir(appConfig.Retrieval.SQLite.Path)
	}
	rep := diagnostics.Run(appConfig, appConfigFile, diagnostics.CollectSystem(existingDir(diskPath)))

	if doctorJSON {
		if err := printJSON(cmd, rep); err != nil {
			return err
		}
	} else {
		colored := !noColor && tui.NewDetector(os.Stdout).UseColor()
		for _, line := range strings.Split(strings.TrimRight(diagnostics.Format(rep), "\n"), "\n") {
			fmt.Fprintln(cmd.OutOrStdout(), colorize(line, colored))
		}
	}

	if !rep.Healthy() {
		return errors.New("doctor found problems")
	}
	return nil
}

func colorize(line string, colored bool) string {
	if !colored {
		return line
	}
	switch {
	case strings.HasPrefix(line, "[ok"):
		return tui.CompletedStyle.Render(line)
	case strings.HasPrefix(line, "[warn"):
		return tui.WarningStyle.Render(line)
	case strings.HasPrefix(line, "[fail"):
		return tui.FailedStyle.Render(line)
	}
	return line
}

// existingDir walks up from dir to the nearest directory that exists, so disk
// usage can be reported before the index is created.
func existingDir(dir string) string {
	for {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}
