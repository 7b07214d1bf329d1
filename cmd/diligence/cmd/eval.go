package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/eval"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/fsutil"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/guardrail"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/report"
)

var evalCmd = &cobra.Command{
	Use:   "eval <report>",
	Short: "Score a report against the regression scenarios",
	Long: `Check a generated report against evaluation scenarios. The report may be
markdown or the JSON written by "analyze --json-out"; use "-" to read stdin.
A scenario passes when every one of its criteria appears in the report.
Exits non-zero when any scenario fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

var (
	evalScenarios string
	evalID        int
)

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalScenarios, "scenarios", "", "scenario YAML file (default: built-in scenarios)")
	evalCmd.Flags().IntVar(&evalID, "id", 0, "run a single scenario")
}

func runEval(cmd *cobra.Command, args []string) error {
	suite := eval.LoadDefault()
	if evalScenarios != "" {
		s, err := eval.Load(evalScenarios)
		if err != nil {
			return err
		}
		suite = s
	}

	text, err := readReportText(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	var results []eval.Result
	if evalID != 0 {
		res, err := suite.Run(text, evalID)
		if err != nil {
			return err
		}
		results = []eval.Result{res}
	} else {
		results = suite.RunAll(text)
	}

	md := suite.Report(results)
	out := cmd.OutOrStdout()
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) && !noColor {
		if rendered, err := report.Render(md, report.RenderOptions{}); err == nil {
			md = rendered
		}
	}
	fmt.Fprint(out, md)

	if failed := len(results) - eval.Passed(results); failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}

// readReportText returns the markdown to evaluate. JSON reports are parsed
// with the output guardrail and rendered first.
func readReportText(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = fsutil.ReadFileScoped(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") || bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		r, err := guardrail.ParseOutput(string(data))
		if err != nil {
			return "", err
		}
		return report.Markdown(r), nil
	}
	return string(data), nil
}
