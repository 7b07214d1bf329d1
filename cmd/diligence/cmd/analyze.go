package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/clip"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/pipeline"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/report"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/tui"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <query>",
	Short: "Analyze documents and print a due diligence report",
	Long: `Run the full analysis pipeline over local documents.

Files are classified by name: names containing "financial" feed the
financial agent, names containing "business" feed the market agent.

Examples:
  diligence analyze "Should we invest in Acme?" -f financial_report.pdf -f business_plan.txt
  diligence analyze "Assess Acme" -f financial.txt --format json > report.json
  diligence analyze "Assess Acme" -f financial.txt --json-out out/report.json --copy`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeFiles   []string
	analyzeFormat  string
	analyzeJSONOut string
	analyzeMDOut   string
	analyzeCopy    bool
)

// generatorOverride replaces the configured generation client in tests.
var generatorOverride core.Generator

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringArrayVarP(&analyzeFiles, "file", "f", nil, "document to analyze (repeatable)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "markdown", "output format (markdown, json)")
	analyzeCmd.Flags().StringVar(&analyzeJSONOut, "json-out", "", "also write the report as JSON to this path")
	analyzeCmd.Flags().StringVar(&analyzeMDOut, "md-out", "", "also write the report as markdown to this path")
	analyzeCmd.Flags().BoolVar(&analyzeCopy, "copy", false, "copy the markdown report to the clipboard")
	_ = analyzeCmd.MarkFlagRequired("file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeFormat != "markdown" && analyzeFormat != "json" {
		return fmt.Errorf("unknown format %q (want markdown or json)", analyzeFormat)
	}
	uploads, err := pipeline.ReadUploads(analyzeFiles...)
	if err != nil {
		return err
	}

	log := newLogger(appConfig)
	app, err := newApplication(appConfig, log, generatorOverride)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	query := args[0]
	detector := tui.NewDetector(os.Stderr).Quiet(quiet)
	var res *pipeline.Result
	err = tui.Run(ctx, tui.RunOptions{
		Bus:       app.bus,
		RequestID: uuid.NewString(),
		Query:     query,
		Mode:      detector.Detect(),
	}, func(ctx context.Context) error {
		var runErr error
		res, runErr = app.driver.Analyze(ctx, query, uploads)
		return runErr
	})
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	return writeReport(cmd, res.Report, detector)
}

func writeReport(cmd *cobra.Command, r *core.DueDiligenceReport, detector *tui.Detector) error {
	md := report.Markdown(r)

	if analyzeJSONOut != "" {
		if err := report.ExportJSON(analyzeJSONOut, r); err != nil {
			return err
		}
	}
	if analyzeMDOut != "" {
		if err := report.ExportMarkdown(analyzeMDOut, r); err != nil {
			return err
		}
	}
	if analyzeCopy {
		res, err := clip.New().Copy(md)
		if err != nil {
			return fmt.Errorf("copying report: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), res.Describe())
	}

	out := cmd.OutOrStdout()
	if analyzeFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		style := "dark"
		if noColor || !detector.UseColor() {
			style = report.PlainStyle
		}
		rendered, err := report.Render(md, report.RenderOptions{Style: style, Width: detector.Width()})
		if err == nil {
			_, err = fmt.Fprint(out, rendered)
			return err
		}
	}
	_, err := fmt.Fprint(out, md)
	return err
}
