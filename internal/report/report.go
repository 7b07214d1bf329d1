// Package report renders due diligence reports as markdown for terminals and
// evaluation, and exports them as JSON files.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/google/renameio/v2"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

// Markdown renders r as a markdown document.
func Markdown(r *core.DueDiligenceReport) string {
	var b strings.Builder

	b.WriteString("# Due Diligence Report\n\n")
	fmt.Fprintf(&b, "## Recommendation: %s\n\n", r.Recommendation)
	if !r.Timestamp.IsZero() {
		fmt.Fprintf(&b, "_Generated %s_\n\n", r.Timestamp.UTC().Format("2006-01-02 15:04 MST"))
	}

	b.WriteString("### Summary\n")
	b.WriteString(orNone(r.Summary))
	b.WriteString("\n\n")

	fa := r.FinancialAnalysis
	b.WriteString("### Financial Analysis\n")
	fmt.Fprintf(&b, "- EBITDA: %s\n", number(fa.EBITDA))
	fmt.Fprintf(&b, "- Debt ratio: %s\n", number(fa.DebtRatio))
	fmt.Fprintf(&b, "- Cash flow: %s\n", orNone(string(fa.CashFlow)))
	fmt.Fprintf(&b, "- Profitability: %s\n", orNone(fa.Profitability))
	for _, risk := range fa.Risks {
		fmt.Fprintf(&b, "- Key financial risk: %s\n", risk)
	}
	b.WriteString("\n")

	ma := r.MarketAnalysis
	b.WriteString("### Market Analysis\n")
	fmt.Fprintf(&b, "- Growth rate: %s\n", orNone(ma.GrowthRate))
	fmt.Fprintf(&b, "- Competition: %s\n", orNone(ma.Competition))
	fmt.Fprintf(&b, "- Market share: %s\n", orNone(ma.MarketShare))
	for _, o := range ma.Opportunities {
		fmt.Fprintf(&b, "- Opportunity: %s\n", o)
	}
	for _, t := range ma.Threats {
		fmt.Fprintf(&b, "- Threat: %s\n", t)
	}
	b.WriteString("\n")

	b.WriteString("### Risk Mitigation\n")
	if len(r.RiskMitigation) == 0 {
		b.WriteString("None identified.\n")
	}
	for i, rm := range r.RiskMitigation {
		fmt.Fprintf(&b, "%d. **%s** (%s)\n   - Mitigation: %s\n", i+1, rm.Risk, orNone(string(rm.Priority)), rm.Mitigation)
	}
	b.WriteString("\n")

	b.WriteString("### Citations\n")
	if len(r.Citations) == 0 {
		b.WriteString("None.\n")
	}
	for _, c := range r.Citations {
		fmt.Fprintf(&b, "- %s - %q\n", CitationLabel(c), c.Quote)
	}
	return b.String()
}

// CitationLabel formats a citation reference, e.g. "[Citation: Financial Report, Page 4]".
func CitationLabel(c core.Citation) string {
	if c.Page == nil {
		return fmt.Sprintf("[Citation: %s]", c.Source)
	}
	return fmt.Sprintf("[Citation: %s, Page %d]", c.Source, *c.Page)
}

func number(f *float64) string {
	if f == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// RenderOptions configures terminal rendering.
type RenderOptions struct {
	// Style is a glamour standard style ("dark", "light", "notty", ...).
	Style string
	Width int
}

// Render renders markdown for a terminal.
func Render(markdown string, opts RenderOptions) (string, error) {
	if opts.Style == "" {
		opts.Style = styles.DarkStyle
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(opts.Style),
		glamour.WithWordWrap(opts.Width),
	)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}

// PlainStyle renders without colors, for pipes and files.
const PlainStyle = styles.NoTTYStyle

// ExportJSON writes r as indented JSON to path atomically.
func ExportJSON(path string, r *core.DueDiligenceReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ExportMarkdown writes the markdown rendering of r to path atomically.
func ExportMarkdown(path string, r *core.DueDiligenceReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := renameio.WriteFile(path, []byte(Markdown(r)), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
