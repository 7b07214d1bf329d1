package agents

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

// EvidenceBlock flattens retrieval matches into the numbered block embedded in
// leaf agent prompts.
func EvidenceBlock(matches []core.Match) string {
	blocks := make([]string, 0, len(matches))
	for i, m := range matches {
		text := m.Metadata.Text
		if text == "" {
			text = "No content"
		}
		source := m.Metadata.Source
		if source == "" {
			source = "Unknown"
		}
		page := "N/A"
		if m.Metadata.Page > 0 {
			page = fmt.Sprint(m.Metadata.Page)
		}
		blocks = append(blocks, fmt.Sprintf("Document %d (Score: %.2f):\n%s\nSource: %s\nPage: %s\n---",
			i+1, m.Score, text, source, page))
	}
	return strings.Join(blocks, "\n\n")
}
