package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

// Palette.
var (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorSecondary = lipgloss.Color("#06B6D4")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorError     = lipgloss.Color("#EF4444")
	ColorText      = lipgloss.Color("#E5E7EB")
	ColorTextMuted = lipgloss.Color("#9CA3AF")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	PendingStyle   = lipgloss.NewStyle().Foreground(ColorTextMuted)
	RunningStyle   = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	FailedStyle    = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	WarningStyle   = lipgloss.NewStyle().Foreground(ColorWarning)
	MutedStyle     = lipgloss.NewStyle().Foreground(ColorTextMuted).Italic(true)
)

// RecommendationStyle colors a recommendation badge.
func RecommendationStyle(r core.Recommendation) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#111827"))
	switch r {
	case core.RecommendationProceed:
		return base.Background(ColorSuccess)
	case core.RecommendationReview:
		return base.Background(ColorWarning)
	case core.RecommendationReject:
		return base.Background(ColorError)
	}
	return base.Background(ColorTextMuted)
}

// Badge renders a recommendation badge, or the bare value without color.
func Badge(r core.Recommendation, color bool) string {
	if !color {
		return "[" + string(r) + "]"
	}
	return RecommendationStyle(r).Render(string(r))
}
