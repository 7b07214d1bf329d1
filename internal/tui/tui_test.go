package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/events"
)

func TestDetector(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	env := map[string]string{}
	d := NewDetector(f)
	d.getenv = func(k string) string { return env[k] }

	assert.Equal(t, ModePlain, d.Detect(), "regular files are not terminals")
	assert.False(t, d.UseColor())
	assert.Equal(t, 80, d.Width())
	assert.Equal(t, ModeQuiet, d.Quiet(true).Detect())

	env["CI"] = "true"
	assert.Equal(t, ModePlain, NewDetector(nil).Detect())
	assert.Equal(t, "plain", ModePlain.String())
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		event events.Event
		want  string
	}{
		{events.NewAnalysisStartedEvent("r1", "q", 2), "analysis r1 started with 2 document(s)"},
		{events.NewStageChangedEvent("r1", events.StageAgents), "stage: agents"},
		{events.NewDocumentAdmittedEvent("r1", "doc_1", "financial.pdf", "financial"), "indexed financial.pdf as financial"},
		{events.NewGuardrailWarningEvent("r1", events.StageValidate, "query may not be investment-related"), "warning: query may not be investment-related"},
		{events.NewAgentInvokedEvent("r1", "market"), "agent market running"},
		{events.NewAgentCompletedEvent("r1", "market", 1500*time.Millisecond, 3), "agent market done (3 citations, 1.5s)"},
		{events.NewAgentFailedEvent("r1", "market", time.Second, errors.New("boom")), "agent market failed: boom"},
		{events.NewAnalysisCompletedEvent("r1", "PROCEED", 2*time.Second), "recommendation PROCEED in 2s"},
		{events.NewAnalysisFailedEvent("r1", events.StageDecision, errors.New("bad")), "analysis failed during decision: bad"},
	}
	for _, tt := range tests {
		t.Run(tt.event.EventType(), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEvent(tt.event))
		})
	}
}

func TestProgress_AppliesEvents(t *testing.T) {
	p := NewProgress("Should we invest in Acme?", nil)

	for _, e := range []events.Event{
		events.NewStageChangedEvent("r", events.StageAdmit),
		events.NewDocumentAdmittedEvent("r", "d1", "financial.pdf", "financial"),
		events.NewStageChangedEvent("r", events.StageAgents),
		events.NewAgentInvokedEvent("r", "financial"),
		events.NewAgentCompletedEvent("r", "financial", time.Second, 2),
		events.NewAgentInvokedEvent("r", "market"),
		events.NewAgentFailedEvent("r", "market", time.Second, errors.New("Market Agent failed")),
		events.NewGuardrailWarningEvent("r", events.StageOutput, "Potential Email detected in output"),
	} {
		m, _ := p.Update(EventMsg{Event: e})
		p = m.(Progress)
	}

	assert.Equal(t, stateDone, p.stage(events.StageAdmit).state)
	assert.Equal(t, stateRunning, p.stage(events.StageAgents).state)
	assert.Equal(t, stateDone, p.agents["financial"].state)
	assert.Equal(t, stateFailed, p.agents["market"].state)
	assert.Equal(t, []string{"financial", "market"}, p.order)

	view := p.View()
	assert.Contains(t, view, "index documents (1)")
	assert.Contains(t, view, "financial")
	assert.Contains(t, view, "Market Agent failed")
	assert.Contains(t, view, "Potential Email detected in output")

	m, cmd := p.Update(DoneMsg{Err: errors.New("done")})
	require.NotNil(t, cmd)
	assert.EqualError(t, m.(Progress).Err(), "done")
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestProgress_Completed(t *testing.T) {
	p := NewProgress("q", nil)
	m, _ := p.Update(EventMsg{Event: events.NewAnalysisCompletedEvent("r", "PROCEED", time.Second)})
	for _, s := range m.(Progress).stages {
		assert.Equal(t, stateDone, s.state, s.name)
	}
}

func TestRun_Plain(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	out, err := os.Create(filepath.Join(t.TempDir(), "progress.log"))
	require.NoError(t, err)
	defer out.Close()

	var seen string
	err = Run(context.Background(), RunOptions{Bus: bus, RequestID: "req-1", Mode: ModePlain, Output: out},
		func(ctx context.Context) error {
			seen = core.RequestIDFrom(ctx)
			bus.Publish(events.NewStageChangedEvent("req-1", events.StageValidate))
			bus.Publish(events.NewStageChangedEvent("other", events.StageAdmit))
			return errors.New("failed")
		})
	assert.EqualError(t, err, "failed")
	assert.Equal(t, "req-1", seen)

	data, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, "stage: validate\n", string(data))
}

func TestRun_Quiet(t *testing.T) {
	called := false
	err := Run(context.Background(), RunOptions{Bus: events.New(1), RequestID: "r", Mode: ModeQuiet},
		func(context.Context) error { called = true; return nil })
	require.NoError(t, err)
	assert.True(t, called)
}

func TestBadge(t *testing.T) {
	assert.Equal(t, "[REVIEW]", Badge(core.RecommendationReview, false))
	assert.True(t, strings.Contains(Badge(core.RecommendationProceed, true), "PROCEED"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
