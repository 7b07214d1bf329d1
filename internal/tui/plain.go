package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/events"
)

// FormatEvent renders an event as one plain progress line. Events that are
// not worth a line return "".
func FormatEvent(e events.Event) string {
	switch ev := e.(type) {
	case events.AnalysisStartedEvent:
		return fmt.Sprintf("analysis %s started with %d document(s)", ev.RequestID(), ev.FileCount)
	case events.StageChangedEvent:
		return fmt.Sprintf("stage: %s", ev.Stage)
	case events.DocumentAdmittedEvent:
		return fmt.Sprintf("indexed %s as %s", ev.Name, ev.DocumentType)
	case events.GuardrailWarningEvent:
		return fmt.Sprintf("warning: %s", ev.Message)
	case events.AgentEvent:
		switch ev.EventType() {
		case events.TypeAgentInvoked:
			return fmt.Sprintf("agent %s running", ev.Agent)
		case events.TypeAgentCompleted:
			return fmt.Sprintf("agent %s done (%d citations, %s)", ev.Agent, ev.Citations, ev.Duration.Round(time.Millisecond))
		case events.TypeAgentFailed:
			return fmt.Sprintf("agent %s failed: %s", ev.Agent, ev.Error)
		}
	case events.AnalysisCompletedEvent:
		return fmt.Sprintf("recommendation %s in %s", ev.Recommendation, ev.Duration.Round(time.Millisecond))
	case events.AnalysisFailedEvent:
		return fmt.Sprintf("analysis failed during %s: %s", ev.Stage, ev.Error)
	}
	return ""
}

// Follow writes a line per event until ch is closed.
func Follow(ch <-chan events.Event, w io.Writer) {
	for e := range ch {
		if line := FormatEvent(e); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}
