package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/events"
)

type stepState int

const (
	statePending stepState = iota
	stateRunning
	stateDone
	stateFailed
)

type step struct {
	name   string
	state  stepState
	detail string
}

// EventMsg wraps a bus event for the progress model.
type EventMsg struct{ Event events.Event }

// DoneMsg ends the progress view.
type DoneMsg struct{ Err error }

// Progress is the bubbletea model for one analysis.
type Progress struct {
	query    string
	spinner  spinner.Model
	stages   []*step
	agents   map[string]*step
	order    []string
	warnings []string
	docs     int
	started  time.Time
	elapsed  time.Duration
	done     bool
	err      error
	events   <-chan events.Event
}

var stageLabels = []struct {
	stage events.Stage
	label string
}{
	{events.StageValidate, "validate query"},
	{events.StageAdmit, "index documents"},
	{events.StageAgents, "financial and market analysis"},
	{events.StageDecision, "investment decision"},
	{events.StageOutput, "check report"},
}

// NewProgress creates the model. Events are read from ch until it closes or
// a DoneMsg arrives.
func NewProgress(query string, ch <-chan events.Event) Progress {
	p := Progress{
		query:   query,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(RunningStyle)),
		agents:  make(map[string]*step),
		started: time.Now(),
		events:  ch,
	}
	for _, s := range stageLabels {
		p.stages = append(p.stages, &step{name: string(s.stage), detail: s.label})
	}
	return p
}

// Init starts the spinner and the event reader.
func (p Progress) Init() tea.Cmd {
	return tea.Batch(p.spinner.Tick, waitForEvent(p.events))
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg{Event: e}
	}
}

// Update handles events, spinner ticks and interrupts.
func (p Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			p.done = true
			p.err = fmt.Errorf("interrupted")
			return p, tea.Quit
		}
	case DoneMsg:
		p.done = true
		p.err = msg.Err
		p.elapsed = time.Since(p.started)
		return p, tea.Quit
	case EventMsg:
		p.apply(msg.Event)
		return p, waitForEvent(p.events)
	case spinner.TickMsg:
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		return p, cmd
	}
	return p, nil
}

func (p *Progress) stage(name events.Stage) *step {
	for _, s := range p.stages {
		if s.name == string(name) {
			return s
		}
	}
	return nil
}

func (p *Progress) agent(name string) *step {
	s, ok := p.agents[name]
	if !ok {
		s = &step{name: name}
		p.agents[name] = s
		p.order = append(p.order, name)
	}
	return s
}

func (p *Progress) apply(e events.Event) {
	switch ev := e.(type) {
	case events.StageChangedEvent:
		for _, s := range p.stages {
			if s.state == stateRunning {
				s.state = stateDone
			}
		}
		if s := p.stage(ev.Stage); s != nil {
			s.state = stateRunning
		}
	case events.DocumentAdmittedEvent:
		p.docs++
	case events.GuardrailWarningEvent:
		p.warnings = append(p.warnings, ev.Message)
	case events.AgentEvent:
		s := p.agent(ev.Agent)
		switch ev.EventType() {
		case events.TypeAgentInvoked:
			s.state = stateRunning
		case events.TypeAgentCompleted:
			s.state = stateDone
			s.detail = fmt.Sprintf("%d citations, %s", ev.Citations, ev.Duration.Round(time.Millisecond))
		case events.TypeAgentFailed:
			s.state = stateFailed
			s.detail = ev.Error
		}
	case events.AnalysisCompletedEvent:
		for _, s := range p.stages {
			s.state = stateDone
		}
	case events.AnalysisFailedEvent:
		if s := p.stage(ev.Stage); s != nil {
			s.state = stateFailed
			s.detail = ev.Error
		}
	}
}

func (p Progress) marker(s stepState) string {
	switch s {
	case stateRunning:
		return p.spinner.View()
	case stateDone:
		return CompletedStyle.Render("✓")
	case stateFailed:
		return FailedStyle.Render("✗")
	}
	return PendingStyle.Render("·")
}

// View renders the stage list and the agent invocations.
func (p Progress) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Due diligence"))
	b.WriteString(" " + MutedStyle.Render(truncate(p.query, 60)) + "\n\n")

	for _, s := range p.stages {
		line := s.detail
		if s.name == string(events.StageAdmit) && p.docs > 0 {
			line = fmt.Sprintf("%s (%d)", line, p.docs)
		}
		fmt.Fprintf(&b, " %s %s\n", p.marker(s.state), line)
		if s.name == string(events.StageAgents) || s.name == string(events.StageDecision) {
			for _, name := range p.order {
				a := p.agents[name]
				if (name == "decision") != (s.name == string(events.StageDecision)) {
					continue
				}
				fmt.Fprintf(&b, "   %s %s %s\n", p.marker(a.state), name, MutedStyle.Render(a.detail))
			}
		}
	}
	for _, w := range p.warnings {
		b.WriteString("\n " + WarningStyle.Render("! "+w))
	}
	if p.done {
		b.WriteString("\n")
	}
	return b.String()
}

// Err returns the error the run finished with.
func (p Progress) Err() error { return p.err }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
