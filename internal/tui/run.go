package tui

import (
	"context"
	"errors"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/events"
)

// RunOptions configures Run.
type RunOptions struct {
	Bus       *events.EventBus
	RequestID string
	Query     string
	Mode      Mode
	// Output receives progress. Defaults to stderr.
	Output *os.File
}

// Run calls work while showing the progress of request opts.RequestID. The
// request ID is stored in the context passed to work so that every event of
// the run can be matched.
func Run(ctx context.Context, opts RunOptions, work func(context.Context) error) error {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	ctx = core.WithRequestID(ctx, opts.RequestID)
	if opts.Bus == nil || opts.Mode == ModeQuiet {
		return work(ctx)
	}

	ch := opts.Bus.SubscribeForRequest(opts.RequestID)
	if opts.Mode == ModePlain {
		return runPlain(ctx, opts.Bus, ch, opts.Output, work)
	}
	return runTUI(ctx, opts, ch, work)
}

func runPlain(ctx context.Context, bus *events.EventBus, ch <-chan events.Event, w io.Writer, work func(context.Context) error) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		Follow(ch, w)
	}()
	err := work(ctx)
	bus.Unsubscribe(ch)
	<-done
	return err
}

func runTUI(ctx context.Context, opts RunOptions, ch <-chan events.Event, work func(context.Context) error) error {
	defer opts.Bus.Unsubscribe(ch)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgress(opts.Query, ch),
		tea.WithOutput(opts.Output),
		tea.WithContext(ctx),
	)

	result := make(chan error, 1)
	go func() {
		err := work(workCtx)
		result <- err
		p.Send(DoneMsg{Err: err})
	}()

	_, runErr := p.Run()
	cancel()
	err := <-result
	if err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}
