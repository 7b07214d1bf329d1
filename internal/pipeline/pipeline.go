// Package pipeline drives one due diligence analysis: input guardrails,
// document admission, the financial and market agents, the decision agent and
// output guardrails.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/agents"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/events"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/guardrail"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/mcp"
)

// Upload is a file submitted for analysis.
type Upload struct {
	Name      string
	MediaType string
	Content   []byte
}

// Options tunes a Driver.
type Options struct {
	// ParallelAgents runs the financial and market agents concurrently.
	ParallelAgents bool
	// CleanupDocuments removes the request's documents from the index after
	// the analysis, successful or not.
	CleanupDocuments bool
	// Timeout bounds a whole analysis. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{ParallelAgents: true}
}

// Result is the outcome of a successful analysis.
type Result struct {
	RequestID string                   `json:"requestId"`
	Report    *core.DueDiligenceReport `json:"report"`
	Documents []core.Document          `json:"-"`
	Warnings  []string                 `json:"warnings,omitempty"`
	Duration  time.Duration            `json:"-"`
}

// Driver runs analyses against a registry of agents and a document index.
type Driver struct {
	registry *mcp.Registry
	indexer  core.Indexer
	policy   atomic.Pointer[guardrail.Policy]
	bus      *events.EventBus
	log      *logging.Logger
	opts     Options
	now      func() time.Time
	newID    func() string
}

// Option configures a Driver.
type Option func(*Driver)

// WithOptions sets the run options.
func WithOptions(o Options) Option {
	return func(d *Driver) { d.opts = o }
}

// WithPolicy sets the guardrail policy.
func WithPolicy(p guardrail.Policy) Option {
	return func(d *Driver) { d.policy.Store(&p) }
}

// WithEventBus publishes pipeline events to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(d *Driver) { d.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithIDGenerator overrides request and document ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(d *Driver) { d.newID = fn }
}

// New creates a Driver. The registry must hold the financial, market and
// decision agents.
func New(registry *mcp.Registry, indexer core.Indexer, opts ...Option) *Driver {
	d := &Driver{
		registry: registry,
		indexer:  indexer,
		log:      logging.NewNop(),
		opts:     DefaultOptions(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	p := guardrail.DefaultPolicy()
	d.policy.Store(&p)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Policy returns the guardrail policy in effect.
func (d *Driver) Policy() guardrail.Policy {
	return *d.policy.Load()
}

// SetPolicy replaces the guardrail policy. Analyses already running keep the
// policy they started with.
func (d *Driver) SetPolicy(p guardrail.Policy) {
	d.policy.Store(&p)
}

// Registry returns the agent registry.
func (d *Driver) Registry() *mcp.Registry {
	return d.registry
}

// Admit validates every upload, then classifies and indexes them. No upload
// is indexed unless all of them pass validation. When indexing fails midway,
// the documents indexed so far are removed again.
func (d *Driver) Admit(ctx context.Context, uploads []Upload) ([]core.Document, error) {
	return d.admit(ctx, d.Policy(), uploads)
}

func (d *Driver) admit(ctx context.Context, policy guardrail.Policy, uploads []Upload) ([]core.Document, error) {
	if len(uploads) == 0 {
		return nil, core.ErrValidation(core.CodeNoDocuments, "at least one document is required")
	}
	for _, u := range uploads {
		f := guardrail.File{Name: u.Name, MediaType: u.MediaType, Size: int64(len(u.Content))}
		if err := policy.ValidateDocument(f); err != nil {
			return nil, fmt.Errorf("%s: %w", u.Name, err)
		}
	}

	requestID := core.RequestIDFrom(ctx)
	docs := make([]core.Document, 0, len(uploads))
	for _, u := range uploads {
		doc := core.Document{
			ID:         "doc_" + d.newID(),
			Name:       u.Name,
			Type:       core.ClassifyDocument(u.Name),
			Content:    decodeText(u.Content),
			UploadedAt: d.now().UTC(),
		}
		if err := d.indexer.Upsert(ctx, doc); err != nil {
			d.removeDocuments(context.WithoutCancel(ctx), docs)
			return nil, fmt.Errorf("indexing %s: %w", u.Name, err)
		}
		docs = append(docs, doc)
		d.log.Info("document admitted", "request_id", requestID, "document_id", doc.ID, "name", doc.Name, "type", doc.Type)
		d.bus.Publish(events.NewDocumentAdmittedEvent(requestID, doc.ID, doc.Name, string(doc.Type)))
	}
	return docs, nil
}

// Analyze runs the full pipeline for query over uploads. Any failure aborts
// the run; no partial report is returned.
func (d *Driver) Analyze(ctx context.Context, query string, uploads []Upload) (*Result, error) {
	requestID := core.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = d.newID()
		ctx = core.WithRequestID(ctx, requestID)
	}
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	r := &run{d: d, requestID: requestID, policy: d.Policy(), log: d.log.WithRequest(requestID), start: d.now()}
	d.bus.Publish(events.NewAnalysisStartedEvent(requestID, query, len(uploads)))
	r.log.Info("analysis started", "documents", len(uploads))

	res, err := r.execute(ctx, query, uploads)
	if err != nil {
		r.log.Error("analysis failed", "stage", r.stage, "error", err)
		d.bus.PublishPriority(events.NewAnalysisFailedEvent(requestID, r.stage, err))
		return nil, err
	}
	res.Duration = d.now().Sub(r.start)
	r.log.Info("analysis completed", "recommendation", res.Report.Recommendation, "duration", res.Duration)
	d.bus.PublishPriority(events.NewAnalysisCompletedEvent(requestID, string(res.Report.Recommendation), res.Duration))
	return res, nil
}

// run holds the state of one analysis.
type run struct {
	d         *Driver
	requestID string
	policy    guardrail.Policy
	log       *logging.Logger
	start     time.Time
	stage     events.Stage
	warnings  []string
}

func (r *run) enter(stage events.Stage) {
	r.stage = stage
	r.log.WithStage(string(stage)).Debug("stage entered")
	r.d.bus.Publish(events.NewStageChangedEvent(r.requestID, stage))
}

func (r *run) warn(msg string) {
	r.warnings = append(r.warnings, msg)
	r.log.Warn("guardrail warning", "stage", r.stage, "warning", msg)
	r.d.bus.Publish(events.NewGuardrailWarningEvent(r.requestID, r.stage, msg))
}

func (r *run) execute(ctx context.Context, query string, uploads []Upload) (*Result, error) {
	r.enter(events.StageValidate)
	sanitized := guardrail.SanitizeInput(query)
	if err := r.policy.ValidateInput(sanitized); err != nil {
		return nil, err
	}
	for _, w := range r.policy.InputWarnings(sanitized) {
		r.warn(w)
	}

	r.enter(events.StageAdmit)
	docs, err := r.d.admit(ctx, r.policy, uploads)
	if err != nil {
		return nil, err
	}
	if r.d.opts.CleanupDocuments {
		defer func() {
			prev := r.stage
			r.enter(events.StageCleanup)
			r.d.removeDocuments(context.WithoutCancel(ctx), docs)
			r.stage = prev
		}()
	}

	r.enter(events.StageAgents)
	actx := core.NewAgentContext(sanitized, docs, nil)
	financial, market, err := r.runLeafAgents(ctx, actx)
	if err != nil {
		return nil, err
	}

	r.enter(events.StageDecision)
	decisionCtx := core.NewAgentContext(sanitized, docs, map[string]*core.AgentOutput{
		agents.NameFinancial: financial,
		agents.NameMarket:    market,
	})
	out, err := r.d.registry.Invoke(ctx, agents.NameDecision, decisionCtx)
	if err != nil {
		return nil, err
	}
	report, ok := out.Report()
	if !ok {
		return nil, core.ErrAgent(core.CodeSynthesisFailed, "decision agent returned no report")
	}

	r.enter(events.StageOutput)
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	if err := guardrail.ValidateOutput(string(data)); err != nil {
		return nil, err
	}
	for _, w := range guardrail.CheckSensitiveData(string(data)) {
		r.warn(w)
	}

	return &Result{
		RequestID: r.requestID,
		Report:    report,
		Documents: docs,
		Warnings:  r.warnings,
	}, nil
}

// runLeafAgents invokes the financial and market agents, concurrently when
// configured. Both must succeed.
func (r *run) runLeafAgents(ctx context.Context, actx *core.AgentContext) (financial, market *core.AgentOutput, err error) {
	if !r.d.opts.ParallelAgents {
		if financial, err = r.d.registry.Invoke(ctx, agents.NameFinancial, actx); err != nil {
			return nil, nil, err
		}
		if market, err = r.d.registry.Invoke(ctx, agents.NameMarket, actx); err != nil {
			return nil, nil, err
		}
		return financial, market, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		financial, err = r.d.registry.Invoke(gctx, agents.NameFinancial, actx)
		return err
	})
	g.Go(func() error {
		var err error
		market, err = r.d.registry.Invoke(gctx, agents.NameMarket, actx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return financial, market, nil
}

// removeDocuments deletes docs from the index, logging failures.
func (d *Driver) removeDocuments(ctx context.Context, docs []core.Document) {
	var errs []error
	for _, doc := range docs {
		if err := d.indexer.Delete(ctx, doc.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", doc.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		d.log.Warn("document cleanup incomplete", "request_id", core.RequestIDFrom(ctx), "error", err)
	}
}

// decodeText reads an upload as UTF-8 text, dropping invalid byte sequences.
func decodeText(b []byte) string {
	s := string(b)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}
