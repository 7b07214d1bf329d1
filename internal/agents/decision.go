package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/extract"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
)

// Decision synthesizes the financial and market analyses into the final
// due diligence report.
type Decision struct {
	deps Deps
	log  *logging.Logger
}

var _ core.Agent = (*Decision)(nil)

// NewDecision creates the decision agent.
func NewDecision(d Deps) *Decision {
	d = d.withDefaults()
	return &Decision{deps: d, log: d.Logger.WithAgent(NameDecision)}
}

// Name returns the registry name of the agent.
func (a *Decision) Name() string { return NameDecision }

// Run reads the leaf outputs from the context's previous outputs and wraps
// the report as an AgentOutput, so the fan-in is audited by the registry.
func (a *Decision) Run(ctx context.Context, actx *core.AgentContext) (*core.AgentOutput, error) {
	fin, _ := actx.Previous(NameFinancial)
	mkt, _ := actx.Previous(NameMarket)

	report, err := a.Decide(ctx, fin, mkt, actx.Query)
	if err != nil {
		return nil, err
	}
	out := core.NewAgentOutput(DecisionAgentName, report)
	out.Timestamp = report.Timestamp
	return out, nil
}

// Decide builds the synthesis prompt from both upstream analyses, generates
// the report and stamps it with the current time. The model-provided
// timestamp is always discarded.
func (a *Decision) Decide(ctx context.Context, financial, market *core.AgentOutput, query string) (*core.DueDiligenceReport, error) {
	report, err := a.decide(ctx, financial, market, query)
	if err != nil {
		return nil, core.ErrAgent(core.CodeSynthesisFailed, "Decision Agent failed").WithCause(err)
	}
	a.log.Info("recommendation ready", "recommendation", report.Recommendation)
	return report, nil
}

func (a *Decision) decide(ctx context.Context, financial, market *core.AgentOutput, query string) (*core.DueDiligenceReport, error) {
	if a.deps.Generator == nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "agent is missing a generator")
	}
	fa, ok := financial.Financial()
	if !ok {
		return nil, fmt.Errorf("financial input is %s", describe(financial))
	}
	ma, ok := market.Market()
	if !ok {
		return nil, fmt.Errorf("market input is %s", describe(market))
	}

	faJSON, err := json.Marshal(fa)
	if err != nil {
		return nil, fmt.Errorf("encoding financial analysis: %w", err)
	}
	maJSON, err := json.Marshal(ma)
	if err != nil {
		return nil, fmt.Errorf("encoding market analysis: %w", err)
	}

	prompt, err := a.deps.Prompts.render(promptDecision, decisionPromptParams{
		Query:         query,
		Financial:     fa,
		Market:        ma,
		FinancialJSON: string(faJSON),
		MarketJSON:    string(maJSON),
		Timestamp:     a.deps.Clock().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	response, err := a.deps.Generator.Complete(ctx,
		[]core.Message{{Role: core.RoleUser, Content: prompt}},
		core.GenerateOptions{Model: a.deps.Model, Temperature: decisionTemperature, MaxOutputTokens: decisionMaxTokens})
	if err != nil {
		return nil, err
	}

	report, err := extract.JSON[core.DueDiligenceReport](response)
	if err != nil {
		return nil, err
	}
	report.Timestamp = a.deps.Clock().UTC()
	return &report, nil
}

func describe(out *core.AgentOutput) string {
	if out == nil {
		return "missing"
	}
	if out.Result == nil {
		return "empty"
	}
	return fmt.Sprintf("a %s result", out.Result.Kind())
}
