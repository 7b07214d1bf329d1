// Package agents implements the due diligence agents: two leaf agents that
// analyze retrieved evidence (financial, market) and the decision agent that
// synthesizes their outputs into the final report.
package agents

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/extract"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/mcp"
)

// Registry names.
const (
	NameFinancial = "financial"
	NameMarket    = "market"
	NameDecision  = "decision"
)

// Output agent names, as they appear in AgentOutput.AgentName.
const (
	FinancialAgentName = "FinancialAgent"
	MarketAgentName    = "MarketAgent"
	DecisionAgentName  = "DecisionAgent"
)

// Generation settings per agent.
const (
	DefaultTopK = 5

	leafTemperature     = 0.2
	leafMaxTokens       = 1500
	decisionTemperature = 0.3
	decisionMaxTokens   = 2500
)

// Deps carries the collaborators shared by all agents.
type Deps struct {
	Retriever core.Retriever
	Generator core.Generator
	Prompts   *PromptRenderer
	Logger    *logging.Logger
	Model     string
	TopK      int
	Clock     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Prompts == nil {
		d.Prompts = defaultPrompts
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.TopK <= 0 {
		d.TopK = DefaultTopK
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

// RegisterAll registers the financial, market and decision agents.
func RegisterAll(reg *mcp.Registry, d Deps) {
	reg.Register(NameFinancial, NewFinancial(d))
	reg.Register(NameMarket, NewMarket(d))
	reg.Register(NameDecision, NewDecision(d))
}

// leafProfile describes what differs between the financial and market agents.
type leafProfile struct {
	registryName string
	outputName   string
	failure      string
	querySuffix  string
	docType      core.DocumentType
	template     string
	parse        func(string) (core.AgentResult, error)
}

// LeafAgent retrieves evidence for one document type, asks the generator for
// a structured analysis and returns it as an AgentOutput.
type LeafAgent struct {
	profile leafProfile
	deps    Deps
	log     *logging.Logger
}

var _ core.Agent = (*LeafAgent)(nil)

// NewFinancial creates the financial agent.
func NewFinancial(d Deps) *LeafAgent {
	return newLeaf(leafProfile{
		registryName: NameFinancial,
		outputName:   FinancialAgentName,
		failure:      "Financial Agent failed",
		querySuffix:  " financial metrics EBITDA debt cash flow",
		docType:      core.DocumentTypeFinancial,
		template:     promptFinancial,
		parse: func(text string) (core.AgentResult, error) {
			fa, err := extract.JSON[core.FinancialAnalysis](text)
			if err != nil {
				return nil, err
			}
			if fa.CashFlow == "" {
				fa.CashFlow = core.CashFlowUnknown
			}
			return &fa, nil
		},
	}, d)
}

// NewMarket creates the market agent.
func NewMarket(d Deps) *LeafAgent {
	return newLeaf(leafProfile{
		registryName: NameMarket,
		outputName:   MarketAgentName,
		failure:      "Market Agent failed",
		querySuffix:  " market growth competition business plan strategy",
		docType:      core.DocumentTypeBusinessPlan,
		template:     promptMarket,
		parse: func(text string) (core.AgentResult, error) {
			ma, err := extract.JSON[core.MarketAnalysis](text)
			if err != nil {
				return nil, err
			}
			return &ma, nil
		},
	}, d)
}

func newLeaf(profile leafProfile, d Deps) *LeafAgent {
	d = d.withDefaults()
	return &LeafAgent{profile: profile, deps: d, log: d.Logger.WithAgent(profile.registryName)}
}

// Name returns the registry name of the agent.
func (a *LeafAgent) Name() string { return a.profile.registryName }

// Run executes retrieval, prompt assembly, generation and parsing. Any failure
// is reported as a single agent error naming this agent.
func (a *LeafAgent) Run(ctx context.Context, actx *core.AgentContext) (*core.AgentOutput, error) {
	out, err := a.run(ctx, actx)
	if err != nil {
		return nil, core.ErrAgent(core.CodeAgentFailed, a.profile.failure).WithCause(err)
	}
	return out, nil
}

func (a *LeafAgent) run(ctx context.Context, actx *core.AgentContext) (*core.AgentOutput, error) {
	if a.deps.Retriever == nil || a.deps.Generator == nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "agent is missing a retriever or generator")
	}

	a.log.Debug("starting analysis")
	matches, err := a.deps.Retriever.Search(ctx, actx.Query+a.profile.querySuffix, a.deps.TopK,
		core.Filter{"type": string(a.profile.docType)})
	if err != nil {
		return nil, err
	}

	prompt, err := a.deps.Prompts.render(a.profile.template, leafPromptParams{
		Query:    actx.Query,
		Evidence: EvidenceBlock(matches),
	})
	if err != nil {
		return nil, err
	}

	response, err := a.deps.Generator.Complete(ctx,
		[]core.Message{{Role: core.RoleUser, Content: prompt}},
		core.GenerateOptions{Model: a.deps.Model, Temperature: leafTemperature, MaxOutputTokens: leafMaxTokens})
	if err != nil {
		return nil, err
	}

	result, err := a.profile.parse(response)
	if err != nil {
		return nil, err
	}

	out := core.NewAgentOutput(a.profile.outputName, result)
	out.Timestamp = a.deps.Clock().UTC()
	a.log.Debug("analysis completed", "matches", len(matches), "citations", len(out.Citations))
	return out, nil
}
