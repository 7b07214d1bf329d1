package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/mcp"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/testutil"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func financialMatches() []core.Match {
	return []core.Match{
		{ID: "a", Score: 0.912, Metadata: core.MatchMetadata{Text: "EBITDA margin reached 15%", Source: "Financial Report", Page: 4}},
		{ID: "b", Score: 0.5, Metadata: core.MatchMetadata{}},
	}
}

func TestEvidenceBlock(t *testing.T) {
	t.Parallel()
	block := EvidenceBlock(financialMatches())
	want := "Document 1 (Score: 0.91):\nEBITDA margin reached 15%\nSource: Financial Report\nPage: 4\n---" +
		"\n\n" +
		"Document 2 (Score: 0.50):\nNo content\nSource: Unknown\nPage: N/A\n---"
	assert.Equal(t, want, block)
	assert.Empty(t, EvidenceBlock(nil))
}

func TestFinancialAgent_Run(t *testing.T) {
	t.Parallel()
	retriever := testutil.NewFakeRetriever().WithMatches(core.DocumentTypeFinancial, financialMatches()...)
	generator := testutil.NewFakeGenerator()

	agent := NewFinancial(Deps{Retriever: retriever, Generator: generator, Model: "gpt-4o-mini", Clock: fixedClock})
	out, err := agent.Run(context.Background(), core.NewAgentContext("Should we invest in Acme?", nil, nil))
	require.NoError(t, err)

	assert.Equal(t, FinancialAgentName, out.AgentName)
	assert.Equal(t, fixedNow, out.Timestamp)
	fa, ok := out.Financial()
	require.True(t, ok)
	assert.Equal(t, 15.0, *fa.EBITDA)
	assert.Equal(t, core.CashFlowStrong, fa.CashFlow)
	assert.Equal(t, []core.Citation{testutil.FinancialCitation}, out.Citations)

	searches := retriever.Calls()
	require.Len(t, searches, 1)
	assert.Equal(t, "Should we invest in Acme? financial metrics EBITDA debt cash flow", searches[0].Query)
	assert.Equal(t, 5, searches[0].TopK)
	assert.Equal(t, core.Filter{"type": "financial"}, searches[0].Filter)

	calls := generator.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.2, calls[0].Options.Temperature)
	assert.Equal(t, 1500, calls[0].Options.MaxOutputTokens)
	assert.Equal(t, "gpt-4o-mini", calls[0].Options.Model)
	assert.Equal(t, core.RoleUser, calls[0].Messages[0].Role)
	prompt := calls[0].Prompt()
	assert.Contains(t, prompt, "Query: Should we invest in Acme?")
	assert.Contains(t, prompt, "Document 1 (Score: 0.91):")
	assert.Contains(t, prompt, `"debtRatio": number or null`)
}

func TestMarketAgent_Run(t *testing.T) {
	t.Parallel()
	retriever := testutil.NewFakeRetriever()
	generator := testutil.NewFakeGenerator()

	agent := NewMarket(Deps{Retriever: retriever, Generator: generator, TopK: 3})
	out, err := agent.Run(context.Background(), core.NewAgentContext("Acme market position", nil, nil))
	require.NoError(t, err)

	assert.Equal(t, MarketAgentName, out.AgentName)
	ma, ok := out.Market()
	require.True(t, ok)
	assert.Equal(t, "12% CAGR", ma.GrowthRate)

	searches := retriever.Calls()
	require.Len(t, searches, 1)
	assert.True(t, strings.HasSuffix(searches[0].Query, " market growth competition business plan strategy"))
	assert.Equal(t, core.Filter{"type": "business_plan"}, searches[0].Filter)
	assert.Equal(t, 3, searches[0].TopK)
}

func TestLeafAgent_CitationsDefaultToEmpty(t *testing.T) {
	t.Parallel()
	generator := testutil.NewFakeGenerator().WithResponses(`{"growthRate":"unknown"}`)
	agent := NewMarket(Deps{Retriever: testutil.NewFakeRetriever(), Generator: generator})

	out, err := agent.Run(context.Background(), core.NewAgentContext("q", nil, nil))
	require.NoError(t, err)
	assert.NotNil(t, out.Citations)
	assert.Empty(t, out.Citations)
}

func TestFinancialAgent_MissingCashFlowIsUnknown(t *testing.T) {
	t.Parallel()
	generator := testutil.NewFakeGenerator().WithResponses(`{"ebitda":null,"risks":[]}`)
	agent := NewFinancial(Deps{Retriever: testutil.NewFakeRetriever(), Generator: generator})

	out, err := agent.Run(context.Background(), core.NewAgentContext("q", nil, nil))
	require.NoError(t, err)
	fa, _ := out.Financial()
	assert.Nil(t, fa.EBITDA)
	assert.Equal(t, core.CashFlowUnknown, fa.CashFlow)
}

func TestLeafAgent_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		build     func() *LeafAgent
		wantMsg   string
		wantCause string
	}{
		{
			name: "retrieval unavailable",
			build: func() *LeafAgent {
				return NewFinancial(Deps{
					Retriever: testutil.NewFakeRetriever().WithError(errors.New("index offline")),
					Generator: testutil.NewFakeGenerator(),
				})
			},
			wantMsg:   "Financial Agent failed",
			wantCause: "index offline",
		},
		{
			name: "generation unavailable",
			build: func() *LeafAgent {
				return NewMarket(Deps{
					Retriever: testutil.NewFakeRetriever(),
					Generator: testutil.NewFakeGenerator().WithError(errors.New("quota exceeded")),
				})
			},
			wantMsg:   "Market Agent failed",
			wantCause: "quota exceeded",
		},
		{
			name: "unparseable response",
			build: func() *LeafAgent {
				return NewFinancial(Deps{
					Retriever: testutil.NewFakeRetriever(),
					Generator: testutil.NewFakeGenerator().WithResponses("I am unable to analyze this."),
				})
			},
			wantMsg:   "Financial Agent failed",
			wantCause: "failed to extract JSON",
		},
		{
			name:      "missing collaborators",
			build:     func() *LeafAgent { return NewMarket(Deps{}) },
			wantMsg:   "Market Agent failed",
			wantCause: "missing a retriever or generator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.build().Run(context.Background(), core.NewAgentContext("q", nil, nil))
			assert.Nil(t, out)
			require.Error(t, err)
			assert.True(t, core.IsCategory(err, core.ErrCatAgent))
			assert.Equal(t, core.CodeAgentFailed, core.GetCode(err))
			assert.Contains(t, err.Error(), tt.wantMsg+": ")
			assert.Contains(t, err.Error(), tt.wantCause)
		})
	}
}

func TestDecision_Decide(t *testing.T) {
	t.Parallel()
	report := testutil.StubReport(core.RecommendationReview)
	report.Timestamp = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	generator := testutil.NewFakeGenerator().WithResponses(testutil.Fenced(report))

	agent := NewDecision(Deps{Generator: generator, Clock: fixedClock})
	got, err := agent.Decide(context.Background(), testutil.StubFinancialOutput(), testutil.StubMarketOutput(), "Invest in Acme?")
	require.NoError(t, err)

	assert.Equal(t, core.RecommendationReview, got.Recommendation)
	assert.Equal(t, fixedNow, got.Timestamp, "model timestamp must be replaced")
	assert.Len(t, got.RiskMitigation, 3)

	calls := generator.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.3, calls[0].Options.Temperature)
	assert.Equal(t, 2500, calls[0].Options.MaxOutputTokens)
	prompt := calls[0].Prompt()
	assert.Contains(t, prompt, "Investment Query: Invest in Acme?")
	assert.Contains(t, prompt, "- EBITDA: 15")
	assert.Contains(t, prompt, "- Financial Risks: Customer concentration, Currency exposure")
	assert.Contains(t, prompt, `"financialAnalysis": {"ebitda":15,"debtRatio":0.35`)
	assert.Contains(t, prompt, `"growthRate":"12% CAGR"`)
	assert.Contains(t, prompt, "PROCEED: Strong financials, manageable risks, clear growth path")
}

func TestDecision_AbsentMetricsRenderNA(t *testing.T) {
	t.Parallel()
	generator := testutil.NewFakeGenerator()
	agent := NewDecision(Deps{Generator: generator})

	fin := core.NewAgentOutput(FinancialAgentName, &core.FinancialAnalysis{CashFlow: core.CashFlowUnknown})
	_, err := agent.Decide(context.Background(), fin, testutil.StubMarketOutput(), "q")
	require.NoError(t, err)
	prompt := generator.Calls()[0].Prompt()
	assert.Contains(t, prompt, "- EBITDA: N/A")
	assert.Contains(t, prompt, "- Debt Ratio: N/A")
}

func TestDecision_ZeroMetricsRenderAsNumbers(t *testing.T) {
	t.Parallel()
	generator := testutil.NewFakeGenerator()
	agent := NewDecision(Deps{Generator: generator})

	zero := 0.0
	fin := core.NewAgentOutput(FinancialAgentName, &core.FinancialAnalysis{
		EBITDA:    &zero,
		DebtRatio: &zero,
		CashFlow:  core.CashFlowStrong,
	})
	_, err := agent.Decide(context.Background(), fin, testutil.StubMarketOutput(), "q")
	require.NoError(t, err)
	prompt := generator.Calls()[0].Prompt()
	assert.Contains(t, prompt, "- EBITDA: 0\n")
	assert.Contains(t, prompt, "- Debt Ratio: 0\n")
}

func TestDecision_AcceptsEchoedPlaceholders(t *testing.T) {
	t.Parallel()
	generator := testutil.NewFakeGenerator().WithResponses(`{"recommendation":"REVIEW","summary":"thin data",` +
		`"financialAnalysis":{"ebitda":"N/A","debtRatio":"unknown","risks":"leverage"},` +
		`"riskMitigation":[{"risk":"leverage","mitigation":"covenants","priority":"HIGH"}],` +
		`"citations":[{"source":"Financial Report","page":4,"quote":"q"}]}`)
	agent := NewDecision(Deps{Generator: generator, Clock: fixedClock})

	report, err := agent.Decide(context.Background(), testutil.StubFinancialOutput(), testutil.StubMarketOutput(), "q")
	require.NoError(t, err)
	assert.Equal(t, core.RecommendationReview, report.Recommendation)
	assert.Nil(t, report.FinancialAnalysis.EBITDA)
	assert.Equal(t, []string{"leverage"}, report.FinancialAnalysis.Risks)
}

func TestFinancialAgent_LooseMetrics(t *testing.T) {
	t.Parallel()
	fifteen := 15.0

	tests := []struct {
		name     string
		response string
		ebitda   *float64
		risks    []string
	}{
		{"placeholder", `{"ebitda":"N/A","debtRatio":"unknown","cashFlow":"weak","risks":[]}`, nil, []string{}},
		{"percent string", `{"ebitda":"15%","cashFlow":"strong"}`, &fifteen, nil},
		{"bare risk", "```json\n{\"ebitda\":15,\"risks\":\"high leverage\"}\n```", &fifteen, []string{"high leverage"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			generator := testutil.NewFakeGenerator().WithResponses(tt.response)
			agent := NewFinancial(Deps{Retriever: testutil.NewFakeRetriever(), Generator: generator})

			out, err := agent.Run(context.Background(), core.NewAgentContext("q", nil, nil))
			require.NoError(t, err)
			fa, ok := out.Financial()
			require.True(t, ok)
			assert.Equal(t, tt.ebitda, fa.EBITDA)
			assert.Nil(t, fa.DebtRatio)
			assert.Equal(t, tt.risks, fa.Risks)
		})
	}
}

func TestDecision_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		generator core.Generator
		fin, mkt  *core.AgentOutput
		wantCause string
	}{
		{"generation fails", testutil.NewFakeGenerator().WithError(errors.New("503")), testutil.StubFinancialOutput(), testutil.StubMarketOutput(), "503"},
		{"unparseable", testutil.NewFakeGenerator().WithResponses("PROCEED!"), testutil.StubFinancialOutput(), testutil.StubMarketOutput(), "failed to extract JSON"},
		{"missing financial", testutil.NewFakeGenerator(), nil, testutil.StubMarketOutput(), "financial input is missing"},
		{"swapped inputs", testutil.NewFakeGenerator(), testutil.StubMarketOutput(), testutil.StubFinancialOutput(), "financial input is a market result"},
		{"no generator", nil, testutil.StubFinancialOutput(), testutil.StubMarketOutput(), "missing a generator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := NewDecision(Deps{Generator: tt.generator})
			report, err := agent.Decide(context.Background(), tt.fin, tt.mkt, "q")
			assert.Nil(t, report)
			require.Error(t, err)
			assert.Equal(t, core.CodeSynthesisFailed, core.GetCode(err))
			assert.Contains(t, err.Error(), "Decision Agent failed: ")
			assert.Contains(t, err.Error(), tt.wantCause)
		})
	}
}

func TestDecision_RunReadsPreviousOutputs(t *testing.T) {
	t.Parallel()
	agent := NewDecision(Deps{Generator: testutil.NewFakeGenerator(), Clock: fixedClock})
	actx := core.NewAgentContext("q", nil, map[string]*core.AgentOutput{
		NameFinancial: testutil.StubFinancialOutput(),
		NameMarket:    testutil.StubMarketOutput(),
	})

	out, err := agent.Run(context.Background(), actx)
	require.NoError(t, err)
	assert.Equal(t, DecisionAgentName, out.AgentName)
	report, ok := out.Report()
	require.True(t, ok)
	assert.Equal(t, core.RecommendationProceed, report.Recommendation)
	assert.Equal(t, fixedNow, out.Timestamp)
	assert.Len(t, out.Citations, 2)
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()
	reg := mcp.NewRegistry()
	RegisterAll(reg, Deps{Retriever: testutil.NewFakeRetriever(), Generator: testutil.NewFakeGenerator()})
	assert.Equal(t, []string{NameDecision, NameFinancial, NameMarket}, reg.RegisteredAgents())

	out, err := reg.Invoke(context.Background(), NameFinancial, core.NewAgentContext("q", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, FinancialAgentName, out.AgentName)
}

func TestPromptRenderer_UnknownTemplate(t *testing.T) {
	t.Parallel()
	r, err := NewPromptRenderer()
	require.NoError(t, err)
	_, err = r.render("missing", nil)
	assert.Error(t, err)
}
