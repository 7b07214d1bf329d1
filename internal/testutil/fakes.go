// Package testutil provides fakes for the generation and retrieval ports and
// canned agent outputs shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

// GenerateCall records one Complete call.
type GenerateCall struct {
	Messages []core.Message
	Options  core.GenerateOptions
}

// Prompt returns the content of the last message.
func (c GenerateCall) Prompt() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

// FakeGenerator implements core.Generator for testing.
type FakeGenerator struct {
	mu           sync.Mutex
	completeFunc func(context.Context, []core.Message, core.GenerateOptions) (string, error)
	responses    []string
	calls        []GenerateCall
}

// NewFakeGenerator creates a generator that answers with the canned
// due diligence responses.
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{completeFunc: CannedResponder}
}

// Complete records the call and returns the configured response.
func (g *FakeGenerator) Complete(ctx context.Context, messages []core.Message, opts core.GenerateOptions) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, GenerateCall{
		Messages: append([]core.Message(nil), messages...),
		Options:  opts,
	})
	if len(g.responses) > 0 {
		resp := g.responses[0]
		if len(g.responses) > 1 {
			g.responses = g.responses[1:]
		}
		g.mu.Unlock()
		return resp, nil
	}
	fn := g.completeFunc
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fn(ctx, messages, opts)
}

// WithResponses queues fixed responses. The last one repeats.
func (g *FakeGenerator) WithResponses(responses ...string) *FakeGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = append([]string(nil), responses...)
	return g
}

// WithError makes every call fail with err.
func (g *FakeGenerator) WithError(err error) *FakeGenerator {
	return g.WithFunc(func(context.Context, []core.Message, core.GenerateOptions) (string, error) {
		return "", err
	})
}

// WithFunc sets a custom completion function.
func (g *FakeGenerator) WithFunc(fn func(context.Context, []core.Message, core.GenerateOptions) (string, error)) *FakeGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completeFunc = fn
	g.responses = nil
	return g
}

// Calls returns a copy of the recorded calls.
func (g *FakeGenerator) Calls() []GenerateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GenerateCall(nil), g.calls...)
}

// CallCount returns the number of recorded calls.
func (g *FakeGenerator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// SearchCall records one Search call.
type SearchCall struct {
	Query  string
	TopK   int
	Filter core.Filter
}

// FakeRetriever implements core.Retriever with matches keyed by document type.
type FakeRetriever struct {
	mu     sync.Mutex
	byType map[string][]core.Match
	err    error
	calls  []SearchCall
}

// NewFakeRetriever creates an empty retriever.
func NewFakeRetriever() *FakeRetriever {
	return &FakeRetriever{byType: make(map[string][]core.Match)}
}

// WithMatches sets the matches returned for a document type filter.
func (r *FakeRetriever) WithMatches(docType core.DocumentType, matches ...core.Match) *FakeRetriever {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[string(docType)] = matches
	return r
}

// WithError makes every search fail with err.
func (r *FakeRetriever) WithError(err error) *FakeRetriever {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	return r
}

// Search returns up to topK matches for the filter's type.
func (r *FakeRetriever) Search(_ context.Context, query string, topK int, filter core.Filter) ([]core.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, SearchCall{Query: query, TopK: topK, Filter: filter})
	if r.err != nil {
		return nil, r.err
	}
	matches := r.byType[filter["type"]]
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return append([]core.Match(nil), matches...), nil
}

// Calls returns a copy of the recorded searches.
func (r *FakeRetriever) Calls() []SearchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SearchCall(nil), r.calls...)
}

// MemoryIndex is an in-memory core.Index. Every stored document matches any
// query for its type with score 1.
type MemoryIndex struct {
	mu        sync.Mutex
	docs      map[string]core.Document
	upsertErr error
	deleted   []string
	closed    bool
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]core.Document)}
}

// WithUpsertError makes Upsert fail with err.
func (m *MemoryIndex) WithUpsertError(err error) *MemoryIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
	return m
}

// Upsert stores doc.
func (m *MemoryIndex) Upsert(_ context.Context, doc core.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.docs[doc.ID] = doc
	return nil
}

// Delete removes a document.
func (m *MemoryIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// Search returns stored documents of the filtered type, ordered by name.
func (m *MemoryIndex) Search(_ context.Context, _ string, topK int, filter core.Filter) ([]core.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []core.Match
	for _, doc := range m.docs {
		if t, ok := filter["type"]; ok && string(doc.Type) != t {
			continue
		}
		matches = append(matches, core.Match{
			ID:    doc.ID + "_p1",
			Score: 1,
			Metadata: core.MatchMetadata{
				Text:   doc.Content,
				Source: doc.Name,
				Page:   1,
				Name:   doc.Name,
				Type:   doc.Type,
			},
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Metadata.Source < matches[j].Metadata.Source })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Close marks the index closed.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Documents returns the stored documents ordered by name.
func (m *MemoryIndex) Documents() []core.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make([]core.Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs
}

// Deleted returns the IDs passed to Delete, in call order.
func (m *MemoryIndex) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// Canned citations carried by the stub outputs.
var (
	FinancialCitation = core.Citation{Source: "Financial Report", Page: core.PageRef(4), Quote: "EBITDA margin reached 15% in FY2024"}
	MarketCitation    = core.Citation{Source: "Business Plan", Page: core.PageRef(8), Quote: "The addressable market grows at 12% CAGR"}
)

// StubFinancialAnalysis returns a fully populated financial analysis.
func StubFinancialAnalysis() *core.FinancialAnalysis {
	ebitda, debt := 15.0, 0.35
	return &core.FinancialAnalysis{
		EBITDA:        &ebitda,
		DebtRatio:     &debt,
		CashFlow:      core.CashFlowStrong,
		Profitability: "Profitable for three consecutive years",
		Risks:         []string{"Customer concentration", "Currency exposure"},
		Citations:     []core.Citation{FinancialCitation},
	}
}

// StubMarketAnalysis returns a fully populated market analysis.
func StubMarketAnalysis() *core.MarketAnalysis {
	return &core.MarketAnalysis{
		GrowthRate:    "12% CAGR",
		Competition:   "moderate - three regional incumbents",
		MarketShare:   "8%",
		Opportunities: []string{"EU expansion"},
		Threats:       []string{"New low-cost entrants"},
		Citations:     []core.Citation{MarketCitation},
	}
}

// StubFinancialOutput wraps StubFinancialAnalysis as the financial agent would.
func StubFinancialOutput() *core.AgentOutput {
	return core.NewAgentOutput("FinancialAgent", StubFinancialAnalysis())
}

// StubMarketOutput wraps StubMarketAnalysis as the market agent would.
func StubMarketOutput() *core.AgentOutput {
	return core.NewAgentOutput("MarketAgent", StubMarketAnalysis())
}

// StubReport builds a report embedding both stub analyses and merging their
// citations.
func StubReport(rec core.Recommendation) *core.DueDiligenceReport {
	return &core.DueDiligenceReport{
		Recommendation:    rec,
		Summary:           "Solid financials and a growing market with manageable concentration risk.",
		FinancialAnalysis: *StubFinancialAnalysis(),
		MarketAnalysis:    *StubMarketAnalysis(),
		RiskMitigation: []core.RiskMitigation{
			{Risk: "Customer concentration", Mitigation: "Negotiate multi-year contracts with top clients", Priority: core.PriorityHigh},
			{Risk: "Currency exposure", Mitigation: "Hedge EUR revenue", Priority: core.PriorityMedium},
			{Risk: "New entrants", Mitigation: "Invest in brand and switching costs", Priority: core.PriorityLow},
		},
		Citations: []core.Citation{FinancialCitation, MarketCitation},
	}
}

// StubAgent returns an agent that always produces out.
func StubAgent(out *core.AgentOutput) core.Agent {
	return core.AgentFunc(func(context.Context, *core.AgentContext) (*core.AgentOutput, error) {
		return out, nil
	})
}

// FailingAgent returns an agent that always fails with err.
func FailingAgent(err error) core.Agent {
	return core.AgentFunc(func(context.Context, *core.AgentContext) (*core.AgentOutput, error) {
		return nil, err
	})
}

// Fenced wraps v as a ```json block surrounded by prose, the way chat models
// usually answer.
func Fenced(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("Here is the analysis.\n\n```json\n%s\n```\n", data)
}

// CannedResponder answers the financial, market and decision prompts with the
// stub analyses and a PROCEED report.
func CannedResponder(_ context.Context, messages []core.Message, _ core.GenerateOptions) (string, error) {
	prompt := GenerateCall{Messages: messages}.Prompt()
	switch {
	case strings.Contains(prompt, "senior investment analyst"):
		return Fenced(StubReport(core.RecommendationProceed)), nil
	case strings.Contains(prompt, "financial due diligence expert"):
		return Fenced(StubFinancialAnalysis()), nil
	case strings.Contains(prompt, "market research expert"):
		return Fenced(StubMarketAnalysis()), nil
	}
	return "", fmt.Errorf("no canned response for prompt %.40q", prompt)
}
