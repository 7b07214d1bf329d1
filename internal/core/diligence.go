package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Documents
// =============================================================================

// DocumentType classifies an admitted upload.
type DocumentType string

const (
	DocumentTypeFinancial    DocumentType = "financial"
	DocumentTypeBusinessPlan DocumentType = "business_plan"
	DocumentTypeOther        DocumentType = "other"
)

// ClassifyDocument infers the document type from its file name.
func ClassifyDocument(name string) DocumentType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "financial"):
		return DocumentTypeFinancial
	case strings.Contains(lower, "business"):
		return DocumentTypeBusinessPlan
	default:
		return DocumentTypeOther
	}
}

// Document is an admitted upload. It is never mutated after admission.
type Document struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Type       DocumentType `json:"type"`
	Content    string       `json:"content"`
	UploadedAt time.Time    `json:"uploadedAt"`
}

// =============================================================================
// Citations
// =============================================================================

// Citation points at the evidence behind a claim.
type Citation struct {
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
	Quote  string `json:"quote"`
}

// UnmarshalJSON accepts whole page numbers from 1, encoded as numbers or
// numeric strings. Anything else ("N/A", null, 4.7, -1) leaves the page unset.
func (c *Citation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Source string          `json:"source"`
		Page   json.RawMessage `json:"page"`
		Quote  string          `json:"quote"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Source = raw.Source
	c.Quote = raw.Quote
	c.Page = parsePage(raw.Page)
	return nil
}

func parsePage(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	n := parseNumber(raw)
	if n == nil || *n != math.Trunc(*n) || *n < 1 || *n > math.MaxInt32 {
		return nil
	}
	page := int(*n)
	return &page
}

// parseNumber reads a JSON number or a numeric string such as "15%" or
// " 0.35 ". Anything else ("unknown", "N/A", null) yields nil.
func parseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	return &n
}

// parseStringList reads a list of strings, accepting a bare string as a
// one-item list. null and "" yield nil.
func parseStringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return nil, nil
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// PageRef returns a pointer to page, for building citations inline.
func PageRef(page int) *int {
	return &page
}

// =============================================================================
// Agent results (tagged union)
// =============================================================================

// ResultKind tags the variant carried by an AgentOutput.
type ResultKind string

const (
	ResultKindFinancial ResultKind = "financial"
	ResultKindMarket    ResultKind = "market"
	ResultKindReport    ResultKind = "report"
)

// AgentResult is the agent-specific payload of an AgentOutput. The set of
// implementations is closed: FinancialAnalysis, MarketAnalysis and
// DueDiligenceReport.
type AgentResult interface {
	Kind() ResultKind
	ResultCitations() []Citation
	isAgentResult()
}

// CashFlow rates the cash position of the target company.
type CashFlow string

const (
	CashFlowStrong   CashFlow = "strong"
	CashFlowModerate CashFlow = "moderate"
	CashFlowWeak     CashFlow = "weak"
	CashFlowUnknown  CashFlow = "unknown"
)

// UnmarshalJSON normalizes free-form ratings; unrecognized values become unknown.
func (c *CashFlow) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*c = CashFlowUnknown
		return nil
	}
	switch v := CashFlow(strings.ToLower(strings.TrimSpace(s))); v {
	case CashFlowStrong, CashFlowModerate, CashFlowWeak:
		*c = v
	default:
		*c = CashFlowUnknown
	}
	return nil
}

// FinancialAnalysis is the financial agent's structured result.
type FinancialAnalysis struct {
	EBITDA        *float64   `json:"ebitda"`
	DebtRatio     *float64   `json:"debtRatio"`
	CashFlow      CashFlow   `json:"cashFlow"`
	Profitability string     `json:"profitability"`
	Risks         []string   `json:"risks"`
	Citations     []Citation `json:"citations"`
}

// UnmarshalJSON tolerates the loose shapes models produce: metrics given as
// numeric strings ("15%") or placeholders ("unknown", "N/A") and a single
// risk given as a bare string. Placeholders leave the metric unset.
func (f *FinancialAnalysis) UnmarshalJSON(data []byte) error {
	type alias FinancialAnalysis
	var raw struct {
		alias
		EBITDA    json.RawMessage `json:"ebitda"`
		DebtRatio json.RawMessage `json:"debtRatio"`
		Risks     json.RawMessage `json:"risks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	risks, err := parseStringList(raw.Risks)
	if err != nil {
		return fmt.Errorf("decoding risks: %w", err)
	}
	*f = FinancialAnalysis(raw.alias)
	f.EBITDA = parseNumber(raw.EBITDA)
	f.DebtRatio = parseNumber(raw.DebtRatio)
	f.Risks = risks
	return nil
}

func (*FinancialAnalysis) Kind() ResultKind             { return ResultKindFinancial }
func (f *FinancialAnalysis) ResultCitations() []Citation { return f.Citations }
func (*FinancialAnalysis) isAgentResult()               {}

// MarketAnalysis is the market agent's structured result.
type MarketAnalysis struct {
	GrowthRate    string     `json:"growthRate"`
	Competition   string     `json:"competition"`
	MarketShare   string     `json:"marketShare"`
	Opportunities []string   `json:"opportunities"`
	Threats       []string   `json:"threats"`
	Citations     []Citation `json:"citations"`
}

func (*MarketAnalysis) Kind() ResultKind             { return ResultKindMarket }
func (m *MarketAnalysis) ResultCitations() []Citation { return m.Citations }
func (*MarketAnalysis) isAgentResult()               {}

// Recommendation is the final investment call.
type Recommendation string

const (
	RecommendationProceed Recommendation = "PROCEED"
	RecommendationReview  Recommendation = "REVIEW"
	RecommendationReject  Recommendation = "REJECT"
)

// Recommendations lists the valid recommendation values in display order.
var Recommendations = []Recommendation{
	RecommendationProceed,
	RecommendationReview,
	RecommendationReject,
}

// Valid reports whether r is one of the enumerated recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationProceed, RecommendationReview, RecommendationReject:
		return true
	}
	return false
}

// Priority ranks a risk mitigation item.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// RiskMitigation pairs an identified risk with an actionable response.
type RiskMitigation struct {
	Risk       string   `json:"risk"`
	Mitigation string   `json:"mitigation"`
	Priority   Priority `json:"priority"`
}

// DueDiligenceReport is the terminal artifact of a pipeline run.
type DueDiligenceReport struct {
	Recommendation    Recommendation    `json:"recommendation"`
	Summary           string            `json:"summary"`
	FinancialAnalysis FinancialAnalysis `json:"financialAnalysis"`
	MarketAnalysis    MarketAnalysis    `json:"marketAnalysis"`
	RiskMitigation    []RiskMitigation  `json:"riskMitigation"`
	Citations         []Citation        `json:"citations"`
	Timestamp         time.Time         `json:"timestamp"`
}

func (*DueDiligenceReport) Kind() ResultKind             { return ResultKindReport }
func (r *DueDiligenceReport) ResultCitations() []Citation { return r.Citations }
func (*DueDiligenceReport) isAgentResult()               {}

// UnmarshalJSON tolerates timestamps that are not RFC 3339; the decision
// agent replaces the timestamp anyway.
func (r *DueDiligenceReport) UnmarshalJSON(data []byte) error {
	type alias DueDiligenceReport
	var raw struct {
		alias
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = DueDiligenceReport(raw.alias)
	r.Timestamp = time.Time{}
	var s string
	if len(raw.Timestamp) > 0 && json.Unmarshal(raw.Timestamp, &s) == nil {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			r.Timestamp = ts
		}
	}
	return nil
}

// =============================================================================
// Agent input / output
// =============================================================================

// AgentContext is the input to every agent. Construct it with NewAgentContext;
// it is not modified afterwards.
type AgentContext struct {
	Query           string
	Documents       []Document
	PreviousOutputs map[string]*AgentOutput
}

// NewAgentContext builds an AgentContext holding its own copies of the
// document list and previous outputs.
func NewAgentContext(query string, docs []Document, previous map[string]*AgentOutput) *AgentContext {
	ctx := &AgentContext{
		Query:     query,
		Documents: append([]Document(nil), docs...),
	}
	if len(previous) > 0 {
		ctx.PreviousOutputs = make(map[string]*AgentOutput, len(previous))
		for k, v := range previous {
			ctx.PreviousOutputs[k] = v
		}
	}
	return ctx
}

// Previous returns the output a named upstream agent produced, if any.
func (c *AgentContext) Previous(name string) (*AgentOutput, bool) {
	if c == nil || c.PreviousOutputs == nil {
		return nil, false
	}
	out, ok := c.PreviousOutputs[name]
	return out, ok && out != nil
}

// AgentOutput is produced exactly once per successful agent invocation.
type AgentOutput struct {
	AgentName string
	Result    AgentResult
	Citations []Citation
	Timestamp time.Time
}

// NewAgentOutput wraps a result, copying its citations (never nil).
func NewAgentOutput(agentName string, result AgentResult) *AgentOutput {
	citations := []Citation{}
	if result != nil && len(result.ResultCitations()) > 0 {
		citations = append(citations, result.ResultCitations()...)
	}
	return &AgentOutput{
		AgentName: agentName,
		Result:    result,
		Citations: citations,
		Timestamp: time.Now().UTC(),
	}
}

// Financial returns the financial variant of the result.
func (o *AgentOutput) Financial() (*FinancialAnalysis, bool) {
	if o == nil {
		return nil, false
	}
	f, ok := o.Result.(*FinancialAnalysis)
	return f, ok && f != nil
}

// Market returns the market variant of the result.
func (o *AgentOutput) Market() (*MarketAnalysis, bool) {
	if o == nil {
		return nil, false
	}
	m, ok := o.Result.(*MarketAnalysis)
	return m, ok && m != nil
}

// Report returns the report variant of the result.
func (o *AgentOutput) Report() (*DueDiligenceReport, bool) {
	if o == nil {
		return nil, false
	}
	r, ok := o.Result.(*DueDiligenceReport)
	return r, ok && r != nil
}

type agentOutputJSON struct {
	AgentName string          `json:"agentName"`
	Kind      ResultKind      `json:"kind,omitempty"`
	Result    json.RawMessage `json:"result"`
	Citations []Citation      `json:"citations"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON encodes the result together with its kind tag.
func (o AgentOutput) MarshalJSON() ([]byte, error) {
	out := agentOutputJSON{
		AgentName: o.AgentName,
		Citations: o.Citations,
		Timestamp: o.Timestamp,
		Result:    json.RawMessage("null"),
	}
	if out.Citations == nil {
		out.Citations = []Citation{}
	}
	if o.Result != nil {
		payload, err := json.Marshal(o.Result)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s result: %w", o.Result.Kind(), err)
		}
		out.Kind = o.Result.Kind()
		out.Result = payload
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the result variant selected by the kind tag.
func (o *AgentOutput) UnmarshalJSON(data []byte) error {
	var raw agentOutputJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.AgentName = raw.AgentName
	o.Citations = raw.Citations
	o.Timestamp = raw.Timestamp
	o.Result = nil

	var result AgentResult
	switch raw.Kind {
	case ResultKindFinancial:
		result = &FinancialAnalysis{}
	case ResultKindMarket:
		result = &MarketAnalysis{}
	case ResultKindReport:
		result = &DueDiligenceReport{}
	case "":
		return nil
	default:
		return fmt.Errorf("unknown result kind %q", raw.Kind)
	}
	if err := json.Unmarshal(raw.Result, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", raw.Kind, err)
	}
	o.Result = result
	return nil
}
