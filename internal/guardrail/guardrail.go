// Package guardrail validates and sanitizes text at the pipeline trust
// boundaries: the user query, uploaded documents and the final report.
//
// Sanitization is total and never fails. Validation gates return
// *core.DomainError values in the guardrail category so callers can tell a
// contract violation apart from a downstream parse error.
package guardrail

import (
	"encoding/json"
	"fmt"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

// Default limits.
const (
	DefaultMaxQueryLength = 1000
	DefaultMaxDocumentMB  = 10
)

// DefaultKeywords is the curated list of investment-domain terms.
var DefaultKeywords = []string{
	"invest",
	"investment",
	"due diligence",
	"company",
	"business",
	"financial",
	"market",
	"analysis",
	"opportunity",
}

// DefaultAllowedTypes lists the admissible document media types.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Policy holds the tunable limits of the guardrails.
type Policy struct {
	MaxQueryLength int
	MaxDocumentMB  int
	Keywords       []string
	AllowedTypes   []string
}

// DefaultPolicy returns the policy used by the package-level functions.
func DefaultPolicy() Policy {
	return Policy{
		MaxQueryLength: DefaultMaxQueryLength,
		MaxDocumentMB:  DefaultMaxDocumentMB,
		Keywords:       append([]string(nil), DefaultKeywords...),
		AllowedTypes:   append([]string(nil), DefaultAllowedTypes...),
	}
}

// File describes an uploaded document before admission.
type File struct {
	Name      string
	MediaType string
	Size      int64
}

var (
	scriptBlock    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	iframeBlock    = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>`)
	strayTag       = regexp.MustCompile(`(?i)</?(?:script|iframe)\b[^>]*>`)
	javascriptURI  = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandler   = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	sanitizerRules = []*regexp.Regexp{scriptBlock, iframeBlock, strayTag, javascriptURI, eventHandler}
)

// SanitizeInput strips script and iframe elements, javascript: URIs and
// inline event handlers, then trims whitespace. Removal can expose a new
// match, so rules are applied until the text stops changing.
func SanitizeInput(text string) string {
	out := strings.TrimSpace(text)
	for {
		next := out
		for _, re := range sanitizerRules {
			next = re.ReplaceAllString(next, "")
		}
		next = strings.TrimSpace(next)
		if next == out {
			return out
		}
		out = next
	}
}

// ValidateInput checks the query against the default policy.
func ValidateInput(text string) error {
	return DefaultPolicy().ValidateInput(text)
}

// ValidateInput fails when the query is blank or longer than the policy
// allows. Length is counted in characters, not bytes.
func (p Policy) ValidateInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return core.ErrGuardrail(core.CodeEmptyQuery, "query cannot be empty")
	}
	if n := utf8.RuneCountInString(text); n > p.maxQueryLength() {
		return core.ErrGuardrail(core.CodeQueryTooLong,
			fmt.Sprintf("query exceeds maximum length of %d characters", p.maxQueryLength())).
			WithDetail("length", n)
	}
	return nil
}

// HasInvestmentContext reports whether the query mentions any default keyword.
func HasInvestmentContext(text string) bool {
	return DefaultPolicy().HasInvestmentContext(text)
}

// HasInvestmentContext reports whether the query mentions any policy keyword.
func (p Policy) HasInvestmentContext(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range p.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// InputWarnings returns advisory findings for a query that passed
// ValidateInput. Warnings never block the pipeline.
func (p Policy) InputWarnings(text string) []string {
	if !p.HasInvestmentContext(text) {
		return []string{"query may not be investment-related"}
	}
	return nil
}

// ValidateDocument checks an upload against the default policy with the given
// size cap in megabytes.
func ValidateDocument(f File, maxSizeMB int) error {
	p := DefaultPolicy()
	p.MaxDocumentMB = maxSizeMB
	return p.ValidateDocument(f)
}

// ValidateDocument fails for media types outside the allow-list and for files
// larger than the size cap. Media type parameters are ignored.
func (p Policy) ValidateDocument(f File) error {
	mediaType := normalizeMediaType(f.MediaType)
	if !p.allows(mediaType) {
		return core.ErrGuardrail(core.CodeUnsupportedType,
			"invalid file type, only PDF, TXT, DOC and DOCX are allowed").
			WithDetail("file", f.Name).
			WithDetail("type", f.MediaType)
	}
	limit := int64(p.maxDocumentMB()) * 1024 * 1024
	if f.Size > limit {
		return core.ErrGuardrail(core.CodeFileTooLarge,
			fmt.Sprintf("file size exceeds %dMB limit", p.maxDocumentMB())).
			WithDetail("file", f.Name).
			WithDetail("size", f.Size)
	}
	return nil
}

func normalizeMediaType(raw string) string {
	if mt, _, err := mime.ParseMediaType(raw); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func (p Policy) allows(mediaType string) bool {
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(t, mediaType) {
			return true
		}
	}
	return false
}

func (p Policy) maxQueryLength() int {
	if p.MaxQueryLength <= 0 {
		return DefaultMaxQueryLength
	}
	return p.MaxQueryLength
}

func (p Policy) maxDocumentMB() int {
	if p.MaxDocumentMB <= 0 {
		return DefaultMaxDocumentMB
	}
	return p.MaxDocumentMB
}

// requiredOutputFields are checked in this order and reported together.
var requiredOutputFields = []string{"recommendation", "summary", "riskMitigation", "citations"}

// ValidateOutput checks that text is a well-formed due diligence report.
func ValidateOutput(text string) error {
	_, err := ParseOutput(text)
	return err
}

// ParseOutput validates text as a due diligence report and returns it decoded.
func ParseOutput(text string) (*core.DueDiligenceReport, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.ErrGuardrail(core.CodeEmptyOutput, "output cannot be empty")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		ge := core.ErrGuardrail(core.CodeMalformedJSON, "invalid JSON output")
		if err != nil {
			ge = ge.WithCause(err)
		}
		return nil, ge
	}

	var missing []string
	for _, name := range requiredOutputFields {
		if isEmptyField(fields[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, core.ErrGuardrail(core.CodeMissingFields,
			"output missing required fields: "+strings.Join(missing, ", ")).
			WithDetail("fields", missing)
	}

	var rec string
	if err := json.Unmarshal(fields["recommendation"], &rec); err != nil || !core.Recommendation(rec).Valid() {
		return nil, core.ErrGuardrail(core.CodeInvalidRecommendation,
			fmt.Sprintf("invalid recommendation %s, must be one of: %s",
				string(fields["recommendation"]), joinRecommendations())).
			WithDetail("recommendation", string(fields["recommendation"]))
	}

	var report core.DueDiligenceReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return nil, core.ErrGuardrail(core.CodeMalformedJSON, "invalid JSON output").WithCause(err)
	}
	return &report, nil
}

// isEmptyField reports a missing field: absent, null, false, zero, a blank
// string or an empty array.
func isEmptyField(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	}
	return false
}

func joinRecommendations() string {
	names := make([]string, len(core.Recommendations))
	for i, r := range core.Recommendations {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

var sensitivePatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"Credit Card", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
	{"Email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
}

// CheckSensitiveData returns one advisory warning per kind of personal data
// found in text. It never fails.
func CheckSensitiveData(text string) []string {
	var warnings []string
	for _, p := range sensitivePatterns {
		if p.re.MatchString(text) {
			warnings = append(warnings, fmt.Sprintf("Potential %s detected in output", p.name))
		}
	}
	return warnings
}
