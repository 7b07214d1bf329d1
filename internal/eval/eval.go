// Package eval scores rendered due diligence reports against regression
// scenarios. A scenario passes when each of its criteria occurs in the report
// text, ignoring case.
package eval

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/fsutil"
)

//go:embed scenarios.yaml
var defaultScenarios []byte

// Scenario is one regression check.
type Scenario struct {
	ID           int      `yaml:"id" json:"id"`
	Scenario     string   `yaml:"scenario" json:"scenario"`
	ExpectedRisk string   `yaml:"expected_risk" json:"expected_risk"`
	PassCriteria []string `yaml:"pass_criteria" json:"pass_criteria"`
}

// Result is the outcome of one scenario.
type Result struct {
	ScenarioID int      `json:"scenarioId"`
	Passed     bool     `json:"passed"`
	Details    string   `json:"details"`
	Matched    []string `json:"matched,omitempty"`
	Missing    []string `json:"missing,omitempty"`
}

// Suite is an ordered set of scenarios.
type Suite struct {
	scenarios []Scenario
}

// Parse decodes scenarios from YAML.
func Parse(data []byte) (*Suite, error) {
	var scenarios []Scenario
	if err := yaml.Unmarshal(data, &scenarios); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "parsing scenarios").WithCause(err)
	}
	seen := make(map[int]bool, len(scenarios))
	for _, s := range scenarios {
		if seen[s.ID] {
			return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("duplicate scenario id %d", s.ID))
		}
		if len(s.PassCriteria) == 0 {
			return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("scenario %d has no pass criteria", s.ID))
		}
		seen[s.ID] = true
	}
	return &Suite{scenarios: scenarios}, nil
}

// Load reads scenarios from a YAML file.
func Load(path string) (*Suite, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenarios: %w", err)
	}
	return Parse(data)
}

// LoadDefault returns the built-in scenarios.
func LoadDefault() *Suite {
	s, err := Parse(defaultScenarios)
	if err != nil {
		panic(fmt.Sprintf("built-in scenarios: %v", err))
	}
	return s
}

// Scenarios returns a copy of the scenarios in file order.
func (s *Suite) Scenarios() []Scenario {
	return append([]Scenario(nil), s.scenarios...)
}

// Scenario looks up a scenario by id.
func (s *Suite) Scenario(id int) (Scenario, bool) {
	for _, sc := range s.scenarios {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scenario{}, false
}

// Run evaluates output against one scenario.
func (s *Suite) Run(output string, id int) (Result, error) {
	sc, ok := s.Scenario(id)
	if !ok {
		return Result{}, core.ErrNotFound("scenario", fmt.Sprint(id))
	}

	lower := strings.ToLower(output)
	res := Result{ScenarioID: id}
	for _, c := range sc.PassCriteria {
		if strings.Contains(lower, strings.ToLower(c)) {
			res.Matched = append(res.Matched, c)
		} else {
			res.Missing = append(res.Missing, c)
		}
	}
	res.Passed = len(res.Missing) == 0
	if res.Passed {
		res.Details = "✓ All criteria passed: " + strings.Join(res.Matched, ", ")
	} else {
		res.Details = fmt.Sprintf("✗ Failed criteria: %s. Passed: %s",
			strings.Join(res.Missing, ", "), strings.Join(res.Matched, ", "))
	}
	return res, nil
}

// RunAll evaluates output against every scenario, in order.
func (s *Suite) RunAll(output string) []Result {
	results := make([]Result, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		res, _ := s.Run(output, sc.ID)
		results = append(results, res)
	}
	return results
}

// Passed counts passing results.
func Passed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}

// Report renders results as markdown.
func (s *Suite) Report(results []Result) string {
	passed, total := Passed(results), len(results)
	pct := 0.0
	if total > 0 {
		pct = float64(passed) / float64(total) * 100
	}

	var b strings.Builder
	b.WriteString("# Evaluation Report\n\n")
	fmt.Fprintf(&b, "**Overall Score:** %d/%d (%.1f%%)\n\n", passed, total, pct)
	for _, r := range results {
		status := "✓ PASS"
		if !r.Passed {
			status = "✗ FAIL"
		}
		sc, _ := s.Scenario(r.ScenarioID)
		fmt.Fprintf(&b, "## Scenario %d: %s\n", r.ScenarioID, status)
		fmt.Fprintf(&b, "**Description:** %s\n", sc.Scenario)
		fmt.Fprintf(&b, "**Expected Risk:** %s\n", sc.ExpectedRisk)
		fmt.Fprintf(&b, "**Result:** %s\n\n", r.Details)
	}
	return b.String()
}
