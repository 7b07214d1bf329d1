package agents

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"text/template"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// Template names.
const (
	promptFinancial = "financial"
	promptMarket    = "market"
	promptDecision  = "decision"
)

// PromptRenderer renders agent prompts from the embedded templates.
type PromptRenderer struct {
	templates map[string]*template.Template
}

// NewPromptRenderer parses every embedded template.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{templates: make(map[string]*template.Template)}

	err := fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}
		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(path, "prompts/"), ".md.tmpl")
		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return r, nil
}

// defaultPrompts is shared by agents built without an explicit renderer.
var defaultPrompts = func() *PromptRenderer {
	r, err := NewPromptRenderer()
	if err != nil {
		panic(err)
	}
	return r
}()

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
		"orNA": func(v *float64) string {
			if v == nil {
				return "N/A"
			}
			return strconv.FormatFloat(*v, 'f', -1, 64)
		},
	}
}

// leafPromptParams feeds the financial and market templates.
type leafPromptParams struct {
	Query    string
	Evidence string
}

// decisionPromptParams feeds the decision template.
type decisionPromptParams struct {
	Query         string
	Financial     any
	Market        any
	FinancialJSON string
	MarketJSON    string
	Timestamp     string
}

func (r *PromptRenderer) render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}
