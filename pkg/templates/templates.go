package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed *.yaml
var EmbeddedTemplates embed.FS

// TemplateLoader loads templates from both embedded files and optional user-supplied directory
type TemplateLoader struct {
	templates map[string]*ARGQueryTemplate
	order     []string
}

// NewTemplateLoader creates a new template loader and loads embedded templates
func NewTemplateLoader() (*TemplateLoader, error) {
	loader := &TemplateLoader{templates: make(map[string]*ARGQueryTemplate)}

	entries, err := EmbeddedTemplates.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		data, err := EmbeddedTemplates.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", entry.Name(), err)
		}
		if err := loader.add(entry.Name(), data); err != nil {
			return nil, err
		}
	}

	return loader, nil
}

// LoadUserTemplates loads templates from a directory. A user template with the
// same ID as an embedded one replaces it, which lets an operator adjust a query
// without rebuilding.
func (l *TemplateLoader) LoadUserTemplates(templateDir string) error {
	if templateDir == "" {
		return nil
	}

	dirInfo, err := os.Stat(templateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("template directory '%s' does not exist", templateDir)
		}
		return fmt.Errorf("failed to access template directory: %w", err)
	}
	if !dirInfo.IsDir() {
		return fmt.Errorf("'%s' is not a directory", templateDir)
	}

	files, err := filepath.Glob(filepath.Join(templateDir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to list template files: %w", err)
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", file, err)
		}
		if err := l.add(file, data); err != nil {
			return err
		}
	}

	return nil
}

func (l *TemplateLoader) add(name string, data []byte) error {
	var tmpl ARGQueryTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	if err := validateTemplate(&tmpl); err != nil {
		return fmt.Errorf("invalid template %s: %w", name, err)
	}
	if _, exists := l.templates[tmpl.ID]; !exists {
		l.order = append(l.order, tmpl.ID)
	}
	l.templates[tmpl.ID] = &tmpl
	return nil
}

// GetTemplates returns all loaded templates
func (l *TemplateLoader) GetTemplates() []*ARGQueryTemplate {
	out := make([]*ARGQueryTemplate, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.templates[id])
	}
	return out
}

// Get returns the template with the given ID.
func (l *TemplateLoader) Get(id string) (*ARGQueryTemplate, error) {
	tmpl, ok := l.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %q not found", id)
	}
	return tmpl, nil
}

// Render returns the template query with params substituted.
func (t *ARGQueryTemplate) Render(params QueryParams) (string, error) {
	parsed, err := template.New(t.ID).Option("missingkey=error").Parse(t.Query)
	if err != nil {
		return "", fmt.Errorf("failed to parse query of template %s: %w", t.ID, err)
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to render query of template %s: %w", t.ID, err)
	}
	return buf.String(), nil
}

// MissingColumns returns the entries of required that the template does not
// list under columns. Result columns are keyed by their projected name, so the
// comparison is exact.
func (t *ARGQueryTemplate) MissingColumns(required ...string) []string {
	declared := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		declared[c] = struct{}{}
	}
	var missing []string
	for _, r := range required {
		if _, ok := declared[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// validateTemplate performs basic validation of a template
func validateTemplate(template *ARGQueryTemplate) error {
	if template.ID == "" {
		return fmt.Errorf("template ID is required")
	}
	if template.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if template.Query == "" {
		return fmt.Errorf("template query is required")
	}
	return nil
}
