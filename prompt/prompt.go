package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	errorskg "github.com/sweetpotato0/coverwise/errors"
)

// funcs are available to every template.
var funcs = template.FuncMap{
	"join": strings.Join,
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	},
	"trim": strings.TrimSpace,
}

// Template represents a prompt template with variables
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate creates a new prompt template
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// MustTemplate is NewTemplate for templates known at compile time.
func MustTemplate(name, content string) *Template {
	t, err := NewTemplate(name, content)
	if err != nil {
		panic(err)
	}
	return t
}

// Render renders the template with the given data
func (t *Template) Render(data any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Manager is a named set of prompt templates. Registering a name again
// replaces the earlier template, which is how configured prompt files
// override the built-in ones.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates a new prompt manager
func NewManager() *Manager {
	return &Manager{
		templates: make(map[string]*Template),
	}
}

// Register adds a template, replacing any template with the same name.
func (m *Manager) Register(tmpl *Template) error {
	if tmpl == nil || tmpl.Name == "" {
		return fmt.Errorf("template name cannot be empty: %w", errorskg.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tmpl.Name] = tmpl
	return nil
}

// RegisterString registers a template from string content
func (m *Manager) RegisterString(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	return m.Register(tmpl)
}

// RegisterFile registers the template stored at path under name.
func (m *Manager) RegisterFile(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prompt template %s: %w", path, err)
	}
	return m.RegisterString(name, string(data))
}

// Get retrieves a template by name
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("prompt template %s: %w", name, errorskg.ErrNotFound)
	}
	return tmpl, nil
}

// Render renders a template by name
func (m *Manager) Render(name string, data any) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(data)
}
