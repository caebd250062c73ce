// Package templates holds prompt skeletons that seed skill generation.
// Builtin templates cover common shapes; user templates are markdown files
// with YAML frontmatter (name, description) living in the templates
// directory, taking precedence over builtins of the same name.
package templates

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"github.com/autoskill-ai/autoskill/pkg/logger"
)

// Template is one named prompt skeleton.
type Template struct {
	Name        string
	Description string
	Content     string
}

var builtins = []Template{
	{
		Name:        "base_skill",
		Description: "Base template for general-purpose skills",
		Content: `# Base Skill Template

Core requirements:
1. The code must contain an execute function that receives a parameters dict
2. The return value must be {"success": bool, "result": any}
3. Use compatible Python 3.8+ syntax
4. Keep the code concise and self-contained
`,
	},
	{
		Name:        "data_analysis",
		Description: "Template for data-analysis skills",
		Content: `# Data Analysis Skill Template

Core requirements:
1. Support basic data loading and preprocessing
2. Generate small synthetic datasets instead of downloading real ones
3. Keep data sizes small so execution finishes quickly
4. Prefer pandas and numpy for data handling
`,
	},
}

// Registry resolves template names to skeleton content.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry builds a registry from builtins plus any markdown templates
// found under dir. An empty dir loads builtins only. Unreadable template
// files are skipped with a warning, not fatal.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{templates: make(map[string]Template)}
	for _, t := range builtins {
		r.templates[t.Name] = t
	}

	if dir == "" {
		return r, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, errors.Wrap(err, "failed to read templates directory")
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		t, err := loadTemplate(path)
		if err != nil {
			logger.L.WithError(err).WithField("path", path).Warn("skipping unreadable template")
			continue
		}
		r.templates[t.Name] = *t
	}
	return r, nil
}

// Get returns the template with the given name.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Register adds or replaces a template at runtime.
func (r *Registry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = t
}

// List returns all templates sorted by name.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// loadTemplate parses a markdown template file with YAML frontmatter.
func loadTemplate(path string) (*Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read template file")
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse template markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.New("missing frontmatter")
	}
	name, _ := metaData["name"].(string)
	description, _ := metaData["description"].(string)
	if name == "" {
		return nil, errors.New("template name is required in frontmatter")
	}

	return &Template{
		Name:        name,
		Description: description,
		Content:     extractBody(string(content)),
	}, nil
}

// extractBody strips the YAML frontmatter block and returns the body.
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}
