// Package layout holds the set of templates the rendering layer understands.
// It replaces implicit template-engine state with configuration handed to
// the build and the renderer.
package layout

import (
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// Registry maps layout names to template identifiers.
type Registry struct {
	templates map[string]string
}

// NewRegistry builds a registry from name -> template pairs. An empty
// template means the renderer resolves the name itself.
func NewRegistry(templates map[string]string) *Registry {
	r := &Registry{templates: make(map[string]string, len(templates))}
	for name, tmpl := range templates {
		r.templates[name] = tmpl
	}
	return r
}

// Names returns the registered layout names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.templates))
	for name := range r.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Template returns the template registered for name.
func (r *Registry) Template(name string) (string, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Validate checks that doc names a registered layout.
func (r *Registry) Validate(doc *models.Document) error {
	names := r.Names()
	allowed := make([]interface{}, len(names))
	for i, n := range names {
		allowed[i] = n
	}
	if err := validation.Validate(doc.Layout, validation.Required, validation.In(allowed...)); err != nil {
		return &apperr.DocumentError{
			Path:  doc.Path,
			Field: "layout",
			Err:   fmt.Errorf("%w %q: %v", apperr.ErrUnknownLayout, doc.Layout, err),
		}
	}
	return nil
}
