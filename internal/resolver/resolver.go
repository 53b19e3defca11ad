// Package resolver rewrites {% post_url %} placeholders into public paths.
//
// Resolution is the second phase of a build: it needs the complete, sealed
// collection so that a reference to a document loaded later never looks
// unresolved.
package resolver

import (
	"fmt"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/collection"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
)

var sourceExts = []string{".html", ".markdown", ".md"}

// PublicPather maps a document to the path it is published under.
type PublicPather interface {
	PublicPath(doc *models.Document) string
}

// Resolver resolves cross-references against one sealed collection.
type Resolver struct {
	index *collection.Index
	paths PublicPather
}

// New returns a Resolver over index. The index must be sealed.
func New(index *collection.Index, paths PublicPather) (*Resolver, error) {
	if !index.Sealed() {
		return nil, fmt.Errorf("resolver: collection must be sealed before resolving references")
	}
	return &Resolver{index: index, paths: paths}, nil
}

// Normalize cleans a post_url fragment: surrounding quotes, a leading slash
// and a trailing source extension are removed.
func Normalize(fragment string) string {
	f := strings.TrimSpace(fragment)
	f = strings.Trim(f, `"'`)
	f = strings.TrimPrefix(f, "/")
	for _, ext := range sourceExts {
		if strings.HasSuffix(f, ext) {
			f = strings.TrimSuffix(f, ext)
			break
		}
	}
	return f
}

// Target returns the single document fragment refers to.
func (r *Resolver) Target(fragment string) (*models.Document, error) {
	norm := Normalize(fragment)
	if norm == "" {
		return nil, &apperr.DocumentError{Field: "post_url", Err: fmt.Errorf("%w: empty fragment", apperr.ErrUnresolvedReference)}
	}
	matches := r.index.MatchSuffix(norm)
	switch len(matches) {
	case 0:
		return nil, &apperr.DocumentError{Reference: fragment, Err: apperr.ErrUnresolvedReference}
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = m.Path
		}
		return nil, &apperr.DocumentError{Reference: fragment, Candidates: candidates, Err: apperr.ErrAmbiguousReference}
	}
}

// Resolve substitutes every placeholder in doc's body. It returns the
// rewritten body and the reference edges it followed.
func (r *Resolver) Resolve(doc *models.Document) (string, []models.Reference, error) {
	var refs []models.Reference
	body, err := parser.ReplaceReferences(doc.Body, func(fragment string) (string, error) {
		target, err := r.Target(fragment)
		if err != nil {
			return "", err
		}
		refs = append(refs, models.Reference{Source: doc.Path, Fragment: fragment, Target: target.Path})
		return r.paths.PublicPath(target), nil
	})
	if err != nil {
		return "", nil, apperr.Wrap(doc.Path, err)
	}
	return body, refs, nil
}

// ResolveAll resolves every document in insertion order and stops at the
// first failure.
func (r *Resolver) ResolveAll() ([]models.Page, []models.Reference, error) {
	pages := make([]models.Page, 0, r.index.Len())
	var refs []models.Reference
	for doc := range r.index.All() {
		body, docRefs, err := r.Resolve(doc)
		if err != nil {
			return nil, nil, err
		}
		pages = append(pages, models.Page{
			Document:   doc,
			PublicPath: r.paths.PublicPath(doc),
			Body:       body,
		})
		refs = append(refs, docRefs...)
	}
	return pages, refs, nil
}
