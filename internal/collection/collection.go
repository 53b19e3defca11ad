// Package collection holds every document of one build pass, keyed by path.
//
// An Index is written during the load phase and sealed before references
// are resolved; after Seal it is read-only and safe to share between
// goroutines.
package collection

import (
	"fmt"
	"iter"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// Index maps document paths to documents, remembering insertion order.
type Index struct {
	byPath map[string]*models.Document
	order  []*models.Document
	sealed bool
}

// New returns an empty, unsealed index.
func New() *Index {
	return &Index{byPath: make(map[string]*models.Document)}
}

// Insert adds doc. It fails with ErrDuplicatePath if the path is taken and
// with ErrSealed once the index has been sealed.
func (x *Index) Insert(doc *models.Document) error {
	if x.sealed {
		return &apperr.DocumentError{Path: doc.Path, Err: apperr.ErrSealed}
	}
	if _, ok := x.byPath[doc.Path]; ok {
		return &apperr.DocumentError{Path: doc.Path, Field: "path", Err: apperr.ErrDuplicatePath}
	}
	x.byPath[doc.Path] = doc
	x.order = append(x.order, doc)
	return nil
}

// Seal ends the load phase.
func (x *Index) Seal() {
	x.sealed = true
}

// Sealed reports whether Seal has been called.
func (x *Index) Sealed() bool {
	return x.sealed
}

// Len returns the number of documents.
func (x *Index) Len() int {
	return len(x.order)
}

// Lookup returns the document stored at path.
func (x *Index) Lookup(path string) (*models.Document, error) {
	doc, ok := x.byPath[path]
	if !ok {
		return nil, fmt.Errorf("collection: lookup %q: %w", path, apperr.ErrNotFound)
	}
	return doc, nil
}

// All yields every document in insertion order.
func (x *Index) All() iter.Seq[*models.Document] {
	return x.filter(func(*models.Document) bool { return true })
}

// LookupByTitle yields the documents titled title in insertion order. The
// sequence is empty when nothing matches and can be ranged over repeatedly.
func (x *Index) LookupByTitle(title string) iter.Seq[*models.Document] {
	return x.filter(func(d *models.Document) bool { return d.Title == title })
}

// LookupByTag yields the documents carrying tag in insertion order.
func (x *Index) LookupByTag(tag string) iter.Seq[*models.Document] {
	return x.filter(func(d *models.Document) bool { return d.HasTag(tag) })
}

// MatchSuffix returns the documents whose path is fragment, or ends with
// fragment at a "/" or "-" boundary, or whose slug is fragment. An exact path
// match is returned alone.
func (x *Index) MatchSuffix(fragment string) []*models.Document {
	if fragment == "" {
		return nil
	}
	if doc, ok := x.byPath[fragment]; ok {
		return []*models.Document{doc}
	}
	var out []*models.Document
	for _, d := range x.order {
		if d.Slug == fragment ||
			strings.HasSuffix(d.Path, "/"+fragment) ||
			strings.HasSuffix(d.Path, "-"+fragment) {
			out = append(out, d)
		}
	}
	return out
}

func (x *Index) filter(keep func(*models.Document) bool) iter.Seq[*models.Document] {
	return func(yield func(*models.Document) bool) {
		for _, d := range x.order {
			if keep(d) && !yield(d) {
				return
			}
		}
	}
}
