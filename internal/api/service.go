package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/catalog"
)

// Service answers API queries from the catalog and tracks the outcome of
// the most recent build attempt, which the catalog alone cannot: a failed
// build never touches it.
type Service struct {
	cat catalog.Catalog

	mu      sync.RWMutex
	failure *BuildFailure
}

// NewService creates a new API service over cat.
func NewService(cat catalog.Catalog) *Service {
	return &Service{cat: cat}
}

// RecordSuccess clears any remembered failure.
func (s *Service) RecordSuccess() {
	s.mu.Lock()
	s.failure = nil
	s.mu.Unlock()
}

// RecordFailure remembers err as the outcome of the latest build attempt.
func (s *Service) RecordFailure(err error) {
	f := &BuildFailure{Error: err.Error(), At: time.Now().UTC()}
	var de *apperr.DocumentError
	if errors.As(err, &de) {
		f.Path = de.Path
		f.Field = de.Field
		f.Reference = de.Reference
		f.Candidates = de.Candidates
	}
	s.mu.Lock()
	s.failure = f
	s.mu.Unlock()
}

// ListDocuments returns a page of documents.
func (s *Service) ListDocuments(_ context.Context, limit, offset int, tag, sort string) (*DocumentListResponse, error) {
	rows, total, err := s.cat.ListDocuments(limit, offset, tag, sort)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []catalog.DocumentRow{}
	}
	return &DocumentListResponse{Documents: rows, Total: total}, nil
}

// GetDocument returns one document with the documents that reference it.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	row, err := s.cat.GetDocument(path)
	if err != nil {
		return nil, err
	}
	refs, err := s.cat.Referrers(path)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []string{}
	}
	return &DocumentDetail{DocumentRow: *row, Referrers: refs}, nil
}

// Search runs a full-text query.
func (s *Service) Search(_ context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	results, err := s.cat.Search(query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []catalog.SearchResult{}
	}
	return results, nil
}

// Referrers lists documents referencing path. An unknown path is ErrNotFound.
func (s *Service) Referrers(_ context.Context, path string) ([]string, error) {
	if _, err := s.cat.GetDocument(path); err != nil {
		return nil, err
	}
	refs, err := s.cat.Referrers(path)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []string{}
	}
	return refs, nil
}

// BuildStatus reports the last successful build and, if the latest attempt
// failed, why.
func (s *Service) BuildStatus(_ context.Context) (*BuildStatus, error) {
	st := &BuildStatus{}
	last, err := s.cat.LastBuild()
	switch {
	case err == nil:
		st.Last = last
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	s.mu.RLock()
	st.Failure = s.failure
	s.mu.RUnlock()
	return st, nil
}
