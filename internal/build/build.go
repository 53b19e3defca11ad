// Package build runs one build pass: load every raw document, index the
// collection, validate it, resolve cross-references, then hand the pages to
// the renderer and the catalog. Any failure aborts the pass.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/catalog"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/collection"
	"github.com/starford/quire/internal/layout"
	"github.com/starford/quire/internal/metrics"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/permalink"
	"github.com/starford/quire/internal/render"
	"github.com/starford/quire/internal/resolver"
	"github.com/starford/quire/internal/storage"
)

// Stage names used in logs and metrics.
const (
	StageLoad     = "load"
	StageValidate = "validate"
	StageResolve  = "resolve"
	StageRender   = "render"
	StagePublish  = "publish"
)

// Result is the outcome of a successful pass.
type Result struct {
	ID         string
	Index      *collection.Index
	Resolver   *resolver.Resolver
	Pages      []models.Page
	References []models.Reference
	Checksum   string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pipeline holds everything a build pass needs. It carries no state between
// passes.
type Pipeline struct {
	store      storage.Provider
	layouts    *layout.Registry
	permalinks *permalink.Builder
	parserOpts parser.Options
	renderer   render.Renderer
	catalog    catalog.Catalog
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParserOptions sets the front matter parser options.
func WithParserOptions(opts parser.Options) Option {
	return func(p *Pipeline) { p.parserOpts = opts }
}

// WithRenderer sets the renderer pages are handed to.
func WithRenderer(r render.Renderer) Option {
	return func(p *Pipeline) { p.renderer = r }
}

// WithCatalog records successful passes into c.
func WithCatalog(c catalog.Catalog) Option {
	return func(p *Pipeline) { p.catalog = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New returns a Pipeline reading raw documents from store.
func New(store storage.Provider, layouts *layout.Registry, permalinks *permalink.Builder, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		layouts:    layouts,
		permalinks: permalinks,
		renderer:   render.Discard,
		recorder:   metrics.NoopRecorder{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one pass.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{ID: uuid.NewString(), StartedAt: time.Now()}

	err := p.run(ctx, res)
	res.FinishedAt = time.Now()
	p.recorder.ObserveBuildDuration(res.FinishedAt.Sub(res.StartedAt))

	if err != nil {
		p.recorder.IncBuildOutcome(metrics.OutcomeFailed)
		p.recorder.IncBuildError(ErrorKind(err))
		p.logger.Error("build: failed",
			slog.String("build_id", res.ID),
			slog.String("error", err.Error()))
		return nil, err
	}

	p.recorder.IncBuildOutcome(metrics.OutcomeSuccess)
	p.recorder.SetDocuments(res.Index.Len())
	p.recorder.SetReferences(len(res.References))
	p.logger.Info("build: completed",
		slog.String("build_id", res.ID),
		slog.Int("documents", res.Index.Len()),
		slog.Int("references", len(res.References)),
		slog.Duration("duration", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	index, err := timed(p, StageLoad, func() (*collection.Index, error) { return p.load(ctx) })
	if err != nil {
		return err
	}
	index.Seal()
	res.Index = index

	if _, err := timed(p, StageValidate, func() (struct{}, error) { return struct{}{}, p.validate(index) }); err != nil {
		return err
	}

	res.Resolver, err = resolver.New(index, p.permalinks)
	if err != nil {
		return err
	}
	type resolved struct {
		pages []models.Page
		refs  []models.Reference
	}
	r, err := timed(p, StageResolve, func() (resolved, error) {
		pages, refs, err := res.Resolver.ResolveAll()
		return resolved{pages, refs}, err
	})
	if err != nil {
		return err
	}
	res.Pages, res.References = r.pages, r.refs

	sums := make([]string, 0, index.Len())
	for doc := range index.All() {
		sums = append(sums, doc.Checksum)
	}
	res.Checksum = checksum.Combine(sums)

	renderPages := func() error {
		_, err := timed(p, StageRender, func() (struct{}, error) {
			return struct{}{}, p.renderer.Render(ctx, res.Pages)
		})
		return err
	}
	if p.catalog == nil {
		return renderPages()
	}

	// Output is written while the catalog transaction is still open, so a
	// failed render leaves the previous build catalogued and a failed insert
	// never touches the output tree.
	var renderErr error
	_, err = timed(p, StagePublish, func() (struct{}, error) {
		return struct{}{}, p.catalog.Publish(catalog.Build{
			ID:         res.ID,
			StartedAt:  res.StartedAt,
			FinishedAt: time.Now(),
			Documents:  index.Len(),
			References: len(res.References),
			Checksum:   res.Checksum,
		}, res.Pages, res.References, func() error {
			renderErr = renderPages()
			return renderErr
		})
	})
	if renderErr != nil {
		return renderErr
	}
	return err
}

// load reads and parses every raw document and inserts it into a fresh index.
func (p *Pipeline) load(ctx context.Context) (*collection.Index, error) {
	metas, err := p.store.List("")
	if err != nil {
		return nil, fmt.Errorf("build: list sources: %w", err)
	}

	index := collection.New()
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := p.store.Read(m.Path)
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		doc, err := parser.ParseDocument(m.Path, data, p.parserOpts)
		if err != nil {
			return nil, err
		}
		if err := index.Insert(doc); err != nil {
			return nil, err
		}
		p.logger.Debug("build: loaded", slog.String("path", doc.Path), slog.String("layout", doc.Layout))
	}
	return index, nil
}

// validate checks collection-wide invariants that need every document.
func (p *Pipeline) validate(index *collection.Index) error {
	outputs := make(map[string]string, index.Len())
	for doc := range index.All() {
		if err := p.layouts.Validate(doc); err != nil {
			return err
		}
		if !doc.Published {
			continue
		}
		file := render.OutputFile(p.permalinks.PublicPath(doc))
		if other, ok := outputs[file]; ok {
			return &apperr.DocumentError{
				Path:  doc.Path,
				Field: "permalink",
				Err:   fmt.Errorf("%w: output %s is also produced by %s", apperr.ErrDuplicatePath, file, other),
			}
		}
		outputs[file] = doc.Path
	}
	return nil
}

func timed[T any](p *Pipeline, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	p.recorder.ObserveStageDuration(stage, time.Since(start))
	if err != nil {
		p.logger.Debug("build: stage failed", slog.String("stage", stage), slog.String("error", err.Error()))
	}
	return v, err
}

// ErrorKind names the error category of err for metrics labels.
func ErrorKind(err error) string {
	kinds := []struct {
		err  error
		name string
	}{
		{apperr.ErrMalformedFrontMatter, "malformed_front_matter"},
		{apperr.ErrUnknownKey, "unknown_key"},
		{apperr.ErrUnknownLayout, "unknown_layout"},
		{apperr.ErrDuplicatePath, "duplicate_path"},
		{apperr.ErrNotFound, "not_found"},
		{apperr.ErrUnresolvedReference, "unresolved_reference"},
		{apperr.ErrAmbiguousReference, "ambiguous_reference"},
		{context.Canceled, "canceled"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
