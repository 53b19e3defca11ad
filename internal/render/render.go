// Package render hands resolved pages to the rendering layer.
//
// The rendering engine itself lives outside quire. The Staging renderer
// writes each page, front matter included, to the path it will be served
// under, which is what a static-site engine consumes.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/starford/quire/internal/layout"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/storage"
)

// TemplateKey carries the registered template of a page's layout.
const TemplateKey = "layout_template"

// Renderer consumes the pages of one successful build pass.
type Renderer interface {
	Render(ctx context.Context, pages []models.Page) error
}

// Func adapts a function to Renderer.
type Func func(ctx context.Context, pages []models.Page) error

// Render calls f.
func (f Func) Render(ctx context.Context, pages []models.Page) error {
	return f(ctx, pages)
}

// Discard is a Renderer that does nothing.
var Discard Renderer = Func(func(context.Context, []models.Page) error { return nil })

// Staging writes pages into an output tree.
type Staging struct {
	out      storage.Provider
	layouts  *layout.Registry
	markdown goldmark.Markdown
	convert  bool
	logger   *slog.Logger
}

// NewStaging returns a Staging renderer writing to out. When convertMarkdown
// is set, Markdown sources are converted to HTML before staging.
func NewStaging(out storage.Provider, layouts *layout.Registry, convertMarkdown bool, logger *slog.Logger) *Staging {
	return &Staging{
		out:     out,
		layouts: layouts,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		convert: convertMarkdown,
		logger:  logger,
	}
}

// OutputFile maps a public path to a file in the output tree.
func OutputFile(publicPath string) string {
	p := strings.TrimPrefix(publicPath, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		return p + "index.html"
	}
	if path.Ext(p) == "" {
		return p + "/index.html"
	}
	return p
}

// ManifestFile records, in the output root, the files the last pass wrote.
// Pruning only ever removes files named there, so anything else sharing the
// output tree is left alone.
const ManifestFile = ".quire-manifest.json"

type manifest struct {
	Files []string `json:"files"`
}

// Render stages every published page and removes the files an earlier pass
// wrote that this one did not.
func (s *Staging) Render(ctx context.Context, pages []models.Page) error {
	previous, err := s.readManifest()
	if err != nil {
		return err
	}

	written := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.Document.Published {
			continue
		}
		file := OutputFile(p.PublicPath)
		if _, dup := written[file]; dup {
			return fmt.Errorf("render: %s: output %s already written by another document", p.Document.Path, file)
		}
		content, err := s.stage(p)
		if err != nil {
			return fmt.Errorf("render: %s: %w", p.Document.Path, err)
		}
		if err := s.out.Write(file, content); err != nil {
			return fmt.Errorf("render: %s: %w", p.Document.Path, err)
		}
		written[file] = struct{}{}
	}

	pruned := 0
	for _, file := range previous {
		if _, ok := written[file]; ok {
			continue
		}
		if err := s.out.Delete(file); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("render: prune failed", slog.String("path", file), slog.String("error", err.Error()))
			}
			continue
		}
		pruned++
	}

	if err := s.writeManifest(slices.Sorted(maps.Keys(written))); err != nil {
		return err
	}

	s.logger.Debug("render: staged",
		slog.Int("pages", len(written)),
		slog.Int("pruned", pruned))
	return nil
}

func (s *Staging) readManifest() ([]string, error) {
	raw, err := s.out.Read(ManifestFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("render: read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		s.logger.Warn("render: ignoring unreadable manifest", slog.String("error", err.Error()))
		return nil, nil
	}
	return m.Files, nil
}

func (s *Staging) writeManifest(files []string) error {
	raw, err := json.MarshalIndent(manifest{Files: files}, "", "  ")
	if err != nil {
		return fmt.Errorf("render: encode manifest: %w", err)
	}
	if err := s.out.Write(ManifestFile, raw); err != nil {
		return fmt.Errorf("render: write manifest: %w", err)
	}
	return nil
}

func (s *Staging) stage(p models.Page) ([]byte, error) {
	doc := p.Document
	body := p.Body
	if s.convert && (doc.SourceExt == ".md" || doc.SourceExt == ".markdown") {
		var buf bytes.Buffer
		if err := s.markdown.Convert([]byte(body), &buf); err != nil {
			return nil, fmt.Errorf("convert markdown: %w", err)
		}
		body = buf.String()
	}

	extra := maps.Clone(doc.Extra)
	if tmpl, ok := s.layouts.Template(doc.Layout); ok && tmpl != "" {
		if extra == nil {
			extra = make(map[string]any, 1)
		}
		extra[TemplateKey] = tmpl
	}

	return parser.Serialize(parser.Meta{
		Layout:      doc.Layout,
		Title:       doc.Title,
		Description: doc.Description,
		Tags:        doc.Tags,
		Date:        doc.Date,
		Extra:       extra,
	}, body)
}
