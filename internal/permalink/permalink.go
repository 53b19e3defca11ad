// Package permalink computes the public path a document is served under.
package permalink

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/quire/internal/models"
)

// DefaultPattern places dated documents under /year/month/day/.
const DefaultPattern = "/:year/:month/:day/:title:output_ext"

// UndatedPattern is used for documents without a date.
const UndatedPattern = "/:path:output_ext"

// Builder expands permalink patterns. Recognized placeholders are :year,
// :month, :day, :title (the slug), :path (the document path) and
// :output_ext.
type Builder struct {
	Pattern   string
	BaseURL   string
	OutputExt string
}

// New returns a Builder for pattern under the site prefix baseURL.
func New(pattern, baseURL string) *Builder {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Builder{Pattern: pattern, BaseURL: baseURL, OutputExt: ".html"}
}

// PublicPath returns the site-relative path of doc. A permalink set in the
// document's front matter wins over the pattern.
func (b *Builder) PublicPath(doc *models.Document) string {
	if doc.Permalink != "" {
		return b.prefix(doc.Permalink)
	}
	pattern := b.Pattern
	if doc.Date.IsZero() && usesDate(pattern) {
		pattern = UndatedPattern
	}

	var year, month, day string
	if !doc.Date.IsZero() {
		year = fmt.Sprintf("%04d", doc.Date.Year())
		month = fmt.Sprintf("%02d", int(doc.Date.Month()))
		day = fmt.Sprintf("%02d", doc.Date.Day())
	}

	r := strings.NewReplacer(
		":output_ext", b.OutputExt,
		":year", year,
		":month", month,
		":day", day,
		":title", doc.Slug,
		":path", doc.Path,
	)
	return b.prefix(r.Replace(pattern))
}

func (b *Builder) prefix(p string) string {
	trailing := strings.HasSuffix(p, "/")
	joined := path.Join("/", b.BaseURL, p)
	if trailing && joined != "/" {
		joined += "/"
	}
	return joined
}

func usesDate(pattern string) bool {
	return strings.Contains(pattern, ":year") ||
		strings.Contains(pattern, ":month") ||
		strings.Contains(pattern, ":day")
}
