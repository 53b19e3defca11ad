// Package parser splits raw content files into front matter and body and
// decodes the front matter into document metadata.
package parser

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/models"
)

// Recognized front matter keys.
const (
	KeyLayout      = "layout"
	KeyTitle       = "title"
	KeyDescription = "description"
	KeyTag         = "tag"
	KeyTags        = "tags"
	KeyDate        = "date"
	KeyPermalink   = "permalink"
	KeyPublished   = "published"
)

var knownKeys = map[string]struct{}{
	KeyLayout: {}, KeyTitle: {}, KeyDescription: {}, KeyTag: {},
	KeyTags: {}, KeyDate: {}, KeyPermalink: {}, KeyPublished: {},
}

var datePrefixRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})-(.+)$`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Options controls how front matter is decoded.
type Options struct {
	// Strict rejects keys outside the recognized set.
	Strict bool
	// DefaultLayout is used when a document does not name one.
	DefaultLayout string
}

// Meta is the decoded front matter block.
type Meta struct {
	Layout      string
	Title       string
	Description string
	Tags        []string
	Date        time.Time
	Permalink   string
	Published   *bool
	Extra       map[string]any
}

// Result holds the output of parsing a raw content file.
type Result struct {
	Meta       Meta
	Body       string
	Had        bool
	References []string
	Title      string
}

// Parse splits data into front matter and body and decodes the metadata.
func Parse(data []byte, opts Options) (*Result, error) {
	fm, body, had, err := Split(data)
	if err != nil {
		return nil, err
	}

	meta, err := decodeMeta(fm, opts.Strict)
	if err != nil {
		return nil, err
	}

	b := string(body)
	return &Result{
		Meta:       meta,
		Body:       b,
		Had:        had,
		References: References(b),
		Title:      deriveTitle(meta.Title, b),
	}, nil
}

// ParseDocument parses the raw text stored at rel (a slash separated path
// relative to the content root, extension included) into a Document.
func ParseDocument(rel string, data []byte, opts Options) (*models.Document, error) {
	res, err := Parse(data, opts)
	if err != nil {
		id, _ := DocumentPath(rel)
		return nil, apperr.Wrap(id, err)
	}

	id, ext := DocumentPath(rel)
	slug, date := SlugAndDate(id)
	if !res.Meta.Date.IsZero() {
		date = res.Meta.Date
	}

	layout := res.Meta.Layout
	if layout == "" {
		layout = opts.DefaultLayout
	}
	published := true
	if res.Meta.Published != nil {
		published = *res.Meta.Published
	}

	return &models.Document{
		Path:        id,
		Layout:      layout,
		Title:       res.Title,
		Description: res.Meta.Description,
		Tags:        res.Meta.Tags,
		Date:        date,
		Slug:        slug,
		Permalink:   res.Meta.Permalink,
		Published:   published,
		Extra:       res.Meta.Extra,
		Body:        res.Body,
		References:  res.References,
		SourceExt:   ext,
		Checksum:    checksum.Sum(data),
	}, nil
}

// DocumentPath turns a file path into a document path by dropping the
// extension and normalizing separators.
func DocumentPath(rel string) (id, ext string) {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "/")
	ext = path.Ext(rel)
	return strings.TrimSuffix(rel, ext), ext
}

// SlugAndDate strips a YYYY-MM-DD- prefix from the last path element.
// The returned date is zero when no prefix is present.
func SlugAndDate(id string) (string, time.Time) {
	base := path.Base(id)
	m := datePrefixRe.FindStringSubmatch(base)
	if m == nil {
		return base, time.Time{}
	}
	d, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return base, time.Time{}
	}
	return m[4], d
}

// Split separates the front matter block (between leading --- fences) from
// the body. Text without an opening fence is all body. An opening fence that
// is never closed is ErrMalformedFrontMatter.
func Split(data []byte) (fm []byte, body []byte, had bool, err error) {
	var rest []byte
	switch {
	case bytes.HasPrefix(data, []byte("---\r\n")):
		rest = data[5:]
	case bytes.HasPrefix(data, []byte("---\n")):
		rest = data[4:]
	case string(data) == "---":
		return nil, nil, false, fmt.Errorf("%w: opening fence is not closed", apperr.ErrMalformedFrontMatter)
	default:
		return nil, data, false, nil
	}

	for off := 0; off <= len(rest); {
		var line []byte
		next := len(rest) + 1
		if end := bytes.IndexByte(rest[off:], '\n'); end >= 0 {
			line = rest[off : off+end]
			next = off + end + 1
		} else {
			line = rest[off:]
		}
		if string(bytes.TrimSuffix(line, []byte("\r"))) == "---" {
			return rest[:off], rest[min(next, len(rest)):], true, nil
		}
		off = next
	}

	return nil, nil, false, fmt.Errorf("%w: opening fence is not closed", apperr.ErrMalformedFrontMatter)
}

func decodeMeta(fm []byte, strict bool) (Meta, error) {
	var meta Meta
	if len(bytes.TrimSpace(fm)) == 0 {
		return meta, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(fm, &doc); err != nil {
		return meta, fmt.Errorf("%w: %v", apperr.ErrMalformedFrontMatter, err)
	}
	if len(doc.Content) == 0 {
		return meta, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return meta, fmt.Errorf("%w: expected key: value pairs", apperr.ErrMalformedFrontMatter)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var val any
		if err := root.Content[i+1].Decode(&val); err != nil {
			return meta, &apperr.DocumentError{Field: key, Err: fmt.Errorf("%w: %v", apperr.ErrMalformedFrontMatter, err)}
		}

		if _, ok := knownKeys[key]; !ok {
			if strict {
				return meta, &apperr.DocumentError{Field: key, Err: apperr.ErrUnknownKey}
			}
			if meta.Extra == nil {
				meta.Extra = make(map[string]any)
			}
			meta.Extra[key] = val
			continue
		}

		if err := meta.set(key, val); err != nil {
			return meta, &apperr.DocumentError{Field: key, Err: fmt.Errorf("%w: %v", apperr.ErrMalformedFrontMatter, err)}
		}
	}
	return meta, nil
}

func (m *Meta) set(key string, val any) error {
	switch key {
	case KeyLayout:
		m.Layout = scalarString(val)
	case KeyTitle:
		m.Title = scalarString(val)
	case KeyDescription:
		m.Description = scalarString(val)
	case KeyPermalink:
		m.Permalink = scalarString(val)
	case KeyTag:
		m.Tags = appendTags(m.Tags, val, false)
	case KeyTags:
		m.Tags = appendTags(m.Tags, val, true)
	case KeyPublished:
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("published must be true or false, got %v", val)
		}
		m.Published = &b
	case KeyDate:
		d, err := parseDate(val)
		if err != nil {
			return err
		}
		m.Date = d
	}
	return nil
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// appendTags accepts a scalar or a list. A scalar is one label unless split
// is set, in which case it is a space separated list of labels.
func appendTags(out []string, v any, split bool) []string {
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, t := range out {
			if t == s {
				return
			}
		}
		out = append(out, s)
	}
	switch vv := v.(type) {
	case string:
		if !split {
			add(vv)
			break
		}
		for _, f := range strings.Fields(vv) {
			add(f)
		}
	case []any:
		for _, item := range vv {
			add(scalarString(item))
		}
	case nil:
	default:
		add(fmt.Sprint(vv))
	}
	return out
}

func parseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(d)); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", d)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unrecognized date %v", d)
	}
}

// deriveTitle returns the front matter title if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fmTitle, body string) string {
	if fmTitle != "" {
		return fmTitle
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
