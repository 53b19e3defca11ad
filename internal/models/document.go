// Package models defines the domain types for quire.
package models

import "time"

// Document is a parsed content file. It is immutable once the parser returns it.
type Document struct {
	Path        string         `json:"path"`
	Layout      string         `json:"layout"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Date        time.Time      `json:"date,omitzero"`
	Slug        string         `json:"slug"`
	Permalink   string         `json:"permalink,omitempty"`
	Published   bool           `json:"published"`
	Extra       map[string]any `json:"extra,omitempty"`
	Body        string         `json:"-"`
	References  []string       `json:"references,omitempty"`
	SourceExt   string         `json:"source_ext,omitempty"`
	Checksum    string         `json:"checksum"`
}

// HasTag reports whether the document carries tag.
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Page is a document ready for the rendering layer: its placeholders are
// substituted and its public path is known.
type Page struct {
	Document   *Document `json:"document"`
	PublicPath string    `json:"public_path"`
	Body       string    `json:"-"`
}

// Reference is a resolved cross-reference edge between two documents.
type Reference struct {
	Source   string `json:"source"`
	Fragment string `json:"fragment"`
	Target   string `json:"target"`
}

// SourceMetadata is a lightweight representation of a raw content file.
// Path is slash separated, relative to the store root, extension included.
type SourceMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
