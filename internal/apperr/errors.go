// Package apperr defines the error kinds a build pass can fail with.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedFrontMatter = errors.New("malformed front matter")
	ErrUnknownKey           = errors.New("unknown front matter key")
	ErrUnknownLayout        = errors.New("unknown layout")
	ErrDuplicatePath        = errors.New("duplicate path")
	ErrNotFound             = errors.New("not found")
	ErrUnresolvedReference  = errors.New("unresolved reference")
	ErrAmbiguousReference   = errors.New("ambiguous reference")
	ErrSealed               = errors.New("collection is sealed")
)

// DocumentError names the document and the field or reference at fault.
type DocumentError struct {
	Path       string
	Field      string
	Reference  string
	Candidates []string
	Err        error
}

func (e *DocumentError) Error() string {
	var b strings.Builder
	b.WriteString(e.Path)
	switch {
	case e.Reference != "":
		fmt.Fprintf(&b, ": post_url %q", e.Reference)
	case e.Field != "":
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (matches %s)", strings.Join(e.Candidates, ", "))
	}
	return b.String()
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Wrap attaches path to err unless err already names a document.
func Wrap(path string, err error) error {
	if err == nil {
		return nil
	}
	var de *DocumentError
	if errors.As(err, &de) {
		if de.Path == "" {
			de.Path = path
		}
		return err
	}
	return &DocumentError{Path: path, Err: err}
}
