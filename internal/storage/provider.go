// Package storage defines the raw content store and the output tree
// abstraction.
package storage

import "github.com/starford/quire/internal/models"

// Provider is the interface for content file operations. All paths are
// relative to the provider root.
type Provider interface {
	// List returns metadata for every content file under dir.
	List(dir string) ([]models.SourceMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
