package catalog

import "github.com/starford/quire/internal/models"

// Catalog is the read and publish surface of the build catalog.
// Consumers depend on this interface rather than on *DB.
type Catalog interface {
	Publish(b Build, pages []models.Page, refs []models.Reference, stage func() error) error
	GetDocument(path string) (*DocumentRow, error)
	ListDocuments(limit, offset int, tag, sort string) ([]DocumentRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Referrers(target string) ([]string, error)
	LastBuild() (*Build, error)
	Close() error
}

var _ Catalog = (*DB)(nil)
