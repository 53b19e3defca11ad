package api

import (
	"time"

	"github.com/starford/quire/internal/catalog"
)

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []catalog.DocumentRow `json:"documents" validate:"required"`
	Total     int                   `json:"total" example:"42" validate:"required"`
}

// DocumentDetail is a single document plus its referrers.
type DocumentDetail struct {
	catalog.DocumentRow
	Referrers []string `json:"referrers" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []catalog.SearchResult `json:"results" validate:"required"`
}

// ReferrersResponse lists the documents that reference Path.
type ReferrersResponse struct {
	Path      string   `json:"path" example:"2014-06-12-exceptions-vs-error-codes" validate:"required"`
	Referrers []string `json:"referrers" validate:"required"`
}

// BuildFailure describes why the latest build attempt was rejected.
type BuildFailure struct {
	Error      string    `json:"error" validate:"required"`
	Path       string    `json:"path,omitempty" example:"2014-06-19-avoiding-ambiguity-raw-pointers"`
	Field      string    `json:"field,omitempty" example:"layout"`
	Reference  string    `json:"reference,omitempty" example:"raw-pointers"`
	Candidates []string  `json:"candidates,omitempty"`
	At         time.Time `json:"at"`
}

// BuildStatus is the response of GET /api/builds/last.
type BuildStatus struct {
	Last    *catalog.Build `json:"last"`
	Failure *BuildFailure  `json:"failure,omitempty"`
}
