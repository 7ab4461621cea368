// Package kb abstracts the knowledge base that supplies match candidates.
// The matcher works against the Source interface; implementations fetch
// from the local catalogue or a remote graph API.
package kb

import (
	"context"

	"github.com/akinlab/akin/internal/problem"
)

// Attribute names accepted by FetchAttribute.
const (
	// AttrDescription is the record's prose description.
	AttrDescription = "description"
	// AttrSameAs is the record's "same as" alias label.
	AttrSameAs = "sameAs"
)

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 50

// Source supplies match candidates and their enrichment attributes.
//
// FetchCandidates returns one page of a collection's problems plus the
// collection's total record count; pages are 1-based and a page past the
// end returns an empty slice. FetchAttribute returns a single attribute
// of a single record, empty string when the record simply lacks it.
type Source interface {
	FetchCandidates(ctx context.Context, collectionID string, page, pageSize int) ([]problem.Problem, int, error)
	FetchAttribute(ctx context.Context, recordID, attribute string) (string, error)
}
