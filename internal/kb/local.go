package kb

import (
	"context"
	"fmt"

	"github.com/akinlab/akin/internal/problem"
	"github.com/akinlab/akin/internal/storage"
)

// LocalSource serves candidates from the imported problem catalogue.
type LocalSource struct {
	db *storage.DB
}

// NewLocalSource wraps an open catalogue database.
func NewLocalSource(db *storage.DB) *LocalSource {
	return &LocalSource{db: db}
}

// FetchCandidates returns one page of the collection ordered by paper
// count. An empty collectionID spans the whole catalogue.
func (s *LocalSource) FetchCandidates(ctx context.Context, collectionID string, page, pageSize int) ([]problem.Problem, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	offset := (page - 1) * pageSize
	problems, total, err := s.db.ListProblems(collectionID, offset, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("listing candidates: %w", err)
	}
	return problems, total, nil
}

// FetchAttribute reads a single attribute of a catalogued record.
func (s *LocalSource) FetchAttribute(ctx context.Context, recordID, attribute string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.db.GetProblem(recordID)
	if err != nil {
		return "", fmt.Errorf("loading record %s: %w", recordID, err)
	}
	if p == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	switch attribute {
	case AttrDescription:
		return p.Description, nil
	case AttrSameAs:
		return p.Alias, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownAttribute, attribute)
}
