package port

import (
	"context"

	"tagindex/internal/domain"
)

// PostingReader gives read access to a built posting store.
type PostingReader interface {
	// MaxTagID is the largest indexed tag id.
	MaxTagID() uint32

	// Range returns the posting slice of tag id. ok is false when id is
	// outside the indexed range.
	Range(id uint32) (posts []uint32, ok bool)
}

// Querier answers AND queries over tag ids.
type Querier interface {
	Query(ctx context.Context, tagIDs []uint32) (*domain.QueryResult, error)
}
