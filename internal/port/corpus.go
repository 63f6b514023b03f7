package port

import (
	"context"

	"tagindex/internal/domain"
)

// TagCatalog is a read-only, ordered collection of tags.
// Each walks records in catalog order and stops at the first error
// returned by fn.
type TagCatalog interface {
	Len() int
	EachTag(ctx context.Context, fn func(domain.Tag) error) error
}

// PostCorpus is a read-only, ordered collection of posts. Implementations
// must yield the same sequence on every call to EachPost.
type PostCorpus interface {
	Len() int
	EachPost(ctx context.Context, fn func(domain.Post) error) error
}

// TagResolver maps tag names to ids.
type TagResolver interface {
	LookupTag(name string) (uint32, bool, error)
}
