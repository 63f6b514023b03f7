package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInputMissing        = errors.New("input missing")
	ErrOutputExists        = errors.New("output already exists")
	ErrUnknownTagReference = errors.New("unknown tag reference")
	ErrTagIDOutOfRange     = errors.New("tag id out of range")
	ErrEmptyQuery          = errors.New("empty query")
	ErrDuplicateTag        = errors.New("duplicate tag")
	ErrCorpusChanged       = errors.New("corpus changed during build")
	ErrCorruptStore        = errors.New("corrupt posting store")
	ErrCacheSchemaMismatch = errors.New("parse cache schema mismatch")
	ErrInvalidInput        = errors.New("invalid input")
)

// UnknownTagError reports a post that names a tag absent from the catalog.
type UnknownTagError struct {
	PostID uint32
	Name   string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("post %d references unknown tag %q", e.PostID, e.Name)
}

func (e *UnknownTagError) Unwrap() error { return ErrUnknownTagReference }

// TagRangeError reports a queried tag id beyond the indexed range.
type TagRangeError struct {
	TagID    int64
	MaxTagID uint32
}

func (e *TagRangeError) Error() string {
	return fmt.Sprintf("tag id %d outside [0, %d]", e.TagID, e.MaxTagID)
}

func (e *TagRangeError) Unwrap() error { return ErrTagIDOutOfRange }

// DuplicateTagError reports a catalog entry that reuses an id or a name.
type DuplicateTagError struct {
	ID    uint32
	Name  string
	Field string
}

func (e *DuplicateTagError) Error() string {
	return fmt.Sprintf("duplicate tag %s: id=%d name=%q", e.Field, e.ID, e.Name)
}

func (e *DuplicateTagError) Unwrap() error { return ErrDuplicateTag }

// IsQueryError reports whether err is scoped to a single malformed query
// rather than to the store or the process.
func IsQueryError(err error) bool {
	return errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrTagIDOutOfRange) ||
		errors.Is(err, ErrInvalidInput)
}
