package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"tagindex/internal/domain"
	"tagindex/internal/port"
)

// QueryUseCase answers AND queries over an immutable posting store. It
// holds no per-query state and is safe for concurrent use.
type QueryUseCase struct {
	store  port.PostingReader
	logger *slog.Logger
}

// NewQueryUseCase creates a query use case over store.
func NewQueryUseCase(store port.PostingReader) *QueryUseCase {
	return &QueryUseCase{
		store:  store,
		logger: slog.Default().With("component", "query"),
	}
}

type tagSet struct {
	id   uint32
	bits *roaring.Bitmap
}

// Query returns the ascending ids of posts carrying every tag in tagIDs,
// with the cardinality of each distinct tag's posting set in order of
// first appearance.
func (u *QueryUseCase) Query(ctx context.Context, tagIDs []uint32) (*domain.QueryResult, error) {
	if len(tagIDs) == 0 {
		return nil, domain.ErrEmptyQuery
	}
	start := time.Now()

	seen := make(map[uint32]struct{}, len(tagIDs))
	sets := make([]tagSet, 0, len(tagIDs))
	for _, id := range tagIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		posts, ok := u.store.Range(id)
		if !ok {
			return nil, &domain.TagRangeError{TagID: int64(id), MaxTagID: u.store.MaxTagID()}
		}
		bits := roaring.New()
		bits.AddMany(posts)
		sets = append(sets, tagSet{id: id, bits: bits})
	}

	result := &domain.QueryResult{
		Tags: make([]domain.TagCount, len(sets)),
	}
	for i, s := range sets {
		result.Tags[i] = domain.TagCount{ID: s.id, Count: int(s.bits.GetCardinality())}
	}

	result.Posts = intersect(sets)
	result.Took = time.Since(start)

	u.logger.Debug("query executed",
		"tags", tagIDs,
		"results", len(result.Posts),
		"took", result.Took,
	)
	return result, nil
}

// intersect ANDs the sets smallest first and stops as soon as the running
// intersection is empty.
func intersect(sets []tagSet) []uint32 {
	ordered := make([]*roaring.Bitmap, len(sets))
	for i, s := range sets {
		ordered[i] = s.bits
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].GetCardinality() < ordered[j].GetCardinality()
	})

	acc := ordered[0].Clone()
	for _, bits := range ordered[1:] {
		if acc.IsEmpty() {
			break
		}
		acc.And(bits)
	}
	posts := acc.ToArray()
	if posts == nil {
		posts = []uint32{}
	}
	return posts
}

// ParseTagIDs converts textual tag ids. Negative ids and ids beyond
// maxTagID are out of range; anything that is not an integer is invalid.
func ParseTagIDs(args []string, maxTagID uint32) ([]uint32, error) {
	if len(args) == 0 {
		return nil, domain.ErrEmptyQuery
	}
	ids := make([]uint32, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: tag id %q is not an integer", domain.ErrInvalidInput, arg)
		}
		if v < 0 || v > int64(maxTagID) {
			return nil, &domain.TagRangeError{TagID: v, MaxTagID: maxTagID}
		}
		ids = append(ids, uint32(v))
	}
	return ids, nil
}

// SplitTagList splits a comma or whitespace separated list of tags.
func SplitTagList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
