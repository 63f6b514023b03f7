package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"tagindex/internal/adapter/posting"
	"tagindex/internal/domain"
)

func openExample(t *testing.T) *posting.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "index")
	if _, err := NewBuildUseCase(posting.NewWriter(dir)).Build(context.Background(), exampleStore().Catalog(), exampleStore(), nil); err != nil {
		t.Fatal(err)
	}
	st, err := posting.Open(context.Background(), dir, posting.OpenOptions{Verify: true})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestQuery_Example(t *testing.T) {
	uc := NewQueryUseCase(openExample(t))

	tests := []struct {
		name  string
		tags  []uint32
		posts []uint32
		cards []domain.TagCount
	}{
		{"single a", []uint32{0}, []uint32{10, 11}, []domain.TagCount{{ID: 0, Count: 2}}},
		{"single b", []uint32{1}, []uint32{10, 12}, []domain.TagCount{{ID: 1, Count: 2}}},
		{"both", []uint32{0, 1}, []uint32{10}, []domain.TagCount{{ID: 0, Count: 2}, {ID: 1, Count: 2}}},
		{"reversed", []uint32{1, 0}, []uint32{10}, []domain.TagCount{{ID: 1, Count: 2}, {ID: 0, Count: 2}}},
		{"repeated", []uint32{0, 0, 1}, []uint32{10}, []domain.TagCount{{ID: 0, Count: 2}, {ID: 1, Count: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := uc.Query(context.Background(), tt.tags)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(res.Posts, tt.posts) {
				t.Errorf("expected posts %v, got %v", tt.posts, res.Posts)
			}
			if !reflect.DeepEqual(res.Tags, tt.cards) {
				t.Errorf("expected cardinalities %v, got %v", tt.cards, res.Tags)
			}
		})
	}
}

func TestQuery_EmptyTagAndEmptyIntersection(t *testing.T) {
	dir := t.TempDir()
	// Tag 0 is empty, tags 1 and 2 share nothing.
	_, err := posting.NewWriter(dir).Write([]uint32{5, 6}, []uint32{0, 0xFFFFFFFF, 0, 0, 1, 1}, 2, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	st, err := posting.Open(context.Background(), dir, posting.OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	uc := NewQueryUseCase(st)

	for _, tags := range [][]uint32{{0}, {1, 2}, {0, 1, 2}} {
		res, err := uc.Query(context.Background(), tags)
		if err != nil {
			t.Fatal(err)
		}
		if res.Posts == nil || len(res.Posts) != 0 {
			t.Errorf("query %v: expected empty non-nil result, got %v", tags, res.Posts)
		}
	}
}

func TestQuery_Errors(t *testing.T) {
	uc := NewQueryUseCase(openExample(t))

	_, err := uc.Query(context.Background(), nil)
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}

	_, err = uc.Query(context.Background(), []uint32{0, 999})
	if !errors.Is(err, domain.ErrTagIDOutOfRange) {
		t.Errorf("expected ErrTagIDOutOfRange, got %v", err)
	}
	var rangeErr *domain.TagRangeError
	if !errors.As(err, &rangeErr) || rangeErr.TagID != 999 || rangeErr.MaxTagID != 1 {
		t.Errorf("unexpected range error detail: %v", err)
	}
}

func TestQuery_DoesNotMutateStore(t *testing.T) {
	st := openExample(t)
	uc := NewQueryUseCase(st)
	before := append([]uint32(nil), st.Postings()...)

	for i := 0; i < 3; i++ {
		if _, err := uc.Query(context.Background(), []uint32{1, 0}); err != nil {
			t.Fatal(err)
		}
	}
	if !reflect.DeepEqual(before, st.Postings()) {
		t.Error("query modified the posting array")
	}
}

func TestParseTagIDs(t *testing.T) {
	ids, err := ParseTagIDs([]string{"0", " 1", "1"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []uint32{0, 1, 1}) {
		t.Errorf("unexpected ids %v", ids)
	}

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"empty", nil, domain.ErrEmptyQuery},
		{"not a number", []string{"abc"}, domain.ErrInvalidInput},
		{"negative", []string{"-1"}, domain.ErrTagIDOutOfRange},
		{"too large", []string{"999"}, domain.ErrTagIDOutOfRange},
		{"beyond uint32", []string{"99999999999"}, domain.ErrTagIDOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTagIDs(tt.args, 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSplitTagList(t *testing.T) {
	got := SplitTagList("1, 2,3\t4 ")
	if !reflect.DeepEqual(got, []string{"1", "2", "3", "4"}) {
		t.Errorf("unexpected split %v", got)
	}
	if got := SplitTagList(" , "); len(got) != 0 {
		t.Errorf("expected no fields, got %v", got)
	}
}
