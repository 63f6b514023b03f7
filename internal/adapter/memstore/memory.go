package memstore

import (
	"context"
	"sync"

	"tagindex/internal/domain"
)

// MemoryStore holds a tag catalog and post corpus in memory, preserving
// insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	tags  []domain.Tag
	names map[string]uint32
	posts []domain.Post
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		names: make(map[string]uint32),
	}
}

// NewMemoryStoreFrom builds a store from existing slices. The slices are
// not copied.
func NewMemoryStoreFrom(tags []domain.Tag, posts []domain.Post) *MemoryStore {
	s := &MemoryStore{
		tags:  tags,
		names: make(map[string]uint32, len(tags)),
		posts: posts,
	}
	for _, t := range tags {
		if _, ok := s.names[t.Name]; !ok {
			s.names[t.Name] = t.ID
		}
	}
	return s
}

func (s *MemoryStore) PutTag(tag domain.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, tag)
	if _, ok := s.names[tag.Name]; !ok {
		s.names[tag.Name] = tag.ID
	}
}

func (s *MemoryStore) PutPost(post domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, post)
}

func (s *MemoryStore) LookupTag(name string) (uint32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.names[name]
	return id, ok, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

func (s *MemoryStore) EachTag(ctx context.Context, fn func(domain.Tag) error) error {
	s.mu.RLock()
	tags := s.tags
	s.mu.RUnlock()

	for _, t := range tags {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) EachPost(ctx context.Context, fn func(domain.Post) error) error {
	s.mu.RLock()
	posts := s.posts
	s.mu.RUnlock()

	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// Catalog returns a view of the store that reports the tag count from Len,
// so the same store can be passed as both catalog and corpus.
func (s *MemoryStore) Catalog() *CatalogView {
	return &CatalogView{s: s}
}

type CatalogView struct {
	s *MemoryStore
}

func (v *CatalogView) Len() int {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return len(v.s.tags)
}

func (v *CatalogView) EachTag(ctx context.Context, fn func(domain.Tag) error) error {
	return v.s.EachTag(ctx, fn)
}
