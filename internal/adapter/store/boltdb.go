// Package store implements the parse cache: a bbolt database holding the
// tag catalog and post corpus in input order, so that builds can scan the
// corpus repeatedly without re-parsing JSON.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"tagindex/internal/domain"
)

var (
	bucketTags     = []byte("tags")
	bucketPosts    = []byte("posts")
	bucketTagNames = []byte("tag_names")
	bucketMeta     = []byte("meta")
	keyStats       = []byte("stats")
)

// DefaultBatchSize is the number of records stored per bbolt value.
const DefaultBatchSize = 4096

// cacheStats is the CBOR form of domain.CacheStats kept in the meta bucket.
type cacheStats struct {
	Tags      int    `cbor:"1,keyasint"`
	Posts     int    `cbor:"2,keyasint"`
	Refs      int    `cbor:"3,keyasint"`
	MaxTagID  uint32 `cbor:"4,keyasint"`
	CreatedAt int64  `cbor:"5,keyasint"`
}

type BoltStore struct {
	db    *bbolt.DB
	path  string
	stats cacheStats

	batchSize    int
	pendingTags  []domain.Tag
	pendingPosts []domain.Post
	tagSeq       uint64
	postSeq      uint64
}

// Create makes a new, empty cache at path. An existing cache is an error
// unless force is set, in which case it is replaced.
func Create(path string, force bool, batchSize int) (*BoltStore, error) {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return nil, fmt.Errorf("%w: parse cache %s", domain.ErrOutputExists, path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing old cache: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketTags, bucketPosts, bucketTagNames, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	s := &BoltStore{db: db, path: path, batchSize: batchSize}
	if err := s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing cache read-only.
func Open(path string) (*BoltStore, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no parse cache at %s (run parse first)", domain.ErrInputMissing, path)
		}
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	s := &BoltStore{db: db, path: path}

	if err := s.CheckSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadStats(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func seqKey(n uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], n)
	return k[:]
}

// PutTag queues a catalog entry. Entries are stored in call order.
func (s *BoltStore) PutTag(tag domain.Tag) error {
	s.pendingTags = append(s.pendingTags, tag)
	if len(s.pendingTags) >= s.batchSize {
		return s.flushTags()
	}
	return nil
}

// PutPost queues a post. Posts are stored in call order.
func (s *BoltStore) PutPost(post domain.Post) error {
	s.pendingPosts = append(s.pendingPosts, post)
	if len(s.pendingPosts) >= s.batchSize {
		return s.flushPosts()
	}
	return nil
}

func (s *BoltStore) flushTags() error {
	if len(s.pendingTags) == 0 {
		return nil
	}
	data, err := encodeBatch(s.pendingTags)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketTags).Put(seqKey(s.tagSeq), data); err != nil {
			return err
		}
		names := tx.Bucket(bucketTagNames)
		for _, t := range s.pendingTags {
			// First occurrence wins; duplicates are reported by the builder.
			if names.Get([]byte(t.Name)) != nil {
				continue
			}
			var id [4]byte
			binary.BigEndian.PutUint32(id[:], t.ID)
			if err := names.Put([]byte(t.Name), id[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing tag batch: %w", err)
	}
	for _, t := range s.pendingTags {
		s.stats.Tags++
		s.stats.MaxTagID = max(s.stats.MaxTagID, t.ID)
	}
	s.tagSeq++
	s.pendingTags = s.pendingTags[:0]
	return nil
}

func (s *BoltStore) flushPosts() error {
	if len(s.pendingPosts) == 0 {
		return nil
	}
	data, err := encodeBatch(s.pendingPosts)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPosts).Put(seqKey(s.postSeq), data)
	})
	if err != nil {
		return fmt.Errorf("storing post batch: %w", err)
	}
	for _, p := range s.pendingPosts {
		s.stats.Posts++
		s.stats.Refs += len(p.Tags)
	}
	s.postSeq++
	s.pendingPosts = s.pendingPosts[:0]
	return nil
}

// Finish flushes queued records and records the cache statistics. The
// cache is complete only after Finish succeeds.
func (s *BoltStore) Finish(inputHash string) error {
	if err := s.flushTags(); err != nil {
		return err
	}
	if err := s.flushPosts(); err != nil {
		return err
	}
	s.stats.CreatedAt = time.Now().UTC().Unix()

	data, err := encMode.Marshal(s.stats)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyStats, data)
	})
	if err != nil {
		return err
	}
	return s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion, InputHash: inputHash})
}

func (s *BoltStore) loadStats() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyStats)
		if data == nil {
			return fmt.Errorf("%w: parse cache %s is incomplete (re-run parse --force)", domain.ErrInputMissing, s.path)
		}
		return decMode.Unmarshal(data, &s.stats)
	})
}

// Stats describes the cache contents.
func (s *BoltStore) Stats() domain.CacheStats {
	return domain.CacheStats{
		Tags:      s.stats.Tags,
		Posts:     s.stats.Posts,
		Refs:      s.stats.Refs,
		MaxTagID:  s.stats.MaxTagID,
		CreatedAt: time.Unix(s.stats.CreatedAt, 0).UTC(),
	}
}

// Len returns the number of cached posts.
func (s *BoltStore) Len() int {
	return s.stats.Posts
}

// EachPost calls fn for every cached post in input order.
func (s *BoltStore) EachPost(ctx context.Context, fn func(domain.Post) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPosts).ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var batch []domain.Post
			if err := decodeBatch(v, &batch); err != nil {
				return err
			}
			for _, p := range batch {
				if err := fn(p); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// EachTag calls fn for every catalog entry in input order.
func (s *BoltStore) EachTag(ctx context.Context, fn func(domain.Tag) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTags).ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var batch []domain.Tag
			if err := decodeBatch(v, &batch); err != nil {
				return err
			}
			for _, t := range batch {
				if err := fn(t); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// LookupTag resolves a tag name to its id.
func (s *BoltStore) LookupTag(name string) (uint32, bool, error) {
	var (
		id    uint32
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketTagNames).Get([]byte(name))
		if v == nil {
			return nil
		}
		if len(v) != 4 {
			return fmt.Errorf("tag name %q has a %d byte id", name, len(v))
		}
		id, found = binary.BigEndian.Uint32(v), true
		return nil
	})
	return id, found, err
}

// Catalog returns a view whose Len counts tags instead of posts.
func (s *BoltStore) Catalog() *CatalogView {
	return &CatalogView{s: s}
}

type CatalogView struct {
	s *BoltStore
}

func (v *CatalogView) Len() int {
	return v.s.stats.Tags
}

func (v *CatalogView) EachTag(ctx context.Context, fn func(domain.Tag) error) error {
	return v.s.EachTag(ctx, fn)
}
