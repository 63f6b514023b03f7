package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
	"tagindex/internal/domain"
	"tagindex/internal/port"
)

func fillCache(t *testing.T, path string, batchSize int) {
	t.Helper()
	s, err := Create(path, false, batchSize)
	require.NoError(t, err)

	for _, tag := range []domain.Tag{
		{ID: 1, PostCount: 2, Name: "b"},
		{ID: 0, PostCount: 2, Name: "a"},
		{ID: 4, Name: "e"},
	} {
		require.NoError(t, s.PutTag(tag))
	}
	for _, p := range []domain.Post{
		{ID: 10, Tags: []string{"a", "b"}},
		{ID: 11, Tags: []string{"a"}},
		{ID: 12, Tags: []string{"b"}},
		{ID: 13},
		{ID: 14, Tags: []string{"e"}},
	} {
		require.NoError(t, s.PutPost(p))
	}
	require.NoError(t, s.Finish("abc"))
	require.NoError(t, s.Close())
}

func TestCacheRoundTrip(t *testing.T) {
	for _, batch := range []int{1, 2, 0} {
		path := filepath.Join(t.TempDir(), ".tagindex", "cache.db")
		fillCache(t, path, batch)

		s, err := Open(path)
		require.NoError(t, err)

		stats := s.Stats()
		assert.Equal(t, 3, stats.Tags)
		assert.Equal(t, 5, stats.Posts)
		assert.Equal(t, 5, stats.Refs)
		assert.Equal(t, uint32(4), stats.MaxTagID)
		assert.False(t, stats.CreatedAt.IsZero())
		assert.Equal(t, 5, s.Len())
		assert.Equal(t, 3, s.Catalog().Len())

		var names []string
		require.NoError(t, s.Catalog().EachTag(context.Background(), func(tag domain.Tag) error {
			names = append(names, tag.Name)
			return nil
		}))
		assert.Equal(t, []string{"b", "a", "e"}, names)

		var ids []uint32
		require.NoError(t, s.EachPost(context.Background(), func(p domain.Post) error {
			ids = append(ids, p.ID)
			return nil
		}))
		assert.Equal(t, []uint32{10, 11, 12, 13, 14}, ids)

		id, ok, err := s.LookupTag("e")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint32(4), id)

		_, ok, err = s.LookupTag("zzz")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Close())
	}
}

func TestCreateRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	fillCache(t, path, 0)

	_, err := Create(path, false, 0)
	require.ErrorIs(t, err, domain.ErrOutputExists)

	s, err := Create(path, true, 0)
	require.NoError(t, err)
	require.NoError(t, s.Finish(""))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 0, s.Stats().Posts)
}

func TestOpenMissingOrIncomplete(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.db"))
	require.ErrorIs(t, err, domain.ErrInputMissing)

	path := filepath.Join(dir, "partial.db")
	s, err := Create(path, false, 0)
	require.NoError(t, err)
	require.NoError(t, s.PutPost(domain.Post{ID: 1}))
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, domain.ErrInputMissing)
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	fillCache(t, path, 0)

	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, []byte("99"))
	}))
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, domain.ErrCacheSchemaMismatch)
}

func TestEachPostStopsOnCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	fillCache(t, path, 2)
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	stop := errors.New("stop")
	seen := 0
	err = s.EachPost(context.Background(), func(domain.Post) error {
		seen++
		if seen == 3 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 3, seen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.EachPost(ctx, func(domain.Post) error { return nil }), context.Canceled)
}

func TestStale(t *testing.T) {
	files := []port.FileInfo{{RelPath: "tags.json", Size: 10, ModTime: 1}}
	hash := ComputeInputHash(files)
	assert.Len(t, hash, 16)
	assert.Equal(t, hash, ComputeInputHash(files))

	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Create(path, false, 0)
	require.NoError(t, err)
	require.NoError(t, s.Finish(hash))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	stale, _, err := s.Stale(files)
	require.NoError(t, err)
	assert.False(t, stale)

	stale, reason, err := s.Stale([]port.FileInfo{{RelPath: "tags.json", Size: 11, ModTime: 1}})
	require.NoError(t, err)
	assert.True(t, stale)
	assert.NotEmpty(t, reason)
}

func TestBatchCodecConcurrent(t *testing.T) {
	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			in := []domain.Post{{ID: uint32(i), Tags: []string{"a", "b"}}, {ID: uint32(i + 100)}}
			data, err := encodeBatch(in)
			if err != nil {
				return err
			}
			var out []domain.Post
			if err := decodeBatch(data, &out); err != nil {
				return err
			}
			if len(out) != 2 || out[0].ID != uint32(i) || out[1].ID != uint32(i+100) {
				return fmt.Errorf("batch %d decoded as %+v", i, out)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestDecodeBatchRejectsGarbage(t *testing.T) {
	var out []domain.Post
	err := decodeBatch([]byte("not zstd"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decompressing batch")
}
