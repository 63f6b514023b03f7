package store

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"
	"go.etcd.io/bbolt"
	"tagindex/internal/domain"
	"tagindex/internal/port"
)

// CurrentSchemaVersion is the current cache schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyInputHash     = []byte("input_hash")
)

// SchemaInfo stores the schema version and a fingerprint of the inputs the
// cache was parsed from.
type SchemaInfo struct {
	Version   int
	InputHash string
}

// GetSchemaInfo retrieves the schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}

		if v := b.Get(keySchemaVersion); v != nil {
			n, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("%w: unreadable schema version %q", domain.ErrCacheSchemaMismatch, v)
			}
			info.Version = n
		}
		if v := b.Get(keyInputHash); v != nil {
			info.InputHash = string(v)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if err := b.Put(keySchemaVersion, []byte(strconv.Itoa(info.Version))); err != nil {
			return err
		}
		return b.Put(keyInputHash, []byte(info.InputHash))
	})
}

// CheckSchema fails with ErrCacheSchemaMismatch unless the cache was
// written by this schema version. Caches are never migrated in place;
// they are cheap to re-parse.
func (s *BoltStore) CheckSchema() error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}
	if info.Version != CurrentSchemaVersion {
		return fmt.Errorf("%w: cache %s has schema v%d, want v%d (re-run parse --force)",
			domain.ErrCacheSchemaMismatch, s.path, info.Version, CurrentSchemaVersion)
	}
	return nil
}

// ComputeInputHash fingerprints the input files a cache is parsed from.
// A changed fingerprint means the cache no longer reflects the inputs.
func ComputeInputHash(files []port.FileInfo) string {
	h := blake3.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", f.RelPath, f.Size, f.ModTime)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// Stale reports whether files differ from the inputs the cache was parsed
// from, and why.
func (s *BoltStore) Stale(files []port.FileInfo) (bool, string, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return false, "", err
	}
	if info.InputHash == "" {
		return false, "", nil
	}
	if got := ComputeInputHash(files); got != info.InputHash {
		return true, fmt.Sprintf("input files changed since parse (%s != %s)", got, info.InputHash), nil
	}
	return false, "", nil
}
