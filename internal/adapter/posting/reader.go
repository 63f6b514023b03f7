package posting

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
	"tagindex/internal/domain"
)

// Store is an opened, immutable posting store. All methods are safe for
// concurrent use.
type Store struct {
	dir      string
	manifest Manifest
	postings []uint32
	offsets  []uint32
}

// OpenOptions controls how a store is loaded.
type OpenOptions struct {
	// Verify checks artifact digests against the manifest.
	Verify bool
}

// Open loads the published store in dir. Both artifacts are read
// concurrently; sizes, digests (when requested) and every tag range are
// checked before the store is returned.
func Open(ctx context.Context, dir string, opts OpenOptions) (*Store, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	s := &Store{dir: dir, manifest: *manifest}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := readArray(dir, manifest.Postings, opts.Verify)
		if err != nil {
			return err
		}
		s.postings = values
		return nil
	})
	g.Go(func() error {
		values, err := readArray(dir, manifest.Offsets, opts.Verify)
		if err != nil {
			return err
		}
		s.offsets = values
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	slog.Default().With("component", "posting-reader").Debug("posting store opened",
		"dir", dir,
		"build_id", manifest.BuildID,
		"postings", len(s.postings),
		"max_tag_id", manifest.MaxTagID,
	)
	return s, nil
}

func readArray(dir string, art Artifact, verify bool) ([]uint32, error) {
	path := filepath.Join(dir, art.File)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s listed in manifest but missing", domain.ErrCorruptStore, art.File)
		}
		return nil, fmt.Errorf("reading %s: %w", art.File, err)
	}
	if int64(len(data)) != art.Bytes || len(data) != 4*art.Length {
		return nil, fmt.Errorf("%w: %s is %d bytes, manifest says %d bytes / %d values",
			domain.ErrCorruptStore, art.File, len(data), art.Bytes, art.Length)
	}
	if verify {
		sum := blake3.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != art.BLAKE3 {
			return nil, fmt.Errorf("%w: %s digest %s, manifest says %s", domain.ErrCorruptStore, art.File, got, art.BLAKE3)
		}
	}

	values := make([]uint32, art.Length)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return values, nil
}

// validate checks the offset table against the posting array: every
// non-empty range must lie inside postings and the ranges must add up to
// its length.
func (s *Store) validate() error {
	want := 2 * (int(s.manifest.MaxTagID) + 1)
	if len(s.offsets) != want {
		return fmt.Errorf("%w: offset table has %d entries, want %d", domain.ErrCorruptStore, len(s.offsets), want)
	}
	var total uint64
	for t := 0; t <= int(s.manifest.MaxTagID); t++ {
		start, end := s.offsets[2*t], s.offsets[2*t+1]
		n := RangeLen(start, end)
		if n == 0 {
			continue
		}
		if uint64(start)+uint64(n) > uint64(len(s.postings)) {
			return fmt.Errorf("%w: tag %d range [%d, %d] exceeds %d postings",
				domain.ErrCorruptStore, t, start, end, len(s.postings))
		}
		total += uint64(n)
	}
	if total != uint64(len(s.postings)) {
		return fmt.Errorf("%w: ranges cover %d postings, store holds %d", domain.ErrCorruptStore, total, len(s.postings))
	}
	return nil
}

// RangeLen decodes the length of an inclusive [start, end] range. Empty
// ranges are stored as start == end+1 in modular uint32 arithmetic, so a
// tag that is empty at position 0 reads (0, 0xFFFFFFFF).
func RangeLen(start, end uint32) uint32 {
	return end + 1 - start
}

func (s *Store) MaxTagID() uint32 {
	return s.manifest.MaxTagID
}

// Range returns the posting slice of tag id. The returned slice aliases
// the store and must not be modified.
func (s *Store) Range(id uint32) ([]uint32, bool) {
	slot := 2 * int(id)
	if id > s.manifest.MaxTagID || slot+1 >= len(s.offsets) {
		return nil, false
	}
	start, end := s.offsets[slot], s.offsets[slot+1]
	n := RangeLen(start, end)
	if n == 0 {
		return nil, true
	}
	lo := uint64(start)
	hi := lo + uint64(n)
	return s.postings[lo:hi:hi], true
}

func (s *Store) Manifest() Manifest {
	return s.manifest
}

func (s *Store) Dir() string {
	return s.dir
}

// Postings returns the flat posting array. Callers must not modify it.
func (s *Store) Postings() []uint32 {
	return s.postings
}

// Offsets returns the offset table. Callers must not modify it.
func (s *Store) Offsets() []uint32 {
	return s.offsets
}
