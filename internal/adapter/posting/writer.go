package posting

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
	"tagindex/internal/domain"
)

// encodeChunk is the number of uint32 values encoded per write call.
const encodeChunk = 16 * 1024

// Writer publishes posting stores into a directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer that publishes into dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:    dir,
		logger: slog.Default().With("component", "posting-writer"),
	}
}

// Dir returns the destination directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write persists postings and offsets and publishes them. The artifacts
// are written into a staging directory next to dir and moved into place
// only when complete, manifest last, so a failed or crashed write never
// leaves a manifest behind. Unpublished leftovers of an earlier attempt
// are replaced.
func (w *Writer) Write(postings, offsets []uint32, maxTagID uint32, tags, posts int) (*Manifest, error) {
	if len(offsets) != 2*(int(maxTagID)+1) {
		return nil, fmt.Errorf("offset table has %d entries, want %d", len(offsets), 2*(int(maxTagID)+1))
	}
	parent := filepath.Dir(w.dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	if err := w.checkFree(); err != nil {
		return nil, err
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(w.dir)+".build-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)
	if err := os.Chmod(staging, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	postingsArt, err := writeArray(staging, PostingsFile, postings)
	if err != nil {
		return nil, err
	}
	offsetsArt, err := writeArray(staging, OffsetsFile, offsets)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Version:   FormatVersion,
		BuildID:   uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		MaxTagID:  maxTagID,
		Tags:      tags,
		Posts:     posts,
		Postings:  postingsArt,
		Offsets:   offsetsArt,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := writeFileSync(filepath.Join(staging, ManifestFile), data); err != nil {
		return nil, err
	}

	if err := w.publish(staging); err != nil {
		return nil, err
	}

	w.logger.Info("posting store published",
		"dir", w.dir,
		"build_id", manifest.BuildID,
		"postings", postingsArt.Length,
		"offsets", offsetsArt.Length,
	)
	return manifest, nil
}

func (w *Writer) checkFree() error {
	exists, err := Exists(w.dir)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrOutputExists, w.dir)
	}
	return nil
}

// publish moves a complete staging directory to w.dir. A missing
// destination is replaced by a single directory rename; an existing one
// without a manifest receives the artifacts one by one, manifest last.
func (w *Writer) publish(staging string) error {
	if err := w.checkFree(); err != nil {
		return err
	}
	if _, err := os.Stat(w.dir); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(staging, w.dir); err != nil {
			return fmt.Errorf("publishing %s: %w", w.dir, err)
		}
		return nil
	}

	for _, name := range []string{PostingsFile, OffsetsFile, ManifestFile} {
		os.Remove(filepath.Join(w.dir, name+tmpSuffix))
	}
	for _, name := range []string{PostingsFile, OffsetsFile, ManifestFile} {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(w.dir, name)); err != nil {
			return fmt.Errorf("publishing %s: %w", name, err)
		}
	}
	return nil
}

// writeArray encodes values into dir/name, hashing while streaming.
func writeArray(dir, name string, values []uint32) (Artifact, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return Artifact{}, fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	hasher := blake3.New()
	bw := bufio.NewWriterSize(io.MultiWriter(f, hasher), 1<<20)
	n, err := encodeUint32s(bw, values)
	if err != nil {
		return Artifact{}, fmt.Errorf("writing %s: %w", name, err)
	}
	if err := bw.Flush(); err != nil {
		return Artifact{}, fmt.Errorf("flushing %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		return Artifact{}, fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Artifact{}, fmt.Errorf("closing %s: %w", name, err)
	}

	return Artifact{
		File:   name,
		Length: len(values),
		Bytes:  n,
		BLAKE3: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func encodeUint32s(w io.Writer, values []uint32) (int64, error) {
	buf := make([]byte, 4*encodeChunk)
	var total int64
	for len(values) > 0 {
		n := min(len(values), encodeChunk)
		for i, v := range values[:n] {
			binary.LittleEndian.PutUint32(buf[4*i:], v)
		}
		written, err := w.Write(buf[:4*n])
		total += int64(written)
		if err != nil {
			return total, err
		}
		values = values[n:]
	}
	return total, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return f.Close()
}
