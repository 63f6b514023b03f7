// Package ingest decodes the line-delimited JSON tag and post dumps,
// transparently decompressing .zst and .lz4 files.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"tagindex/internal/domain"
)

// maxLineBytes bounds a single JSON line. Post lines carry the full tag
// string and can be long.
const maxLineBytes = 16 << 20

type tagLine struct {
	ID        *int64 `json:"id"`
	PostCount int64  `json:"post_count"`
	Name      string `json:"name"`
}

type postLine struct {
	ID        *int64 `json:"id"`
	TagString string `json:"tag_string"`
}

// LineError locates a malformed input line.
type LineError struct {
	Path string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Counter reports how many compressed bytes have been consumed so far.
// It is safe to read from another goroutine.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Load() int64 {
	if c == nil {
		return 0
	}
	return c.n.Load()
}

type countingReader struct {
	r io.Reader
	c *Counter
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if r.c != nil {
		r.c.n.Add(int64(n))
	}
	return n, err
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

// Open opens path for reading, decompressing by extension. Bytes read from
// disk are added to counter when it is non-nil.
func Open(path string, counter *Counter) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInputMissing, path)
		}
		return nil, err
	}
	src := &countingReader{r: f, c: counter}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(src)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening zstd stream %s: %w", path, err)
		}
		return &readCloser{Reader: dec, close: func() error {
			dec.Close()
			return f.Close()
		}}, nil
	case ".lz4":
		return &readCloser{Reader: lz4.NewReader(src), close: f.Close}, nil
	default:
		return &readCloser{Reader: src, close: f.Close}, nil
	}
}

// eachLine calls fn with every non-blank line of path and its 1-based
// line number.
func eachLine(ctx context.Context, path string, counter *Counter, fn func(line []byte, n int) error) error {
	rc, err := Open(path, counter)
	if err != nil {
		return err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(line, n); err != nil {
			return &LineError{Path: path, Line: n, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return &LineError{Path: path, Line: n + 1, Err: err}
	}
	return ctx.Err()
}

func checkID(id *int64, what string) (uint32, error) {
	if id == nil {
		return 0, fmt.Errorf("%w: %s without id", domain.ErrInvalidInput, what)
	}
	if *id < 0 || *id > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s id %d outside uint32", domain.ErrInvalidInput, what, *id)
	}
	return uint32(*id), nil
}

// ReadTags decodes the tag catalog lines of path in file order.
func ReadTags(ctx context.Context, path string, counter *Counter, fn func(domain.Tag) error) error {
	return eachLine(ctx, path, counter, func(line []byte, _ int) error {
		var rec tagLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		id, err := checkID(rec.ID, "tag")
		if err != nil {
			return err
		}
		if rec.Name == "" {
			return fmt.Errorf("%w: tag %d has no name", domain.ErrInvalidInput, id)
		}
		count := rec.PostCount
		if count < 0 || count > math.MaxUint32 {
			count = 0
		}
		return fn(domain.Tag{ID: id, PostCount: uint32(count), Name: rec.Name})
	})
}

// ReadPosts decodes the post lines of path in file order.
func ReadPosts(ctx context.Context, path string, counter *Counter, fn func(domain.Post) error) error {
	return eachLine(ctx, path, counter, func(line []byte, _ int) error {
		var rec postLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		id, err := checkID(rec.ID, "post")
		if err != nil {
			return err
		}
		return fn(domain.Post{ID: id, Tags: SplitTagString(rec.TagString)})
	})
}

// SplitTagString splits a space separated tag string, dropping repeats
// while keeping first occurrence order.
func SplitTagString(s string) []string {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return fields
	}
	out := fields[:0]
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
