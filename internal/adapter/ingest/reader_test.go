package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tagindex/internal/domain"
)

const postsJSONL = `{"id": 10, "tag_string": "a b"}
{"id": 11, "tag_string": "a"}

{"id": 12, "tag_string": "b  b a b"}
`

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write(data)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func lz4Bytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func collectPosts(t *testing.T, path string, counter *Counter) []domain.Post {
	t.Helper()
	var posts []domain.Post
	err := ReadPosts(context.Background(), path, counter, func(p domain.Post) error {
		posts = append(posts, p)
		return nil
	})
	require.NoError(t, err)
	return posts
}

func TestReadPosts_CompressionVariants(t *testing.T) {
	dir := t.TempDir()
	want := []domain.Post{
		{ID: 10, Tags: []string{"a", "b"}},
		{ID: 11, Tags: []string{"a"}},
		{ID: 12, Tags: []string{"b", "a"}},
	}

	files := map[string][]byte{
		"posts.json":     []byte(postsJSONL),
		"posts.json.zst": zstdBytes(t, []byte(postsJSONL)),
		"posts.json.lz4": lz4Bytes(t, []byte(postsJSONL)),
	}
	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, name, data)
			var counter Counter
			assert.Equal(t, want, collectPosts(t, path, &counter))
			assert.Positive(t, counter.Load())
			assert.LessOrEqual(t, counter.Load(), int64(len(data)))
		})
	}
}

func TestReadTags(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tags.json", []byte(
		`{"id": 1, "post_count": 5, "name": "b"}
{"id": 0, "post_count": 7, "name": "a", "category": 0}
`))

	var tags []domain.Tag
	err := ReadTags(context.Background(), path, nil, func(tag domain.Tag) error {
		tags = append(tags, tag)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.Tag{
		{ID: 1, PostCount: 5, Name: "b"},
		{ID: 0, PostCount: 7, Name: "a"},
	}, tags)
}

func TestMalformedLinesReportPosition(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data string
		line int
	}{
		{"bad json", "{\"id\": 1, \"tag_string\": \"a\"}\n{\"id\": 2,\n", 2},
		{"missing id", "{\"tag_string\": \"a\"}\n", 1},
		{"negative id", "\n\n{\"id\": -3, \"tag_string\": \"a\"}\n", 3},
		{"oversized id", "{\"id\": 4294967296, \"tag_string\": \"a\"}\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "posts.json", []byte(tt.data))
			err := ReadPosts(context.Background(), path, nil, func(domain.Post) error { return nil })

			var lineErr *LineError
			require.True(t, errors.As(err, &lineErr), "got %v", err)
			assert.Equal(t, tt.line, lineErr.Line)
			assert.Equal(t, path, lineErr.Path)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestReadTags_RequiresName(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tags.json", []byte(`{"id": 3, "post_count": 1}`))
	err := ReadTags(context.Background(), path, nil, func(domain.Tag) error { return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCallbackErrorStopsScan(t *testing.T) {
	path := writeFile(t, t.TempDir(), "posts.json", []byte(postsJSONL))
	stop := errors.New("stop")
	calls := 0
	err := ReadPosts(context.Background(), path, nil, func(domain.Post) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.json"), nil)
	assert.ErrorIs(t, err, domain.ErrInputMissing)
}

func TestSplitTagString(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitTagString(" a b  a c b "))
	assert.Empty(t, SplitTagString("   "))
	assert.Equal(t, []string{"solo"}, SplitTagString("solo"))
}
