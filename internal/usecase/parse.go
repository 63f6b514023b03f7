package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tagindex/internal/adapter/fs"
	"tagindex/internal/adapter/ingest"
	"tagindex/internal/adapter/store"
	"tagindex/internal/domain"
	"tagindex/internal/port"
)

// ByteProgressFunc reports how many input bytes have been consumed.
type ByteProgressFunc func(done, total int64)

// Inputs are the data files of one dataset, each list in processing order.
type Inputs struct {
	Tags  []port.FileInfo
	Posts []port.FileInfo
}

// All returns tag files followed by post files.
func (in Inputs) All() []port.FileInfo {
	all := make([]port.FileInfo, 0, len(in.Tags)+len(in.Posts))
	all = append(all, in.Tags...)
	return append(all, in.Posts...)
}

// ParseUseCase converts the JSON dumps of a data directory into a parse
// cache.
type ParseUseCase struct {
	tags   port.FileWalker
	posts  port.FileWalker
	logger *slog.Logger
}

// NewParseUseCase creates a parse use case. tags and posts select the
// catalog and corpus files respectively.
func NewParseUseCase(tags, posts port.FileWalker) *ParseUseCase {
	return &ParseUseCase{
		tags:   tags,
		posts:  posts,
		logger: slog.Default().With("component", "parser"),
	}
}

// ParseOptions controls a parse run.
type ParseOptions struct {
	DataDir   string
	CachePath string
	Force     bool
	BatchSize int
}

type ParseResult struct {
	Inputs   Inputs
	Stats    domain.CacheStats
	Bytes    int64
	Duration time.Duration
}

// FindInputs lists the tag and post files of dataDir. Both kinds must be
// present.
func (u *ParseUseCase) FindInputs(dataDir string) (Inputs, error) {
	var in Inputs
	var err error
	if in.Tags, err = u.tags.Walk(dataDir); err != nil {
		return in, fmt.Errorf("%w: listing tag files: %v", domain.ErrInputMissing, err)
	}
	if len(in.Tags) == 0 {
		return in, fmt.Errorf("%w: no tag files in %s", domain.ErrInputMissing, dataDir)
	}
	if in.Posts, err = u.posts.Walk(dataDir); err != nil {
		return in, fmt.Errorf("%w: listing post files: %v", domain.ErrInputMissing, err)
	}
	if len(in.Posts) == 0 {
		return in, fmt.Errorf("%w: no post files in %s", domain.ErrInputMissing, dataDir)
	}
	return in, nil
}

// Parse reads every input file into a fresh cache. A failed parse removes
// the partially written cache.
func (u *ParseUseCase) Parse(ctx context.Context, opts ParseOptions, progress ByteProgressFunc) (result *ParseResult, err error) {
	if progress == nil {
		progress = func(int64, int64) {}
	}
	start := time.Now()

	in, err := u.FindInputs(opts.DataDir)
	if err != nil {
		return nil, err
	}
	total := fs.TotalSize(in.All())

	cache, err := store.Create(opts.CachePath, opts.Force, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(opts.CachePath)
		}
	}()

	u.logger.Info("parsing inputs",
		"tag_files", len(in.Tags),
		"post_files", len(in.Posts),
		"bytes", total,
		"cache", opts.CachePath,
	)

	var done int64
	records := 0
	report := func(c *ingest.Counter) {
		records++
		if records%progressEvery == 0 {
			progress(done+c.Load(), total)
		}
	}

	for _, f := range in.Tags {
		var c ingest.Counter
		err := ingest.ReadTags(ctx, f.Path, &c, func(t domain.Tag) error {
			report(&c)
			return cache.PutTag(t)
		})
		if err != nil {
			return nil, fmt.Errorf("parsing tags: %w", err)
		}
		done += f.Size
		progress(done, total)
	}
	for _, f := range in.Posts {
		var c ingest.Counter
		err := ingest.ReadPosts(ctx, f.Path, &c, func(p domain.Post) error {
			report(&c)
			return cache.PutPost(p)
		})
		if err != nil {
			return nil, fmt.Errorf("parsing posts: %w", err)
		}
		done += f.Size
		progress(done, total)
	}

	if err := cache.Finish(store.ComputeInputHash(in.All())); err != nil {
		return nil, fmt.Errorf("finishing cache: %w", err)
	}

	result = &ParseResult{
		Inputs:   in,
		Stats:    cache.Stats(),
		Bytes:    total,
		Duration: time.Since(start),
	}
	u.logger.Info("inputs parsed",
		"tags", result.Stats.Tags,
		"posts", result.Stats.Posts,
		"refs", result.Stats.Refs,
		"max_tag_id", result.Stats.MaxTagID,
		"took", result.Duration,
	)
	return result, nil
}
