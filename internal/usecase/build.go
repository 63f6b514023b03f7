package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tagindex/internal/adapter/posting"
	"tagindex/internal/domain"
	"tagindex/internal/port"
)

const (
	PhaseRecount = "recount"
	PhaseFill    = "fill"

	// progressEvery is how many posts pass between progress callbacks.
	progressEvery = 1 << 14
)

// ProgressFunc is called while the builder scans the corpus.
type ProgressFunc func(phase string, done, total int)

// Index is a fully built, not yet persisted posting index.
type Index struct {
	Postings []uint32
	Offsets  []uint32
	MaxTagID uint32
	Stats    domain.BuildStats
}

// catalogIndex is the catalog resolved for one build.
type catalogIndex struct {
	order    []uint32
	advisory []uint32
	names    map[string]uint32
	maxTagID uint32
}

// BuildIndex runs the recount, offset allocation and fill passes over
// catalog and corpus. The result is deterministic for identical inputs.
func BuildIndex(ctx context.Context, catalog port.TagCatalog, corpus port.PostCorpus, progress ProgressFunc) (*Index, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}

	cat, err := loadCatalog(ctx, catalog)
	if err != nil {
		return nil, err
	}
	stats := domain.BuildStats{
		Tags:     len(cat.order),
		MaxTagID: cat.maxTagID,
	}
	slots := int(cat.maxTagID) + 1
	total := corpus.Len()

	// Recount pass. Counts are aggregated by tag id; the catalog's own
	// counts are only compared against the result.
	start := time.Now()
	counts := make([]uint32, slots)
	var refs uint64
	posts := 0
	err = corpus.EachPost(ctx, func(p domain.Post) error {
		for _, name := range p.Tags {
			id, ok := cat.names[name]
			if !ok {
				return &domain.UnknownTagError{PostID: p.ID, Name: name}
			}
			counts[id]++
		}
		refs += uint64(len(p.Tags))
		posts++
		if posts%progressEvery == 0 {
			progress(PhaseRecount, posts, total)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recount pass: %w", err)
	}
	progress(PhaseRecount, posts, total)
	if refs > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d postings exceed the uint32 offset range", domain.ErrInvalidInput, refs)
	}
	stats.Posts = posts
	stats.RecountTime = time.Since(start)

	// Offset allocation pass in catalog order. Ids missing from the
	// catalog keep the empty range (0, 0xFFFFFFFF).
	start = time.Now()
	offsets := make([]uint32, 2*slots)
	for t := 0; t < slots; t++ {
		offsets[2*t+1] = math.MaxUint32
	}
	var cursor uint32
	for i, id := range cat.order {
		offsets[2*int(id)] = cursor
		cursor += counts[id]
		offsets[2*int(id)+1] = cursor - 1
		if counts[id] == 0 {
			stats.EmptyTags++
		}
		if counts[id] != cat.advisory[i] {
			stats.CountMismatch++
		}
	}
	postings := make([]uint32, cursor)
	stats.Postings = int(cursor)
	stats.AllocateTime = time.Since(start)

	// Fill pass. fill[t] is how much of tag t's slice has been written.
	start = time.Now()
	fill := make([]uint32, slots)
	posts = 0
	err = corpus.EachPost(ctx, func(p domain.Post) error {
		for _, name := range p.Tags {
			id, ok := cat.names[name]
			if !ok {
				return &domain.UnknownTagError{PostID: p.ID, Name: name}
			}
			if fill[id] >= counts[id] {
				return fmt.Errorf("%w: tag %q has more references than counted", domain.ErrCorpusChanged, name)
			}
			postings[offsets[2*int(id)]+fill[id]] = p.ID
			fill[id]++
		}
		posts++
		if posts%progressEvery == 0 {
			progress(PhaseFill, posts, total)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fill pass: %w", err)
	}
	progress(PhaseFill, posts, total)
	for id := range fill {
		if fill[id] != counts[id] {
			return nil, fmt.Errorf("%w: tag %d filled %d of %d postings", domain.ErrCorpusChanged, id, fill[id], counts[id])
		}
	}
	stats.FillTime = time.Since(start)

	return &Index{
		Postings: postings,
		Offsets:  offsets,
		MaxTagID: cat.maxTagID,
		Stats:    stats,
	}, nil
}

func loadCatalog(ctx context.Context, catalog port.TagCatalog) (*catalogIndex, error) {
	cat := &catalogIndex{
		order:    make([]uint32, 0, catalog.Len()),
		advisory: make([]uint32, 0, catalog.Len()),
		names:    make(map[string]uint32, catalog.Len()),
	}
	err := catalog.EachTag(ctx, func(t domain.Tag) error {
		if prev, ok := cat.names[t.Name]; ok {
			return &domain.DuplicateTagError{ID: prev, Name: t.Name, Field: "name"}
		}
		cat.names[t.Name] = t.ID
		cat.order = append(cat.order, t.ID)
		cat.advisory = append(cat.advisory, t.PostCount)
		cat.maxTagID = max(cat.maxTagID, t.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	if len(cat.order) == 0 {
		return nil, fmt.Errorf("%w: tag catalog is empty", domain.ErrInputMissing)
	}

	seen := make([]bool, int(cat.maxTagID)+1)
	for _, id := range cat.order {
		if seen[id] {
			return nil, fmt.Errorf("loading catalog: %w", &domain.DuplicateTagError{ID: id, Field: "id"})
		}
		seen[id] = true
	}
	return cat, nil
}

// BuildUseCase builds a posting index and publishes it through a writer.
type BuildUseCase struct {
	writer *posting.Writer
	logger *slog.Logger
}

// NewBuildUseCase creates a build use case that publishes into writer's
// directory.
func NewBuildUseCase(writer *posting.Writer) *BuildUseCase {
	return &BuildUseCase{
		writer: writer,
		logger: slog.Default().With("component", "builder"),
	}
}

// BuildResult contains the outcome of a published build.
type BuildResult struct {
	Stats    domain.BuildStats
	Manifest *posting.Manifest
}

// Build refuses an occupied destination up front, builds the index in
// memory and publishes it only when every pass succeeded.
func (u *BuildUseCase) Build(ctx context.Context, catalog port.TagCatalog, corpus port.PostCorpus, progress ProgressFunc) (*BuildResult, error) {
	exists, err := posting.Exists(u.writer.Dir())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrOutputExists, u.writer.Dir())
	}

	u.logger.Info("building index", "tags", catalog.Len(), "posts", corpus.Len(), "dest", u.writer.Dir())

	idx, err := BuildIndex(ctx, catalog, corpus, progress)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	manifest, err := u.writer.Write(idx.Postings, idx.Offsets, idx.MaxTagID, idx.Stats.Tags, idx.Stats.Posts)
	if err != nil {
		return nil, fmt.Errorf("publishing index: %w", err)
	}
	idx.Stats.WriteTime = time.Since(start)

	u.logger.Info("index built",
		"tags", idx.Stats.Tags,
		"max_tag_id", idx.Stats.MaxTagID,
		"posts", idx.Stats.Posts,
		"postings", idx.Stats.Postings,
		"empty_tags", idx.Stats.EmptyTags,
		"count_mismatch", idx.Stats.CountMismatch,
	)
	if idx.Stats.CountMismatch > 0 {
		u.logger.Debug("catalog post counts differ from corpus", "tags", idx.Stats.CountMismatch)
	}

	return &BuildResult{Stats: idx.Stats, Manifest: manifest}, nil
}
