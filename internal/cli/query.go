package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"tagindex/internal/adapter/posting"
	"tagindex/internal/adapter/store"
	"tagindex/internal/domain"
	"tagindex/internal/port"
	"tagindex/internal/usecase"
)

var (
	queryJSON  bool
	queryIndex string
)

var queryCmd = &cobra.Command{
	Use:   "query TAG...",
	Short: "Find posts carrying every listed tag",
	Long: `Intersect the posting lists of the given tags. Tags are ids or, when a
parse cache is available, tag names. Prints each tag's post count, the
sorted intersection and the query time.

Examples:
  tagindex query -d ./data 470575 212816
  tagindex query -d ./data 1girl,solo --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().StringVar(&queryIndex, "index", "", "store directory (default from config, <dir>/index)")
}

type queryOutput struct {
	Tags   []domain.TagCount `json:"tags"`
	Posts  []uint32          `json:"posts"`
	Total  int               `json:"total"`
	TookMs float64           `json:"took_ms"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	dir := cfg.IndexDir()
	if queryIndex != "" {
		dir = queryIndex
	}
	st, err := posting.Open(cmd.Context(), dir, posting.OpenOptions{Verify: cfg.Index.Verify})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	var terms []string
	for _, a := range args {
		terms = append(terms, usecase.SplitTagList(a)...)
	}
	terms, err = resolveTagNames(terms, cfg.CacheDBPath())
	if err != nil {
		return err
	}
	ids, err := usecase.ParseTagIDs(terms, st.MaxTagID())
	if err != nil {
		return err
	}

	res, err := usecase.NewQueryUseCase(st).Query(cmd.Context(), ids)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if queryJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(queryOutput{
			Tags:   res.Tags,
			Posts:  res.Posts,
			Total:  len(res.Posts),
			TookMs: float64(res.Took.Microseconds()) / 1000,
		})
	}

	for _, t := range res.Tags {
		fmt.Fprintf(w, "%d: %d\n", t.ID, t.Count)
	}
	posts := make([]string, len(res.Posts))
	for i, p := range res.Posts {
		posts[i] = strconv.FormatUint(uint64(p), 10)
	}
	fmt.Fprintf(w, "[%s]\n", strings.Join(posts, " "))
	fmt.Fprintf(w, "%d posts, took %s\n", len(res.Posts), formatDuration(res.Took))
	return nil
}

// resolveTagNames replaces tag names with their ids. The parse cache is
// only opened when a non-numeric term is present.
func resolveTagNames(terms []string, cachePath string) ([]string, error) {
	var resolver port.TagResolver
	out := make([]string, len(terms))
	for i, term := range terms {
		if _, err := strconv.ParseInt(term, 10, 64); err == nil {
			out[i] = term
			continue
		}
		if resolver == nil {
			cache, err := store.Open(cachePath)
			if err != nil {
				return nil, fmt.Errorf("%w: tag %q is not an id and names cannot be resolved: %v", domain.ErrInvalidInput, term, err)
			}
			defer cache.Close()
			resolver = cache
		}
		id, ok, err := resolver.LookupTag(term)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: unknown tag name %q", domain.ErrInvalidInput, term)
		}
		out[i] = strconv.FormatUint(uint64(id), 10)
	}
	return out, nil
}
