package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"tagindex/config"
	"tagindex/internal/adapter/fs"
	"tagindex/internal/usecase"
)

var parseForce bool

var parseCmd = &cobra.Command{
	Use:   "parse [data_dir]",
	Short: "Parse JSON dumps into the parse cache",
	Long: `Parse the tag and post dumps of a data directory into a parse cache
(.tagindex/cache.db by default). Inputs may be plain, .zst or .lz4
compressed line-delimited JSON.

Examples:
  tagindex parse ./data          # refuses to replace an existing cache
  tagindex parse ./data --force  # re-parse`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{dataDirArg: "true"},
	RunE:        runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().BoolVar(&parseForce, "force", false, "replace an existing parse cache")
}

func newParseUseCase(cfg *config.Config) *usecase.ParseUseCase {
	return usecase.NewParseUseCase(
		fs.NewWalker(cfg.Data.TagsPatterns, fs.DefaultExcludes),
		fs.NewWalker(cfg.Data.PostsPatterns, fs.DefaultExcludes),
	)
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	if err := config.EnsureDir(cfg.Data.Dir); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.DirName, err)
	}

	bar := newBar(-1, "[cyan]Parsing [reset]", true)
	progress := func(done, total int64) {
		if bar.GetMax64() != total {
			bar.ChangeMax64(total)
		}
		bar.Set64(done)
	}

	res, err := newParseUseCase(cfg).Parse(cmd.Context(), usecase.ParseOptions{
		DataDir:   cfg.Data.Dir,
		CachePath: cfg.CacheDBPath(),
		Force:     parseForce,
		BatchSize: cfg.Cache.BatchSize,
	}, progress)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nParse complete:\n")
	fmt.Fprintf(out, "  Input files:  %d (%s)\n", len(res.Inputs.All()), humanize.Bytes(uint64(res.Bytes)))
	fmt.Fprintf(out, "  Tags:         %s (max id %s)\n", humanize.Comma(int64(res.Stats.Tags)), humanize.Comma(int64(res.Stats.MaxTagID)))
	fmt.Fprintf(out, "  Posts:        %s\n", humanize.Comma(int64(res.Stats.Posts)))
	fmt.Fprintf(out, "  References:   %s\n", humanize.Comma(int64(res.Stats.Refs)))
	fmt.Fprintf(out, "  Took:         %s\n", formatDuration(res.Duration))
	fmt.Fprintf(out, "\nCache stored at: %s\n", cfg.CacheDBPath())
	return nil
}
