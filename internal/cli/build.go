package cli

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"tagindex/internal/adapter/posting"
	"tagindex/internal/adapter/store"
	"tagindex/internal/usecase"
)

var buildOut string

var buildCmd = &cobra.Command{
	Use:   "build [data_dir]",
	Short: "Build the posting store from the parse cache",
	Long: `Build the tag -> post posting store from the parse cache. The store is
written to <data_dir>/index unless --out is given; an existing store is
never replaced.

Examples:
  tagindex build ./data
  tagindex build ./data --out /srv/tagindex`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{dataDirArg: "true"},
	RunE:        runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "store directory (default from config, <data_dir>/index)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	cache, err := store.Open(cfg.CacheDBPath())
	if err != nil {
		return err
	}
	defer cache.Close()

	// Warn, but still build, when the inputs moved on since parse.
	if inputs, err := newParseUseCase(cfg).FindInputs(cfg.Data.Dir); err == nil {
		if stale, reason, err := cache.Stale(inputs.All()); err == nil && stale {
			slog.Warn("parse cache may be out of date, consider parse --force", "reason", reason)
		}
	}

	out := cfg.IndexDir()
	if buildOut != "" {
		out = buildOut
	}

	bars := &phaseBars{}
	res, err := usecase.NewBuildUseCase(posting.NewWriter(out)).Build(cmd.Context(), cache.Catalog(), cache, bars.update)
	bars.finish()
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	s := res.Stats
	m := res.Manifest
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nBuild complete:\n")
	fmt.Fprintf(w, "  Tags:            %s (max id %s, %s empty)\n", humanize.Comma(int64(s.Tags)), humanize.Comma(int64(s.MaxTagID)), humanize.Comma(int64(s.EmptyTags)))
	fmt.Fprintf(w, "  Posts:           %s\n", humanize.Comma(int64(s.Posts)))
	fmt.Fprintf(w, "  Postings:        %s (%s)\n", humanize.Comma(int64(s.Postings)), humanize.Bytes(uint64(m.Postings.Bytes)))
	fmt.Fprintf(w, "  Offsets:         %s (%s)\n", humanize.Comma(int64(m.Offsets.Length)), humanize.Bytes(uint64(m.Offsets.Bytes)))
	if s.CountMismatch > 0 {
		fmt.Fprintf(w, "  Recounted tags:  %s differed from the catalog\n", humanize.Comma(int64(s.CountMismatch)))
	}
	fmt.Fprintf(w, "  Recount:         %s\n", formatDuration(s.RecountTime))
	fmt.Fprintf(w, "  Allocate:        %s\n", formatDuration(s.AllocateTime))
	fmt.Fprintf(w, "  Fill:            %s\n", formatDuration(s.FillTime))
	fmt.Fprintf(w, "  Write:           %s\n", formatDuration(s.WriteTime))
	fmt.Fprintf(w, "\nStore %s published at: %s\n", m.BuildID, out)
	return nil
}
