package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"tagindex/internal/adapter/posting"
	"tagindex/internal/adapter/store"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:         "stats [data_dir]",
	Short:       "Describe the posting store and parse cache",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{dataDirArg: "true"},
	RunE:        runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the store manifest as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	w := cmd.OutOrStdout()

	m, err := posting.ReadManifest(cfg.IndexDir())
	if err != nil {
		return err
	}
	if statsJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	fmt.Fprintf(w, "Store: %s\n", cfg.IndexDir())
	fmt.Fprintf(w, "  Build:       %s (format v%d)\n", m.BuildID, m.Version)
	fmt.Fprintf(w, "  Created:     %s (%s)\n", m.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(m.CreatedAt))
	fmt.Fprintf(w, "  Tags:        %s (max id %s)\n", humanize.Comma(int64(m.Tags)), humanize.Comma(int64(m.MaxTagID)))
	fmt.Fprintf(w, "  Posts:       %s\n", humanize.Comma(int64(m.Posts)))
	for _, a := range []posting.Artifact{m.Postings, m.Offsets} {
		fmt.Fprintf(w, "  %-12s %s values, %s, blake3 %.16s\n", a.File, humanize.Comma(int64(a.Length)), humanize.Bytes(uint64(a.Bytes)), a.BLAKE3)
	}

	cache, err := store.Open(cfg.CacheDBPath())
	if err != nil {
		fmt.Fprintf(w, "\nParse cache: unavailable (%v)\n", err)
		return nil
	}
	defer cache.Close()
	cs := cache.Stats()
	fmt.Fprintf(w, "\nParse cache: %s\n", cache.Path())
	fmt.Fprintf(w, "  Created:     %s\n", humanize.Time(cs.CreatedAt))
	fmt.Fprintf(w, "  Tags:        %s\n", humanize.Comma(int64(cs.Tags)))
	fmt.Fprintf(w, "  Posts:       %s (%s references)\n", humanize.Comma(int64(cs.Posts)), humanize.Comma(int64(cs.Refs)))
	return nil
}
