package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"tagindex/config"
	"tagindex/internal/adapter/posting"
	"tagindex/internal/usecase"
)

func main() {
	dataDir := flag.String("dir", ".", "data directory holding the store")
	indexDir := flag.String("index", "", "store directory (default from config)")
	query := flag.String("q", "", "comma separated tag ids to query")
	runs := flag.Int("n", 1000, "number of query executions")
	workers := flag.Int("c", 4, "concurrent workers")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./data -q \"470575,212816,13197\"")
		fmt.Println("\nMeasures:")
		fmt.Println("  1. Store load time (artifact read + validation)")
		fmt.Println("  2. Query latency percentiles under concurrency")
		fmt.Println("  3. Query throughput")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	dir := cfg.IndexDir()
	if *indexDir != "" {
		dir = *indexDir
	}

	ctx := context.Background()
	start := time.Now()
	st, err := posting.Open(ctx, dir, posting.OpenOptions{Verify: cfg.Index.Verify})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	loadTime := time.Since(start)

	ids, err := usecase.ParseTagIDs(usecase.SplitTagList(*query), st.MaxTagID())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid query: %v\n", err)
		os.Exit(1)
	}
	uc := usecase.NewQueryUseCase(st)

	fmt.Println("TAG QUERY BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Store:      %s\n", dir)
	fmt.Printf("Postings:   %d\n", len(st.Postings()))
	fmt.Printf("Max tag id: %d\n", st.MaxTagID())
	fmt.Printf("Load time:  %s\n", loadTime)
	fmt.Println()

	first, err := uc.Query(ctx, ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Query: %v\n", ids)
	fmt.Println(strings.Repeat("-", 70))
	for _, t := range first.Tags {
		fmt.Printf("  %d: %d posts\n", t.ID, t.Count)
	}
	fmt.Printf("  intersection: %d posts\n\n", len(first.Posts))

	var mu sync.Mutex
	latencies := make([]time.Duration, 0, *runs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*workers, 1))
	wall := time.Now()
	for i := 0; i < *runs; i++ {
		g.Go(func() error {
			res, err := uc.Query(gctx, ids)
			if err != nil {
				return err
			}
			mu.Lock()
			latencies = append(latencies, res.Took)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(wall)

	slices.Sort(latencies)
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("LATENCY (%d runs, %d workers):\n", *runs, *workers)
	fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
	fmt.Printf("  p90: %s\n", percentile(latencies, 0.90))
	fmt.Printf("  p99: %s\n", percentile(latencies, 0.99))
	fmt.Printf("  max: %s\n", percentile(latencies, 1))
	fmt.Printf("THROUGHPUT: %.0f queries/s\n", float64(len(latencies))/elapsed.Seconds())
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(p*float64(len(sorted)-1) + 0.5)
	return sorted[i]
}
