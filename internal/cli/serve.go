package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"tagindex/internal/adapter/cache"
	"tagindex/internal/adapter/posting"
	"tagindex/internal/port"
	"tagindex/internal/server"
	"tagindex/internal/usecase"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [data_dir]",
	Short: "Serve tag queries over HTTP",
	Long: `Load the posting store once and answer queries over HTTP:

  GET /v1/query?tags=1,2,3   intersection and per-tag counts
  GET /v1/stats              store manifest
  GET /healthz               liveness
  GET /metrics               Prometheus metrics`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{dataDirArg: "true"},
	RunE:        runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := posting.Open(ctx, cfg.IndexDir(), posting.OpenOptions{Verify: cfg.Index.Verify})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	metrics := server.NewMetrics()
	var querier port.Querier = usecase.NewQueryUseCase(st)
	if cfg.Serve.CacheSize > 0 {
		qc := cache.NewQueryCache(cfg.Serve.CacheSize, cfg.Serve.CacheTTL)
		metrics.RegisterCacheCounters(qc.Hits, qc.Misses)
		querier = cache.NewCachedQuerier(querier, qc)
	}

	opts := server.Options{
		Addr:         cfg.Serve.Addr,
		RateLimit:    cfg.Serve.RateLimit,
		Burst:        cfg.Serve.Burst,
		ReadTimeout:  cfg.Serve.ReadTimeout,
		WriteTimeout: cfg.Serve.WriteTimeout,
	}
	if serveAddr != "" {
		opts.Addr = serveAddr
	}

	srv := server.New(server.NewHandler(querier, st.Manifest(), metrics), opts)
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
