package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stamzoek/stamzoek/internal/ingest"
	"github.com/stamzoek/stamzoek/internal/store"
	"github.com/stamzoek/stamzoek/internal/watcher"
)

type watchOptions struct {
	dir      string
	debounce time.Duration
	offline  bool
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a drop directory and ingest documents as they arrive",
		Long: `Watch monitors the drop directory for OCR page files laid out as
<dir>/<document-id>/<page>.txt. File events are debounced so a batch
of pages copied in together triggers a single ingest of the whole
document. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "Drop directory (default: watch_dir from config)")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", watcher.DefaultDebounce, "Quiet window before a batch is ingested")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use the hash embedder instead of the configured model")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	dir := opts.dir
	if dir == "" {
		dir = cfg.Paths.WatchDir
	}
	if dir == "" {
		return fmt.Errorf("no drop directory: set --dir or watch_dir in the config")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("drop directory %s: %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta, lexical, vector, paths, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores(meta, lexical, vector, logger)

	embedder, err := newEmbedder(ctx, cfg, opts.offline, logger)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	runner, err := ingest.NewRunner(ingest.Dependencies{
		Metadata:    meta,
		Lexical:     lexical,
		Vector:      vector,
		Embedder:    embedder,
		Lock:        store.NewDirLock(paths.dataDir),
		PageWorkers: cfg.Ingest.PageWorkers,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	ingester := &savingIngester{runner: runner, vector: vector, path: paths.vectors}
	service := watcher.NewService(dir, ingester, opts.debounce, logger)

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (debounce %s), Ctrl-C to stop\n", dir, opts.debounce)
	err = service.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// savingIngester persists the vector index after each successful
// ingest so a crash between batches loses nothing.
type savingIngester struct {
	runner *ingest.Runner
	vector *store.HNSWStore
	path   string
}

func (s *savingIngester) Run(ctx context.Context, req ingest.Request) (*ingest.Report, error) {
	report, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.vector.Save(s.path); err != nil {
		return nil, fmt.Errorf("save vector index: %w", err)
	}
	return report, nil
}
