package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stamzoek/stamzoek/internal/ingest"
	"github.com/stamzoek/stamzoek/internal/store"
	"github.com/stamzoek/stamzoek/internal/watcher"
)

type ingestOptions struct {
	docID    string
	title    string
	language string
	offline  bool
}

func newIngestCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <document-dir>",
		Short: "Ingest a document directory of OCR page files",
		Long: `Ingest reads every numbered page file (1.txt, 2.txt, ...) from the
given directory, chunks the text along entry anchors, and computes the
lexical, vector and phonetic signatures. Re-ingesting is idempotent:
unchanged chunks are skipped, changed pages are re-signed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.docID, "doc-id", "", "Document identifier (default: directory name)")
	cmd.Flags().StringVar(&opts.title, "title", "", "Document title (default: document identifier)")
	cmd.Flags().StringVar(&opts.language, "language", "nld", "ISO 639 language of the source text")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use the hash embedder instead of the configured model")

	return cmd
}

func runIngest(cmd *cobra.Command, dir string, opts *ingestOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	pages, err := watcher.ReadDocumentPages(dir)
	if err != nil {
		return fmt.Errorf("read pages from %s: %w", dir, err)
	}
	if len(pages) == 0 {
		return fmt.Errorf("no page files (N.txt) found in %s", dir)
	}

	docID := opts.docID
	if docID == "" {
		docID = filepath.Base(filepath.Clean(dir))
	}
	title := opts.title
	if title == "" {
		title = docID
	}

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

	report, err := runner.Run(ctx, ingest.Request{
		Document: &store.Document{
			ID:       docID,
			Title:    title,
			Path:     dir,
			Language: opts.language,
		},
		Pages: pages,
	})
	if err != nil {
		return err
	}

	if err := vector.Save(paths.vectors); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}

	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, report *ingest.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingested %s: %d pages, %d chunks in %s\n",
		report.DocumentID, len(report.Pages), report.Chunks, report.Duration.Round(time.Millisecond))

	removed := 0
	for _, p := range report.Pages {
		removed += p.Removed
	}
	if removed > 0 {
		fmt.Fprintf(out, "%d superseded chunks removed\n", removed)
	}

	failures := report.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(out, "%d signal failures (run `stamzoek ingest` again or `stamzoek check --repair`):\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(out, "  %s %s: %s\n", f.ChunkID, f.Signal, strings.TrimSpace(f.Reason))
	}
}
