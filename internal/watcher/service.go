package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stamzoek/stamzoek/internal/ingest"
	"github.com/stamzoek/stamzoek/internal/store"
)

// DefaultDebounce is the default event coalescing window. OCR writes
// a page file in one shot, so a short window is enough to batch a
// multi-page drop.
const DefaultDebounce = 2 * time.Second

// Ingester runs a document ingest. Satisfied by *ingest.Runner.
type Ingester interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Report, error)
}

// Service watches a drop directory and ingests documents as their
// page files appear.
type Service struct {
	dir      string
	ingester Ingester
	debounce time.Duration
	logger   *slog.Logger
}

// NewService creates a watch service over the given drop directory.
func NewService(dir string, ingester Ingester, debounce time.Duration, logger *slog.Logger) *Service {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, ingester: ingester, debounce: debounce, logger: logger}
}

// Run watches until the context is cancelled. Ingest failures are
// logged and watching continues; only a watcher setup failure is
// returned.
func (s *Service) Run(ctx context.Context) error {
	w, err := NewDropWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx, s.dir); err != nil {
		return err
	}

	d := NewDebouncer(s.debounce)
	defer d.Stop()

	s.logger.Info("watching drop directory", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			d.Add(ev)
		case batch, ok := <-d.Output():
			if !ok {
				return nil
			}
			s.ingestBatch(ctx, batch)
		}
	}
}

// ingestBatch groups page events by document and ingests each
// affected document's pages.
func (s *Service) ingestBatch(ctx context.Context, batch []FileEvent) {
	docs := make(map[string]bool)
	for _, ev := range batch {
		if ev.Operation == OpDelete {
			continue
		}
		docID, _, ok := ParsePagePath(s.dir, ev.Path)
		if !ok {
			s.logger.Warn("ignoring file outside document layout", "path", ev.Path)
			continue
		}
		docs[docID] = true
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, docID := range ids {
		if err := s.ingestDocument(ctx, docID); err != nil {
			s.logger.Warn("ingest from drop directory failed", "document", docID, "error", err)
		}
	}
}

// ingestDocument reads every page file currently present for the
// document and runs a full (idempotent) ingest of it.
func (s *Service) ingestDocument(ctx context.Context, docID string) error {
	pages, err := ReadDocumentPages(filepath.Join(s.dir, docID))
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}

	report, err := s.ingester.Run(ctx, ingest.Request{
		Document: &store.Document{
			ID:       docID,
			Title:    docID,
			Path:     filepath.Join(s.dir, docID),
			Language: "nld",
		},
		Pages: pages,
	})
	if err != nil {
		return err
	}

	s.logger.Info("ingested dropped document",
		"document", docID,
		"pages", len(report.Pages),
		"chunks", report.Chunks,
		"failures", len(report.Failures()))
	return nil
}

// ParsePagePath resolves a page file path against the drop directory
// layout <root>/<document>/<page>.txt.
func ParsePagePath(root, path string) (docID string, page int, ok bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", 0, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || !strings.HasSuffix(parts[1], ".txt") {
		return "", 0, false
	}
	page, err = strconv.Atoi(strings.TrimSuffix(parts[1], ".txt"))
	if err != nil || page < 1 {
		return "", 0, false
	}
	return parts[0], page, true
}

// ReadDocumentPages loads every <page>.txt in a document directory,
// ordered by page number.
func ReadDocumentPages(dir string) ([]ingest.Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var pages []ingest.Page
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".txt"))
		if err != nil || num < 1 {
			continue
		}
		text, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		pages = append(pages, ingest.Page{Number: num, Text: string(text)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}
