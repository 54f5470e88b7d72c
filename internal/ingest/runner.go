// Package ingest turns finalized OCR page text into indexed, signed
// chunks across the three signal indexes. Pages are independent units
// of work: chunk identity is content-derived and every store write is
// an upsert, so pages can be processed in parallel and re-ingested
// without creating duplicates.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/stamzoek/stamzoek/internal/anchor"
	"github.com/stamzoek/stamzoek/internal/chunk"
	"github.com/stamzoek/stamzoek/internal/embed"
	stamerrors "github.com/stamzoek/stamzoek/internal/errors"
	"github.com/stamzoek/stamzoek/internal/signature"
	"github.com/stamzoek/stamzoek/internal/store"
)

// Page is one unit of ingest work: finalized OCR text for a page.
type Page struct {
	Number int
	Text   string
}

// Request describes a document to ingest.
type Request struct {
	Document *store.Document
	Pages    []Page
}

// SignalFailure records a signature computation that did not complete.
type SignalFailure struct {
	ChunkID string
	Signal  signature.Signal
	Reason  string
}

// PageReport summarizes one page's ingest.
type PageReport struct {
	Page     int
	Created  int
	Updated  int
	Removed  int
	Failures []SignalFailure
}

// Report summarizes a document ingest.
type Report struct {
	DocumentID string
	Pages      []PageReport
	Chunks     int
	Duration   time.Duration
}

// Failures flattens the per-page failure lists.
func (r *Report) Failures() []SignalFailure {
	var out []SignalFailure
	for _, p := range r.Pages {
		out = append(out, p.Failures...)
	}
	return out
}

// Dependencies contains the injected collaborators for a Runner.
type Dependencies struct {
	Metadata store.MetadataStore
	Lexical  store.LexicalIndex
	Vector   store.VectorStore
	Embedder embed.Embedder

	// Lock guards the index directory against concurrent ingests.
	// Optional; in-memory setups run without one.
	Lock *store.DirLock

	Extractor *anchor.Extractor
	Chunker   *chunk.Chunker
	Builder   *signature.Builder

	// PageWorkers sizes the page worker pool. Zero means NumCPU/2.
	PageWorkers int

	Logger *slog.Logger
}

// Runner executes document ingests with page-level parallelism.
type Runner struct {
	meta     store.MetadataStore
	lexical  store.LexicalIndex
	vector   store.VectorStore
	embedder embed.Embedder
	lock     *store.DirLock

	extractor *anchor.Extractor
	chunker   *chunk.Chunker
	builder   *signature.Builder

	linker *entityLinker
	pool   *ants.Pool
	logger *slog.Logger
}

// NewRunner creates a Runner with injected dependencies. Extractor,
// Chunker and Builder default when nil.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if deps.Lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if deps.Vector == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	extractor := deps.Extractor
	if extractor == nil {
		extractor = anchor.NewExtractor(nil)
	}
	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.NewChunker(chunk.DefaultOptions())
	}
	builder := deps.Builder
	if builder == nil {
		builder = signature.NewBuilder(nil)
	}

	workers := deps.PageWorkers
	if workers < 1 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		meta:      deps.Metadata,
		lexical:   deps.Lexical,
		vector:    deps.Vector,
		embedder:  deps.Embedder,
		lock:      deps.Lock,
		extractor: extractor,
		chunker:   chunker,
		builder:   builder,
		linker:    newEntityLinker(deps.Metadata, logger),
		pool:      pool,
		logger:    logger,
	}, nil
}

// Close releases the worker pool.
func (r *Runner) Close() error {
	r.pool.Release()
	return nil
}

// Run ingests a document. Pages are processed concurrently; the report
// lists per-page chunk counts and every signal that could not be
// computed. Signature failures degrade the affected chunk's signal,
// they never abort the ingest.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()

	if req.Document == nil || req.Document.ID == "" {
		return nil, stamerrors.New(stamerrors.ErrCodeInvalidInput, "document identity is required")
	}
	for _, p := range req.Pages {
		if p.Number < 1 {
			return nil, stamerrors.New(stamerrors.ErrCodeInvalidPage,
				fmt.Sprintf("page number %d out of range", p.Number))
		}
	}

	if r.lock != nil {
		if err := r.lock.TryLock(); err != nil {
			return nil, err
		}
		defer func() {
			if err := r.lock.Unlock(); err != nil {
				r.logger.Warn("release ingest lock", "error", err)
			}
		}()
	}

	if err := r.checkEmbedderState(ctx); err != nil {
		return nil, err
	}

	doc := *req.Document
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}
	if doc.PageCount < len(req.Pages) {
		doc.PageCount = len(req.Pages)
	}
	if err := r.meta.SaveDocument(ctx, &doc); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		reports = make([]PageReport, 0, len(req.Pages))
		runErr  error
	)

	for _, page := range req.Pages {
		page := page
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			report, err := r.processPage(ctx, doc.ID, page)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if runErr == nil {
					runErr = err
				}
				return
			}
			reports = append(reports, *report)
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			if runErr == nil {
				runErr = fmt.Errorf("submit page %d: %w", page.Number, err)
			}
			mu.Unlock()
		}
	}
	wg.Wait()

	if runErr != nil {
		return nil, stamerrors.Wrap(runErr, stamerrors.ErrCodeIngestFailed, "ingest "+doc.ID)
	}

	if err := r.linker.LinkHierarchy(ctx, doc.ID); err != nil {
		r.logger.Warn("link entry hierarchy", "document", doc.ID, "error", err)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Page < reports[j].Page })

	total := 0
	for _, p := range reports {
		total += p.Created + p.Updated
	}
	report := &Report{
		DocumentID: doc.ID,
		Pages:      reports,
		Chunks:     total,
		Duration:   time.Since(start),
	}

	r.logger.Info("document ingested",
		"document", doc.ID,
		"pages", len(reports),
		"chunks", total,
		"failures", len(report.Failures()),
		"elapsed", report.Duration)
	return report, nil
}

// processPage runs the full pipeline for one page: anchor extraction,
// chunking, signature building and the three index upserts.
func (r *Runner) processPage(ctx context.Context, documentID string, page Page) (*PageReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &PageReport{Page: page.Number}

	spans := r.extractor.ExtractPage(page.Text, page.Number)
	chunks := r.chunker.ChunkPage(documentID, page.Number, spans)

	removed, err := r.reconcilePage(ctx, documentID, page.Number, chunks)
	if err != nil {
		return nil, err
	}
	report.Removed = removed

	if len(chunks) == 0 {
		return report, nil
	}

	// Classify before the upsert so re-ingests report updates, not
	// creations.
	fresh := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		existing, err := r.meta.GetSignalStatus(ctx, c.Fingerprint)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			fresh[c.Fingerprint] = true
			report.Created++
		} else {
			report.Updated++
		}
	}

	if err := r.meta.SaveChunks(ctx, chunks); err != nil {
		return nil, err
	}

	// Graph registration is best-effort: a failed mention leaves the
	// chunk reachable through the retrieval signals.
	for _, c := range chunks {
		if err := r.linker.LinkChunk(ctx, c); err != nil {
			r.logger.Warn("register entities", "chunk", c.Fingerprint, "error", err)
		}
	}

	var pending []*chunk.Chunk
	for _, c := range chunks {
		needed, err := r.chunkNeedsSignals(ctx, c.Fingerprint, fresh[c.Fingerprint])
		if err != nil {
			return nil, err
		}
		sig := r.builder.Build(c)

		if needed[signature.SignalLexical] {
			if err := r.indexLexical(ctx, c); err != nil {
				report.Failures = append(report.Failures, SignalFailure{
					ChunkID: c.Fingerprint, Signal: signature.SignalLexical, Reason: err.Error(),
				})
				r.markFailed(ctx, c.Fingerprint, signature.SignalLexical, err)
			} else {
				r.markComputed(ctx, c.Fingerprint, signature.SignalLexical)
			}
		}

		if needed[signature.SignalPhonetic] {
			if err := r.meta.SavePhoneticCodes(ctx, c.Fingerprint, sig.PhoneticCodes); err != nil {
				report.Failures = append(report.Failures, SignalFailure{
					ChunkID: c.Fingerprint, Signal: signature.SignalPhonetic, Reason: err.Error(),
				})
				r.markFailed(ctx, c.Fingerprint, signature.SignalPhonetic, err)
			} else {
				r.markComputed(ctx, c.Fingerprint, signature.SignalPhonetic)
			}
		}

		if needed[signature.SignalVector] {
			pending = append(pending, c)
		}
	}

	r.embedChunks(ctx, pending, report)
	return report, nil
}

// reconcilePage drops chunks an earlier ingest wrote for this page
// whose text no longer occurs in the new chunk set. Chunk identity is
// content-derived, so a corrected page produces fresh fingerprints at
// the same ordinals; the previous rows would collide on
// (document, page, ordinal) and keep serving stale text from all three
// indexes. Re-ingesting unchanged text removes nothing.
func (r *Runner) reconcilePage(ctx context.Context, documentID string, page int, chunks []*chunk.Chunk) (int, error) {
	existing, err := r.meta.GetChunksByPage(ctx, documentID, page)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}

	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.Fingerprint] = true
	}
	var stale []string
	for _, c := range existing {
		if !keep[c.Fingerprint] {
			stale = append(stale, c.Fingerprint)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := r.lexical.Delete(ctx, stale); err != nil {
		return 0, fmt.Errorf("drop stale lexical entries: %w", err)
	}
	if err := r.vector.Delete(ctx, stale); err != nil {
		return 0, fmt.Errorf("drop stale vectors: %w", err)
	}
	// Phonetic codes, signal status and mentions cascade with the rows.
	if err := r.meta.DeleteChunks(ctx, stale); err != nil {
		return 0, fmt.Errorf("drop stale chunks: %w", err)
	}
	r.logger.Debug("page reconciled",
		"document", documentID, "page", page, "removed", len(stale))
	return len(stale), nil
}

// chunkNeedsSignals decides which signals to (re)compute. A chunk with
// a complete computed set is a no-op; partial or retryable states are
// attempted again.
func (r *Runner) chunkNeedsSignals(ctx context.Context, fingerprint string, fresh bool) (map[signature.Signal]bool, error) {
	needed := make(map[signature.Signal]bool, len(signature.Signals))
	if fresh {
		for _, s := range signature.Signals {
			needed[s] = true
		}
		return needed, nil
	}

	statuses, err := r.meta.GetSignalStatus(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	for _, s := range signature.Signals {
		status, ok := statuses[s]
		if !ok || status.NeedsWork() {
			needed[s] = true
		}
	}
	return needed, nil
}

func (r *Runner) indexLexical(ctx context.Context, c *chunk.Chunk) error {
	return r.lexical.Index(ctx, []*store.LexicalDoc{{ID: c.Fingerprint, Content: c.Text}})
}

// embedChunks embeds a page's pending chunks in one batch. An embedding
// failure marks every chunk in the batch; trigram and phonetic signals
// are untouched, so the chunks stay searchable through those.
func (r *Runner) embedChunks(ctx context.Context, chunks []*chunk.Chunk, report *PageReport) {
	if len(chunks) == 0 {
		return
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		ids[i] = c.Fingerprint
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(chunks) {
		err = r.vector.Add(ctx, ids, vectors)
	} else if err == nil {
		err = fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err != nil {
		for _, c := range chunks {
			report.Failures = append(report.Failures, SignalFailure{
				ChunkID: c.Fingerprint, Signal: signature.SignalVector, Reason: err.Error(),
			})
			r.markFailed(ctx, c.Fingerprint, signature.SignalVector, err)
		}
		return
	}
	for _, c := range chunks {
		r.markComputed(ctx, c.Fingerprint, signature.SignalVector)
	}
}

func (r *Runner) markComputed(ctx context.Context, fingerprint string, sig signature.Signal) {
	if err := r.meta.SetSignalStatus(ctx, fingerprint, sig, signature.StatusComputed, ""); err != nil {
		r.logger.Warn("record signal status", "chunk", fingerprint, "signal", string(sig), "error", err)
	}
}

func (r *Runner) markFailed(ctx context.Context, fingerprint string, sig signature.Signal, cause error) {
	status := signature.StatusFailedPermanent
	if stamerrors.IsRetryable(cause) || ctx.Err() != nil {
		status = signature.StatusFailedRetryable
	}
	if err := r.meta.SetSignalStatus(ctx, fingerprint, sig, status, cause.Error()); err != nil {
		r.logger.Warn("record signal status", "chunk", fingerprint, "signal", string(sig), "error", err)
	}
}

// checkEmbedderState guards against silently mixing vectors from
// different models in one index. The first ingest records the model;
// later ingests must match it.
func (r *Runner) checkEmbedderState(ctx context.Context) error {
	model, err := r.meta.GetState(ctx, store.StateKeyEmbedModel)
	if err != nil {
		return err
	}
	current := r.embedder.ModelName()
	if model == "" {
		if err := r.meta.SetState(ctx, store.StateKeyEmbedModel, current); err != nil {
			return err
		}
		return r.meta.SetState(ctx, store.StateKeyEmbedDimensions,
			fmt.Sprintf("%d", r.embedder.Dimensions()))
	}
	if model != current {
		return stamerrors.New(stamerrors.ErrCodeDimMismatch,
			fmt.Sprintf("vector index was built with model %s, embedder is %s; rebuild required", model, current))
	}
	return nil
}
