package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stamzoek/stamzoek/internal/embed"
	stamerrors "github.com/stamzoek/stamzoek/internal/errors"
	"github.com/stamzoek/stamzoek/internal/graph"
	"github.com/stamzoek/stamzoek/internal/signature"
	"github.com/stamzoek/stamzoek/internal/store"
	"github.com/stamzoek/stamzoek/internal/telemetry"
)

// candidatePoolMultiplier widens each signal's ranking before fusion
// so a chunk ranked low by one signal can still be rescued by another.
const candidatePoolMultiplier = 3

// ErrNilDependency is returned when NewEngine is called without a
// required collaborator.
var ErrNilDependency = errors.New("nil dependency")

// Engine runs hybrid queries across the three signal indexes.
type Engine struct {
	lexical  store.LexicalIndex
	vector   store.VectorStore
	meta     store.MetadataStore
	embedder embed.Embedder

	fusion    *Fusion
	expander  *Expander
	assembler *Assembler
	walker    *graph.Walker

	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// EngineOption customizes Engine construction.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches local query telemetry.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithConfig overrides the retrieval tuning.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// DefaultConfig returns retrieval tuning suitable for typical books.
func DefaultConfig() Config {
	return Config{
		RRFConstant:        DefaultRRFConstant,
		DefaultLimit:       10,
		MaxLimit:           100,
		ExpansionEnabled:   true,
		ExpansionPenalty:   0.5,
		ExpansionCap:       3,
		GraphHopLimit:      1,
		ContextBudgetChars: 8000,
	}
}

// NewEngine wires up a search engine. All four collaborators are
// required; the embedder may still be the hash fallback.
func NewEngine(lexical store.LexicalIndex, vector store.VectorStore, meta store.MetadataStore, embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector store", ErrNilDependency)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: metadata store", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}

	e := &Engine{
		lexical:  lexical,
		vector:   vector,
		meta:     meta,
		embedder: embedder,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.fusion = NewFusion(e.cfg.RRFConstant)
	e.expander = NewExpander(meta, e.cfg.ExpansionPenalty, e.cfg.ExpansionCap)
	e.assembler = NewAssembler(meta, e.cfg.ContextBudgetChars)
	e.walker = graph.NewWalker(meta, e.cfg.GraphHopLimit)
	return e, nil
}

// Query runs the full pipeline: parallel signal search, fusion,
// structural expansion, graph walking and context assembly. Signal
// failures degrade the result set instead of failing the query; only
// all three signals failing is an error. A context canceled after
// fusion yields the results of the completed stages with a note, not
// an error.
func (e *Engine) Query(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, stamerrors.New(stamerrors.ErrCodeQueryEmpty, "query is empty")
	}

	limit := opts.Limit
	if limit < 1 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}

	resp := &Response{Query: query}

	candidates, err := e.parallelSearch(ctx, query, limit*candidatePoolMultiplier, resp)
	if err != nil {
		return nil, err
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	direct, err := e.loadDirect(ctx, candidates)
	if err != nil {
		if canceled(err) {
			resp.Notes = append(resp.Notes, "query canceled before results were loaded")
			return e.finish(resp, nil, start), nil
		}
		return nil, err
	}
	results := direct

	if e.cfg.ExpansionEnabled && !opts.DisableExpansion {
		expanded, err := e.expander.Expand(ctx, direct)
		if err != nil {
			if canceled(err) {
				resp.Notes = append(resp.Notes, "query canceled during expansion; returning direct hits")
				return e.finish(resp, results, start), nil
			}
			return nil, stamerrors.Wrap(err, stamerrors.ErrCodeRetrievalFailed, "context expansion")
		}
		results = append(results, expanded...)
	}

	hopLimit := e.cfg.GraphHopLimit
	if opts.GraphHopLimit >= 0 {
		hopLimit = opts.GraphHopLimit
	}
	if hopLimit > 0 {
		related, err := e.walkGraph(ctx, direct, results, hopLimit)
		if err != nil {
			if canceled(err) {
				resp.Notes = append(resp.Notes, "query canceled during relationship walk")
				return e.finish(resp, results, start), nil
			}
			return nil, err
		}
		results = append(results, related...)
	}

	window, err := e.assembler.Assemble(ctx, results)
	if err != nil {
		if canceled(err) {
			resp.Notes = append(resp.Notes, "query canceled during context assembly")
			return e.finish(resp, results, start), nil
		}
		return nil, stamerrors.Wrap(err, stamerrors.ErrCodeRetrievalFailed, "context assembly")
	}
	resp.Context = window

	return e.finish(resp, results, start), nil
}

// finish seals a response and records query telemetry.
func (e *Engine) finish(resp *Response, results []*Result, start time.Time) *Response {
	resp.Results = results
	resp.Elapsed = time.Since(start)

	if e.metrics != nil {
		e.metrics.Record(telemetry.QueryEvent{
			Query:       resp.Query,
			ResultCount: len(results),
			Degraded:    len(resp.Degraded),
			Latency:     resp.Elapsed,
		})
	}

	e.logger.Debug("query complete",
		"query", resp.Query,
		"results", len(results),
		"degraded", len(resp.Degraded),
		"notes", len(resp.Notes),
		"elapsed", resp.Elapsed)
	return resp
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// parallelSearch runs the three signals concurrently. Each signal
// captures its own error so one failure never cancels the others;
// failed signals are recorded on the response and skipped in fusion.
func (e *Engine) parallelSearch(ctx context.Context, query string, pool int, resp *Response) ([]*Candidate, error) {
	var (
		lexResults  []*store.LexicalResult
		vecResults  []*store.VectorResult
		phonResults []*store.PhoneticResult
		lexErr      error
		vecErr      error
		phonErr     error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lexResults, lexErr = e.lexical.Search(gctx, query, pool)
		return nil
	})

	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, query)
		if err != nil {
			vecErr = err
			return nil
		}
		vecResults, vecErr = e.vector.Search(gctx, vec, pool)
		return nil
	})

	g.Go(func() error {
		codes := signature.QueryCodes(query)
		if len(codes) == 0 {
			return nil
		}
		phonResults, phonErr = e.meta.SearchPhonetic(gctx, codes, pool)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		signal signature.Signal
		err    error
	}{
		{signature.SignalLexical, lexErr},
		{signature.SignalVector, vecErr},
		{signature.SignalPhonetic, phonErr},
	} {
		if f.err == nil {
			continue
		}
		resp.Degraded = append(resp.Degraded, f.signal)
		resp.Notes = append(resp.Notes, fmt.Sprintf("%s signal unavailable: %v", f.signal, f.err))
		e.logger.Warn("signal degraded", "signal", string(f.signal), "error", f.err)
	}

	if lexErr != nil && vecErr != nil && phonErr != nil {
		joined := stamerrors.Wrap(errors.Join(lexErr, vecErr, phonErr),
			stamerrors.ErrCodeRetrievalFailed, "all retrieval signals failed")
		return nil, joined
	}

	if lexErr != nil {
		lexResults = nil
	}
	if vecErr != nil {
		vecResults = nil
	}
	if phonErr != nil {
		phonResults = nil
	}
	rankPhonetic(phonResults, lexResults)
	return e.fusion.Fuse(lexResults, vecResults, phonResults), nil
}

// rankPhonetic orders phonetic hits by shared code count, breaking
// ties with the lexical score so that among equally matched spellings
// the textually closer chunk ranks first, then by chunk id.
func rankPhonetic(phon []*store.PhoneticResult, lex []*store.LexicalResult) {
	if len(phon) < 2 {
		return
	}
	scores := make(map[string]float64, len(lex))
	for _, l := range lex {
		scores[l.ChunkID] = l.Score
	}
	sort.SliceStable(phon, func(i, j int) bool {
		if phon[i].Matches != phon[j].Matches {
			return phon[i].Matches > phon[j].Matches
		}
		if scores[phon[i].ChunkID] != scores[phon[j].ChunkID] {
			return scores[phon[i].ChunkID] > scores[phon[j].ChunkID]
		}
		return phon[i].ChunkID < phon[j].ChunkID
	})
}

// loadDirect resolves fused candidates to chunks. Candidates whose
// chunk has been deleted since indexing are dropped, not failed.
func (e *Engine) loadDirect(ctx context.Context, candidates []*Candidate) ([]*Result, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	chunks, err := e.meta.GetChunks(ctx, ids)
	if err != nil {
		return nil, stamerrors.Wrap(err, stamerrors.ErrCodeRetrievalFailed, "load fused candidates")
	}
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.Fingerprint] = i
	}

	results := make([]*Result, 0, len(candidates))
	for _, c := range candidates {
		i, ok := byID[c.ChunkID]
		if !ok {
			e.logger.Warn("fused candidate missing from metadata", "chunk", c.ChunkID)
			continue
		}
		results = append(results, &Result{
			Chunk:        chunks[i],
			Score:        c.Score,
			Stage:        StageDirect,
			Ranks:        c.Ranks,
			MatchedTerms: c.MatchedTerms,
		})
	}
	return results, nil
}

// walkGraph seeds the relationship walker with the entities mentioned
// in the direct hits and returns chunks reached through family edges
// that the earlier stages did not already surface.
func (e *Engine) walkGraph(ctx context.Context, direct, existing []*Result, hopLimit int) ([]*Result, error) {
	walker := e.walker
	if hopLimit != e.cfg.GraphHopLimit {
		walker = graph.NewWalker(e.meta, hopLimit)
	}

	seedSet := make(map[string]bool)
	triggerByEntity := make(map[string]string)
	for _, r := range direct {
		entities, err := e.meta.EntitiesForChunk(ctx, r.Chunk.Fingerprint)
		if err != nil {
			return nil, stamerrors.Wrap(err, stamerrors.ErrCodeRetrievalFailed, "load chunk entities")
		}
		r.Entities = entities
		for _, ent := range entities {
			if !seedSet[ent.ID] {
				seedSet[ent.ID] = true
				triggerByEntity[ent.ID] = r.Chunk.Fingerprint
			}
		}
	}
	if len(seedSet) == 0 {
		return nil, nil
	}
	seeds := make([]string, 0, len(seedSet))
	for id := range seedSet {
		seeds = append(seeds, id)
	}
	sort.Strings(seeds)

	related, err := walker.Walk(ctx, seeds)
	if err != nil {
		if canceled(err) {
			return nil, err
		}
		return nil, stamerrors.Wrap(err, stamerrors.ErrCodeGraphWalkStopped, "relationship walk")
	}

	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.Chunk.Fingerprint] = true
	}

	var out []*Result
	for _, rel := range related {
		if seen[rel.ChunkID] {
			continue
		}
		seen[rel.ChunkID] = true
		c, err := e.meta.GetChunk(ctx, rel.ChunkID)
		if err != nil {
			if stamerrors.GetCode(err) == stamerrors.ErrCodeChunkNotFound {
				continue
			}
			return nil, stamerrors.Wrap(err, stamerrors.ErrCodeRetrievalFailed, "load related chunk")
		}
		out = append(out, &Result{
			Chunk:   c,
			Stage:   StageGraph,
			Via:     rel.Via,
			Hops:    rel.Hops,
			Trigger: triggerByEntity[rel.EntityID],
		})
	}
	return out, nil
}
