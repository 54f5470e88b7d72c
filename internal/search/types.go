// Package search implements hybrid retrieval over the three signals
// (lexical, vector, phonetic), fused with Reciprocal Rank Fusion,
// followed by structural context expansion, relationship graph
// walking and budgeted context assembly.
package search

import (
	"time"

	"github.com/stamzoek/stamzoek/internal/chunk"
	"github.com/stamzoek/stamzoek/internal/graph"
	"github.com/stamzoek/stamzoek/internal/signature"
)

// Stage records which retrieval stage produced a result. Direct hits
// outrank expansions, expansions outrank graph-derived context.
type Stage string

const (
	StageDirect    Stage = "direct"
	StageExpansion Stage = "expansion"
	StageGraph     Stage = "graph"
)

// Options controls a single query.
type Options struct {
	// Limit is the number of fused candidates to keep (K). Zero uses
	// the configured default.
	Limit int

	// DisableExpansion turns off structural context expansion for
	// this query.
	DisableExpansion bool

	// GraphHopLimit overrides the configured traversal depth when
	// non-negative. -1 keeps the configured value.
	GraphHopLimit int
}

// DefaultOptions returns options that defer everything to the engine
// configuration.
func DefaultOptions() Options {
	return Options{GraphHopLimit: -1}
}

// Result is one retrieved chunk with its provenance.
type Result struct {
	Chunk *chunk.Chunk
	Score float64
	Stage Stage

	// Ranks holds the 1-based rank per signal for direct hits; absent
	// signals are missing from the map.
	Ranks map[signature.Signal]int

	// MatchedTerms are the lexical trigrams that matched, when any.
	MatchedTerms []string

	// Trigger is the fingerprint of the direct hit that pulled this
	// chunk in, for expansion and graph results.
	Trigger string

	// Via is the relationship that led here, for graph results.
	Via graph.EdgeKind

	// Hops is the graph distance from the trigger, for graph results.
	Hops int

	// Entities are the disambiguated entities mentioned in the chunk.
	Entities []*graph.Entity
}

// Response is a complete query answer.
type Response struct {
	Query   string
	Results []*Result

	// Context is the assembled, budgeted context window.
	Context string

	// Degraded lists signals that failed and were left out of fusion.
	Degraded []signature.Signal

	// Notes carries human-readable degradation annotations.
	Notes []string

	Elapsed time.Duration
}

// Config carries the engine's retrieval tuning.
type Config struct {
	RRFConstant        int
	DefaultLimit       int
	MaxLimit           int
	ExpansionEnabled   bool
	ExpansionPenalty   float64
	ExpansionCap       int
	GraphHopLimit      int
	ContextBudgetChars int
}
