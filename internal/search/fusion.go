package search

import (
	"sort"

	"github.com/stamzoek/stamzoek/internal/signature"
	"github.com/stamzoek/stamzoek/internal/store"
)

// DefaultRRFConstant dampens the influence of top ranks. Higher values
// flatten the contribution curve.
const DefaultRRFConstant = 60

// Candidate is a fused ranking entry before chunks are loaded.
type Candidate struct {
	ChunkID      string
	Score        float64
	Ranks        map[signature.Signal]int
	MatchedTerms []string
}

// Fusion merges the three signal rankings with unweighted Reciprocal
// Rank Fusion. A chunk absent from a ranking contributes nothing for
// that signal.
type Fusion struct {
	k int
}

// NewFusion returns a Fusion with the given rank constant. Values
// below 1 fall back to DefaultRRFConstant.
func NewFusion(k int) *Fusion {
	if k < 1 {
		k = DefaultRRFConstant
	}
	return &Fusion{k: k}
}

// Fuse combines the rankings and returns candidates sorted by fused
// score descending, ties broken by chunk fingerprint ascending so the
// ordering is stable across runs.
func (f *Fusion) Fuse(lexical []*store.LexicalResult, vector []*store.VectorResult, phonetic []*store.PhoneticResult) []*Candidate {
	byID := make(map[string]*Candidate)

	get := func(id string) *Candidate {
		c, ok := byID[id]
		if !ok {
			c = &Candidate{ChunkID: id, Ranks: make(map[signature.Signal]int)}
			byID[id] = c
		}
		return c
	}

	for i, r := range lexical {
		c := get(r.ChunkID)
		c.Ranks[signature.SignalLexical] = i + 1
		c.Score += f.contribution(i + 1)
		c.MatchedTerms = r.MatchedTerms
	}
	for i, r := range vector {
		c := get(r.ChunkID)
		c.Ranks[signature.SignalVector] = i + 1
		c.Score += f.contribution(i + 1)
	}
	for i, r := range phonetic {
		c := get(r.ChunkID)
		c.Ranks[signature.SignalPhonetic] = i + 1
		c.Score += f.contribution(i + 1)
	}

	out := make([]*Candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func (f *Fusion) contribution(rank int) float64 {
	return 1.0 / float64(f.k+rank)
}
