package search

import (
	"context"
	"sort"

	"github.com/stamzoek/stamzoek/internal/chunk"
	"github.com/stamzoek/stamzoek/internal/store"
)

// Expander pulls in the structural neighborhood of direct hits: the
// chunks immediately before and after on the same page, plus every
// chunk registered under the same family anchor code. Family entries
// in these books routinely spill over chunk boundaries, so a direct
// hit on one chunk often means the answer sits in its neighbor.
type Expander struct {
	meta    store.MetadataStore
	penalty float64
	cap     int
}

// NewExpander returns an Expander. The penalty scales a neighbor's
// score relative to its trigger; cap bounds how many neighbors a
// single trigger may contribute.
func NewExpander(meta store.MetadataStore, penalty float64, cap int) *Expander {
	if penalty <= 0 || penalty >= 1 {
		penalty = 0.5
	}
	if cap < 1 {
		cap = 3
	}
	return &Expander{meta: meta, penalty: penalty, cap: cap}
}

// Expand walks the direct results in rank order and returns expansion
// results for chunks not already present. Neighbors of higher-ranked
// triggers win contested slots.
func (e *Expander) Expand(ctx context.Context, direct []*Result) ([]*Result, error) {
	seen := make(map[string]bool, len(direct))
	for _, r := range direct {
		seen[r.Chunk.Fingerprint] = true
	}

	var out []*Result
	for _, trigger := range direct {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		neighbors, err := e.neighbors(ctx, trigger.Chunk)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, n := range neighbors {
			if added >= e.cap {
				break
			}
			if seen[n.Fingerprint] {
				continue
			}
			seen[n.Fingerprint] = true
			out = append(out, &Result{
				Chunk:   n,
				Score:   trigger.Score * e.penalty,
				Stage:   StageExpansion,
				Trigger: trigger.Chunk.Fingerprint,
			})
			added++
		}
	}
	return out, nil
}

// neighbors returns the ordinal predecessor, the ordinal successor and
// the same-anchor chunks of c, in that priority order, deduplicated.
func (e *Expander) neighbors(ctx context.Context, c *chunk.Chunk) ([]*chunk.Chunk, error) {
	var out []*chunk.Chunk
	have := map[string]bool{c.Fingerprint: true}

	for _, ordinal := range []int{c.Ordinal - 1, c.Ordinal + 1} {
		if ordinal < 0 {
			continue
		}
		n, err := e.meta.GetChunkByOrdinal(ctx, c.DocumentID, c.Page, ordinal)
		if err != nil {
			return nil, err
		}
		if n != nil && !have[n.Fingerprint] {
			have[n.Fingerprint] = true
			out = append(out, n)
		}
	}

	if code := c.AnchorCode(); code != "" {
		same, err := e.meta.GetChunksByAnchorCode(ctx, c.DocumentID, code)
		if err != nil {
			return nil, err
		}
		sort.Slice(same, func(i, j int) bool {
			if same[i].Page != same[j].Page {
				return same[i].Page < same[j].Page
			}
			return same[i].Ordinal < same[j].Ordinal
		})
		for _, n := range same {
			if !have[n.Fingerprint] {
				have[n.Fingerprint] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}
