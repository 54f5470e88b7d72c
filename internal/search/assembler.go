package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/stamzoek/stamzoek/internal/graph"
	"github.com/stamzoek/stamzoek/internal/store"
)

// Assembler renders fused results into a single bounded context
// window. Blocks appear in stage priority (direct, expansion, graph)
// and each block is headed with its source coordinates and the
// disambiguated entities it mentions, so two different Jan Jansens
// stay distinguishable downstream.
type Assembler struct {
	meta   store.MetadataStore
	budget int
}

// NewAssembler returns an Assembler with the given character budget.
func NewAssembler(meta store.MetadataStore, budget int) *Assembler {
	if budget < 1 {
		budget = 8000
	}
	return &Assembler{meta: meta, budget: budget}
}

// Assemble annotates results with their entities and renders the
// context window. Results that do not fit the budget are dropped from
// the window but remain in the returned slice for callers that list
// hits separately.
func (a *Assembler) Assemble(ctx context.Context, results []*Result) (string, error) {
	var b strings.Builder
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if r.Entities == nil {
			entities, err := a.meta.EntitiesForChunk(ctx, r.Chunk.Fingerprint)
			if err != nil {
				return "", err
			}
			r.Entities = entities
		}
		block := a.renderBlock(r)
		if b.Len()+len(block) > a.budget {
			break
		}
		b.WriteString(block)
	}
	return b.String(), nil
}

func (a *Assembler) renderBlock(r *Result) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s p.%d", r.Chunk.DocumentID, r.Chunk.Page))
	if code := r.Chunk.AnchorCode(); code != "" {
		b.WriteString(" " + code)
	}
	b.WriteString("]")
	if r.Stage == StageGraph && r.Via != "" {
		b.WriteString(fmt.Sprintf(" (via %s)", r.Via))
	}
	if len(r.Entities) > 0 {
		b.WriteString(" " + annotateEntities(r.Entities))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(r.Chunk.OwnText()))
	b.WriteString("\n\n")
	return b.String()
}

// annotateEntities renders entity mentions as "Name (kind anchor, id)"
// triples. The anchor code disambiguates same-named people from
// different family branches; the id lets downstream consumers refer
// back to the exact graph entity.
func annotateEntities(entities []*graph.Entity) string {
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.AnchorCode != "" {
			parts = append(parts, fmt.Sprintf("%s (%s %s, %s)", e.Name, e.Kind, e.AnchorCode, e.ID))
		} else {
			parts = append(parts, fmt.Sprintf("%s (%s, %s)", e.Name, e.Kind, e.ID))
		}
	}
	return "mentions: " + strings.Join(parts, ", ")
}
