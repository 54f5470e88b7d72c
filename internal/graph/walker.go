package graph

import (
	"context"
	"sort"
)

// Source provides graph adjacency and entity-to-chunk provenance.
// The SQLite metadata store implements it.
type Source interface {
	EdgesFrom(ctx context.Context, entityID string) ([]*Edge, error)
	ChunksForEntity(ctx context.Context, entityID string) ([]string, error)
}

// Related is a chunk reached through the graph, with the entity and
// relationship that led to it and the hop distance from the seed.
type Related struct {
	ChunkID  string
	EntityID string
	Via      EdgeKind
	Hops     int
}

// Walker performs bounded breadth-first traversal over the
// relationship graph. Visited entities are never revisited, so cycles
// (partner edges both ways, sibling cliques) terminate.
type Walker struct {
	src      Source
	hopLimit int
}

// NewWalker creates a walker with the given hop limit. Limit zero
// disables traversal entirely.
func NewWalker(src Source, hopLimit int) *Walker {
	return &Walker{src: src, hopLimit: hopLimit}
}

// Walk traverses outward from the seed entities up to the hop limit
// and returns the chunks of every reached entity, nearest hops first.
// Seed entities themselves contribute no chunks; their chunks are
// already in the result set that produced the seeds.
func (w *Walker) Walk(ctx context.Context, seedEntityIDs []string) ([]*Related, error) {
	if w.hopLimit <= 0 || len(seedEntityIDs) == 0 {
		return nil, nil
	}

	visited := make(map[string]bool, len(seedEntityIDs))
	frontier := make([]string, 0, len(seedEntityIDs))
	for _, id := range seedEntityIDs {
		if !visited[id] {
			visited[id] = true
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	var related []*Related
	seenChunks := make(map[string]bool)

	for hop := 1; hop <= w.hopLimit && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			edges, err := w.src.EdgesFrom(ctx, id)
			if err != nil {
				return nil, err
			}
			sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

			for _, e := range edges {
				neighbor := e.To
				if neighbor == id {
					neighbor = e.From
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				next = append(next, neighbor)

				chunks, err := w.src.ChunksForEntity(ctx, neighbor)
				if err != nil {
					return nil, err
				}
				sort.Strings(chunks)
				for _, c := range chunks {
					if seenChunks[c] {
						continue
					}
					seenChunks[c] = true
					related = append(related, &Related{
						ChunkID:  c,
						EntityID: neighbor,
						Via:      e.Kind,
						Hops:     hop,
					})
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}

	return related, nil
}
