package ingest

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/stamzoek/stamzoek/internal/chunk"
	"github.com/stamzoek/stamzoek/internal/graph"
	"github.com/stamzoek/stamzoek/internal/store"
)

// entityLinker registers one person entity per genealogical code and
// links chunks to the entities they mention. Parent edges come from
// the code hierarchy itself: in register numbering, II.1.a is a child
// entry of II.1.
//
// Registration is serialized: pages run in parallel and a code can
// span a page boundary, so lookups and inserts for the same code must
// not race.
type entityLinker struct {
	meta   store.MetadataStore
	logger *slog.Logger
	mu     sync.Mutex
}

func newEntityLinker(meta store.MetadataStore, logger *slog.Logger) *entityLinker {
	return &entityLinker{meta: meta, logger: logger}
}

// LinkChunk registers an entity for every coded entry the chunk
// touches and records the mentions. Chunks without coded anchors
// contribute nothing.
func (l *entityLinker) LinkChunk(ctx context.Context, c *chunk.Chunk) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	done := make(map[string]bool)
	for _, a := range c.Anchors {
		if !a.HasCode() || done[a.Code] {
			continue
		}
		done[a.Code] = true

		entity, err := l.meta.EntityByAnchor(ctx, c.DocumentID, a.Code)
		if err != nil {
			return err
		}
		if entity == nil {
			name := a.Code
			if len(a.Names) > 0 {
				name = a.Names[0]
			}
			entity = graph.NewPerson(name, a.Code, c.DocumentID)
			if err := l.meta.SaveEntities(ctx, []*graph.Entity{entity}); err != nil {
				return err
			}
		}
		if err := l.meta.SaveMention(ctx, entity.ID, c.Fingerprint); err != nil {
			return err
		}
	}
	return nil
}

// LinkHierarchy connects each of the document's entries to its parent
// entry with a parent-of edge. Runs after all pages are registered, so
// a child entry on an earlier page than its parent still gets linked.
func (l *entityLinker) LinkHierarchy(ctx context.Context, documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entities, err := l.meta.EntitiesByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	byCode := make(map[string]*graph.Entity, len(entities))
	for _, e := range entities {
		if byCode[e.AnchorCode] == nil {
			byCode[e.AnchorCode] = e
		}
	}

	for _, child := range entities {
		parent := byCode[codeParent(child.AnchorCode)]
		if parent == nil || parent.ID == child.ID {
			continue
		}
		exists, err := l.hasParentEdge(ctx, parent.ID, child.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		chunkID := ""
		if chunks, err := l.meta.ChunksForEntity(ctx, child.ID); err == nil && len(chunks) > 0 {
			chunkID = chunks[0]
		}
		if err := l.meta.SaveEdges(ctx, []*graph.Edge{
			graph.NewEdge(parent.ID, child.ID, graph.EdgeParentOf, chunkID),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (l *entityLinker) hasParentEdge(ctx context.Context, parentID, childID string) (bool, error) {
	edges, err := l.meta.EdgesFrom(ctx, parentID)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if e.Kind == graph.EdgeParentOf && e.From == parentID && e.To == childID {
			return true, nil
		}
	}
	return false, nil
}

// codeParent strips the last segment of a genealogical code.
// "II.1.a" -> "II.1", "II.1" -> "II", "II" -> "".
func codeParent(code string) string {
	i := strings.LastIndexByte(code, '.')
	if i < 1 {
		return ""
	}
	return code[:i]
}
