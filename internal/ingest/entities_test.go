package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamzoek/stamzoek/internal/graph"
	"github.com/stamzoek/stamzoek/internal/store"
)

const hierarchyText = `II.1 Jan Jansen, geboren 1850 te Utrecht.
Hij huwde Maria de Vries in 1874.
II.1.a Pieter Jansen, geboren 1875 te Utrecht, zoon van de voorgaande.
II.1.b Anna Jansen, geboren 1877 te Utrecht.`

func TestIngest_RegistersEntities(t *testing.T) {
	s := newStores(t)
	r := newRunner(t, s, nil)
	ctx := context.Background()

	_, err := r.Run(ctx, ingestRequest())
	require.NoError(t, err)

	jan, err := s.meta.EntityByAnchor(ctx, "doc-1", "II.1")
	require.NoError(t, err)
	require.NotNil(t, jan)
	assert.Equal(t, "Jan Jansen", jan.Name)
	assert.Equal(t, graph.EntityPerson, jan.Kind)
	assert.NotEmpty(t, jan.ID)

	willem, err := s.meta.EntityByAnchor(ctx, "doc-1", "II.2")
	require.NoError(t, err)
	require.NotNil(t, willem)
	assert.Equal(t, "Willem Jansen", willem.Name)
	assert.NotEqual(t, jan.ID, willem.ID)

	// The entry's chunks mention its entity.
	chunks, err := s.meta.ChunksForEntity(ctx, jan.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestIngest_EntityRegistrationIdempotent(t *testing.T) {
	s := newStores(t)
	r := newRunner(t, s, nil)
	ctx := context.Background()

	_, err := r.Run(ctx, ingestRequest())
	require.NoError(t, err)
	first, err := s.meta.EntitiesByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	_, err = r.Run(ctx, ingestRequest())
	require.NoError(t, err)
	second, err := s.meta.EntitiesByDocument(ctx, "doc-1")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestIngest_LinksEntryHierarchy(t *testing.T) {
	s := newStores(t)
	r := newRunner(t, s, nil)
	ctx := context.Background()

	req := Request{
		Document: &store.Document{ID: "doc-2", Title: "Stamboek", Language: "nld"},
		Pages:    []Page{{Number: 1, Text: hierarchyText}},
	}
	_, err := r.Run(ctx, req)
	require.NoError(t, err)

	parent, err := s.meta.EntityByAnchor(ctx, "doc-2", "II.1")
	require.NoError(t, err)
	require.NotNil(t, parent)

	edges, err := s.meta.EdgesFrom(ctx, parent.ID)
	require.NoError(t, err)

	children := map[string]bool{}
	for _, e := range edges {
		require.Equal(t, graph.EdgeParentOf, e.Kind)
		assert.Equal(t, parent.ID, e.From)
		child, err := s.meta.GetEntity(ctx, e.To)
		require.NoError(t, err)
		children[child.AnchorCode] = true
	}
	assert.True(t, children["II.1.a"], "edges: %v", edges)
	assert.True(t, children["II.1.b"], "edges: %v", edges)

	// Re-ingesting must not duplicate edges.
	_, err = r.Run(ctx, req)
	require.NoError(t, err)
	again, err := s.meta.EdgesFrom(ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, again, len(edges))
}

func TestCodeParent(t *testing.T) {
	tests := []struct {
		code, parent string
	}{
		{"II.1.a", "II.1"},
		{"II.1", "II"},
		{"II", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.parent, codeParent(tt.code), tt.code)
	}
}
