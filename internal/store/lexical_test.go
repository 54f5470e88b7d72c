package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemIndex(t *testing.T) *BleveLexicalIndex {
	t.Helper()
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestLexicalIndex_TrigramSurvivesOCRNoise(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*LexicalDoc{
		{ID: "a", Content: "Jan Jansen married in Utrecht in 1887"},
		{ID: "b", Content: "the family farm stood near Groningen"},
	}))

	// "Iansen" is a classic OCR misread of "Jansen"; shared trigrams
	// (ans, nse, sen) must still retrieve the right chunk.
	results, err := idx.Search(ctx, "Iansen", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestLexicalIndex_RankedByRelevance(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*LexicalDoc{
		{ID: "exact", Content: "Maria Pietersen of Leiden"},
		{ID: "partial", Content: "Pieter of Amsterdam"},
		{ID: "unrelated", Content: "cargo manifest of the ship"},
	}))

	results, err := idx.Search(ctx, "Pietersen", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "exact", results[0].ChunkID)
}

func TestLexicalIndex_EmptyQuery(t *testing.T) {
	idx := newMemIndex(t)
	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLexicalIndex_UpsertAndDelete(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*LexicalDoc{{ID: "a", Content: "first version"}}))
	require.NoError(t, idx.Index(ctx, []*LexicalDoc{{ID: "a", Content: "rewritten entry"}}))

	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "reindexing the same ID must not duplicate")

	require.NoError(t, idx.Delete(ctx, []string{"a"}))
	n, err = idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLexicalIndex_AllIDs(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*LexicalDoc{
		{ID: "a", Content: "eerste stuk"},
		{ID: "b", Content: "tweede stuk"},
	}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
