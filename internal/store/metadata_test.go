package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamzoek/stamzoek/internal/anchor"
	"github.com/stamzoek/stamzoek/internal/chunk"
	"github.com/stamzoek/stamzoek/internal/graph"
	"github.com/stamzoek/stamzoek/internal/signature"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDocument(t *testing.T, s *SQLiteStore, id string) {
	t.Helper()
	require.NoError(t, s.SaveDocument(context.Background(), &Document{
		ID: id, Title: "Stamboek van de familie", Path: id + ".txt",
		Language: "nld", PageCount: 12, IngestedAt: time.Now().UTC(),
	}))
}

func testChunk(fp, doc string, page, ordinal int, code string) *chunk.Chunk {
	return &chunk.Chunk{
		Fingerprint: fp,
		DocumentID:  doc,
		Page:        page,
		Ordinal:     ordinal,
		Text:        code + " Jan Jansen, geboren 1887 te Utrecht.",
		Anchors: []anchor.Anchor{{
			Code: code, Page: page,
			Names:  []string{"Jan Jansen"},
			Places: []string{"Utrecht"},
			Dates:  []anchor.DateRange{{From: 1887, To: 1887}},
		}},
	}
}

func TestSQLiteStore_ChunkRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")

	c := testChunk("fp-1", "doc-1", 3, 0, "II.1.a")
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{c}))

	got, err := s.GetChunk(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, c.Text, got.Text)
	assert.Equal(t, 3, got.Page)
	require.Len(t, got.Anchors, 1)
	assert.Equal(t, "II.1.a", got.Anchors[0].Code)
	assert.Equal(t, []string{"Jan Jansen"}, got.Anchors[0].Names)
	assert.Equal(t, []anchor.DateRange{{From: 1887, To: 1887}}, got.Anchors[0].Dates)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStore_ChunkNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetChunk(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSQLiteStore_SaveChunksIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")

	c := testChunk("fp-1", "doc-1", 1, 0, "II.1")
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{c}))
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{c}))

	ids, err := s.AllChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fp-1"}, ids)
}

func TestSQLiteStore_OrdinalAndAnchorLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")

	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{
		testChunk("fp-1", "doc-1", 3, 0, "II.1.a"),
		testChunk("fp-2", "doc-1", 3, 1, "II.1.a"),
		testChunk("fp-3", "doc-1", 4, 0, "II.1.b"),
	}))

	got, err := s.GetChunkByOrdinal(ctx, "doc-1", 3, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fp-2", got.Fingerprint)

	missing, err := s.GetChunkByOrdinal(ctx, "doc-1", 3, 9)
	require.NoError(t, err)
	assert.Nil(t, missing)

	sameCode, err := s.GetChunksByAnchorCode(ctx, "doc-1", "II.1.a")
	require.NoError(t, err)
	require.Len(t, sameCode, 2)
	assert.Equal(t, "fp-1", sameCode[0].Fingerprint)
	assert.Equal(t, "fp-2", sameCode[1].Fingerprint)

	none, err := s.GetChunksByAnchorCode(ctx, "doc-1", "")
	require.NoError(t, err)
	assert.Nil(t, none)

	page, err := s.GetChunksByPage(ctx, "doc-1", 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "fp-1", page[0].Fingerprint)
	assert.Equal(t, "fp-2", page[1].Fingerprint)

	empty, err := s.GetChunksByPage(ctx, "doc-1", 9)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_DeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")

	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{testChunk("fp-1", "doc-1", 1, 0, "I")}))
	require.NoError(t, s.SavePhoneticCodes(ctx, "fp-1", []string{"164600"}))
	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	ids, err := s.AllChunkIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	phon, err := s.PhoneticChunkIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, phon)
}

func TestSQLiteStore_PhoneticSearchOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")

	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{
		testChunk("fp-both", "doc-1", 1, 0, "I"),
		testChunk("fp-one", "doc-1", 1, 1, "I"),
		testChunk("fp-none", "doc-1", 1, 2, "I"),
	}))
	require.NoError(t, s.SavePhoneticCodes(ctx, "fp-both", []string{"164600", "739400"}))
	require.NoError(t, s.SavePhoneticCodes(ctx, "fp-one", []string{"164600"}))
	require.NoError(t, s.SavePhoneticCodes(ctx, "fp-none", []string{"700000"}))

	results, err := s.SearchPhonetic(ctx, []string{"164600", "739400"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "fp-both", results[0].ChunkID)
	assert.Equal(t, 2, results[0].Matches)
	assert.Equal(t, "fp-one", results[1].ChunkID)
	assert.Equal(t, 1, results[1].Matches)
}

func TestSQLiteStore_PhoneticCodesReplaced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{testChunk("fp-1", "doc-1", 1, 0, "I")}))

	require.NoError(t, s.SavePhoneticCodes(ctx, "fp-1", []string{"111111"}))
	require.NoError(t, s.SavePhoneticCodes(ctx, "fp-1", []string{"222222"}))

	results, err := s.SearchPhonetic(ctx, []string{"111111"}, 10)
	require.NoError(t, err)
	assert.Empty(t, results, "old codes must be gone after re-save")
}

func TestSQLiteStore_SignalStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{testChunk("fp-1", "doc-1", 1, 0, "I")}))

	statuses, err := s.GetSignalStatus(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, signature.StatusPending, statuses[signature.SignalVector],
		"unrecorded signals report pending")

	require.NoError(t, s.SetSignalStatus(ctx, "fp-1", signature.SignalVector, signature.StatusFailedRetryable, "embed timeout"))
	require.NoError(t, s.SetSignalStatus(ctx, "fp-1", signature.SignalVector, signature.StatusComputed, ""))

	statuses, err = s.GetSignalStatus(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, signature.StatusComputed, statuses[signature.SignalVector])

	err = s.SetSignalStatus(ctx, "fp-1", signature.SignalVector, signature.StatusFailedRetryable, "")
	assert.Error(t, err, "computed cannot move to failed without a reset")
}

func TestSQLiteStore_ChunksNeedingWork(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")

	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{
		testChunk("fp-done", "doc-1", 1, 0, "I"),
		testChunk("fp-new", "doc-1", 1, 1, "I"),
		testChunk("fp-retry", "doc-1", 1, 2, "I"),
	}))
	require.NoError(t, s.SetSignalStatus(ctx, "fp-done", signature.SignalVector, signature.StatusComputed, ""))
	require.NoError(t, s.SetSignalStatus(ctx, "fp-retry", signature.SignalVector, signature.StatusFailedRetryable, "timeout"))

	pending, err := s.ChunksNeedingWork(ctx, signature.SignalVector)
	require.NoError(t, err)
	assert.Equal(t, []string{"fp-new", "fp-retry"}, pending)
}

func TestSQLiteStore_EntitiesAndEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	testDocument(t, s, "doc-1")
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{
		testChunk("fp-1", "doc-1", 1, 0, "II.1"),
		testChunk("fp-2", "doc-1", 2, 0, "II.2"),
	}))

	jan := &graph.Entity{ID: "ent-jan", Name: "Jan Jansen", Kind: graph.EntityPerson, AnchorCode: "II.1", DocumentID: "doc-1"}
	maria := &graph.Entity{ID: "ent-maria", Name: "Maria de Vries", Kind: graph.EntityPerson, AnchorCode: "II.2", DocumentID: "doc-1"}
	require.NoError(t, s.SaveEntities(ctx, []*graph.Entity{jan, maria}))
	require.NoError(t, s.SaveMention(ctx, "ent-jan", "fp-1"))
	require.NoError(t, s.SaveMention(ctx, "ent-maria", "fp-2"))
	require.NoError(t, s.SaveEdges(ctx, []*graph.Edge{
		{ID: "edge-1", From: "ent-jan", To: "ent-maria", Kind: graph.EdgePartnerOf, ChunkID: "fp-1"},
	}))

	got, err := s.GetEntity(ctx, "ent-jan")
	require.NoError(t, err)
	assert.Equal(t, "Jan Jansen", got.Name)

	byName, err := s.FindEntitiesByName(ctx, "jan jansen")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "ent-jan", byName[0].ID)

	mentioned, err := s.EntitiesForChunk(ctx, "fp-1")
	require.NoError(t, err)
	require.Len(t, mentioned, 1)
	assert.Equal(t, "ent-jan", mentioned[0].ID)

	// Edges are visible from both endpoints.
	fromMaria, err := s.EdgesFrom(ctx, "ent-maria")
	require.NoError(t, err)
	require.Len(t, fromMaria, 1)
	assert.Equal(t, graph.EdgePartnerOf, fromMaria[0].Kind)

	chunks, err := s.ChunksForEntity(ctx, "ent-maria")
	require.NoError(t, err)
	assert.Equal(t, []string{"fp-2"}, chunks)

	byAnchor, err := s.EntityByAnchor(ctx, "doc-1", "II.2")
	require.NoError(t, err)
	require.NotNil(t, byAnchor)
	assert.Equal(t, "ent-maria", byAnchor.ID)

	absent, err := s.EntityByAnchor(ctx, "doc-1", "IX.9")
	require.NoError(t, err)
	assert.Nil(t, absent)

	all, err := s.EntitiesByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ent-jan", all[0].ID)
	assert.Equal(t, "ent-maria", all[1].ID)
}

func TestSQLiteStore_State(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, StateKeyEmbedModel)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(ctx, StateKeyEmbedModel, "nomic-embed-text"))
	require.NoError(t, s.SetState(ctx, StateKeyEmbedModel, "static-hash"))

	v, err = s.GetState(ctx, StateKeyEmbedModel)
	require.NoError(t, err)
	assert.Equal(t, "static-hash", v)
}
