// Package store is the persistence layer: the lexical index (Bleve),
// the vector store (HNSW) and the metadata database (SQLite). The
// metadata database is the source of truth; the two indexes are
// derived and rebuildable from it.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/stamzoek/stamzoek/internal/anchor"
	"github.com/stamzoek/stamzoek/internal/chunk"
	"github.com/stamzoek/stamzoek/internal/graph"
	"github.com/stamzoek/stamzoek/internal/signature"
)

// Document is one ingested OCR source, typically a book.
type Document struct {
	ID         string
	Title      string
	Path       string
	Language   string
	PageCount  int
	IngestedAt time.Time
}

// LexicalDoc is the unit handed to the lexical index.
type LexicalDoc struct {
	ID      string // chunk fingerprint
	Content string
}

// LexicalResult is a BM25 hit over trigrams.
type LexicalResult struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// VectorResult is a nearest-neighbor hit.
type VectorResult struct {
	ChunkID  string
	Distance float32
	Score    float32
}

// PhoneticResult is a phonetic code set-membership hit. Matches counts
// how many distinct query codes the chunk shares.
type PhoneticResult struct {
	ChunkID string
	Matches int
}

// SignalState is one chunk signal's persisted lifecycle state.
type SignalState struct {
	ChunkID   string
	Signal    signature.Signal
	Status    signature.Status
	Detail    string
	UpdatedAt time.Time
}

// LexicalIndex provides BM25 search over trigram terms.
type LexicalIndex interface {
	Index(ctx context.Context, docs []*LexicalDoc) error
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)
	Delete(ctx context.Context, ids []string) error

	// AllIDs lists every indexed chunk, for consistency checks.
	AllIDs() ([]string, error)
	DocCount() (int, error)
	Close() error
}

// VectorStore provides approximate nearest-neighbor search.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error

	AllIDs() []string
	Contains(id string) bool
	Count() int

	Save(path string) error
	Load(path string) error
	Close() error
}

// MetadataStore persists documents, chunks, anchors, phonetic codes,
// signal status and the relationship graph in SQLite.
type MetadataStore interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Chunk operations
	SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error
	GetChunk(ctx context.Context, fingerprint string) (*chunk.Chunk, error)
	GetChunks(ctx context.Context, fingerprints []string) ([]*chunk.Chunk, error)
	GetChunksByDocument(ctx context.Context, documentID string) ([]*chunk.Chunk, error)
	GetChunksByPage(ctx context.Context, documentID string, page int) ([]*chunk.Chunk, error)
	GetChunkByOrdinal(ctx context.Context, documentID string, page, ordinal int) (*chunk.Chunk, error)
	GetChunksByAnchorCode(ctx context.Context, documentID, code string) ([]*chunk.Chunk, error)
	DeleteChunks(ctx context.Context, fingerprints []string) error
	AllChunkIDs(ctx context.Context) ([]string, error)

	// Phonetic index operations
	SavePhoneticCodes(ctx context.Context, chunkID string, codes []string) error
	SearchPhonetic(ctx context.Context, codes []string, limit int) ([]*PhoneticResult, error)
	PhoneticChunkIDs(ctx context.Context) ([]string, error)

	// Signal status operations
	SetSignalStatus(ctx context.Context, chunkID string, signal signature.Signal, status signature.Status, detail string) error
	GetSignalStatus(ctx context.Context, chunkID string) (map[signature.Signal]signature.Status, error)
	ChunksNeedingWork(ctx context.Context, signal signature.Signal) ([]string, error)

	// Relationship graph operations
	SaveEntities(ctx context.Context, entities []*graph.Entity) error
	GetEntity(ctx context.Context, id string) (*graph.Entity, error)
	FindEntitiesByName(ctx context.Context, name string) ([]*graph.Entity, error)
	EntityByAnchor(ctx context.Context, documentID, code string) (*graph.Entity, error)
	EntitiesByDocument(ctx context.Context, documentID string) ([]*graph.Entity, error)
	EntitiesForChunk(ctx context.Context, chunkID string) ([]*graph.Entity, error)
	SaveMention(ctx context.Context, entityID, chunkID string) error
	SaveEdges(ctx context.Context, edges []*graph.Edge) error
	EdgesFrom(ctx context.Context, entityID string) ([]*graph.Edge, error)
	ChunksForEntity(ctx context.Context, entityID string) ([]string, error)

	// State operations (key-value runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// State keys recorded in the metadata store.
const (
	// StateKeyEmbedModel records the embedding model the vector index
	// was built with, to detect incompatible model switches.
	StateKeyEmbedModel = "index_embed_model"
	// StateKeyEmbedDimensions records the vector dimensionality.
	StateKeyEmbedDimensions = "index_embed_dimensions"
)

// VectorStoreConfig configures the HNSW store.
type VectorStoreConfig struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
}

// DefaultVectorStoreConfig returns sensible HNSW defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates a vector of the wrong dimensionality,
// usually after an embedding model switch without a re-index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (re-ingest with the current model)", e.Expected, e.Got)
}

// anchorPayload is the JSON shape anchors take inside the chunks table.
type anchorPayload struct {
	Code   string             `json:"code,omitempty"`
	Page   int                `json:"page"`
	Dates  []anchor.DateRange `json:"dates,omitempty"`
	Places []string           `json:"places,omitempty"`
	Names  []string           `json:"names,omitempty"`
}
