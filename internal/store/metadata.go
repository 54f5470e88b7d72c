package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stamzoek/stamzoek/internal/anchor"
	"github.com/stamzoek/stamzoek/internal/chunk"
	stamerrors "github.com/stamzoek/stamzoek/internal/errors"
	"github.com/stamzoek/stamzoek/internal/graph"
	"github.com/stamzoek/stamzoek/internal/signature"
)

// schemaVersion is bumped on incompatible schema changes.
const schemaVersion = 1

// SQLiteStore implements MetadataStore on modernc.org/sqlite (pure Go,
// no CGO). WAL mode with a single writer connection keeps ingest and
// query processes from tripping over each other.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the metadata database. An empty path
// uses an in-memory database for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, stamerrors.Wrap(err, stamerrors.ErrCodeStoreOpen, "create metadata directory")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, stamerrors.Wrap(err, stamerrors.ErrCodeStoreOpen, "open metadata database")
	}

	// Single writer prevents SQLITE_BUSY under concurrent page workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA, modernc.org/sqlite ignores DSN params.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, stamerrors.Wrap(err, stamerrors.ErrCodeStoreOpen, "set pragma")
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, stamerrors.Wrap(err, stamerrors.ErrCodeStoreOpen, "initialize schema")
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		path        TEXT NOT NULL,
		language    TEXT NOT NULL,
		page_count  INTEGER NOT NULL DEFAULT 0,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		fingerprint TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		page        INTEGER NOT NULL,
		ordinal     INTEGER NOT NULL,
		anchor_code TEXT NOT NULL DEFAULT '',
		anchors     TEXT NOT NULL DEFAULT '[]',
		text        TEXT NOT NULL,
		overlap_len INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL,
		UNIQUE(document_id, page, ordinal)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, page, ordinal);
	CREATE INDEX IF NOT EXISTS idx_chunks_anchor_code ON chunks(document_id, anchor_code);

	CREATE TABLE IF NOT EXISTS phonetic_codes (
		code     TEXT NOT NULL,
		chunk_id TEXT NOT NULL REFERENCES chunks(fingerprint) ON DELETE CASCADE,
		PRIMARY KEY (code, chunk_id)
	);
	CREATE INDEX IF NOT EXISTS idx_phonetic_chunk ON phonetic_codes(chunk_id);

	CREATE TABLE IF NOT EXISTS signal_status (
		chunk_id   TEXT NOT NULL REFERENCES chunks(fingerprint) ON DELETE CASCADE,
		signal     TEXT NOT NULL,
		status     TEXT NOT NULL,
		detail     TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (chunk_id, signal)
	);
	CREATE INDEX IF NOT EXISTS idx_signal_status ON signal_status(signal, status);

	CREATE TABLE IF NOT EXISTS entities (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		anchor_code TEXT NOT NULL DEFAULT '',
		document_id TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

	CREATE TABLE IF NOT EXISTS entity_mentions (
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		chunk_id  TEXT NOT NULL REFERENCES chunks(fingerprint) ON DELETE CASCADE,
		PRIMARY KEY (entity_id, chunk_id)
	);
	CREATE INDEX IF NOT EXISTS idx_mentions_chunk ON entity_mentions(chunk_id);

	CREATE TABLE IF NOT EXISTS edges (
		id          TEXT PRIMARY KEY,
		from_entity TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		to_entity   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		kind        TEXT NOT NULL,
		chunk_id    TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_entity);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_entity);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (` + fmt.Sprint(schemaVersion) + `);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveDocument inserts or updates a document.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, path, language, page_count, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			language = excluded.language,
			page_count = excluded.page_count,
			ingested_at = excluded.ingested_at`,
		doc.ID, doc.Title, doc.Path, doc.Language, doc.PageCount, doc.IngestedAt)
	if err != nil {
		return stamerrors.Wrap(err, stamerrors.ErrCodeStoreOpen, "save document")
	}
	return nil
}

// GetDocument fetches a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, path, language, page_count, ingested_at
		FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Title, &doc.Path, &doc.Language, &doc.PageCount, &doc.IngestedAt)
	if err == sql.ErrNoRows {
		return nil, stamerrors.New(stamerrors.ErrCodeChunkNotFound, fmt.Sprintf("document %s not found", id))
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents ordered by title.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, path, language, page_count, ingested_at
		FROM documents ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Path, &doc.Language, &doc.PageCount, &doc.IngestedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; chunks, phonetic codes, statuses
// and mentions cascade.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// SaveChunks upserts chunks in one transaction. An unchanged chunk
// (same fingerprint) keeps its created_at.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (fingerprint, document_id, page, ordinal, anchor_code, anchors, text, overlap_len, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			document_id = excluded.document_id,
			page = excluded.page,
			ordinal = excluded.ordinal,
			anchor_code = excluded.anchor_code,
			anchors = excluded.anchors,
			text = excluded.text,
			overlap_len = excluded.overlap_len,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, c := range chunks {
		anchors, err := marshalAnchors(c.Anchors)
		if err != nil {
			return err
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			c.Fingerprint, c.DocumentID, c.Page, c.Ordinal, c.AnchorCode(),
			anchors, c.Text, c.OverlapLen, createdAt, now); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.Fingerprint, err)
		}
	}
	return tx.Commit()
}

const chunkColumns = `fingerprint, document_id, page, ordinal, anchors, text, overlap_len, created_at, updated_at`

func scanChunk(row interface{ Scan(...any) error }) (*chunk.Chunk, error) {
	c := &chunk.Chunk{}
	var anchors string
	if err := row.Scan(&c.Fingerprint, &c.DocumentID, &c.Page, &c.Ordinal,
		&anchors, &c.Text, &c.OverlapLen, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := unmarshalAnchors(anchors)
	if err != nil {
		return nil, err
	}
	c.Anchors = parsed
	return c, nil
}

// GetChunk fetches a chunk by fingerprint.
func (s *SQLiteStore) GetChunk(ctx context.Context, fingerprint string) (*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE fingerprint = ?`, fingerprint)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, stamerrors.New(stamerrors.ErrCodeChunkNotFound, fmt.Sprintf("chunk %s not found", fingerprint))
	}
	return c, err
}

// GetChunks fetches chunks by fingerprint; missing fingerprints are
// skipped, order follows the input.
func (s *SQLiteStore) GetChunks(ctx context.Context, fingerprints []string) ([]*chunk.Chunk, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(fingerprints))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(fingerprints))
	for i, fp := range fingerprints {
		args[i] = fp
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE fingerprint IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*chunk.Chunk, len(fingerprints))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.Fingerprint] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*chunk.Chunk, 0, len(byID))
	for _, fp := range fingerprints {
		if c, ok := byID[fp]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// GetChunksByDocument returns a document's chunks in reading order.
func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY page, ordinal`, documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectChunks(rows)
}

// GetChunksByPage returns one page's chunks in ordinal order.
func (s *SQLiteStore) GetChunksByPage(ctx context.Context, documentID string, page int) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? AND page = ? ORDER BY ordinal`,
		documentID, page)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectChunks(rows)
}

// GetChunkByOrdinal returns the chunk at a page position, or nil when
// no chunk occupies it.
func (s *SQLiteStore) GetChunkByOrdinal(ctx context.Context, documentID string, page, ordinal int) (*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? AND page = ? AND ordinal = ?`,
		documentID, page, ordinal)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetChunksByAnchorCode returns every chunk of a document sharing a
// genealogical code, in reading order.
func (s *SQLiteStore) GetChunksByAnchorCode(ctx context.Context, documentID, code string) ([]*chunk.Chunk, error) {
	if code == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks
		 WHERE document_id = ? AND anchor_code = ? ORDER BY page, ordinal`,
		documentID, code)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectChunks(rows)
}

func collectChunks(rows *sql.Rows) ([]*chunk.Chunk, error) {
	var chunks []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteChunks removes chunks; dependent rows cascade.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, fingerprints []string) error {
	if len(fingerprints) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE fingerprint = ?`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, fp := range fingerprints {
		if _, err := stmt.ExecContext(ctx, fp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AllChunkIDs lists every chunk fingerprint, for consistency checks.
func (s *SQLiteStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectStrings(rows)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SavePhoneticCodes replaces a chunk's phonetic code set.
func (s *SQLiteStore) SavePhoneticCodes(ctx context.Context, chunkID string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM phonetic_codes WHERE chunk_id = ?`, chunkID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO phonetic_codes (code, chunk_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, code := range codes {
		if _, err := stmt.ExecContext(ctx, code, chunkID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SearchPhonetic returns chunks sharing phonetic codes with the query,
// ordered by number of distinct shared codes, fingerprint as tiebreak.
func (s *SQLiteStore) SearchPhonetic(ctx context.Context, codes []string, limit int) ([]*PhoneticResult, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(codes))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(codes)+1)
	for _, code := range codes {
		args = append(args, code)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, COUNT(DISTINCT code) AS matches
		FROM phonetic_codes
		WHERE code IN (`+placeholders+`)
		GROUP BY chunk_id
		ORDER BY matches DESC, chunk_id ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*PhoneticResult
	for rows.Next() {
		r := &PhoneticResult{}
		if err := rows.Scan(&r.ChunkID, &r.Matches); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// PhoneticChunkIDs lists chunks present in the phonetic index.
func (s *SQLiteStore) PhoneticChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT chunk_id FROM phonetic_codes`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectStrings(rows)
}

// SetSignalStatus records a signal transition, rejecting illegal ones.
func (s *SQLiteStore) SetSignalStatus(ctx context.Context, chunkID string, sig signature.Signal, status signature.Status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM signal_status WHERE chunk_id = ? AND signal = ?`,
		chunkID, sig).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		// First write acts as a transition from pending.
		if status != signature.StatusPending && !signature.CanTransition(signature.StatusPending, status) {
			return stamerrors.New(stamerrors.ErrCodeInternal,
				fmt.Sprintf("illegal signal transition pending -> %s", status))
		}
	case err != nil:
		return err
	default:
		if !signature.CanTransition(signature.Status(current), status) {
			return stamerrors.New(stamerrors.ErrCodeInternal,
				fmt.Sprintf("illegal signal transition %s -> %s", current, status))
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signal_status (chunk_id, signal, status, detail, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id, signal) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail,
			updated_at = excluded.updated_at`,
		chunkID, sig, status, detail, time.Now().UTC())
	return err
}

// GetSignalStatus returns a chunk's status per signal. Signals never
// recorded report as pending.
func (s *SQLiteStore) GetSignalStatus(ctx context.Context, chunkID string) (map[signature.Signal]signature.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[signature.Signal]signature.Status, len(signature.Signals))
	for _, sig := range signature.Signals {
		statuses[sig] = signature.StatusPending
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT signal, status FROM signal_status WHERE chunk_id = ?`, chunkID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sig, status string
		if err := rows.Scan(&sig, &status); err != nil {
			return nil, err
		}
		statuses[signature.Signal(sig)] = signature.Status(status)
	}
	return statuses, rows.Err()
}

// ChunksNeedingWork lists chunks whose signal is pending or
// failed-retryable, including chunks with no status row yet.
func (s *SQLiteStore) ChunksNeedingWork(ctx context.Context, sig signature.Signal) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.fingerprint FROM chunks c
		LEFT JOIN signal_status ss ON ss.chunk_id = c.fingerprint AND ss.signal = ?
		WHERE ss.status IS NULL OR ss.status IN (?, ?)
		ORDER BY c.fingerprint`,
		sig, signature.StatusPending, signature.StatusFailedRetryable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectStrings(rows)
}

// SaveEntities upserts graph entities.
func (s *SQLiteStore) SaveEntities(ctx context.Context, entities []*graph.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, name, kind, anchor_code, document_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			anchor_code = excluded.anchor_code,
			document_id = excluded.document_id`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, e := range entities {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, e.Kind, e.AnchorCode, e.DocumentID, createdAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetEntity fetches an entity by ID.
func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := &graph.Entity{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, anchor_code, document_id, created_at
		FROM entities WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.Kind, &e.AnchorCode, &e.DocumentID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, stamerrors.New(stamerrors.ErrCodeUnknownEntity, fmt.Sprintf("entity %s not found", id))
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindEntitiesByName returns entities matching a name, case-insensitive.
func (s *SQLiteStore) FindEntitiesByName(ctx context.Context, name string) ([]*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, anchor_code, document_id, created_at
		FROM entities WHERE name = ? COLLATE NOCASE ORDER BY anchor_code, id`, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectEntities(rows)
}

// EntityByAnchor returns the entity registered for a genealogical code
// within a document, or nil when the code has no entity yet.
func (s *SQLiteStore) EntityByAnchor(ctx context.Context, documentID, code string) (*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := &graph.Entity{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, anchor_code, document_id, created_at
		FROM entities WHERE document_id = ? AND anchor_code = ?
		ORDER BY id LIMIT 1`, documentID, code).
		Scan(&e.ID, &e.Name, &e.Kind, &e.AnchorCode, &e.DocumentID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// EntitiesByDocument returns every entity registered for a document,
// ordered by anchor code.
func (s *SQLiteStore) EntitiesByDocument(ctx context.Context, documentID string) ([]*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, anchor_code, document_id, created_at
		FROM entities WHERE document_id = ?
		ORDER BY anchor_code, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectEntities(rows)
}

// EntitiesForChunk returns entities mentioned in a chunk.
func (s *SQLiteStore) EntitiesForChunk(ctx context.Context, chunkID string) ([]*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.kind, e.anchor_code, e.document_id, e.created_at
		FROM entities e
		JOIN entity_mentions m ON m.entity_id = e.id
		WHERE m.chunk_id = ?
		ORDER BY e.name, e.id`, chunkID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectEntities(rows)
}

func collectEntities(rows *sql.Rows) ([]*graph.Entity, error) {
	var entities []*graph.Entity
	for rows.Next() {
		e := &graph.Entity{}
		if err := rows.Scan(&e.ID, &e.Name, &e.Kind, &e.AnchorCode, &e.DocumentID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// SaveMention links an entity to a chunk it is mentioned in.
func (s *SQLiteStore) SaveMention(ctx context.Context, entityID, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entity_mentions (entity_id, chunk_id) VALUES (?, ?)`,
		entityID, chunkID)
	return err
}

// SaveEdges upserts relationship edges.
func (s *SQLiteStore) SaveEdges(ctx context.Context, edges []*graph.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (id, from_entity, to_entity, kind, chunk_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			from_entity = excluded.from_entity,
			to_entity = excluded.to_entity,
			kind = excluded.kind,
			chunk_id = excluded.chunk_id`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.ID, e.From, e.To, e.Kind, e.ChunkID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EdgesFrom returns every edge touching an entity, in either direction.
func (s *SQLiteStore) EdgesFrom(ctx context.Context, entityID string) ([]*graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_entity, to_entity, kind, chunk_id
		FROM edges WHERE from_entity = ? OR to_entity = ?
		ORDER BY id`, entityID, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var edges []*graph.Edge
	for rows.Next() {
		e := &graph.Edge{}
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Kind, &e.ChunkID); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ChunksForEntity returns the chunks an entity is mentioned in.
func (s *SQLiteStore) ChunksForEntity(ctx context.Context, entityID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id FROM entity_mentions WHERE entity_id = ? ORDER BY chunk_id`, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectStrings(rows)
}

// GetState reads a runtime state value; missing keys return "".
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetState writes a runtime state value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

func marshalAnchors(anchors []anchor.Anchor) (string, error) {
	payload := make([]anchorPayload, len(anchors))
	for i, a := range anchors {
		payload[i] = anchorPayload{
			Code: a.Code, Page: a.Page,
			Dates: a.Dates, Places: a.Places, Names: a.Names,
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal anchors: %w", err)
	}
	return string(data), nil
}

func unmarshalAnchors(data string) ([]anchor.Anchor, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var payload []anchorPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal anchors: %w", err)
	}
	anchors := make([]anchor.Anchor, len(payload))
	for i, p := range payload {
		anchors[i] = anchor.Anchor{
			Code: p.Code, Page: p.Page,
			Dates: p.Dates, Places: p.Places, Names: p.Names,
		}
	}
	return anchors, nil
}
