package ingest

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/stamzoek/stamzoek/internal/signature"
	"github.com/stamzoek/stamzoek/internal/store"
)

// IssueKind categorizes a cross-index inconsistency. The metadata
// store is the source of truth; the three signal indexes are derived
// from it and can always be rebuilt.
type IssueKind int

const (
	// OrphanLexical is a lexical entry without matching metadata.
	OrphanLexical IssueKind = iota
	// OrphanVector is a vector entry without matching metadata.
	OrphanVector
	// OrphanPhonetic is a phonetic posting without matching metadata.
	OrphanPhonetic
	// MissingLexical is a chunk absent from the lexical index.
	MissingLexical
	// MissingVector is a chunk absent from the vector store.
	MissingVector
	// MissingPhonetic is a chunk with no phonetic postings.
	MissingPhonetic
)

func (k IssueKind) String() string {
	switch k {
	case OrphanLexical:
		return "orphan_lexical"
	case OrphanVector:
		return "orphan_vector"
	case OrphanPhonetic:
		return "orphan_phonetic"
	case MissingLexical:
		return "missing_lexical"
	case MissingVector:
		return "missing_vector"
	case MissingPhonetic:
		return "missing_phonetic"
	default:
		return "unknown"
	}
}

// Issue is one detected cross-index problem.
type Issue struct {
	Kind    IssueKind
	ChunkID string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	Checked  int
	Issues   []Issue
	Duration time.Duration
}

// Consistent reports whether the check found no issues.
func (r *CheckResult) Consistent() bool { return len(r.Issues) == 0 }

// Checker validates identity agreement between the metadata store and
// the three signal indexes.
type Checker struct {
	meta    store.MetadataStore
	lexical store.LexicalIndex
	vector  store.VectorStore
	logger  *slog.Logger
}

// NewChecker creates a Checker over the given stores.
func NewChecker(meta store.MetadataStore, lexical store.LexicalIndex, vector store.VectorStore, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{meta: meta, lexical: lexical, vector: vector, logger: logger}
}

// Check scans every index for orphans and missing entries. Chunks
// whose vector signal failed are not reported as missing; their
// absence is already recorded in signal status.
func (c *Checker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	metaIDs, err := c.meta.AllChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	truth := make(map[string]bool, len(metaIDs))
	for _, id := range metaIDs {
		truth[id] = true
	}

	lexIDs, err := c.lexical.AllIDs()
	if err != nil {
		c.logger.Warn("cannot list lexical index ids", "error", err)
	}
	vecIDs := c.vector.AllIDs()
	phonIDs, err := c.meta.PhoneticChunkIDs(ctx)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	addOrphans := func(kind IssueKind, ids []string) {
		for _, id := range ids {
			if !truth[id] {
				issues = append(issues, Issue{Kind: kind, ChunkID: id})
			}
		}
	}
	addOrphans(OrphanLexical, lexIDs)
	addOrphans(OrphanVector, vecIDs)
	addOrphans(OrphanPhonetic, phonIDs)

	lexSet := toSet(lexIDs)
	phonSet := toSet(phonIDs)

	for _, id := range metaIDs {
		statuses, err := c.meta.GetSignalStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if !lexSet[id] {
			issues = append(issues, Issue{Kind: MissingLexical, ChunkID: id})
		}
		// A chunk without name tokens has no postings even when its
		// phonetic signal is computed; only uncomputed chunks count.
		if !phonSet[id] && statuses[signature.SignalPhonetic] != signature.StatusComputed {
			issues = append(issues, Issue{Kind: MissingPhonetic, ChunkID: id})
		}
		if !c.vector.Contains(id) && statuses[signature.SignalVector] == signature.StatusComputed {
			issues = append(issues, Issue{Kind: MissingVector, ChunkID: id})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Kind != issues[j].Kind {
			return issues[i].Kind < issues[j].Kind
		}
		return issues[i].ChunkID < issues[j].ChunkID
	})

	return &CheckResult{
		Checked:  len(metaIDs),
		Issues:   issues,
		Duration: time.Since(start),
	}, nil
}

// Repair fixes detected issues. Orphans are deleted from their index.
// Missing lexical and phonetic entries are rebuilt from the chunk text
// in metadata. Missing vectors are reset to pending so the next ingest
// pass re-embeds them.
func (c *Checker) Repair(ctx context.Context, issues []Issue) error {
	builder := signature.NewBuilder(nil)
	var orphanLex, orphanVec []string

	for _, issue := range issues {
		switch issue.Kind {
		case OrphanLexical:
			orphanLex = append(orphanLex, issue.ChunkID)
		case OrphanVector:
			orphanVec = append(orphanVec, issue.ChunkID)
		case OrphanPhonetic:
			if err := c.meta.SavePhoneticCodes(ctx, issue.ChunkID, nil); err != nil {
				c.logger.Warn("clear orphan phonetic postings", "chunk", issue.ChunkID, "error", err)
			}
		case MissingLexical, MissingPhonetic:
			if err := c.rebuildFromMetadata(ctx, builder, issue); err != nil {
				c.logger.Warn("rebuild "+issue.Kind.String(), "chunk", issue.ChunkID, "error", err)
			}
		case MissingVector:
			if err := c.meta.SetSignalStatus(ctx, issue.ChunkID, signature.SignalVector,
				signature.StatusPending, "vector missing from index"); err != nil {
				c.logger.Warn("reset vector status", "chunk", issue.ChunkID, "error", err)
			}
		}
	}

	if len(orphanLex) > 0 {
		if err := c.lexical.Delete(ctx, orphanLex); err != nil {
			c.logger.Warn("delete orphan lexical entries", "count", len(orphanLex), "error", err)
		} else {
			c.logger.Info("deleted orphan lexical entries", "count", len(orphanLex))
		}
	}
	if len(orphanVec) > 0 {
		if err := c.vector.Delete(ctx, orphanVec); err != nil {
			c.logger.Warn("delete orphan vector entries", "count", len(orphanVec), "error", err)
		} else {
			c.logger.Info("deleted orphan vector entries", "count", len(orphanVec))
		}
	}
	return nil
}

func (c *Checker) rebuildFromMetadata(ctx context.Context, builder *signature.Builder, issue Issue) error {
	ch, err := c.meta.GetChunk(ctx, issue.ChunkID)
	if err != nil {
		return err
	}
	switch issue.Kind {
	case MissingLexical:
		if err := c.lexical.Index(ctx, []*store.LexicalDoc{{ID: ch.Fingerprint, Content: ch.Text}}); err != nil {
			return err
		}
		return c.meta.SetSignalStatus(ctx, ch.Fingerprint, signature.SignalLexical, signature.StatusComputed, "")
	case MissingPhonetic:
		sig := builder.Build(ch)
		if err := c.meta.SavePhoneticCodes(ctx, ch.Fingerprint, sig.PhoneticCodes); err != nil {
			return err
		}
		return c.meta.SetSignalStatus(ctx, ch.Fingerprint, signature.SignalPhonetic, signature.StatusComputed, "")
	}
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
