// Package chunk splits anchored page text into bounded, overlap-aware
// retrieval units with stable content-derived identities.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/stamzoek/stamzoek/internal/anchor"
)

// Chunk size defaults, in tokens. Genealogical register entries are short;
// the defaults keep one entry per chunk for typical books.
const (
	DefaultTargetTokens  = 160
	DefaultMaxTokens     = 320
	DefaultMinTokens     = 24
	DefaultOverlapTokens = 16
)

// Chunk is the atomic retrieval candidate.
type Chunk struct {
	// Fingerprint is the stable identity: SHA-256 over the
	// whitespace/case-normalized text, hex-encoded, truncated to 32 chars.
	// Re-ingesting identical text yields the same fingerprint.
	Fingerprint string

	// DocumentID identifies the source document.
	DocumentID string

	// Page is the 1-based page number. Chunks never span pages.
	Page int

	// Ordinal is the position of the chunk within its page.
	Ordinal int

	// Text is the chunk text, including the overlap prefix repeated from
	// the previous chunk's tail.
	Text string

	// OverlapLen is the byte length of the overlap prefix within Text.
	// Text[OverlapLen:] is the chunk's own (non-overlapping) region;
	// concatenating these regions over a page reproduces the page exactly.
	OverlapLen int

	// Anchors are the structural coordinates the chunk's own region
	// touches. At least one entry (the page-level anchor).
	Anchors []anchor.Anchor

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnText returns the non-overlapping region of the chunk.
func (c *Chunk) OwnText() string {
	if c.OverlapLen >= len(c.Text) {
		return ""
	}
	return c.Text[c.OverlapLen:]
}

// AnchorCode returns the first genealogical code among the chunk's anchors,
// or "" when none carries one.
func (c *Chunk) AnchorCode() string {
	for _, a := range c.Anchors {
		if a.HasCode() {
			return a.Code
		}
	}
	return ""
}

// Normalize collapses whitespace runs and lowercases text. Fingerprints are
// computed over normalized text so incidental OCR whitespace and casing
// differences do not change chunk identity.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Fingerprint computes the stable content identity for a piece of text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:16])
}
