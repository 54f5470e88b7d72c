package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamzoek/stamzoek/internal/anchor"
)

func spansFor(t *testing.T, text string, page int) []anchor.Span {
	t.Helper()
	return anchor.NewExtractor(nil).ExtractPage(text, page)
}

func reassemble(chunks []*Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.OwnText())
	}
	return sb.String()
}

func TestChunkPage_SingleEntry(t *testing.T) {
	text := "II.1.a Jan de Vries married Maria Jansen in 1887 in Utrecht."
	c := NewChunker(DefaultOptions())

	chunks := c.ChunkPage("doc-1", 3, spansFor(t, text, 3))

	require.Len(t, chunks, 1)
	ch := chunks[0]
	assert.Equal(t, text, ch.Text)
	assert.Equal(t, 0, ch.OverlapLen)
	assert.Equal(t, 3, ch.Page)
	assert.Equal(t, 0, ch.Ordinal)
	assert.Equal(t, "II.1.a", ch.AnchorCode())
	require.Len(t, ch.Anchors, 1)
	assert.Contains(t, ch.Anchors[0].Names, "Jan de Vries")
	assert.Contains(t, ch.Anchors[0].Places, "Utrecht")
}

func TestChunkPage_Lossless(t *testing.T) {
	// A long synthetic register page: many entries, uneven sizes.
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "II.%d Jan Jansen, born 18%02d in Utrecht, married and had %d children.\n", i+1, i, i%7)
		if i%5 == 0 {
			sb.WriteString("A longer annotation follows the entry with additional prose about the family farm and its grounds.\n")
		}
	}
	text := strings.TrimRight(sb.String(), "\n")

	c := NewChunker(Options{TargetTokens: 40, MaxTokens: 80, MinTokens: 8, OverlapTokens: 6})
	chunks := c.ChunkPage("doc-1", 1, spansFor(t, text, 1))

	require.NotEmpty(t, chunks)
	assert.Equal(t, text, reassemble(chunks), "non-overlap regions must reconstruct the page")

	for i, ch := range chunks {
		assert.NotEmpty(t, ch.OwnText(), "chunk %d must not be empty", i)
		assert.Equal(t, i, ch.Ordinal)
		assert.NotEmpty(t, ch.Anchors)
		if i > 0 {
			// The overlap prefix repeats the previous chunk's tail.
			assert.True(t, strings.HasSuffix(chunks[i-1].Text, ch.Text[:ch.OverlapLen]),
				"chunk %d overlap must match predecessor tail", i)
		}
	}
}

func TestChunkPage_OversizedAnchorKeepsCode(t *testing.T) {
	// One anchor span far beyond the hard cap must split into several
	// chunks that all keep the anchor's code.
	words := strings.Repeat("woord ", 300)
	text := "II.1.a " + strings.TrimSpace(words)

	c := NewChunker(Options{TargetTokens: 50, MaxTokens: 60, MinTokens: 8, OverlapTokens: 4})
	chunks := c.ChunkPage("doc-1", 2, spansFor(t, text, 2))

	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, "II.1.a", ch.AnchorCode(), "chunk %d", i)
	}
	assert.Equal(t, text, reassemble(chunks))
}

func TestSplitUnits_MultibyteLetters(t *testing.T) {
	// The continuation bytes of "à" and "Å" coincide with the NEL and
	// NBSP code points, so byte-wise scanning would split mid-rune and
	// count extra tokens.
	text := "Willem à Brakel reisde naar Åbo en Curaçao."
	units := splitUnits(text, []string{text})

	require.Len(t, units, 8)
	assert.Equal(t, "à ", units[1].text)
	assert.Equal(t, "Åbo ", units[5].text)

	var sb strings.Builder
	for _, u := range units {
		sb.WriteString(u.text)
	}
	assert.Equal(t, text, sb.String())
}

func TestChunkPage_EmptyPage(t *testing.T) {
	c := NewChunker(DefaultOptions())
	assert.Nil(t, c.ChunkPage("doc-1", 1, spansFor(t, "", 1)))
	assert.Nil(t, c.ChunkPage("doc-1", 1, spansFor(t, "   \n  ", 1)))
}

func TestFingerprint_NormalizesIncidentalDifferences(t *testing.T) {
	a := Fingerprint("Jan de Vries  married\tMaria Jansen")
	b := Fingerprint("jan de vries married maria jansen")
	c := Fingerprint("Jan de Vries married Maria Jansen in 1887")

	assert.Equal(t, a, b, "whitespace and casing must not change identity")
	assert.NotEqual(t, a, c, "content differences must change identity")
	assert.Len(t, a, 32)
}

func TestChunkPage_IdenticalInputSameFingerprints(t *testing.T) {
	text := "II.1.a Jan de Vries married Maria Jansen in 1887 in Utrecht.\nII.1.b Pieter de Vries, born 1890."
	c := NewChunker(DefaultOptions())

	first := c.ChunkPage("doc-1", 3, spansFor(t, text, 3))
	second := c.ChunkPage("doc-1", 3, spansFor(t, text, 3))

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Fingerprint, second[i].Fingerprint)
	}
}
