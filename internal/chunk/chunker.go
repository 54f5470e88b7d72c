package chunk

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/stamzoek/stamzoek/internal/anchor"
)

// Options bounds chunk sizes in tokens.
type Options struct {
	TargetTokens  int // preferred cut point
	MaxTokens     int // hard cap
	MinTokens     int // floor below which a trailing remainder merges backward
	OverlapTokens int // trailing tokens repeated at the start of the next chunk
}

// DefaultOptions returns the default chunking bounds.
func DefaultOptions() Options {
	return Options{
		TargetTokens:  DefaultTargetTokens,
		MaxTokens:     DefaultMaxTokens,
		MinTokens:     DefaultMinTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

// Chunker splits anchored spans into bounded chunks. It prefers to cut at
// anchor (span) boundaries; a span larger than the hard cap is split
// mid-anchor and every resulting chunk keeps that anchor.
type Chunker struct {
	opts Options
}

// NewChunker creates a chunker, filling zero options with defaults.
func NewChunker(opts Options) *Chunker {
	d := DefaultOptions()
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = d.TargetTokens
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = d.MaxTokens
	}
	if opts.MinTokens <= 0 {
		opts.MinTokens = d.MinTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.MaxTokens < opts.TargetTokens {
		opts.MaxTokens = opts.TargetTokens
	}
	return &Chunker{opts: opts}
}

// unit is one token together with the whitespace that follows it, so that
// concatenating units reproduces source text byte for byte.
type unit struct {
	text string // token + trailing whitespace
	span int    // index of the span the unit starts in
}

// ChunkPage splits a page's anchored spans into chunks. The page text is
// the spans' texts joined with "\n" (the extractor's gapless covering).
//
// Contract: concatenating every produced chunk's OwnText reproduces the
// page text exactly, and no chunk is empty. Whitespace-only pages produce
// no chunks.
func (c *Chunker) ChunkPage(documentID string, page int, spans []anchor.Span) []*Chunk {
	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}
	pageText := strings.Join(texts, "\n")
	units := splitUnits(pageText, texts)
	if len(units) == 0 {
		return nil
	}

	// Cut unit ranges: prefer span boundaries once past target, force a
	// cut at the hard cap.
	type cut struct{ start, end int }
	var cuts []cut
	start := 0
	for i := 1; i < len(units); i++ {
		count := i - start
		atBoundary := units[i].span != units[i-1].span
		if count >= c.opts.MaxTokens || (count >= c.opts.TargetTokens && atBoundary) {
			cuts = append(cuts, cut{start, i})
			start = i
		}
	}
	remainder := len(units) - start
	if remainder > 0 {
		if remainder < c.opts.MinTokens && len(cuts) > 0 &&
			(cuts[len(cuts)-1].end-cuts[len(cuts)-1].start)+remainder <= c.opts.MaxTokens {
			// Trailing fragment merges into the previous chunk; the hard
			// cap still wins over the floor.
			cuts[len(cuts)-1].end = len(units)
		} else {
			cuts = append(cuts, cut{start, len(units)})
		}
	}

	now := time.Now()
	chunks := make([]*Chunk, 0, len(cuts))
	for ord, cu := range cuts {
		var sb strings.Builder
		overlapLen := 0
		if ord > 0 && c.opts.OverlapTokens > 0 {
			prevStart := cu.start - c.opts.OverlapTokens
			if prevStart < cuts[ord-1].start {
				prevStart = cuts[ord-1].start
			}
			for i := prevStart; i < cu.start; i++ {
				sb.WriteString(units[i].text)
			}
			overlapLen = sb.Len()
		}
		for i := cu.start; i < cu.end; i++ {
			sb.WriteString(units[i].text)
		}

		text := sb.String()
		chunks = append(chunks, &Chunk{
			Fingerprint: Fingerprint(text),
			DocumentID:  documentID,
			Page:        page,
			Ordinal:     ord,
			Text:        text,
			OverlapLen:  overlapLen,
			Anchors:     anchorsFor(spans, units, cu.start, cu.end, page),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return chunks
}

// anchorsFor collects the anchors of the spans covered by units
// [start, end), deduplicated by span, falling back to a page-level anchor.
func anchorsFor(spans []anchor.Span, units []unit, start, end, page int) []anchor.Anchor {
	var out []anchor.Anchor
	last := -1
	for i := start; i < end; i++ {
		if units[i].span != last {
			last = units[i].span
			if last >= 0 && last < len(spans) {
				out = append(out, spans[last].Anchor)
			}
		}
	}
	if len(out) == 0 {
		out = []anchor.Anchor{{Page: page}}
	}
	return out
}

// splitUnits breaks pageText into token+whitespace units and records which
// span each unit starts in. Leading whitespace attaches to the first unit.
func splitUnits(pageText string, spanTexts []string) []unit {
	if strings.TrimSpace(pageText) == "" {
		return nil
	}

	// Span start offsets within the joined page text.
	starts := make([]int, len(spanTexts))
	off := 0
	for i, t := range spanTexts {
		starts[i] = off
		off += len(t) + 1 // '\n' separator
	}
	spanAt := func(pos int) int {
		s := 0
		for i, st := range starts {
			if pos >= st {
				s = i
			}
		}
		return s
	}

	var units []unit
	i := 0
	for i < len(pageText) {
		begin := i
		// Leading whitespace (only before the first token) and the token.
		i = scanRun(pageText, i, true)
		i = scanRun(pageText, i, false)
		// Trailing whitespace belongs to this unit.
		i = scanRun(pageText, i, true)
		units = append(units, unit{text: pageText[begin:i], span: spanAt(begin)})
	}
	return units
}

// scanRun advances i past a run of whitespace (space true) or
// non-whitespace runes. Decoding by rune keeps continuation bytes of
// multi-byte letters from reading as whitespace.
func scanRun(s string, i int, space bool) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) != space {
			break
		}
		i += size
	}
	return i
}
