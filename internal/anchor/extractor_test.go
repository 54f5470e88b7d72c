package anchor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCode(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"II.1.a Jan de Vries, geboren 1860", "II.1.a"},
		{"III.2 Willem Jansen", "III.2"},
		{"IV. Het vierde geslacht", "IV"},
		{"II) Tweede tak", "II"},
		{"In 1887 married at Utrecht", ""}, // bare roman numeral prefix is not a code
		{"Ordinary prose about the family", ""},
		{"  II.3.b indented entry", "II.3.b"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, detectCode(tt.line), tt.line)
	}
}

func TestExtractPage_SpansCoverPage(t *testing.T) {
	text := "Inleiding tot het geslacht.\n" +
		"II.1.a Jan de Vries married Maria Jansen in 1887 in Utrecht.\n" +
		"Their children were born between 1888-1895.\n" +
		"II.1.b Pieter de Vries, born 1890 in Leiden."

	e := NewExtractor(nil)
	spans := e.ExtractPage(text, 3)

	require.Len(t, spans, 3)

	// Lossless coverage: joining span texts reproduces the page.
	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}
	assert.Equal(t, text, strings.Join(texts, "\n"))

	// Leading prose has only a page-level anchor.
	assert.Equal(t, "", spans[0].Anchor.Code)
	assert.Equal(t, 3, spans[0].Anchor.Page)

	// The second span carries the code plus detected tokens.
	a := spans[1].Anchor
	assert.Equal(t, "II.1.a", a.Code)
	assert.Contains(t, a.Names, "Jan de Vries")
	assert.Contains(t, a.Names, "Maria Jansen")
	assert.Contains(t, a.Places, "Utrecht")
	assert.Contains(t, a.Dates, DateRange{From: 1887, To: 1887})
	assert.Contains(t, a.Dates, DateRange{From: 1888, To: 1895})

	assert.Equal(t, "II.1.b", spans[2].Anchor.Code)
	assert.Contains(t, spans[2].Anchor.Places, "Leiden")
}

func TestExtractPage_CodeInheritance(t *testing.T) {
	text := "II.1.a Jan de Vries\n" +
		"continued entry without its own code\n" +
		"still the same person"

	e := NewExtractor(nil)
	spans := e.ExtractPage(text, 1)

	// Codeless lines merge into the preceding coded span.
	require.Len(t, spans, 1)
	assert.Equal(t, "II.1.a", spans[0].Anchor.Code)
}

func TestExtractPage_NeverEmpty(t *testing.T) {
	e := NewExtractor(nil)

	spans := e.ExtractPage("", 7)
	require.Len(t, spans, 1)
	assert.Equal(t, Anchor{Page: 7}, spans[0].Anchor)
}

func TestAnchor_Same(t *testing.T) {
	base := Anchor{Code: "II.1.a", Page: 3}

	t.Run("matching codes win regardless of page", func(t *testing.T) {
		other := Anchor{Code: "II.1.a", Page: 9}
		assert.True(t, base.Same(other))
	})

	t.Run("differing codes never match", func(t *testing.T) {
		other := Anchor{Code: "II.1.b", Page: 3}
		assert.False(t, base.Same(other))
	})

	t.Run("codeless anchors match on page and overlapping dates", func(t *testing.T) {
		a := Anchor{Page: 3, Dates: []DateRange{{1885, 1890}}}
		b := Anchor{Page: 3, Dates: []DateRange{{1890, 1895}}}
		c := Anchor{Page: 3, Dates: []DateRange{{1900, 1901}}}
		assert.True(t, a.Same(b))
		assert.False(t, a.Same(c))
	})

	t.Run("codeless anchors match on shared names", func(t *testing.T) {
		a := Anchor{Page: 3, Names: []string{"Jan de Vries"}}
		b := Anchor{Page: 3, Names: []string{"Jan de Vries", "Maria Jansen"}}
		assert.True(t, a.Same(b))
	})

	t.Run("bare page anchors match by page", func(t *testing.T) {
		assert.True(t, Anchor{Page: 3}.Same(Anchor{Page: 3}))
		assert.False(t, Anchor{Page: 3}.Same(Anchor{Page: 4}))
	})
}

func TestDetectDates_Bounded(t *testing.T) {
	text := "1800, 1801, 1802, 1803, 1804, 1805, 1806, 1807, 1808, 1809, 1810"

	dates := detectDates(text)
	assert.Len(t, dates, MaxDates)
}

func TestDetectDates_RangeNotDoubleCounted(t *testing.T) {
	dates := detectDates("children born 1888-1895, died 1950")
	assert.Equal(t, []DateRange{{1888, 1895}, {1950, 1950}}, dates)
}
