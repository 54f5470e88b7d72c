package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamzoek/stamzoek/internal/anchor"
	"github.com/stamzoek/stamzoek/internal/chunk"
)

func TestPhoneticCodes(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"Peters", []string{"734000", "739400"}},
		{"Jansen", []string{"164600", "464600"}},
		{"Vries", []string{"794000"}},
		{"", nil},
		{"---", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PhoneticCodes(tt.name))
		})
	}
}

func TestPhoneticCodes_SpellingVariantsConverge(t *testing.T) {
	// The classic Dutch surname variants must land on the same codes.
	assert.Equal(t, PhoneticCodes("Jansen"), PhoneticCodes("Janssen"))
	assert.Equal(t, PhoneticCodes("Vries"), PhoneticCodes("Fries"))
}

func TestPhoneticCodes_DiacriticsFolded(t *testing.T) {
	assert.Equal(t, PhoneticCodes("Muller"), PhoneticCodes("Müller"))
}

func TestTrigrams(t *testing.T) {
	grams := Trigrams("Jansen, Utrecht")
	assert.Equal(t, []string{"jan", "ans", "nse", "sen", "utr", "tre", "rec", "ech", "cht"}, grams)

	// Short tokens survive whole.
	assert.Equal(t, []string{"in", "de"}, Trigrams("in de"))
}

func TestTrigramSet_Dedupes(t *testing.T) {
	set := TrigramSet("ana ana")
	assert.Equal(t, []string{"ana"}, set)
}

func TestBuilder_Build(t *testing.T) {
	c := &chunk.Chunk{
		Text: "II.1.a Jan de Vries married Maria Jansen in May 1887.",
		Anchors: []anchor.Anchor{{
			Code:  "II.1.a",
			Page:  3,
			Names: []string{"Jan de Vries", "Maria Jansen"},
		}},
	}
	c.Fingerprint = chunk.Fingerprint(c.Text)

	sig := NewBuilder(nil).Build(c)

	assert.Equal(t, c.Fingerprint, sig.Fingerprint)
	assert.NotEmpty(t, sig.Trigrams)
	assert.Equal(t, StatusComputed, sig.Status[SignalLexical])
	assert.Equal(t, StatusComputed, sig.Status[SignalPhonetic])
	assert.Equal(t, StatusPending, sig.Status[SignalVector])

	// Name tokens contribute, particles and month names do not.
	require.NotEmpty(t, sig.PhoneticCodes)
	assert.Subset(t, sig.PhoneticCodes, PhoneticCodes("Jansen"))
	assert.Subset(t, sig.PhoneticCodes, PhoneticCodes("Vries"))
	for _, code := range PhoneticCodes("May") {
		assert.NotContains(t, sig.PhoneticCodes, code)
	}
}

func TestQueryCodes(t *testing.T) {
	codes := QueryCodes("where did jansen live")
	for _, c := range PhoneticCodes("Jansen") {
		assert.Contains(t, codes, c)
	}
	assert.Empty(t, QueryCodes("in of"))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusComputed))
	assert.True(t, CanTransition(StatusFailedRetryable, StatusComputed))
	assert.True(t, CanTransition(StatusComputed, StatusPending))
	assert.True(t, CanTransition(StatusFailedPermanent, StatusPending))
	assert.False(t, CanTransition(StatusFailedPermanent, StatusComputed))
	assert.False(t, CanTransition(StatusComputed, StatusFailedRetryable))

	assert.True(t, StatusPending.NeedsWork())
	assert.True(t, StatusFailedRetryable.NeedsWork())
	assert.False(t, StatusComputed.NeedsWork())
	assert.False(t, StatusFailedPermanent.NeedsWork())
}
