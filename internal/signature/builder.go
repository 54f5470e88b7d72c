package signature

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/stamzoek/stamzoek/internal/anchor"
	"github.com/stamzoek/stamzoek/internal/chunk"
)

// Signature holds the locally computable signal inputs for one chunk.
// The vector signal needs an embedding collaborator and stays pending
// here; the embed stage fills it in.
type Signature struct {
	Fingerprint   string
	Trigrams      []string
	PhoneticCodes []string
	Status        map[Signal]Status
}

// Builder derives signatures from chunks. Phonetic codes come from the
// chunk's anchor names plus any capitalized tokens in its own text, so
// a name mentioned mid-sentence is still phonetically reachable.
type Builder struct {
	gazetteer *anchor.Gazetteer
}

func NewBuilder(g *anchor.Gazetteer) *Builder {
	if g == nil {
		g = anchor.NewGazetteer()
	}
	return &Builder{gazetteer: g}
}

// Build computes the lexical and phonetic signals for a chunk. Both are
// pure local computation and cannot fail; vector starts pending.
func (b *Builder) Build(c *chunk.Chunk) *Signature {
	sig := &Signature{
		Fingerprint: c.Fingerprint,
		Trigrams:    Trigrams(c.Text),
		Status: map[Signal]Status{
			SignalLexical:  StatusComputed,
			SignalVector:   StatusPending,
			SignalPhonetic: StatusComputed,
		},
	}
	sig.PhoneticCodes = b.phoneticCodesFor(c)
	return sig
}

func (b *Builder) phoneticCodesFor(c *chunk.Chunk) []string {
	candidates := make(map[string]struct{})
	for _, a := range c.Anchors {
		for _, name := range a.Names {
			for _, w := range strings.Fields(name) {
				if !b.gazetteer.IsParticle(strings.ToLower(w)) {
					candidates[w] = struct{}{}
				}
			}
		}
	}
	for _, w := range capitalizedTokens(c.Text) {
		if b.gazetteer.IsMonth(strings.ToLower(w)) {
			continue
		}
		candidates[w] = struct{}{}
	}

	seen := make(map[string]struct{})
	var codes []string
	for w := range candidates {
		for _, code := range PhoneticCodes(w) {
			if _, ok := seen[code]; !ok {
				seen[code] = struct{}{}
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)
	return codes
}

func capitalizedTokens(text string) []string {
	var tokens []string
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		first, _ := utf8.DecodeRuneInString(tok)
		if unicode.IsUpper(first) && utf8.RuneCountInString(tok) > 1 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// QueryCodes computes the phonetic codes for a raw query string,
// coding every token so misspelled lowercase names still match.
func QueryCodes(query string) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, tok := range tokenize(query) {
		if len(tok) < 3 {
			continue
		}
		for _, code := range PhoneticCodes(tok) {
			if _, ok := seen[code]; !ok {
				seen[code] = struct{}{}
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)
	return codes
}
