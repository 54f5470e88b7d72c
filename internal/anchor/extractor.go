package anchor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns for structural extraction.
var (
	// Matches line-leading genealogical codes: a roman-numeral generation
	// optionally followed by numeric branch and letter child segments,
	// e.g. "II.1.a", "III.2", "IV." or "II)". A bare roman numeral without
	// trailing punctuation is not a code ("In 1887 ..." starts with a
	// valid roman numeral).
	codePattern = regexp.MustCompile(`^\s{0,4}([IVXLCDM]+(?:\.(?:\d+|[a-z]))+|[IVXLCDM]+(?:[.)]))(?:[.)]?\s|[.)]?$)`)

	// Matches explicit year ranges: "1887-1890", "1887 – 1890".
	yearRangePattern = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\s*[-–]\s*(1[5-9]\d{2}|20\d{2})\b`)

	// Matches single years in the plausible corpus window.
	yearPattern = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

	// Matches word tokens, including the apostrophes Dutch particles use.
	wordPattern = regexp.MustCompile(`[\p{L}'’]+`)
)

// Extractor derives anchored spans from page text.
// Extraction never fails: unrecognized structure degrades to a page-level
// anchor rather than an error.
type Extractor struct {
	gazetteer *Gazetteer
}

// NewExtractor creates an extractor with the given gazetteer.
// A nil gazetteer gets the defaults.
func NewExtractor(g *Gazetteer) *Extractor {
	if g == nil {
		g = NewGazetteer()
	}
	return &Extractor{gazetteer: g}
}

// ExtractPage splits page text into an ordered sequence of anchored spans
// covering the page without gaps: joining the span texts with "\n"
// reproduces the input exactly.
//
// A line that opens with a genealogical code starts a new span. Lines
// without a code inherit the nearest preceding code on the same page, so
// anchors degrade to coarser ones instead of disappearing.
func (e *Extractor) ExtractPage(text string, page int) []Span {
	lines := strings.Split(text, "\n")

	type group struct {
		code  string
		lines []string
	}

	var groups []group
	current := ""
	for _, line := range lines {
		code := detectCode(line)
		if code != "" && code != current {
			groups = append(groups, group{code: code, lines: []string{line}})
			current = code
			continue
		}
		if len(groups) == 0 {
			groups = append(groups, group{code: current})
		}
		g := &groups[len(groups)-1]
		g.lines = append(g.lines, line)
	}

	spans := make([]Span, 0, len(groups))
	for _, g := range groups {
		spanText := strings.Join(g.lines, "\n")
		spans = append(spans, Span{
			Text:   spanText,
			Anchor: e.buildAnchor(spanText, g.code, page),
		})
	}
	return spans
}

// buildAnchor assembles the anchor for a span of text.
func (e *Extractor) buildAnchor(text, code string, page int) Anchor {
	a := Anchor{Code: code, Page: page}
	a.Dates = detectDates(text)
	a.Names, a.Places = e.detectNamesAndPlaces(text)
	return a
}

// detectCode returns the normalized genealogical code opening the line,
// or "" when the line has none.
func detectCode(line string) string {
	m := codePattern.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return strings.TrimRight(m[1], ".)")
}

// detectDates finds year ranges and standalone years, bounded at MaxDates.
func detectDates(text string) []DateRange {
	var dates []DateRange

	// Explicit ranges first; single years inside them are not re-reported.
	consumed := make([][2]int, 0, 4)
	for _, loc := range yearRangePattern.FindAllStringSubmatchIndex(text, -1) {
		from, err1 := strconv.Atoi(text[loc[2]:loc[3]])
		to, err2 := strconv.Atoi(text[loc[4]:loc[5]])
		if err1 != nil || err2 != nil || to < from {
			continue
		}
		dates = append(dates, DateRange{From: from, To: to})
		consumed = append(consumed, [2]int{loc[0], loc[1]})
	}

	for _, loc := range yearPattern.FindAllStringIndex(text, -1) {
		inRange := false
		for _, c := range consumed {
			if loc[0] >= c[0] && loc[1] <= c[1] {
				inRange = true
				break
			}
		}
		if inRange {
			continue
		}
		year, err := strconv.Atoi(text[loc[0]:loc[1]])
		if err != nil {
			continue
		}
		dates = append(dates, DateRange{From: year, To: year})
	}

	return dedupeDates(dates)
}

func dedupeDates(dates []DateRange) []DateRange {
	seen := make(map[DateRange]struct{}, len(dates))
	out := dates[:0]
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
		if len(out) == MaxDates {
			break
		}
	}
	return out
}

// detectNamesAndPlaces scans word tokens for capitalized sequences.
// A sequence of two or more capitalized words, optionally joined by surname
// particles, is a person name ("Jan de Vries") unless the gazetteer knows
// the whole sequence as a place ("Grand Rapids"). Single tokens found in
// the place gazetteer are places.
func (e *Extractor) detectNamesAndPlaces(text string) (names, places []string) {
	tokens := wordPattern.FindAllString(text, -1)

	var (
		nameSet  = make(map[string]struct{})
		placeSet = make(map[string]struct{})
	)
	addName := func(n string) {
		if _, ok := nameSet[n]; !ok && len(names) < MaxNames {
			nameSet[n] = struct{}{}
			names = append(names, n)
		}
	}
	addPlace := func(p string) {
		if _, ok := placeSet[p]; !ok && len(places) < MaxPlaces {
			placeSet[p] = struct{}{}
			places = append(places, p)
		}
	}

	i := 0
	for i < len(tokens) {
		if !isCapitalized(tokens[i]) || e.gazetteer.IsMonth(tokens[i]) {
			if e.gazetteer.IsPlace(tokens[i]) {
				addPlace(tokens[i])
			}
			i++
			continue
		}

		// Greedily consume a capitalized sequence with particles between.
		seq := []string{tokens[i]}
		capCount := 1
		j := i + 1
		for j < len(tokens) {
			if e.gazetteer.IsParticle(tokens[j]) && !isCapitalized(tokens[j]) {
				seq = append(seq, tokens[j])
				j++
				continue
			}
			if isCapitalized(tokens[j]) && !e.gazetteer.IsMonth(tokens[j]) {
				seq = append(seq, tokens[j])
				capCount++
				j++
				continue
			}
			break
		}
		// Trailing particles belong to the next sentence, not the name.
		for len(seq) > 0 && !isCapitalized(seq[len(seq)-1]) {
			seq = seq[:len(seq)-1]
		}

		full := strings.Join(seq, " ")
		switch {
		case e.gazetteer.IsPlace(full):
			addPlace(full)
		case capCount >= 2:
			addName(full)
		case e.gazetteer.IsPlace(tokens[i]):
			addPlace(tokens[i])
		}

		i = j
	}

	return names, places
}

// isCapitalized reports whether the token starts with an uppercase letter
// and is longer than one rune (filters OCR artifacts and initials noise).
func isCapitalized(token string) bool {
	r, size := utf8.DecodeRuneInString(token)
	return unicode.IsUpper(r) && len(token) > size
}
