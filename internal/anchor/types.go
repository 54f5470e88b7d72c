// Package anchor derives structural and semantic coordinates from OCR page
// text: genealogical numbering codes, page position, detected date ranges,
// and detected place and person-name tokens. Anchors are what the rest of
// the pipeline uses to keep noisy text attached to a stable location in the
// source book.
package anchor

// Bounds on detected token sets per anchor. OCR noise can produce long runs
// of false positives; anchors stay small so structural equality stays cheap.
const (
	MaxDates  = 8
	MaxPlaces = 8
	MaxNames  = 8
)

// DateRange is an inclusive year range. A single year has From == To.
type DateRange struct {
	From int
	To   int
}

// Overlaps reports whether two ranges share at least one year.
func (d DateRange) Overlaps(o DateRange) bool {
	return d.From <= o.To && o.From <= d.To
}

// Anchor is a tagged optional-field record: every field is independently
// absent. Downstream matching pattern-matches on which fields are present.
type Anchor struct {
	// Code is the hierarchical genealogical identifier (e.g. "II.1.a").
	// Empty when no code applies to the span.
	Code string

	// Page is the 1-based page number. Always set.
	Page int

	// Dates are the detected date ranges, at most MaxDates.
	Dates []DateRange

	// Places are detected place tokens, at most MaxPlaces.
	Places []string

	// Names are detected person-name tokens, at most MaxNames.
	Names []string
}

// HasCode reports whether a genealogical code was detected or inherited.
func (a Anchor) HasCode() bool { return a.Code != "" }

// Same implements structural anchor equality: matching genealogical codes,
// or, absent a code on either side, the same page with overlapping date or
// name/place sets.
func (a Anchor) Same(b Anchor) bool {
	if a.Code != "" && b.Code != "" {
		return a.Code == b.Code
	}
	if a.Page != b.Page {
		return false
	}
	for _, da := range a.Dates {
		for _, db := range b.Dates {
			if da.Overlaps(db) {
				return true
			}
		}
	}
	if intersects(a.Names, b.Names) || intersects(a.Places, b.Places) {
		return true
	}
	// Bare page anchors (nothing detected on either side) compare by page.
	return len(a.Dates)+len(a.Names)+len(a.Places) == 0 &&
		len(b.Dates)+len(b.Names)+len(b.Places) == 0
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

// Span is a contiguous region of page text with its anchor attached.
// The extractor guarantees spans cover the page without gaps.
type Span struct {
	Text   string
	Anchor Anchor
}
