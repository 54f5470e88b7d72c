package anchor

import "strings"

// Gazetteer holds the per-language lexicons used for place and name
// detection. The defaults cover the two supported corpus languages; callers
// can extend them from configuration.
type Gazetteer struct {
	places    map[string]struct{}
	particles map[string]struct{}
	months    map[string]struct{}
}

// Dutch family books name places the OCR rarely mangles beyond recognition;
// the default list covers the localities that dominate the corpus plus the
// common emigration destinations.
var defaultPlaces = []string{
	// Dutch
	"Amsterdam", "Rotterdam", "Utrecht", "Leiden", "Haarlem", "Delft",
	"Groningen", "Leeuwarden", "Zwolle", "Arnhem", "Nijmegen", "Middelburg",
	"Dordrecht", "Gouda", "Amersfoort", "Deventer", "Kampen", "Breda",
	"Maastricht", "Alkmaar", "Hoorn", "Enkhuizen", "Zaandam",
	// English-language
	"London", "Amsterdam", "New York", "Boston", "Philadelphia", "Chicago",
	"Grand Rapids", "Holland", "Pella",
}

// Surname particles joining capitalized name tokens ("Jan de Vries",
// "Willem van der Berg").
var defaultParticles = []string{
	"van", "de", "der", "den", "ten", "ter", "te", "het", "'t", "op", "in",
	"aan", "bij", "tot", "uit", "of",
}

var defaultMonths = []string{
	// eng
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
	// nld
	"januari", "februari", "maart", "mei", "juni", "juli",
	"augustus", "oktober", "november", "december",
}

// NewGazetteer builds a gazetteer with the default lexicons plus any extra
// place names.
func NewGazetteer(extraPlaces ...string) *Gazetteer {
	g := &Gazetteer{
		places:    make(map[string]struct{}),
		particles: make(map[string]struct{}),
		months:    make(map[string]struct{}),
	}
	for _, p := range defaultPlaces {
		g.places[p] = struct{}{}
	}
	for _, p := range extraPlaces {
		g.places[p] = struct{}{}
	}
	for _, p := range defaultParticles {
		g.particles[p] = struct{}{}
	}
	for _, m := range defaultMonths {
		g.months[m] = struct{}{}
	}
	return g
}

// IsPlace reports whether token is a known place name.
func (g *Gazetteer) IsPlace(token string) bool {
	_, ok := g.places[token]
	return ok
}

// IsParticle reports whether token is a surname particle.
func (g *Gazetteer) IsParticle(token string) bool {
	_, ok := g.particles[strings.ToLower(token)]
	return ok
}

// IsMonth reports whether token is a month name in either language.
func (g *Gazetteer) IsMonth(token string) bool {
	_, ok := g.months[strings.ToLower(token)]
	return ok
}
