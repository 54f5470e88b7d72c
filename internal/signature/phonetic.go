package signature

import (
	"sort"
	"strings"
)

// Daitch-Mokotoff soundex, the phonetic coding used by Jewish and Dutch
// genealogy indexes. Unlike plain soundex a single surname can yield
// several codes because some letter groups are pronounced two ways
// (J as in "Jansen" vs "Jiri", C as K vs TS). Every code is six digits,
// zero padded.

const (
	phoneticCodeLen = 6
	maxBranches     = 16
)

// dmCoding gives the digit string for one pronunciation of a letter
// group in each of the three positions. Empty string means not coded.
type dmCoding struct {
	start       string
	beforeVowel string
	other       string
}

type dmRule struct {
	pattern string
	codings []dmCoding
}

// Longest patterns first within each letter bucket so the greedy match
// below picks up digraphs before single letters.
var dmRules = map[byte][]dmRule{
	'A': {
		{"AI", []dmCoding{{"0", "1", ""}}},
		{"AJ", []dmCoding{{"0", "1", ""}}},
		{"AY", []dmCoding{{"0", "1", ""}}},
		{"AU", []dmCoding{{"0", "7", ""}}},
		{"A", []dmCoding{{"0", "", ""}}},
	},
	'B': {
		{"B", []dmCoding{{"7", "7", "7"}}},
	},
	'C': {
		{"CHS", []dmCoding{{"5", "54", "54"}}},
		{"CSZ", []dmCoding{{"4", "4", "4"}}},
		{"CZS", []dmCoding{{"4", "4", "4"}}},
		{"CH", []dmCoding{{"5", "5", "5"}, {"4", "4", "4"}}},
		{"CK", []dmCoding{{"5", "5", "5"}, {"45", "45", "45"}}},
		{"CZ", []dmCoding{{"4", "4", "4"}}},
		{"CS", []dmCoding{{"4", "4", "4"}}},
		{"C", []dmCoding{{"5", "5", "5"}, {"4", "4", "4"}}},
	},
	'D': {
		{"DRZ", []dmCoding{{"4", "4", "4"}}},
		{"DRS", []dmCoding{{"4", "4", "4"}}},
		{"DSH", []dmCoding{{"4", "4", "4"}}},
		{"DSZ", []dmCoding{{"4", "4", "4"}}},
		{"DZH", []dmCoding{{"4", "4", "4"}}},
		{"DZS", []dmCoding{{"4", "4", "4"}}},
		{"DS", []dmCoding{{"4", "4", "4"}}},
		{"DZ", []dmCoding{{"4", "4", "4"}}},
		{"DT", []dmCoding{{"3", "3", "3"}}},
		{"D", []dmCoding{{"3", "3", "3"}}},
	},
	'E': {
		{"EI", []dmCoding{{"0", "1", ""}}},
		{"EJ", []dmCoding{{"0", "1", ""}}},
		{"EY", []dmCoding{{"0", "1", ""}}},
		{"EU", []dmCoding{{"1", "1", ""}}},
		{"E", []dmCoding{{"0", "", ""}}},
	},
	'F': {
		{"FB", []dmCoding{{"7", "7", "7"}}},
		{"F", []dmCoding{{"7", "7", "7"}}},
	},
	'G': {
		{"G", []dmCoding{{"5", "5", "5"}}},
	},
	'H': {
		{"H", []dmCoding{{"5", "5", ""}}},
	},
	'I': {
		{"IA", []dmCoding{{"1", "", ""}}},
		{"IE", []dmCoding{{"1", "", ""}}},
		{"IO", []dmCoding{{"1", "", ""}}},
		{"IU", []dmCoding{{"1", "", ""}}},
		{"I", []dmCoding{{"0", "", ""}}},
	},
	'J': {
		{"J", []dmCoding{{"1", "", ""}, {"4", "4", "4"}}},
	},
	'K': {
		{"KS", []dmCoding{{"5", "54", "54"}}},
		{"KH", []dmCoding{{"5", "5", "5"}}},
		{"K", []dmCoding{{"5", "5", "5"}}},
	},
	'L': {
		{"L", []dmCoding{{"8", "8", "8"}}},
	},
	'M': {
		{"MN", []dmCoding{{"", "66", "66"}}},
		{"M", []dmCoding{{"6", "6", "6"}}},
	},
	'N': {
		{"NM", []dmCoding{{"", "66", "66"}}},
		{"N", []dmCoding{{"6", "6", "6"}}},
	},
	'O': {
		{"OI", []dmCoding{{"0", "1", ""}}},
		{"OJ", []dmCoding{{"0", "1", ""}}},
		{"OY", []dmCoding{{"0", "1", ""}}},
		{"O", []dmCoding{{"0", "", ""}}},
	},
	'P': {
		{"PF", []dmCoding{{"7", "7", "7"}}},
		{"PH", []dmCoding{{"7", "7", "7"}}},
		{"P", []dmCoding{{"7", "7", "7"}}},
	},
	'Q': {
		{"Q", []dmCoding{{"5", "5", "5"}}},
	},
	'R': {
		{"RZ", []dmCoding{{"94", "94", "94"}, {"4", "4", "4"}}},
		{"RS", []dmCoding{{"94", "94", "94"}, {"4", "4", "4"}}},
		{"R", []dmCoding{{"9", "9", "9"}}},
	},
	'S': {
		{"SCHTSCH", []dmCoding{{"2", "4", "4"}}},
		{"SCHTSH", []dmCoding{{"2", "4", "4"}}},
		{"SCHTCH", []dmCoding{{"2", "4", "4"}}},
		{"SHTCH", []dmCoding{{"2", "4", "4"}}},
		{"SHTSH", []dmCoding{{"2", "4", "4"}}},
		{"STSCH", []dmCoding{{"2", "4", "4"}}},
		{"SZCZ", []dmCoding{{"2", "4", "4"}}},
		{"SZCS", []dmCoding{{"2", "4", "4"}}},
		{"STRZ", []dmCoding{{"2", "4", "4"}}},
		{"STRS", []dmCoding{{"2", "4", "4"}}},
		{"STSH", []dmCoding{{"2", "4", "4"}}},
		{"SHCH", []dmCoding{{"2", "4", "4"}}},
		{"STCH", []dmCoding{{"2", "4", "4"}}},
		{"SCH", []dmCoding{{"4", "4", "4"}}},
		{"SHT", []dmCoding{{"2", "43", "43"}}},
		{"SZT", []dmCoding{{"2", "43", "43"}}},
		{"SHD", []dmCoding{{"2", "43", "43"}}},
		{"SZD", []dmCoding{{"2", "43", "43"}}},
		{"SH", []dmCoding{{"4", "4", "4"}}},
		{"SZ", []dmCoding{{"4", "4", "4"}}},
		{"SC", []dmCoding{{"2", "4", "4"}}},
		{"ST", []dmCoding{{"2", "43", "43"}}},
		{"SD", []dmCoding{{"2", "43", "43"}}},
		{"S", []dmCoding{{"4", "4", "4"}}},
	},
	'T': {
		{"TTSCH", []dmCoding{{"4", "4", "4"}}},
		{"TTCH", []dmCoding{{"4", "4", "4"}}},
		{"TSCH", []dmCoding{{"4", "4", "4"}}},
		{"TTSZ", []dmCoding{{"4", "4", "4"}}},
		{"TCH", []dmCoding{{"4", "4", "4"}}},
		{"TRZ", []dmCoding{{"4", "4", "4"}}},
		{"TRS", []dmCoding{{"4", "4", "4"}}},
		{"TSH", []dmCoding{{"4", "4", "4"}}},
		{"TTS", []dmCoding{{"4", "4", "4"}}},
		{"TTZ", []dmCoding{{"4", "4", "4"}}},
		{"TZS", []dmCoding{{"4", "4", "4"}}},
		{"TSZ", []dmCoding{{"4", "4", "4"}}},
		{"TH", []dmCoding{{"3", "3", "3"}}},
		{"TS", []dmCoding{{"4", "4", "4"}}},
		{"TC", []dmCoding{{"4", "4", "4"}}},
		{"TZ", []dmCoding{{"4", "4", "4"}}},
		{"T", []dmCoding{{"3", "3", "3"}}},
	},
	'U': {
		{"UI", []dmCoding{{"0", "1", ""}}},
		{"UJ", []dmCoding{{"0", "1", ""}}},
		{"UY", []dmCoding{{"0", "1", ""}}},
		{"UE", []dmCoding{{"0", "", ""}}},
		{"U", []dmCoding{{"0", "", ""}}},
	},
	'V': {
		{"V", []dmCoding{{"7", "7", "7"}}},
	},
	'W': {
		{"W", []dmCoding{{"7", "7", "7"}}},
	},
	'X': {
		{"X", []dmCoding{{"5", "54", "54"}}},
	},
	'Y': {
		{"Y", []dmCoding{{"1", "", ""}}},
	},
	'Z': {
		{"ZHDZH", []dmCoding{{"2", "4", "4"}}},
		{"ZDZH", []dmCoding{{"2", "4", "4"}}},
		{"ZSCH", []dmCoding{{"4", "4", "4"}}},
		{"ZDZ", []dmCoding{{"2", "4", "4"}}},
		{"ZHD", []dmCoding{{"2", "43", "43"}}},
		{"ZSH", []dmCoding{{"4", "4", "4"}}},
		{"ZD", []dmCoding{{"2", "43", "43"}}},
		{"ZH", []dmCoding{{"4", "4", "4"}}},
		{"ZS", []dmCoding{{"4", "4", "4"}}},
		{"Z", []dmCoding{{"4", "4", "4"}}},
	},
}

// foldLetters uppercases and strips everything that is not A-Z,
// folding the diacritics common in Dutch sources first.
func foldLetters(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch r {
		case 'À', 'Á', 'Â', 'Ä', 'Å':
			r = 'A'
		case 'È', 'É', 'Ê', 'Ë':
			r = 'E'
		case 'Ì', 'Í', 'Î', 'Ï':
			r = 'I'
		case 'Ò', 'Ó', 'Ô', 'Ö':
			r = 'O'
		case 'Ù', 'Ú', 'Û', 'Ü':
			r = 'U'
		case 'Ç':
			r = 'C'
		case 'Ñ':
			r = 'N'
		case 'ß':
			sb.WriteString("SS")
			continue
		}
		if r >= 'A' && r <= 'Z' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isDMVowel(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// PhoneticCodes returns every Daitch-Mokotoff code for a single name,
// sorted and deduplicated. Names with no codable letters return nil.
func PhoneticCodes(name string) []string {
	word := foldLetters(name)
	if word == "" {
		return nil
	}

	type branch struct {
		code string
		last string
	}
	branches := []branch{{}}

	for i := 0; i < len(word); {
		rules := dmRules[word[i]]
		var matched *dmRule
		for r := range rules {
			if strings.HasPrefix(word[i:], rules[r].pattern) {
				matched = &rules[r]
				break
			}
		}
		if matched == nil {
			i++
			continue
		}

		next := i + len(matched.pattern)
		var out []branch
		for _, br := range branches {
			for _, coding := range matched.codings {
				digits := coding.other
				switch {
				case i == 0:
					digits = coding.start
				case next < len(word) && isDMVowel(word[next]):
					digits = coding.beforeVowel
				}
				nb := br
				if digits != "" && digits != nb.last {
					nb.code += digits
					nb.last = digits
				} else if digits != "" {
					// Adjacent identical groups code once.
					nb.last = digits
				} else {
					nb.last = ""
				}
				out = append(out, nb)
				if len(out) >= maxBranches {
					break
				}
			}
			if len(out) >= maxBranches {
				break
			}
		}
		branches = out
		i = next
	}

	seen := make(map[string]struct{}, len(branches))
	codes := make([]string, 0, len(branches))
	for _, br := range branches {
		code := br.code
		if len(code) >= phoneticCodeLen {
			code = code[:phoneticCodeLen]
		} else {
			code += strings.Repeat("0", phoneticCodeLen-len(code))
		}
		if _, ok := seen[code]; !ok {
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
