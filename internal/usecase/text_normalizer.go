package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// cyrillicToLatin is a streamlined Bulgarian transliteration table.
// Folding both scripts into Latin lets "локум роза" and "lokum roza" compare equal.
var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f",
	'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sht", 'ъ': "a", 'ь': "y",
	'ю': "yu", 'я': "ya", 'ё': "yo", 'э': "e", 'ы': "y", 'і': "i",
}

var (
	// Matches "140 g", "140гр" (already folded to "140gr"), "0,75 l", "500 ml"
	unitTokenPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(kg|gr|g|ml|l)\b`)

	// Matches prices like "3.81", "3,81 lv", "3,81lv", "1.95 €"
	pricePattern = regexp.MustCompile(`(\d{1,4})[.,](\d{2})(?:\s*(leva|lv|bgn|eur|€)|\b)`)

	// Currency symbol glued to the number, e.g. "€1.95"
	euroPrefixPattern = regexp.MustCompile(`€\s*(\d+(?:[.,]\d{2})?)`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// lowerBG returns a fresh caser; a Caser keeps state and must not be shared across goroutines.
func lowerBG() cases.Caser {
	return cases.Lower(language.Bulgarian)
}

// foldText lower-cases, NFKC-normalises and transliterates Cyrillic into Latin,
// then rewrites unit tokens into their compact canonical form ("140 гр" -> "140g").
// Digits and punctuation are preserved so prices survive folding.
func foldText(s string) string {
	s = norm.NFKC.String(s)
	s = lowerBG().String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if latin, ok := cyrillicToLatin[r]; ok {
			b.WriteString(latin)
			continue
		}
		switch r {
		case ' ', '\t', '\n', '\r':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	folded := euroPrefixPattern.ReplaceAllString(b.String(), "$1 €")
	folded = unitTokenPattern.ReplaceAllStringFunc(folded, canonicalUnitToken)
	folded = multiSpacePattern.ReplaceAllString(folded, " ")
	return strings.TrimSpace(folded)
}

// UnitSize is a parsed unit specification in base units (grams or millilitres)
type UnitSize struct {
	Amount float64
	Unit   string // "g" or "ml"
}

// Equal reports whether two sizes denote the same quantity
func (u UnitSize) Equal(other UnitSize) bool {
	if u.Unit != other.Unit {
		return false
	}
	diff := u.Amount - other.Amount
	return diff > -0.001 && diff < 0.001
}

// Token renders the canonical compact token, e.g. "140g"
func (u UnitSize) Token() string {
	return strconv.FormatFloat(u.Amount, 'f', -1, 64) + u.Unit
}

// ParseUnitSpec parses a catalog unit spec such as "140г", "500мл" or "0.75 l".
func ParseUnitSpec(spec string) (UnitSize, bool) {
	m := unitTokenPattern.FindStringSubmatch(foldUnitInput(spec))
	if m == nil {
		return UnitSize{}, false
	}
	return toUnitSize(m[1], m[2])
}

// foldUnitInput folds without the canonical rewrite so the raw regex groups stay intact
func foldUnitInput(s string) string {
	s = lowerBG().String(norm.NFKC.String(s))
	var b strings.Builder
	for _, r := range s {
		if latin, ok := cyrillicToLatin[r]; ok {
			b.WriteString(latin)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toUnitSize(amount, unit string) (UnitSize, bool) {
	v, err := strconv.ParseFloat(strings.Replace(amount, ",", ".", 1), 64)
	if err != nil || v <= 0 {
		return UnitSize{}, false
	}
	switch unit {
	case "g", "gr":
		return UnitSize{Amount: v, Unit: "g"}, true
	case "kg":
		return UnitSize{Amount: v * 1000, Unit: "g"}, true
	case "ml":
		return UnitSize{Amount: v, Unit: "ml"}, true
	case "l":
		return UnitSize{Amount: v * 1000, Unit: "ml"}, true
	}
	return UnitSize{}, false
}

func canonicalUnitToken(match string) string {
	m := unitTokenPattern.FindStringSubmatch(match)
	if m == nil {
		return match
	}
	size, ok := toUnitSize(m[1], m[2])
	if !ok {
		return match
	}
	return size.Token()
}

// unitMention is a unit token located in folded text
type unitMention struct {
	size  UnitSize
	start int
	end   int
}

// findUnitMentions returns every unit token in folded text, in order
func findUnitMentions(folded string) []unitMention {
	locs := unitTokenPattern.FindAllStringSubmatchIndex(folded, -1)
	mentions := make([]unitMention, 0, len(locs))
	for _, loc := range locs {
		size, ok := toUnitSize(folded[loc[2]:loc[3]], folded[loc[4]:loc[5]])
		if !ok {
			continue
		}
		mentions = append(mentions, unitMention{size: size, start: loc[0], end: loc[1]})
	}
	return mentions
}

// priceMention is a price-looking number located in folded text
type priceMention struct {
	value float64
	start int
	end   int
}

// findPriceMentions scans folded text for price patterns. Numbers that are
// immediately followed by a unit letter (e.g. "0.75l") are quantities, not prices.
func findPriceMentions(folded string) []priceMention {
	locs := pricePattern.FindAllStringSubmatchIndex(folded, -1)
	mentions := make([]priceMention, 0, len(locs))
	for _, loc := range locs {
		if loc[6] < 0 && followedByUnit(folded[loc[1]:]) {
			continue
		}
		whole := folded[loc[2]:loc[3]]
		frac := folded[loc[4]:loc[5]]
		v, err := strconv.ParseFloat(whole+"."+frac, 64)
		if err != nil || v <= 0 {
			continue
		}
		mentions = append(mentions, priceMention{value: v, start: loc[0], end: loc[1]})
	}
	return mentions
}

func followedByUnit(rest string) bool {
	rest = strings.TrimLeft(rest, " ")
	for _, unit := range []string{"kg", "gr", "ml", "g", "l"} {
		if strings.HasPrefix(rest, unit) {
			tail := rest[len(unit):]
			if tail == "" || !isWordByte(tail[0]) {
				return true
			}
		}
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || c >= 0x80
}

// foldTokens splits folded text into word tokens, dropping punctuation-only fragments
func foldTokens(s string) []string {
	fields := strings.Fields(foldText(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",.!?;:()[]\"'«»-")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
