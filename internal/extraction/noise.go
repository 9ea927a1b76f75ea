package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

// Rejection reasons reported in provenance.
const (
	RejectEmpty           = "empty"
	RejectNumeric         = "numeric"
	RejectQuantity        = "quantity_code"
	RejectTooShort        = "too_short"
	RejectForeignAlphabet = "no_target_letters"
)

var (
	numericToken = regexp.MustCompile(`^[\d\s.,+\-/%]+$`)
	// quantityToken matches counts and dimensions such as "60шт", "10 см" or "2x3".
	quantityToken = regexp.MustCompile(`(?i)^\d+(?:[.,]\d+)?(?:\s*[xх×*]\s*\d+(?:[.,]\d+)?)*\s*` +
		`(?:шт|штук|штуки|см|мм|м|м2|м²|кг|г|гр|л|мл|уп|упак|пар|pcs|pc|cm|mm|m|kg|g|l|ml)?\.?$`)
	spaceRun = regexp.MustCompile(`\s+`)
)

// missingCell values are what spreadsheet exports write for empty cells.
var missingCell = map[string]bool{
	"nan":  true,
	"none": true,
	"null": true,
	"#n/a": true,
}

// NoiseFilter decides whether a cleaned cell is a usable keyword.
type NoiseFilter struct {
	// Alphabet is the set of scripts a keyword must contain at least one letter from.
	Alphabet []*unicode.RangeTable
	// MinLetters is the minimum count of alphabetic characters.
	MinLetters int
}

// DefaultNoiseFilter targets Cyrillic keywords with at least two letters.
func DefaultNoiseFilter() NoiseFilter {
	return NoiseFilter{
		Alphabet:   []*unicode.RangeTable{unicode.Cyrillic},
		MinLetters: 2,
	}
}

// Describe lists the checks applied, for provenance.
func (f NoiseFilter) Describe() []string {
	return []string{RejectEmpty, RejectNumeric, RejectQuantity, RejectTooShort, RejectForeignAlphabet}
}

// Normalize trims and collapses whitespace and maps missing-value markers to "".
func Normalize(cell string) string {
	cell = strings.TrimSpace(spaceRun.ReplaceAllString(cell, " "))
	if missingCell[strings.ToLower(cell)] {
		return ""
	}
	return cell
}

// Check returns "" when token should be kept, or the rejection reason.
// token must already be normalized.
func (f NoiseFilter) Check(token string) string {
	if token == "" {
		return RejectEmpty
	}
	if numericToken.MatchString(token) {
		return RejectNumeric
	}
	if quantityToken.MatchString(token) {
		return RejectQuantity
	}

	letters, target := 0, 0
	for _, r := range token {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if len(f.Alphabet) == 0 || unicode.IsOneOf(f.Alphabet, r) {
			target++
		}
	}
	if letters < f.MinLetters {
		return RejectTooShort
	}
	if target == 0 {
		return RejectForeignAlphabet
	}
	return ""
}
