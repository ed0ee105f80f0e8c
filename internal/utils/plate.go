package utils

import (
	"regexp"
	"strings"
)

const (
	minPlateLength = 4
	maxPlateLength = 10
	minPlateGroup  = 2
	maxPlateGroup  = 6
)

// OCR confuses these letters with digits; plates are corrected towards the digit.
var plateConfusions = map[rune]rune{
	'O': '0',
	'Q': '0',
	'I': '1',
}

var platePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{2}[0-9]{2,4}$`),
	regexp.MustCompile(`^[A-Z]{3}[0-9]{3,4}$`),
	regexp.MustCompile(`^[A-Z]{2}[0-9]{1,2}[A-Z]{1,3}[0-9]{3,4}$`),
	regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z]{3}$`),
	regexp.MustCompile(`^[A-Z][0-9]{3}[A-Z]{3}$`),
	regexp.MustCompile(`^[0-9]{3}[A-Z]{2,3}[0-9]{2}$`),
}

// NormalizePlate upper-cases the text, drops everything that is not A-Z or 0-9
// and applies the letter/digit confusion map.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		switch {
		case r >= 'A' && r <= 'Z':
			if fixed, ok := plateConfusions[r]; ok {
				r = fixed
			}
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPlate checks a normalized plate against the known plate shapes and,
// failing that, a letters-and-digits heuristic.
func IsValidPlate(plate string) bool {
	if len(plate) < minPlateLength || len(plate) > maxPlateLength {
		return false
	}
	for _, p := range platePatterns {
		if p.MatchString(plate) {
			return true
		}
	}

	letters, digits := 0, 0
	for _, r := range plate {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
		case r >= '0' && r <= '9':
			digits++
		default:
			return false
		}
	}
	return letters >= minPlateGroup && letters <= maxPlateGroup &&
		digits >= minPlateGroup && digits <= maxPlateGroup
}
