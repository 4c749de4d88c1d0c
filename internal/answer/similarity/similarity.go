// Package similarity scores how close two transcripts are on the character
// level using a normalised Levenshtein edit distance.
package similarity

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Ratio returns the similarity of a and b in [0, 1]:
//
//	(max(len(a), len(b)) - levenshtein(a, b)) / max(len(a), len(b))
//
// Lengths are counted in runes. Two empty strings are identical and score 1.
// The comparison is case-sensitive; callers normalise beforehand.
func Ratio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1.0
	}
	dist := matchr.Levenshtein(a, b)
	return float64(longest-dist) / float64(longest)
}
