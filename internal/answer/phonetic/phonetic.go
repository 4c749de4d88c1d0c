// Package phonetic derives short pronunciation codes from spoken words so that
// mis-transcribed guesses ("titenic", "froze in") can still be grouped with the
// answer they were meant to be.
//
// Two encoders are provided:
//
//  1. [ConsonantCode]: a Soundex-style code. The first letter is kept and the
//     following consonants are reduced to one of six articulation classes,
//     padded or truncated to exactly four characters.
//
//  2. [SimplifiedCode]: a Metaphone-style code. An ordered pipeline of
//     letter and digraph rewrites is applied and the vowels are dropped. The
//     result is at most six characters long.
//
// Both encoders fold diacritics, ignore case and discard everything that is
// not a letter A–Z. Input without any such letter encodes to the empty string.
// Both are pure and safe for concurrent use.
package phonetic

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	consonantCodeLen     = 4
	simplifiedCodeMaxLen = 6
)

// ConsonantCode returns the four-character consonant-class code for word.
//
// The previous class is only updated by classified letters; vowels and H, W,
// Y carry it forward. A repeated class separated only by unclassed letters is
// therefore collapsed ("TATE" encodes to "T000").
func ConsonantCode(word string) string {
	s := normalize(word)
	if s == "" {
		return ""
	}

	code := make([]byte, 0, consonantCodeLen)
	code = append(code, s[0])
	prev := consonantClass(s[0])

	for i := 1; i < len(s) && len(code) < consonantCodeLen; i++ {
		c := consonantClass(s[i])
		if c == 0 {
			continue
		}
		if c != prev {
			code = append(code, c)
		}
		prev = c
	}
	for len(code) < consonantCodeLen {
		code = append(code, '0')
	}
	return string(code)
}

// consonantClass maps an upper-case letter to its class digit, or 0 for
// letters that carry no class.
func consonantClass(b byte) byte {
	switch b {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	}
	return 0
}

// digraphRules are applied in order, each to the output of the previous one.
var digraphRules = []struct{ from, to string }{
	{"PH", "F"},
	{"GH", ""},
	{"KN", "N"},
	{"WR", "R"},
	{"CK", "K"},
	{"SCH", "SK"},
	{"TCH", "CH"},
	{"SH", "X"},
	{"CH", "X"},
	{"TH", "0"},
	{"DG", "J"},
}

// letterRules run after the soft-C rewrite.
var letterRules = []struct{ from, to string }{
	{"C", "K"},
	{"Q", "K"},
	{"X", "KS"},
	{"Z", "S"},
	{"V", "F"},
}

// SimplifiedCode returns the rule-based phonetic code for word, truncated to
// six characters. The rewrite order is significant: later rules see the output
// of earlier ones (for example TCH becomes CH, which the next rule turns
// into X).
func SimplifiedCode(word string) string {
	s := normalize(word)
	if s == "" {
		return ""
	}

	// Silent leading clusters; only one is stripped.
	for _, p := range []string{"KN", "GN", "PN", "WR", "PS"} {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	if strings.HasPrefix(s, "X") {
		s = "S" + s[1:]
	}
	if strings.HasPrefix(s, "WH") {
		s = "W" + s[2:]
	}
	if strings.HasSuffix(s, "MB") {
		s = s[:len(s)-2] + "M"
	}

	for _, r := range digraphRules {
		s = strings.ReplaceAll(s, r.from, r.to)
	}

	s = softenC(s)
	for _, r := range letterRules {
		s = strings.ReplaceAll(s, r.from, r.to)
	}

	s = strings.ReplaceAll(s, "Y", "")
	s = dropUnvoicedW(s)
	s = collapseVowels(s)
	s = dropVowels(s)

	if len(s) > simplifiedCodeMaxLen {
		s = s[:simplifiedCodeMaxLen]
	}
	return s
}

// softenC rewrites C to S when followed by E, I or Y.
func softenC(s string) string {
	b := []byte(s)
	for i := 0; i+1 < len(b); i++ {
		if b[i] != 'C' {
			continue
		}
		switch s[i+1] {
		case 'E', 'I', 'Y':
			b[i] = 'S'
		}
	}
	return string(b)
}

// dropUnvoicedW keeps W only where a vowel follows it.
func dropUnvoicedW(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 'W' && (i+1 >= len(s) || !isVowel(s[i+1])) {
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func collapseVowels(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if i > 0 && isVowel(s[i]) && s[i] == s[i-1] {
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func dropVowels(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if !isVowel(s[i]) {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func isVowel(b byte) bool {
	switch b {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// normalize folds diacritics, upper-cases and keeps only the letters A–Z.
func normalize(word string) string {
	// Chained transformers carry state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, word)
	if err != nil {
		folded = word
	}

	var sb strings.Builder
	sb.Grow(len(folded))
	for _, r := range strings.ToUpper(folded) {
		if r >= 'A' && r <= 'Z' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
