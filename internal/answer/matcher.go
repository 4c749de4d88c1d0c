// Package answer decides whether a spoken guess matches a [quiz.Question].
//
// Speech-to-text output is noisy: articles get added ("the titanic"), letters
// get swapped ("titenic"), and homophones slip in ("dark night"). The
// [Matcher] therefore accepts a guess when it matches any acceptable answer
// by any of three strategies, tried in order:
//
//  1. Containment: either string contains the other.
//  2. Edit distance: the normalised Levenshtein ratio exceeds the similarity
//     threshold (default 0.7).
//  3. Pronunciation: [SoundsLike] reports a phonetic match.
//
// The Matcher never fails. Empty or non-alphabetic input simply does not
// match. It is read-only after construction and safe for concurrent use.
package answer

import (
	"math"
	"strings"

	"github.com/MrWong99/emojiquiz/internal/answer/phonetic"
	"github.com/MrWong99/emojiquiz/internal/answer/similarity"
	"github.com/MrWong99/emojiquiz/internal/quiz"
)

const (
	defaultSimilarityThreshold = 0.7
	defaultWordQuorum          = 0.6
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithSimilarityThreshold sets the edit-distance ratio a guess must exceed
// (strictly) to be accepted. Default: 0.7.
func WithSimilarityThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.similarityThreshold = threshold
	}
}

// WithWordQuorum sets the fraction of the guess's words that must sound like
// some word of the answer for a multi-word phonetic match. Default: 0.6.
func WithWordQuorum(quorum float64) Option {
	return func(m *Matcher) {
		m.wordQuorum = quorum
	}
}

// Matcher tests guesses against questions.
type Matcher struct {
	similarityThreshold float64
	wordQuorum          float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		similarityThreshold: defaultSimilarityThreshold,
		wordQuorum:          defaultWordQuorum,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Matches reports whether utterance is an acceptable answer to q. It returns
// on the first acceptable answer that matches; the order of the list only
// affects how early that happens, never the result.
func (m *Matcher) Matches(utterance string, q quiz.Question) bool {
	u := quiz.Normalize(utterance)
	if u == "" {
		return false
	}

	matched := false
	q.EachAcceptable(func(a string) bool {
		matched = m.matchesOne(u, a)
		return !matched
	})
	return matched
}

// matchesOne applies the three strategies to a normalised guess and a single
// acceptable answer.
func (m *Matcher) matchesOne(u, a string) bool {
	if strings.Contains(u, a) || strings.Contains(a, u) {
		return true
	}
	if similarity.Ratio(u, a) > m.similarityThreshold {
		return true
	}
	return m.SoundsLike(u, a)
}

// SoundsLike reports whether s1 and s2 are pronounced alike, using the
// default word quorum. See [Matcher.SoundsLike].
func SoundsLike(s1, s2 string) bool {
	return New().SoundsLike(s1, s2)
}

// SoundsLike reports whether s1 and s2 are pronounced alike.
//
// Whole strings match when they are equal or share either phonetic code.
// For two single words that is the final answer. Otherwise each word of s1 is
// checked for a partner in s2 (identical or sharing either code), and the
// strings match when at least ceil(quorum × words(s1)) words found one.
//
// The quorum is taken from s1's word count only, so for multi-word inputs of
// different lengths SoundsLike(a, b) and SoundsLike(b, a) can disagree.
func (m *Matcher) SoundsLike(s1, s2 string) bool {
	a := quiz.Normalize(s1)
	b := quiz.Normalize(s2)
	if a == b {
		return true
	}
	if sameCode(a, b) {
		return true
	}

	words1 := strings.Fields(a)
	words2 := strings.Fields(b)
	if len(words1) == 0 || (len(words1) == 1 && len(words2) <= 1) {
		return false
	}

	matching := 0
	for _, w1 := range words1 {
		for _, w2 := range words2 {
			if w1 == w2 || sameCode(w1, w2) {
				matching++
				break
			}
		}
	}
	need := int(math.Ceil(float64(len(words1)) * m.wordQuorum))
	return matching >= need
}

// sameCode reports whether a and b share a consonant code or a simplified
// phonetic code.
func sameCode(a, b string) bool {
	return phonetic.ConsonantCode(a) == phonetic.ConsonantCode(b) ||
		phonetic.SimplifiedCode(a) == phonetic.SimplifiedCode(b)
}
