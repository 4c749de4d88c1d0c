package stt

import "time"

// Transcript is a single recognition result. Partials and finals share the
// type and differ in IsFinal.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal reports whether the backend has committed to Text.
	IsFinal bool

	// Seq orders transcripts of one session across the partial and final
	// channels. Providers number them from 1 in the order they were
	// produced; zero means unsequenced.
	Seq uint64

	// Confidence is in [0,1]; zero when the provider does not report it.
	Confidence float64

	// Words holds per-word detail when the provider supplies it.
	Words []WordDetail

	// Timestamp is the utterance start relative to the session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail is per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint. Boost uses the provider's own scale.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}
