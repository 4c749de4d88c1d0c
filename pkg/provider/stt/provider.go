// Package stt defines the Provider interface for streaming speech-to-text
// backends such as Deepgram or a local whisper.cpp server.
//
// A Provider opens a SessionHandle that accepts raw PCM audio and emits two
// streams of [Transcript] values: low-latency partials that may still change,
// and finals the backend has committed to. The two channels are read
// independently, so [Transcript.Seq] carries the order in which the backend
// produced them. Finals are consecutive segments of the utterance, not
// cumulative text; a partial covers only the segment not yet committed.
//
// The quiz engine never talks to a Provider directly; pkg/speech/sttsource
// adapts one into a speech.Source.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by SessionHandle methods the backend cannot
// honour, e.g. mid-stream keyword updates.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is what every bundled
	// provider expects from the microphone feed.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag (e.g. "en-US"). Empty lets the
	// provider pick its default.
	Language string

	// Keywords boosts recognition of the words in the current answer list,
	// which helps with proper nouns like movie titles.
	Keywords []KeywordBoost
}

// SessionHandle is an open streaming session.
//
// Callers must call Close when done. All methods must be safe for concurrent
// use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM matching the StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the keyword boost list without restarting the
	// session. May return ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Close flushes pending audio and releases the session. Transcripts for
	// the flushed audio are delivered on Partials and Finals before they
	// close, so callers keep reading until both are closed. After Close
	// returns, Partials and Finals are closed. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new session. The returned handle accepts audio
	// immediately. The caller owns it and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
