// Package speech defines the Source interface the recognition engine listens
// to, plus the error kinds a source can report.
//
// A Source turns a user's voice (or keyboard) into a stream of [Event]
// values. The engine only needs the latest text, whether it is final, and
// start/stop control. Audio capture, codecs and network transport all stay
// behind the interface.
//
// Implementations in sub-packages:
//   - sttsource wraps a streaming speech-to-text provider
//   - browser relays the Web Speech API from a browser tab over WebSocket
//   - console reads typed answers line by line
//   - mock is a scriptable test double
package speech

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSourceUnavailable reports that the source cannot be used at all,
	// e.g. no browser tab is connected or no API key is configured.
	ErrSourceUnavailable = errors.New("speech: source unavailable")

	// ErrPermissionDenied reports that the user or platform refused
	// microphone access.
	ErrPermissionDenied = errors.New("speech: microphone permission denied")

	// ErrTransport reports that an active stream broke. Consumers treat it
	// as end of stream.
	ErrTransport = errors.New("speech: transport failure")
)

// Event is one recognition update.
//
// Text is the source's current best hypothesis for everything said since
// Start, not a delta. When Err is non-nil the other fields are meaningless
// and no further events follow.
type Event struct {
	Text    string
	IsFinal bool

	// Timestamp is when the text was recognised. Zero means "on arrival";
	// consumers stamp it with their own clock.
	Timestamp time.Time

	Err error
}

// Source is a start/stop speech recogniser.
//
// Start and Stop are idempotent. Start on a running source returns the
// channel already in use. Stop on a stopped source returns nil. The channel
// returned by Start is closed after Stop, or earlier when the stream ends on
// its own.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Available returns nil when Start is expected to succeed, or an error
	// wrapping ErrSourceUnavailable.
	Available(ctx context.Context) error

	// Start begins recognition. It may fail with an error wrapping
	// ErrPermissionDenied or ErrSourceUnavailable.
	Start(ctx context.Context) (<-chan Event, error)

	// Stop ends recognition and closes the event channel.
	Stop() error
}

// Hinter is implemented by sources that can bias recognition toward
// expected phrases. Hints apply to the next Start.
type Hinter interface {
	SetHints(phrases []string)
}

// ErrorKind classifies err for logs and metric attributes: "permission",
// "unavailable", "transport", or "other".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission"
	case errors.Is(err, ErrSourceUnavailable):
		return "unavailable"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
