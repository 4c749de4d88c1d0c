package sttsource

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Mic reads raw PCM from a long-lived reader, such as the stdout of
// `arecord -f S16_LE -r 16000 -c 1 -t raw`, and hands chunks to whichever
// session is listening. Chunks read while nobody listens are dropped, so a
// session never hears audio from before it started.
type Mic struct {
	chunks chan []byte
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewMic starts reading r in chunkBytes-sized pieces. 3200 bytes is 100ms of
// 16 kHz mono 16-bit audio.
func NewMic(r io.Reader, chunkBytes int) *Mic {
	if chunkBytes <= 0 {
		chunkBytes = 3200
	}
	m := &Mic{chunks: make(chan []byte), done: make(chan struct{})}
	go m.read(r, chunkBytes)
	return m
}

func (m *Mic) read(r io.Reader, size int) {
	defer close(m.done)
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			select {
			case m.chunks <- buf[:n]:
			default:
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				m.mu.Lock()
				m.err = err
				m.mu.Unlock()
			}
			return
		}
	}
}

// Err returns the read error that stopped the microphone, if any.
func (m *Mic) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Feed is an [AudioFeed] reading from m.
func (m *Mic) Feed(ctx context.Context, send func([]byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			if err := m.Err(); err != nil {
				return err
			}
			return io.EOF
		case chunk := <-m.chunks:
			if err := send(chunk); err != nil {
				return err
			}
		}
	}
}

// Probe is an Available probe that fails once the microphone has stopped.
func (m *Mic) Probe(context.Context) error {
	select {
	case <-m.done:
		return errors.New("microphone stream ended")
	default:
		return nil
	}
}
