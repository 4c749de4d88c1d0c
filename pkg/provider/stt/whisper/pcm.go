package whisper

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	bytesPerSample = 2

	// speechRMS is the RMS level (16-bit units) above which a chunk counts as
	// speech. Room noise on a laptop microphone sits well below it.
	speechRMS = 300.0
)

// pcmFormat describes 16-bit signed little-endian PCM.
type pcmFormat struct {
	sampleRate int
	channels   int
}

// duration returns how long n bytes of audio last.
func (f pcmFormat) duration(n int) time.Duration {
	perSec := f.sampleRate * f.channels * bytesPerSample
	if perSec <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(perSec)
}

// wav wraps pcm in a 44-byte RIFF header.
func (f pcmFormat) wav(pcm []byte) []byte {
	blockAlign := f.channels * bytesPerSample
	out := make([]byte, 44, 44+len(pcm))
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(f.channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(f.sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(f.sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 8*bytesPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	return append(out, pcm...)
}

// rms returns the root-mean-square sample value of pcm.
func rms(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func isSpeech(pcm []byte) bool { return rms(pcm) >= speechRMS }

// utterance accumulates audio from the first speech chunk on. Leading
// silence is discarded.
type utterance struct {
	buf             []byte
	speech          time.Duration
	trailingSilence time.Duration
}

func (u *utterance) add(chunk []byte, f pcmFormat, speech bool) {
	d := f.duration(len(chunk))
	switch {
	case speech:
		u.buf = append(u.buf, chunk...)
		u.speech += d
		u.trailingSilence = 0
	case u.buf != nil:
		u.buf = append(u.buf, chunk...)
		u.trailingSilence += d
	}
}

// take returns the buffered audio and resets u. It returns nil when no speech
// was heard.
func (u *utterance) take() []byte {
	pcm := u.buf
	*u = utterance{}
	return pcm
}
