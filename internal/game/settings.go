package game

import "time"

const (
	// MinSeconds and MaxSeconds bound both phase durations.
	MinSeconds = 3
	MaxSeconds = 15

	DefaultGuessSeconds = 3
	DefaultVoiceSeconds = 10

	// DefaultPause is the break between one answer and the next clue.
	DefaultPause = 2 * time.Second
)

// Settings controls the pace of a game.
type Settings struct {
	// GuessTime is how long the clue is shown before listening starts.
	GuessTime time.Duration

	// VoiceTime is the listening window per question.
	VoiceTime time.Duration

	// Pause follows each answer except the last.
	Pause time.Duration

	// Shuffle plays the catalog in random order.
	Shuffle bool
}

// DefaultSettings returns 3s guess, 10s voice, 2s pause, catalog order.
func DefaultSettings() Settings {
	return Settings{
		GuessTime: DefaultGuessSeconds * time.Second,
		VoiceTime: DefaultVoiceSeconds * time.Second,
		Pause:     DefaultPause,
	}
}

// NewSettings builds Settings from whole seconds, clamping each value to
// [MinSeconds, MaxSeconds]. Zero selects the default.
func NewSettings(guessSeconds, voiceSeconds int, shuffle bool) Settings {
	s := DefaultSettings()
	s.GuessTime = time.Duration(ClampSeconds(guessSeconds, DefaultGuessSeconds)) * time.Second
	s.VoiceTime = time.Duration(ClampSeconds(voiceSeconds, DefaultVoiceSeconds)) * time.Second
	s.Shuffle = shuffle
	return s
}

// ClampSeconds returns def when v is zero and v limited to
// [MinSeconds, MaxSeconds] otherwise.
func ClampSeconds(v, def int) int {
	if v == 0 {
		return def
	}
	return min(max(v, MinSeconds), MaxSeconds)
}
