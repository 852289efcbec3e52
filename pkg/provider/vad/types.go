package vad

// State is the classification a VAD session reports after each frame.
type State int

const (
	// StateSilence indicates no confirmed speech activity.
	StateSilence State = iota

	// StateSpeech indicates confirmed, ongoing speech. Only reported after
	// the configured debounce window has been exceeded.
	StateSpeech

	// StateSpeechEnd indicates that a confirmed speech segment just ended:
	// trailing silence exceeded the configured boundary duration. SpeechEnd
	// is only ever reported from StateSpeech; the next frame starts from
	// StateSilence again.
	StateSpeechEnd
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "SILENCE"
	case StateSpeech:
		return "SPEECH"
	case StateSpeechEnd:
		return "SPEECH_END"
	default:
		return "UNKNOWN"
	}
}
