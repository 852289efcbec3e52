// Package config provides the configuration schema and loader for the
// Hearsay voice interaction daemon.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings like "250ms"
// or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"250ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Audio  AudioConfig   `yaml:"audio"`
	VAD    VADConfig     `yaml:"vad"`
	Wake   WakeConfig    `yaml:"wake"`
	AEC    AECConfig     `yaml:"aec"`
	STT    ProviderEntry `yaml:"stt"`
	TTS    ProviderEntry `yaml:"tts"`
	Agent  AgentConfig   `yaml:"agent"`
	Talk   TalkConfig    `yaml:"talk"`

	// ModelsDir is the directory holding wake and recognition models.
	ModelsDir string `yaml:"models_dir"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the metrics and status endpoints
	// (e.g., ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects the capture/playback devices and stream format.
type AudioConfig struct {
	// CaptureDevice is the platform device identifier for the microphone.
	// Empty selects the platform default.
	CaptureDevice string `yaml:"capture_device"`

	// PlaybackDevice is the platform device identifier for the speaker.
	// Empty selects the platform default.
	PlaybackDevice string `yaml:"playback_device"`

	// SampleRate in Hz. Zero selects 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameDuration is the fixed frame cadence. Zero selects 30ms.
	FrameDuration Duration `yaml:"frame_duration"`
}

// VADConfig tunes voice activity detection.
type VADConfig struct {
	// Threshold is the speech probability cutoff in [0, 1]. Zero selects 0.5.
	Threshold float64 `yaml:"threshold"`

	// MinSpeechDuration is the debounce before reporting speech onset.
	// Zero selects 250ms.
	MinSpeechDuration Duration `yaml:"min_speech_duration"`

	// MinSilenceDuration is the settle time before reporting speech end.
	// Zero selects 500ms.
	MinSilenceDuration Duration `yaml:"min_silence_duration"`
}

// WakeConfig tunes wake-word detection.
type WakeConfig struct {
	// Phrase is the spoken wake phrase (e.g., "hey hearsay"). Used to strip
	// the phrase from the transcript of the utterance that woke the system.
	Phrase string `yaml:"phrase"`

	// Threshold is the detection confidence cutoff in [0, 1]. Zero selects 0.5.
	Threshold float64 `yaml:"threshold"`

	// MinGapFrames suppresses repeat detections within this many frames of
	// the previous one. Zero selects 66 (about 2 seconds at 30ms frames).
	MinGapFrames int `yaml:"min_gap_frames"`

	// CPUBudgetPercent is the scoring CPU budget before the detector starts
	// skipping frames. Zero selects 2.0.
	CPUBudgetPercent float64 `yaml:"cpu_budget_percent"`
}

// AECConfig tunes acoustic echo cancellation.
type AECConfig struct {
	// Disabled turns echo cancellation off entirely.
	Disabled bool `yaml:"disabled"`

	// FilterLength is the adaptive filter tap count. Zero selects 512.
	FilterLength int `yaml:"filter_length"`

	// MaxDelay bounds the retained reference signal. Zero selects 300ms.
	MaxDelay Duration `yaml:"max_delay"`

	// StepSize is the NLMS adaptation rate in (0, 2). Zero selects 0.5.
	StepSize float64 `yaml:"step_size"`
}

// ProviderEntry is the common configuration block shared by the STT and TTS
// provider selections.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "whisper", "piper").
	Name string `yaml:"name"`

	// BaseURL overrides the provider's default endpoint, for providers that
	// talk to a local server.
	BaseURL string `yaml:"base_url"`

	// Model overrides the model path resolved from models_dir.
	Model string `yaml:"model"`

	// Language is the language hint (e.g., "en").
	Language string `yaml:"language"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// AgentConfig selects and tunes the conversational backend.
type AgentConfig struct {
	// Name selects the agent implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey authenticates against the backend API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the backend model (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Timeout bounds one delivery round trip. Zero selects 30s.
	Timeout Duration `yaml:"timeout"`
}

// TalkConfig tunes the interaction loop itself.
type TalkConfig struct {
	// SenderID identifies this station to the agent. Zero selects "local".
	SenderID string `yaml:"sender_id"`

	// Apology is spoken when a turn fails downstream of a finalized
	// utterance. Zero selects a built-in phrase.
	Apology string `yaml:"apology"`

	// WakeWindow keeps the pipeline in conversation mode for this long
	// after a spoken reply, so follow-ups need no wake word. Zero selects 8s.
	WakeWindow Duration `yaml:"wake_window"`
}

// Defaults fills zero fields with package defaults and returns cfg.
func (c *Config) Defaults() *Config {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameDuration == 0 {
		c.Audio.FrameDuration = Duration(30 * time.Millisecond)
	}
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = 0.5
	}
	if c.VAD.MinSpeechDuration == 0 {
		c.VAD.MinSpeechDuration = Duration(250 * time.Millisecond)
	}
	if c.VAD.MinSilenceDuration == 0 {
		c.VAD.MinSilenceDuration = Duration(500 * time.Millisecond)
	}
	if c.Wake.Threshold == 0 {
		c.Wake.Threshold = 0.5
	}
	if c.Wake.MinGapFrames == 0 {
		c.Wake.MinGapFrames = 66
	}
	if c.Wake.CPUBudgetPercent == 0 {
		c.Wake.CPUBudgetPercent = 2.0
	}
	if c.AEC.FilterLength == 0 {
		c.AEC.FilterLength = 512
	}
	if c.AEC.MaxDelay == 0 {
		c.AEC.MaxDelay = Duration(300 * time.Millisecond)
	}
	if c.AEC.StepSize == 0 {
		c.AEC.StepSize = 0.5
	}
	if c.Agent.Timeout == 0 {
		c.Agent.Timeout = Duration(30 * time.Second)
	}
	if c.Talk.SenderID == "" {
		c.Talk.SenderID = "local"
	}
	if c.Talk.Apology == "" {
		c.Talk.Apology = "Sorry, something went wrong. Please try again."
	}
	if c.Talk.WakeWindow == 0 {
		c.Talk.WakeWindow = Duration(8 * time.Second)
	}
	return c
}
