package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per stage. Used by [Validate]
// to reject unrecognised selections early instead of at wiring time.
var ValidProviderNames = map[string][]string{
	"stt":   {"whisper", "mock"},
	"tts":   {"piper", "mock"},
	"agent": {"openai", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown YAML keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Defaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 48000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration must be positive"))
	}

	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.2f is out of range [0, 1]", cfg.VAD.Threshold))
	}
	if cfg.Wake.Threshold < 0 || cfg.Wake.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %.2f is out of range [0, 1]", cfg.Wake.Threshold))
	}
	if cfg.Wake.MinGapFrames < 0 {
		errs = append(errs, fmt.Errorf("wake.min_gap_frames must not be negative"))
	}
	if cfg.Wake.CPUBudgetPercent <= 0 || cfg.Wake.CPUBudgetPercent > 100 {
		errs = append(errs, fmt.Errorf("wake.cpu_budget_percent %.2f is out of range (0, 100]", cfg.Wake.CPUBudgetPercent))
	}

	if cfg.AEC.StepSize <= 0 || cfg.AEC.StepSize >= 2 {
		errs = append(errs, fmt.Errorf("aec.step_size %.2f is out of range (0, 2)", cfg.AEC.StepSize))
	}
	if cfg.AEC.FilterLength <= 0 {
		errs = append(errs, fmt.Errorf("aec.filter_length must be positive"))
	}

	errs = append(errs, validateProviderName("stt", cfg.STT.Name)...)
	errs = append(errs, validateProviderName("tts", cfg.TTS.Name)...)
	errs = append(errs, validateProviderName("agent", cfg.Agent.Name)...)

	if cfg.Agent.Name == "openai" && cfg.Agent.APIKey == "" {
		errs = append(errs, fmt.Errorf("agent.api_key is required for the openai agent"))
	}
	if cfg.Agent.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("agent.timeout must be positive"))
	}

	return errors.Join(errs...)
}

// validateProviderName returns an error when name is set but unknown for kind.
func validateProviderName(kind, name string) []error {
	if name == "" {
		return nil
	}
	if slices.Contains(ValidProviderNames[kind], name) {
		return nil
	}
	return []error{fmt.Errorf("%s.name %q is not a known provider; valid values: %v", kind, name, ValidProviderNames[kind])}
}
