package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper", "whisper-native"},
	"tts":        {"elevenlabs"},
	"embeddings": {"openai", "ollama"},
	"vad":        {"energy"},
}

// Load reads, decodes, and validates the YAML configuration file at path.
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

// LoadFromReader decodes a YAML config from r and validates the result. Tests
// use it to build configs from string literals. Unknown YAML keys are
// rejected so typos surface at startup instead of silently using defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; off-menu small talk will get a fixed apology")
	}

	// Restaurant hours
	r := cfg.Restaurant
	if r.OpenHour != 0 || r.CloseHour != 0 {
		if r.OpenHour < 0 || r.OpenHour > 23 {
			errs = append(errs, fmt.Errorf("restaurant.open_hour %d is out of range [0, 23]", r.OpenHour))
		}
		if r.CloseHour < 1 || r.CloseHour > 24 {
			errs = append(errs, fmt.Errorf("restaurant.close_hour %d is out of range [1, 24]", r.CloseHour))
		}
		if r.OpenHour >= r.CloseHour {
			errs = append(errs, fmt.Errorf("restaurant.open_hour %d must be before close_hour %d", r.OpenHour, r.CloseHour))
		}
	}

	if r.LLMConfidenceThreshold < 0 || r.LLMConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("restaurant.llm_confidence_threshold %.2f is out of range [0, 1]", r.LLMConfidenceThreshold))
	}

	// Voice
	if r.Voice.SpeedFactor != 0 {
		if r.Voice.SpeedFactor < 0.5 || r.Voice.SpeedFactor > 2.0 {
			errs = append(errs, fmt.Errorf("restaurant.voice.speed_factor %.2f is out of range [0.5, 2.0]", r.Voice.SpeedFactor))
		}
	}
	if r.Voice.PitchShift < -10 || r.Voice.PitchShift > 10 {
		errs = append(errs, fmt.Errorf("restaurant.voice.pitch_shift %.2f is out of range [-10, 10]", r.Voice.PitchShift))
	}

	// Voice provider ↔ TTS provider cross-validation
	if r.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && r.Voice.Provider != cfg.Providers.TTS.Name {
		slog.Warn("restaurant voice provider does not match configured TTS provider",
			"voice_provider", r.Voice.Provider,
			"tts_provider", cfg.Providers.TTS.Name,
		)
	}

	// Storage
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; orders will only be logged to the history file")
	}

	return errors.Join(errs...)
}

// validateProviderName warns when a configured provider name is not in the
// [ValidProviderNames] list for its kind. Unknown names are not an error
// since deployments may register extra factories.
func validateProviderName(kind, name string) {
	known := ValidProviderNames[kind]
	if name == "" || slices.Contains(known, name) {
		return
	}
	slog.Warn("unrecognised provider name, possibly a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
