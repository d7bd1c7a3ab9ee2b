// Command dinevox is the main entry point for the dinevox restaurant
// voice-ordering server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/rnmehta/dinevox/internal/app"
	"github.com/rnmehta/dinevox/internal/config"
	"github.com/rnmehta/dinevox/internal/observe"
	"github.com/rnmehta/dinevox/pkg/provider/embeddings"
	ollamaembed "github.com/rnmehta/dinevox/pkg/provider/embeddings/ollama"
	oaembed "github.com/rnmehta/dinevox/pkg/provider/embeddings/openai"
	"github.com/rnmehta/dinevox/pkg/provider/llm"
	"github.com/rnmehta/dinevox/pkg/provider/llm/anyllm"
	oallm "github.com/rnmehta/dinevox/pkg/provider/llm/openai"
	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/provider/stt/whisper"
	"github.com/rnmehta/dinevox/pkg/provider/tts"
	"github.com/rnmehta/dinevox/pkg/provider/tts/elevenlabs"
	"github.com/rnmehta/dinevox/pkg/provider/vad"
	"github.com/rnmehta/dinevox/pkg/provider/vad/energy"
)

// version is overridden at build time via -ldflags "-X main.version=…".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dinevox: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dinevox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config hot-reload can adjust it.
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("dinevox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "dinevox",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithConfigWatch(*configPath),
		app.WithLogLevelVar(logLevel),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("ready for calls, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down, waiting for active calls to drain")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("stopped cleanly")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai uses the native client; the remaining hosted providers share the
	// any-llm pattern: optional APIKey + optional BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := optFloat(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(int(dims)))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if rms := optFloat(entry.Options, "reference_rms"); rms > 0 {
			opts = append(opts, energy.WithReferenceRMS(rms))
		}
		return energy.New(opts...), nil
	})

	// Debug log of all registered providers.
	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates every provider named in cfg and returns them in
// an [app.Providers] struct. Stages without a configured name stay nil and
// the app degrades gracefully (no LLM means fixed apologies, no Postgres
// means JSONL-only persistence).
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if err := createProvider("llm", cfg.Providers.LLM, reg.CreateLLM, &ps.LLM); err != nil {
		return nil, err
	}
	if err := createProvider("stt", cfg.Providers.STT, reg.CreateSTT, &ps.STT); err != nil {
		return nil, err
	}
	if err := createProvider("tts", cfg.Providers.TTS, reg.CreateTTS, &ps.TTS); err != nil {
		return nil, err
	}
	if err := createProvider("embeddings", cfg.Providers.Embeddings, reg.CreateEmbeddings, &ps.Embeddings); err != nil {
		return nil, err
	}
	if err := createProvider("vad", cfg.Providers.VAD, reg.CreateVAD, &ps.VAD); err != nil {
		return nil, err
	}

	return ps, nil
}

// createProvider resolves one configured provider through the registry and
// stores it in *dst. An empty name or an unregistered one leaves *dst nil;
// only a factory failure aborts startup.
func createProvider[T any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error), dst *T) error {
	if entry.Name == "" {
		return nil
	}
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Debug("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	*dst = p
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	hours := "always open"
	if cfg.Restaurant.OpenHour != 0 || cfg.Restaurant.CloseHour != 0 {
		hours = fmt.Sprintf("%02d:00-%02d:00", cfg.Restaurant.OpenHour, cfg.Restaurant.CloseHour)
	}
	menuSource := cfg.Restaurant.MenuFile
	if menuSource == "" {
		menuSource = "(built-in)"
	}
	storage := "jsonl file"
	if cfg.Storage.PostgresDSN != "" {
		storage = "postgres"
	}

	rows := [][2]string{
		{"LLM", providerLabel(cfg.Providers.LLM)},
		{"STT", providerLabel(cfg.Providers.STT)},
		{"TTS", providerLabel(cfg.Providers.TTS)},
		{"Embeddings", providerLabel(cfg.Providers.Embeddings)},
		{"VAD", providerLabel(config.ProviderEntry{Name: cfg.Providers.VAD.Name})},
		{"Menu", menuSource},
		{"Hours", hours},
		{"Storage", storage},
	}
	if cfg.Server.ListenAddr != "" {
		rows = append(rows, [2]string{"Listen addr", cfg.Server.ListenAddr})
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         dinevox startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	for _, row := range rows {
		value := row[1]
		if len(value) > 19 {
			value = value[:16] + "…"
		}
		fmt.Printf("║  %-12s    : %-19s ║\n", row[0], value)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(entry config.ProviderEntry) string {
	switch {
	case entry.Name == "":
		return "(not configured)"
	case entry.Model != "":
		return entry.Name + " / " + entry.Model
	default:
		return entry.Name
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	switch level {
	case config.LogDebug:
		lvl.Set(slog.LevelDebug)
	case config.LogWarn:
		lvl.Set(slog.LevelWarn)
	case config.LogError:
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optFloat extracts a numeric value from a provider Options map[string]any.
// YAML decodes numbers as int or float64 depending on the literal.
func optFloat(opts map[string]any, key string) float64 {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
