// Command hearsay is the always-on voice interaction daemon: wake-word
// gated listening, streaming transcription, agent delivery, and spoken
// replies on the local audio devices.
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

	"github.com/hearsay-ai/hearsay/internal/app"
	"github.com/hearsay-ai/hearsay/internal/config"
	"github.com/hearsay-ai/hearsay/internal/modelpath"
	"github.com/hearsay-ai/hearsay/internal/observe"
	"github.com/hearsay-ai/hearsay/pkg/audio/local"
	agentmock "github.com/hearsay-ai/hearsay/pkg/provider/agent/mock"
	openaiagent "github.com/hearsay-ai/hearsay/pkg/provider/agent/openai"
	sttmock "github.com/hearsay-ai/hearsay/pkg/provider/stt/mock"
	"github.com/hearsay-ai/hearsay/pkg/provider/stt/whisper"
	ttsmock "github.com/hearsay-ai/hearsay/pkg/provider/tts/mock"
	"github.com/hearsay-ai/hearsay/pkg/provider/tts/piper"
	"github.com/hearsay-ai/hearsay/pkg/provider/vad/energy"
	"github.com/hearsay-ai/hearsay/pkg/provider/wake/spotter"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hearsay: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hearsay: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("hearsay starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
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

	providers, closeProviders, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders()

	application, err := app.New(cfg, providers, logger)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		if err := application.Shutdown(); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	slog.Info("listening for the wake word — press Ctrl+C to shut down",
		"wake_phrase", cfg.Wake.Phrase,
	)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the configured provider implementations. The
// returned close function releases engine resources; call it after the app
// has shut down.
func buildProviders(cfg *config.Config) (app.Providers, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}

	models := modelpath.NewDirResolver(cfg.ModelsDir, map[modelpath.Kind]string{
		modelpath.KindSTT: cfg.STT.Model,
	})

	providers := app.Providers{
		Audio: local.NewBus(local.WithLogger(slog.Default())),
		VAD:   energy.New(),
	}

	// ── Wake scorer ───────────────────────────────────────────────────────
	wakePath, err := models.Resolve(modelpath.KindWake)
	if err != nil {
		return app.Providers{}, nil, err
	}
	sc, err := spotter.New(wakePath)
	if err != nil {
		return app.Providers{}, nil, err
	}
	providers.WakeScorer = sc
	closers = append(closers, sc.Close)

	// ── STT ───────────────────────────────────────────────────────────────
	switch cfg.STT.Name {
	case "whisper":
		path, err := models.Resolve(modelpath.KindSTT)
		if err != nil {
			closeAll()
			return app.Providers{}, nil, err
		}
		var opts []whisper.Option
		if cfg.STT.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.STT.Language))
		}
		opts = append(opts, whisper.WithPartials(true))
		p, err := whisper.New(path, opts...)
		if err != nil {
			closeAll()
			return app.Providers{}, nil, err
		}
		providers.STT = p
		closers = append(closers, p.Close)
	case "mock":
		// Development mode: the pipeline runs without a recognition model.
		providers.STT = &sttmock.Provider{}
	default:
		closeAll()
		return app.Providers{}, nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Name)
	}

	// ── TTS ───────────────────────────────────────────────────────────────
	switch cfg.TTS.Name {
	case "piper":
		opts := []piper.Option{piper.WithOutputRate(cfg.Audio.SampleRate)}
		if speaker := optString(cfg.TTS.Options, "speaker"); speaker != "" {
			opts = append(opts, piper.WithSpeaker(speaker))
		}
		p, err := piper.New(cfg.TTS.BaseURL, opts...)
		if err != nil {
			closeAll()
			return app.Providers{}, nil, err
		}
		providers.TTS = p
	case "mock":
		providers.TTS = &ttsmock.Provider{}
	default:
		closeAll()
		return app.Providers{}, nil, fmt.Errorf("unknown tts provider %q", cfg.TTS.Name)
	}

	// ── Agent ─────────────────────────────────────────────────────────────
	switch cfg.Agent.Name {
	case "openai":
		var opts []openaiagent.Option
		if cfg.Agent.BaseURL != "" {
			opts = append(opts, openaiagent.WithBaseURL(cfg.Agent.BaseURL))
		}
		if cfg.Agent.Timeout > 0 {
			opts = append(opts, openaiagent.WithTimeout(cfg.Agent.Timeout.Std()))
		}
		a, err := openaiagent.New(cfg.Agent.APIKey, cfg.Agent.Model, opts...)
		if err != nil {
			closeAll()
			return app.Providers{}, nil, err
		}
		providers.Agent = a
	case "mock":
		providers.Agent = &agentmock.Agent{Default: "This is a test reply."}
	default:
		closeAll()
		return app.Providers{}, nil, fmt.Errorf("unknown agent provider %q", cfg.Agent.Name)
	}

	return providers, closeAll, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// optString extracts a string from a provider Options map. Returns "" when
// the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
