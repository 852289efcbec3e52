// Package app wires the Hearsay subsystems into a running daemon.
//
// The App owns the full lifecycle: New opens the audio streams and builds the
// interaction controller around the injected providers, Run executes the
// controller and the HTTP endpoints until the context is cancelled, and
// Shutdown tears everything down.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hearsay-ai/hearsay/internal/config"
	"github.com/hearsay-ai/hearsay/internal/health"
	"github.com/hearsay-ai/hearsay/internal/statusfeed"
	"github.com/hearsay-ai/hearsay/internal/talk"
	"github.com/hearsay-ai/hearsay/pkg/audio"
	"github.com/hearsay-ai/hearsay/pkg/audio/aec"
	"github.com/hearsay-ai/hearsay/pkg/provider/agent"
	"github.com/hearsay-ai/hearsay/pkg/provider/stt"
	"github.com/hearsay-ai/hearsay/pkg/provider/tts"
	"github.com/hearsay-ai/hearsay/pkg/provider/vad"
	"github.com/hearsay-ai/hearsay/pkg/provider/wake"
)

// httpShutdownTimeout bounds the graceful drain of the HTTP server.
const httpShutdownTimeout = 5 * time.Second

// Providers holds one implementation per provider slot. All fields are
// required; the binary populates them from config.
type Providers struct {
	Audio      audio.Bus
	WakeScorer wake.Scorer
	VAD        vad.Engine
	STT        stt.Provider
	TTS        tts.Provider
	Agent      agent.Agent
}

func (p Providers) validate() error {
	switch {
	case p.Audio == nil:
		return errors.New("app: Providers.Audio is required")
	case p.WakeScorer == nil:
		return errors.New("app: Providers.WakeScorer is required")
	case p.VAD == nil:
		return errors.New("app: Providers.VAD is required")
	case p.STT == nil:
		return errors.New("app: Providers.STT is required")
	case p.TTS == nil:
		return errors.New("app: Providers.TTS is required")
	case p.Agent == nil:
		return errors.New("app: Providers.Agent is required")
	}
	return nil
}

// App owns the subsystem lifetimes around the interaction controller.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	hub      *talk.EventHub
	ctrl     *talk.Controller
	detector *wake.Detector
	capture  audio.CaptureStream
	playback audio.PlaybackStream
	srv      *http.Server

	stopOnce sync.Once
	stopErr  error
}

// New opens the audio streams and assembles the controller. The returned App
// holds open device handles; call Shutdown even when Run is never reached.
func New(cfg *config.Config, providers Providers, logger *slog.Logger) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{cfg: cfg, logger: logger, hub: talk.NewEventHub()}

	streamCfg := audio.StreamConfig{
		SampleRate:    cfg.Audio.SampleRate,
		FrameDuration: cfg.Audio.FrameDuration.Std(),
	}
	capture, err := providers.Audio.OpenCapture(cfg.Audio.CaptureDevice, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("app: open capture: %w", err)
	}
	a.capture = capture

	playback, err := providers.Audio.OpenPlayback(cfg.Audio.PlaybackDevice, streamCfg)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("app: open playback: %w", err)
	}
	a.playback = playback

	var canceller *aec.Canceller
	if !cfg.AEC.Disabled {
		maxDelay := int(cfg.AEC.MaxDelay.Std().Seconds() * float64(cfg.Audio.SampleRate))
		canceller = aec.New(aec.Config{
			FilterLength:    cfg.AEC.FilterLength,
			MaxDelaySamples: maxDelay,
			StepSize:        cfg.AEC.StepSize,
		})
	}

	a.detector = wake.NewDetector(providers.WakeScorer, wake.Config{
		Threshold:        cfg.Wake.Threshold,
		MinGapFrames:     cfg.Wake.MinGapFrames,
		FrameDuration:    cfg.Audio.FrameDuration.Std(),
		CPUBudgetPercent: cfg.Wake.CPUBudgetPercent,
	})

	ctrl, err := talk.New(talk.Config{
		SenderID:     cfg.Talk.SenderID,
		WakePhrase:   cfg.Wake.Phrase,
		Apology:      cfg.Talk.Apology,
		AgentTimeout: cfg.Agent.Timeout.Std(),
		WakeWindow:   cfg.Talk.WakeWindow.Std(),
		VAD: vad.Config{
			SampleRate:         cfg.Audio.SampleRate,
			Threshold:          cfg.VAD.Threshold,
			MinSpeechDuration:  cfg.VAD.MinSpeechDuration.Std(),
			MinSilenceDuration: cfg.VAD.MinSilenceDuration.Std(),
		},
		SampleRate: cfg.Audio.SampleRate,
		Language:   cfg.STT.Language,
	}, talk.Deps{
		Capture:   capture,
		Playback:  playback,
		Wake:      a.detector,
		VAD:       providers.VAD,
		STT:       providers.STT,
		TTS:       providers.TTS,
		Agent:     providers.Agent,
		Canceller: canceller,
		Hub:       a.hub,
		Logger:    logger,
	})
	if err != nil {
		a.detector.Close()
		a.closeStreams()
		return nil, err
	}
	a.ctrl = ctrl

	if cfg.Server.ListenAddr != "" {
		a.srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

// Hub returns the controller's status event hub.
func (a *App) Hub() *talk.EventHub { return a.hub }

// Controller returns the interaction controller, for stats inspection.
func (a *App) Controller() *talk.Controller { return a.ctrl }

// routes builds the HTTP mux: Prometheus metrics, probes, and the status
// WebSocket feed.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /status", statusfeed.NewHandler(a.hub, statusfeed.WithLogger(a.logger)))
	health.New(
		health.Check{Name: "controller", Probe: a.controllerCheck},
	).Register(mux)
	return mux
}

// controllerCheck fails once the interaction loop has stopped.
func (a *App) controllerCheck(context.Context) error {
	if a.ctrl.State() == talk.StateStopped {
		return errors.New("interaction loop stopped")
	}
	return nil
}

// Run executes the interaction loop and, when configured, the HTTP server.
// It blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ctrl.Run(gctx)
	})

	if a.srv != nil {
		a.logger.Info("http endpoints listening", "addr", a.srv.Addr)
		g.Go(func() error {
			err := a.srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return a.srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Shutdown releases the wake detector, audio streams, and event hub. Safe to
// call more than once.
func (a *App) Shutdown() error {
	a.stopOnce.Do(func() {
		a.hub.Close()
		a.stopErr = errors.Join(a.detector.Close(), a.closeStreams())
	})
	return a.stopErr
}

func (a *App) closeStreams() error {
	var errs []error
	if a.capture != nil {
		errs = append(errs, a.capture.Close())
	}
	if a.playback != nil {
		errs = append(errs, a.playback.Close())
	}
	return errors.Join(errs...)
}
