package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hearsay-ai/hearsay/internal/config"
	"github.com/hearsay-ai/hearsay/internal/talk"
	audiomock "github.com/hearsay-ai/hearsay/pkg/audio/mock"
	agentmock "github.com/hearsay-ai/hearsay/pkg/provider/agent/mock"
	sttmock "github.com/hearsay-ai/hearsay/pkg/provider/stt/mock"
	ttsmock "github.com/hearsay-ai/hearsay/pkg/provider/tts/mock"
	vadmock "github.com/hearsay-ai/hearsay/pkg/provider/vad/mock"
	wakemock "github.com/hearsay-ai/hearsay/pkg/provider/wake/mock"
)

func testProviders() (Providers, *audiomock.Bus) {
	bus := audiomock.NewBus()
	return Providers{
		Audio:      bus,
		WakeScorer: &wakemock.Scorer{},
		VAD:        &vadmock.Engine{},
		STT:        &sttmock.Provider{},
		TTS:        &ttsmock.Provider{},
		Agent:      &agentmock.Agent{},
	}, bus
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	return cfg.Defaults()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewOpensConfiguredDevices(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.CaptureDevice = "hw:1,0"
	cfg.Audio.PlaybackDevice = "hw:2,0"
	providers, bus := testProviders()

	a, err := New(cfg, providers, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	if len(bus.CaptureCalls) != 1 || bus.CaptureCalls[0].Device != "hw:1,0" {
		t.Errorf("CaptureCalls = %+v, want one open of hw:1,0", bus.CaptureCalls)
	}
	if len(bus.PlaybackCalls) != 1 || bus.PlaybackCalls[0].Device != "hw:2,0" {
		t.Errorf("PlaybackCalls = %+v, want one open of hw:2,0", bus.PlaybackCalls)
	}
	if got := bus.CaptureCalls[0].Config.SampleRate; got != 16000 {
		t.Errorf("capture sample rate = %d, want 16000", got)
	}
}

func TestNewRequiresProviders(t *testing.T) {
	providers, _ := testProviders()
	providers.Agent = nil

	if _, err := New(testConfig(), providers, testLogger()); err == nil {
		t.Fatal("New accepted a nil provider")
	}
}

func TestRunStartsAndStopsCleanly(t *testing.T) {
	providers, _ := testProviders()
	a, err := New(testConfig(), providers, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	events, cancelSub := a.Hub().Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	// The controller announces idle listening once it is up.
	select {
	case ev := <-events:
		if ev.State != talk.StateWakeIdle {
			t.Errorf("first event state = %v, want WakeIdle", ev.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no status event after Run")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	providers, _ := testProviders()
	a, err := New(testConfig(), providers, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Shutdown(); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestRoutes(t *testing.T) {
	providers, _ := testProviders()
	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a, err := New(cfg, providers, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	for path, want := range map[string]int{
		"/metrics": http.StatusOK,
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusOK,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestReadyzFailsAfterControllerStops(t *testing.T) {
	providers, _ := testProviders()
	a, err := New(testConfig(), providers, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz = %d, want %d after the loop stopped", resp.StatusCode, http.StatusServiceUnavailable)
	}
}
