package spotter

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeModel marshals m to a temp file and returns its path.
func writeModel(t *testing.T, m Model) string {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wake.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

// frameWithRMS generates a frame whose RMS is approximately the given level.
func frameWithRMS(rms float64) []int16 {
	frame := make([]int16, 480)
	amp := rms * math.Sqrt2
	for i := range frame {
		frame[i] = int16(amp * math.Sin(2*math.Pi*250*float64(i)/16000))
	}
	return frame
}

func TestNewRejectsBadModels(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("New accepted a missing model file")
	}

	short := writeModel(t, Model{Phrase: "hey", Envelope: []float64{0.5}})
	if _, err := New(short); err == nil {
		t.Error("New accepted a single-frame envelope")
	}

	outOfRange := writeModel(t, Model{Phrase: "hey", Envelope: []float64{0.5, 1.5}})
	if _, err := New(outOfRange); err == nil {
		t.Error("New accepted an envelope value above 1")
	}
}

func TestScoreMatchesOwnEnvelope(t *testing.T) {
	envelope := []float64{0.1, 0.6, 0.9, 0.6, 0.1, 0.4, 0.8, 0.3}
	s, err := New(writeModel(t, Model{Phrase: "hey hearsay", Envelope: envelope}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Replay the template's own energy profile.
	var last float64
	for _, e := range envelope {
		last, err = s.Score(frameWithRMS(e * 2000))
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
	}
	if last < 0.9 {
		t.Errorf("score on matching input = %v, want >= 0.9", last)
	}
}

func TestScoreLowOnFlatInput(t *testing.T) {
	envelope := []float64{0.1, 0.6, 0.9, 0.6, 0.1, 0.4, 0.8, 0.3}
	s, err := New(writeModel(t, Model{Phrase: "hey hearsay", Envelope: envelope}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var last float64
	for i := 0; i < len(envelope)*2; i++ {
		last, err = s.Score(frameWithRMS(900))
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
	}
	if last > 0.3 {
		t.Errorf("score on flat input = %v, want low", last)
	}
}

func TestScoreZeroUntilWindowFilled(t *testing.T) {
	envelope := []float64{0.1, 0.6, 0.9, 0.6}
	s, err := New(writeModel(t, Model{Phrase: "hey", Envelope: envelope}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < len(envelope)-1; i++ {
		score, err := s.Score(frameWithRMS(1000))
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if score != 0 {
			t.Errorf("frame %d: score = %v before window filled, want 0", i, score)
		}
	}
}

func TestLoadModelKeepsOldModelOnFailure(t *testing.T) {
	good := writeModel(t, Model{Phrase: "hey", Envelope: []float64{0.2, 0.8, 0.2, 0.6}})
	s, err := New(good)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.LoadModel(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("LoadModel succeeded on a missing file")
	}

	// Old model still scores.
	for i := 0; i < 4; i++ {
		if _, err := s.Score(frameWithRMS(1000)); err != nil {
			t.Fatalf("Score after failed LoadModel: %v", err)
		}
	}
}

func TestCorrelate(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
		min  float64
		max  float64
	}{
		{"identical", []float64{0.1, 0.9, 0.5}, []float64{0.1, 0.9, 0.5}, 0.999, 1.0},
		{"inverted", []float64{0.9, 0.1, 0.5}, []float64{0.1, 0.9, 0.5}, 0, 0.01},
		{"flat", []float64{0.5, 0.5, 0.5}, []float64{0.1, 0.9, 0.5}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := correlate(tc.a, tc.b)
			if got < tc.min || got > tc.max {
				t.Errorf("correlate = %v, want in [%v, %v]", got, tc.min, tc.max)
			}
		})
	}
}
