package wake

import (
	"sync"
	"time"
)

// budgetWindow is the number of per-frame samples in the rolling window.
const budgetWindow = 100

// CPUBudgetMonitor estimates the detector's CPU usage from a rolling window
// of per-frame wall-clock processing durations. The estimate is
//
//	avg(duration) / frameDuration * 100
//
// i.e. the percentage of real time spent scoring. All methods are safe for
// concurrent use.
type CPUBudgetMonitor struct {
	frameDuration time.Duration
	budgetPercent float64

	mu     sync.Mutex
	window [budgetWindow]time.Duration
	next   int
	filled int
	sum    time.Duration
}

// NewCPUBudgetMonitor creates a monitor for the given frame cadence and
// budget (in percent of one core).
func NewCPUBudgetMonitor(frameDuration time.Duration, budgetPercent float64) *CPUBudgetMonitor {
	return &CPUBudgetMonitor{
		frameDuration: frameDuration,
		budgetPercent: budgetPercent,
	}
}

// Record adds one per-frame processing duration to the rolling window.
func (m *CPUBudgetMonitor) Record(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filled == budgetWindow {
		m.sum -= m.window[m.next]
	} else {
		m.filled++
	}
	m.window[m.next] = d
	m.sum += d
	m.next = (m.next + 1) % budgetWindow
}

// Estimate returns the current CPU usage estimate in percent. Zero until the
// first frame has been recorded.
func (m *CPUBudgetMonitor) Estimate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filled == 0 || m.frameDuration <= 0 {
		return 0
	}
	avg := float64(m.sum) / float64(m.filled)
	return avg / float64(m.frameDuration) * 100
}

// OverBudget reports whether the current estimate exceeds the configured
// budget.
func (m *CPUBudgetMonitor) OverBudget() bool {
	return m.Estimate() > m.budgetPercent
}
