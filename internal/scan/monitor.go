package scan

import (
	"encoding/json"
	"sync"
	"time"
)

// MonitorState is the lifecycle of a monitored session.
type MonitorState string

const (
	MonitorIdle      MonitorState = "idle"
	MonitorScanning  MonitorState = "scanning"
	MonitorSucceeded MonitorState = "succeeded"
	MonitorFailed    MonitorState = "failed"
)

// Metrics is a point-in-time view of a session. In JSON the durations
// are milliseconds, the unit scan records use.
type Metrics struct {
	Duration           time.Duration
	Attempts           int
	SuccessRate        float64
	AverageAttemptTime time.Duration
}

type metricsJSON struct {
	Duration           int64   `json:"duration"`
	Attempts           int     `json:"attempts"`
	SuccessRate        float64 `json:"successRate"`
	AverageAttemptTime int64   `json:"averageAttemptTime"`
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		Duration:           m.Duration.Milliseconds(),
		Attempts:           m.Attempts,
		SuccessRate:        m.SuccessRate,
		AverageAttemptTime: m.AverageAttemptTime.Milliseconds(),
	})
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw metricsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metrics{
		Duration:           time.Duration(raw.Duration) * time.Millisecond,
		Attempts:           raw.Attempts,
		SuccessRate:        raw.SuccessRate,
		AverageAttemptTime: time.Duration(raw.AverageAttemptTime) * time.Millisecond,
	}
	return nil
}

// PerformanceMonitor counts attempts and timing for one scan session.
type PerformanceMonitor struct {
	mu        sync.Mutex
	clock     Clock
	state     MonitorState
	start     time.Time
	attempts  int
	successes int
}

// NewPerformanceMonitor creates an idle monitor.
func NewPerformanceMonitor(clock Clock) *PerformanceMonitor {
	if clock == nil {
		clock = realClock{}
	}
	return &PerformanceMonitor{clock: clock, state: MonitorIdle}
}

// StartScan resets the counters and enters the scanning state.
func (m *PerformanceMonitor) StartScan() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.start = m.clock.Now()
	m.attempts = 0
	m.successes = 0
	m.state = MonitorScanning
}

// RecordScanAttempt counts one decode attempt.
func (m *PerformanceMonitor) RecordScanAttempt() {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()
}

// RecordSuccessfulScan counts a success and ends the session.
func (m *PerformanceMonitor) RecordSuccessfulScan() {
	m.mu.Lock()
	m.successes++
	m.state = MonitorSucceeded
	m.mu.Unlock()
}

// MarkFailed ends the session as failed.
func (m *PerformanceMonitor) MarkFailed() {
	m.mu.Lock()
	m.state = MonitorFailed
	m.mu.Unlock()
}

// State returns the current state.
func (m *PerformanceMonitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Metrics computes the session metrics relative to now. With zero
// attempts the rates are 0.
func (m *PerformanceMonitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out Metrics
	if m.state == MonitorIdle {
		return out
	}

	out.Duration = m.clock.Now().Sub(m.start)
	out.Attempts = m.attempts
	if m.attempts > 0 {
		out.SuccessRate = float64(m.successes) / float64(m.attempts)
		out.AverageAttemptTime = out.Duration / time.Duration(m.attempts)
	}
	return out
}
