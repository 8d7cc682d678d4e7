package scan

import (
	"context"

	"propscan-api/internal/history"
	"propscan-api/internal/logger"
	"propscan-api/internal/model"
)

// OutcomeStatus is how a scan session ended.
type OutcomeStatus string

const (
	OutcomeMatched OutcomeStatus = "matched"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeStopped OutcomeStatus = "stopped"
)

// Outcome is the result of one scan session.
type Outcome struct {
	Status       OutcomeStatus     `json:"status"`
	SerialNumber string            `json:"serialNumber,omitempty"`
	Redirect     string            `json:"redirect,omitempty"`
	Error        *ScanError        `json:"error,omitempty"`
	Warnings     []*ScanError      `json:"warnings,omitempty"`
	TimedOut     bool              `json:"timedOut,omitempty"`
	Metrics      Metrics           `json:"metrics"`
	Record       *model.ScanRecord `json:"record,omitempty"`
}

// ErrorHandler observes classified errors as they are surfaced.
type ErrorHandler func(*ScanError)

// recorder writes the terminal history entry of a session.
type recorder struct {
	history *history.Store
	clock   Clock
	device  model.DeviceInfo
	kind    model.ScanType
}

func (r recorder) record(ctx context.Context, serialNumber string, scanErr *ScanError, m Metrics) *model.ScanRecord {
	rec := model.ScanRecord{
		Timestamp:    r.clock.Now().UnixMilli(),
		Type:         r.kind,
		SerialNumber: serialNumber,
		Success:      scanErr == nil,
		Duration:     m.Duration.Milliseconds(),
		DeviceInfo:   r.device,
	}
	if scanErr != nil {
		rec.Error = scanErr.Message
	}
	if r.history == nil {
		return &rec
	}

	// The entry outlives a canceled session.
	saved, err := r.history.AddRecord(context.WithoutCancel(ctx), rec)
	if err != nil {
		log := logger.WithComponent("ScanController")
		log.Warn().Err(err).Str("type", string(r.kind)).Msg("Failed to persist scan record")
		return &rec
	}
	return &saved
}
