// Package events publishes scan outcomes to the NATS event bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"propscan-api/internal/logger"
	"propscan-api/internal/model"
)

// ScanEvent is the message published for every recorded scan.
type ScanEvent struct {
	Source     string           `json:"source"`
	OccurredAt time.Time        `json:"occurred_at"`
	Record     model.ScanRecord `json:"record"`
}

// Publisher emits scan events. It satisfies history.Sink.
type Publisher interface {
	Record(ctx context.Context, rec model.ScanRecord) error
	Close() error
}

// NATSPublisher publishes scan events on a core NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	source  string
	log     zerolog.Logger
}

// Connect dials NATS and returns a publisher for subject.
func Connect(url, subject, source string) (*NATSPublisher, error) {
	log := logger.WithComponent("NATSPublisher")

	nc, err := nats.Connect(url,
		nats.Name(source),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("subject", subject).Msg("NATS event publisher initialized")
	return &NATSPublisher{conn: nc, subject: subject, source: source, log: log}, nil
}

// Record publishes rec.
func (p *NATSPublisher) Record(ctx context.Context, rec model.ScanRecord) error {
	data, err := json.Marshal(ScanEvent{Source: p.source, OccurredAt: time.Now().UTC(), Record: rec})
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish scan event: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Noop discards events when no bus is configured.
type Noop struct{}

func (Noop) Record(context.Context, model.ScanRecord) error { return nil }

func (Noop) Close() error { return nil }

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = Noop{}
)
