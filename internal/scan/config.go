package scan

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"propscan-api/internal/config"
)

// QRConfig is the camera scan policy.
type QRConfig struct {
	ScanInterval      time.Duration
	ProcessingQuality float64
	// MinConfidence is kept for clients that display it. QR payloads are
	// checksummed by the decoder, so a decoded result is never partial.
	MinConfidence float64
	Timeout       time.Duration
}

// NFCConfig is the tag scan policy.
type NFCConfig struct {
	Timeout       time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// Config is the complete scan policy. It is replaced wholesale, never
// mutated in place.
type Config struct {
	QR  QRConfig
	NFC NFCConfig
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		QR: QRConfig{
			ScanInterval:      100 * time.Millisecond,
			ProcessingQuality: 0.8,
			MinConfidence:     0.7,
			Timeout:           30 * time.Second,
		},
		NFC: NFCConfig{
			Timeout:       20 * time.Second,
			RetryInterval: time.Second,
			MaxRetries:    3,
		},
	}
}

// FromSettings converts the environment settings into a policy.
func FromSettings(s config.ScanConfig) Config {
	return Config{
		QR: QRConfig{
			ScanInterval:      s.QRInterval,
			ProcessingQuality: s.QRQuality,
			MinConfidence:     s.QRMinConfidence,
			Timeout:           s.QRTimeout,
		},
		NFC: NFCConfig{
			Timeout:       s.NFCTimeout,
			RetryInterval: s.NFCRetryInterval,
			MaxRetries:    s.NFCMaxRetries,
		},
	}
}

// Validate checks the policy bounds.
func (c Config) Validate() error {
	if c.QR.ScanInterval <= 0 {
		return errors.New("scan: QR scan interval must be positive")
	}
	if c.QR.ProcessingQuality <= 0 || c.QR.ProcessingQuality > 1 {
		return fmt.Errorf("scan: processing quality %v out of range (0,1]", c.QR.ProcessingQuality)
	}
	if c.QR.Timeout <= 0 || c.NFC.Timeout <= 0 {
		return errors.New("scan: timeouts must be positive")
	}
	if c.NFC.MaxRetries < 0 || c.NFC.RetryInterval < 0 {
		return errors.New("scan: NFC retry settings must not be negative")
	}
	return nil
}

// Policy holds the active Config. Sessions take a snapshot at Start.
type Policy struct {
	cfg atomic.Pointer[Config]
}

// NewPolicy returns a holder for cfg. Invalid configs fall back to the defaults.
func NewPolicy(cfg Config) *Policy {
	p := &Policy{}
	if err := cfg.Validate(); err != nil {
		cfg = DefaultConfig()
	}
	p.cfg.Store(&cfg)
	return p
}

// Load returns the current policy.
func (p *Policy) Load() Config {
	return *p.cfg.Load()
}

// Swap replaces the policy if cfg is valid.
func (p *Policy) Swap(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg.Store(&cfg)
	return nil
}
