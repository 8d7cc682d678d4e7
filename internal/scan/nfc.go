package scan

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"propscan-api/internal/device"
	"propscan-api/internal/history"
	"propscan-api/internal/logger"
	"propscan-api/internal/model"
	"propscan-api/pkg/serial"
)

// NDEFRecord is one record of an NDEF message.
type NDEFRecord struct {
	RecordType string `json:"recordType"`
	MediaType  string `json:"mediaType,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Lang       string `json:"lang,omitempty"`
	Data       []byte `json:"data"`
}

// TagRead is a single tag read event. Err is set when the reader reported
// a failure instead of a tag.
type TagRead struct {
	TagID   string       `json:"serialNumber,omitempty"`
	Records []NDEFRecord `json:"records"`
	Err     error        `json:"-"`
}

// Reader is a platform NFC reader. Scan subscribes to tag reads until ctx
// is done; the channel is closed when the subscription ends.
type Reader interface {
	Scan(ctx context.Context) (<-chan TagRead, error)
}

// singleShot is implemented by readers that hold one captured read and
// cannot produce a fresh one on retry.
type singleShot interface {
	SingleShot() bool
}

func retryable(r Reader) bool {
	s, ok := r.(singleShot)
	return !ok || !s.SingleShot()
}

// Readers selects a reader per platform.
type Readers map[device.Platform]Reader

// For returns the reader for the probed device.
func (r Readers) For(caps device.Capabilities) (Reader, bool) {
	if !caps.HasNFC {
		return nil, false
	}
	reader, ok := r[caps.Platform]
	return reader, ok && reader != nil
}

// RecordText decodes an NDEF record as text. Well-known "T" records carry
// a status byte (bit 7 set for UTF-16) and language code ahead of the
// text. Other records are UTF-8 unless Encoding or the MediaType charset
// says utf-16.
func RecordText(rec NDEFRecord) string {
	data := rec.Data
	wide := strings.EqualFold(rec.Encoding, "utf-16") ||
		strings.EqualFold(rec.Encoding, "utf-16be") ||
		strings.EqualFold(rec.Encoding, "utf-16le") ||
		strings.Contains(strings.ToLower(rec.MediaType), "charset=utf-16")
	if rec.RecordType == "T" && len(data) > 0 {
		wide = wide || data[0]&0x80 != 0
		skip := 1 + int(data[0]&0x3f)
		if skip > len(data) {
			return ""
		}
		data = data[skip:]
	}
	if wide {
		return decodeUTF16(data, strings.EqualFold(rec.Encoding, "utf-16le"))
	}
	if !utf8.Valid(data) {
		return ""
	}
	return string(data)
}

// decodeUTF16 decodes big-endian UTF-16 unless a byte order mark or
// littleEndian says otherwise. Odd-length input is not text.
func decodeUTF16(data []byte, littleEndian bool) string {
	if len(data)%2 != 0 {
		return ""
	}
	if len(data) >= 2 {
		switch {
		case data[0] == 0xfe && data[1] == 0xff:
			data, littleEndian = data[2:], false
		case data[0] == 0xff && data[1] == 0xfe:
			data, littleEndian = data[2:], true
		}
	}
	units := make([]uint16, len(data)/2)
	for i := range units {
		if littleEndian {
			units[i] = binary.LittleEndian.Uint16(data[2*i:])
		} else {
			units[i] = binary.BigEndian.Uint16(data[2*i:])
		}
	}
	return string(utf16.Decode(units))
}

// NFCState is the controller state.
type NFCState string

const (
	NFCIdle     NFCState = "idle"
	NFCScanning NFCState = "scanning"
)

// NFCController runs tag scan sessions. One session may be active at a time.
type NFCController struct {
	readers  Readers
	caps     device.Capabilities
	router   *Router
	policy   *Policy
	clock    Clock
	monitor  *PerformanceMonitor
	recorder recorder
	onError  ErrorHandler
	log      zerolog.Logger

	mu     sync.Mutex
	state  NFCState
	cancel context.CancelFunc
}

// NewNFCController wires a controller for a probed device.
func NewNFCController(readers Readers, caps device.Capabilities, hist *history.Store, router *Router, policy *Policy) *NFCController {
	clock := SystemClock()
	return &NFCController{
		readers: readers,
		caps:    caps,
		router:  router,
		policy:  policy,
		clock:   clock,
		monitor: NewPerformanceMonitor(clock),
		recorder: recorder{
			history: hist,
			clock:   clock,
			device:  model.DeviceInfo{Platform: string(caps.Platform), Model: caps.Model},
			kind:    model.ScanTypeNFC,
		},
		log:   logger.WithComponent("NFCController"),
		state: NFCIdle,
	}
}

// SetClock replaces the time source. Call before Start.
func (c *NFCController) SetClock(clock Clock) {
	c.clock = clock
	c.monitor = NewPerformanceMonitor(clock)
	c.recorder.clock = clock
}

// OnError registers an observer for surfaced errors.
func (c *NFCController) OnError(h ErrorHandler) {
	c.onError = h
}

// State returns the controller state.
func (c *NFCController) State() NFCState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start waits for one tag and resolves it. Transient read errors are
// retried up to the configured count; every other failure ends the session.
func (c *NFCController) Start(ctx context.Context, returnTo string) (*Outcome, error) {
	c.mu.Lock()
	if c.state != NFCIdle {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}
	ctx, cancel := context.WithCancel(ctx)
	c.state = NFCScanning
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.state = NFCIdle
		c.cancel = nil
		c.mu.Unlock()
	}()

	cfg := c.policy.Load()
	c.monitor.StartScan()

	reader, ok := c.readers.For(c.caps)
	if !ok {
		return c.fail(ctx, Details(CodeNFCNotSupported)), nil
	}

	maxRetries := cfg.NFC.MaxRetries
	if !retryable(reader) {
		maxRetries = 0
	}

	for retries := 0; ; retries++ {
		read, err := c.readOnce(ctx, reader, cfg.NFC.Timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return &Outcome{Status: OutcomeStopped, Metrics: c.monitor.Metrics()}, nil
			}
			scanErr := Classify(model.ScanTypeNFC, err)
			if scanErr.Code == CodeNFCReadError && retries < maxRetries {
				c.log.Debug().Err(err).Int("retry", retries+1).Msg("Retrying NFC read")
				select {
				case <-ctx.Done():
					return &Outcome{Status: OutcomeStopped, Metrics: c.monitor.Metrics()}, nil
				case <-c.clock.After(cfg.NFC.RetryInterval):
				}
				continue
			}
			return c.fail(ctx, scanErr), nil
		}

		if len(read.Records) == 0 {
			return c.fail(ctx, Details(CodeNFCTagFormatError)), nil
		}
		text := RecordText(read.Records[0])
		if text == "" {
			return c.fail(ctx, Details(CodeNFCTagFormatError)), nil
		}
		sn, ok := serial.Normalize(text)
		if !ok {
			return c.fail(ctx, Details(CodeInvalidSerialNumber)), nil
		}

		c.monitor.RecordSuccessfulScan()
		m := c.monitor.Metrics()
		rec := c.recorder.record(ctx, sn, nil, m)
		out := &Outcome{Status: OutcomeMatched, SerialNumber: sn, Metrics: m, Record: rec}
		redirect, err := c.router.Route(ctx, sn, returnTo)
		if err != nil {
			return out, err
		}
		out.Redirect = redirect
		c.log.Info().Str("serial", sn).Str("tag", read.TagID).Msg("NFC scan matched")
		return out, nil
	}
}

// Stop cancels the active session. It is a no-op when nothing is running.
func (c *NFCController) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *NFCController) readOnce(ctx context.Context, reader Reader, timeout time.Duration) (TagRead, error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.monitor.RecordScanAttempt()
	reads, err := reader.Scan(readCtx)
	if err != nil {
		return TagRead{}, err
	}

	select {
	case read, ok := <-reads:
		if !ok {
			if err := readCtx.Err(); err != nil {
				return TagRead{}, err
			}
			return TagRead{}, ErrNotReadable
		}
		if read.Err != nil {
			return TagRead{}, read.Err
		}
		return read, nil
	case <-readCtx.Done():
		return TagRead{}, readCtx.Err()
	}
}

func (c *NFCController) fail(ctx context.Context, scanErr *ScanError) *Outcome {
	c.monitor.MarkFailed()
	c.emit(scanErr)
	c.log.Warn().Err(scanErr.Err).Str("code", scanErr.Code).Msg("NFC scan failed")

	m := c.monitor.Metrics()
	rec := c.recorder.record(ctx, "", scanErr, m)
	return &Outcome{Status: OutcomeFailed, Error: scanErr, Metrics: m, Record: rec}
}

func (c *NFCController) emit(e *ScanError) {
	if c.onError != nil {
		c.onError(e)
	}
}
