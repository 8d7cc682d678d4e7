package scan

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"propscan-api/internal/history"
	"propscan-api/internal/logger"
	"propscan-api/internal/model"
	"propscan-api/pkg/serial"
)

// ErrStreamEnded is returned by Stream.Frame once no more frames will come.
var ErrStreamEnded = errors.New("scan: stream ended")

// Constraints describes the requested camera.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// RearCamera prefers the rear camera at 1280x720.
var RearCamera = Constraints{FacingMode: "environment", Width: 1280, Height: 720}

// Camera grants access to a video stream.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open video stream.
type Stream interface {
	// Frame returns the current frame. ready is false when no frame is
	// available yet.
	Frame() (img image.Image, ready bool, err error)
	// Close releases every track of the stream.
	Close() error
}

// QRState is the controller state.
type QRState string

const (
	QRIdle             QRState = "idle"
	QRRequestingCamera QRState = "requesting-camera"
	QRScanning         QRState = "scanning"
)

// QRController runs camera scan sessions. One session may be active at a time.
type QRController struct {
	camera    Camera
	decoder   Decoder
	processor *ImageProcessor
	router    *Router
	policy    *Policy
	clock     Clock
	monitor   *PerformanceMonitor
	recorder  recorder
	onError   ErrorHandler
	log       zerolog.Logger

	mu            sync.Mutex
	state         QRState
	session       *qrSession
	stopRequested bool
}

type qrSession struct {
	stream Stream
	sched  *Scheduler
	once   sync.Once
	log    zerolog.Logger
}

// release stops the schedule and closes the stream exactly once.
func (s *qrSession) release() {
	s.once.Do(func() {
		s.sched.Stop()
		if err := s.stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to release camera stream")
		}
	})
}

// NewQRController wires a controller. hist may be nil to skip history.
func NewQRController(camera Camera, decoder Decoder, hist *history.Store, router *Router, policy *Policy, device model.DeviceInfo) *QRController {
	clock := SystemClock()
	return &QRController{
		camera:    camera,
		decoder:   decoder,
		processor: NewImageProcessor(),
		router:    router,
		policy:    policy,
		clock:     clock,
		monitor:   NewPerformanceMonitor(clock),
		recorder:  recorder{history: hist, clock: clock, device: device, kind: model.ScanTypeQR},
		log:       logger.WithComponent("QRController"),
		state:     QRIdle,
	}
}

// SetClock replaces the time source. Call before Start.
func (c *QRController) SetClock(clock Clock) {
	c.clock = clock
	c.monitor = NewPerformanceMonitor(clock)
	c.recorder.clock = clock
}

// OnError registers an observer for surfaced errors.
func (c *QRController) OnError(h ErrorHandler) {
	c.onError = h
}

// State returns the controller state.
func (c *QRController) State() QRState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Monitor exposes the session monitor.
func (c *QRController) Monitor() *PerformanceMonitor {
	return c.monitor
}

// Start runs one session and blocks until it ends. returnTo selects the
// route used on a match.
func (c *QRController) Start(ctx context.Context, returnTo string) (*Outcome, error) {
	c.mu.Lock()
	if c.state != QRIdle {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}
	c.state = QRRequestingCamera
	c.stopRequested = false
	c.mu.Unlock()
	defer c.setIdle()

	cfg := c.policy.Load()
	c.monitor.StartScan()

	stream, err := c.camera.Open(ctx, RearCamera)
	if err != nil {
		return c.fail(ctx, err), nil
	}

	sess := &qrSession{
		stream: stream,
		sched:  NewScheduler(c.clock, cfg.QR.ScanInterval, cfg.QR.Timeout),
		log:    c.log,
	}

	c.mu.Lock()
	if c.stopRequested {
		c.mu.Unlock()
		sess.release()
		return &Outcome{Status: OutcomeStopped, Metrics: c.monitor.Metrics()}, nil
	}
	c.session = sess
	c.state = QRScanning
	c.mu.Unlock()

	var (
		matched  string
		fatal    error
		ended    bool
		warnings []*ScanError
	)
	reason := sess.sched.Run(ctx, func() bool {
		img, ready, err := stream.Frame()
		if errors.Is(err, ErrStreamEnded) {
			ended = true
			return false
		}
		if err != nil {
			fatal = err
			return false
		}
		if !ready {
			return true
		}

		c.monitor.RecordScanAttempt()
		buf, err := c.processor.OptimizeForScanning(img, cfg.QR.ProcessingQuality)
		if err != nil {
			fatal = err
			return false
		}
		text, err := c.decoder.Decode(buf)
		if errors.Is(err, ErrNoCode) {
			return true
		}
		if err != nil {
			fatal = err
			return false
		}

		sn, ok := serial.Normalize(text)
		if !ok {
			w := Details(CodeCameraQRInvalid)
			warnings = append(warnings, w)
			c.emit(w)
			return true
		}
		matched = sn
		return false
	})

	switch {
	case matched != "":
		c.monitor.RecordSuccessfulScan()
		m := c.monitor.Metrics()
		rec := c.recorder.record(ctx, matched, nil, m)
		sess.release()
		out := &Outcome{Status: OutcomeMatched, SerialNumber: matched, Warnings: warnings, Metrics: m, Record: rec}
		redirect, err := c.router.Route(ctx, matched, returnTo)
		if err != nil {
			return out, err
		}
		out.Redirect = redirect
		c.log.Info().Str("serial", matched).Int("attempts", m.Attempts).Msg("QR scan matched")
		return out, nil

	case fatal != nil:
		out := c.fail(ctx, fatal)
		out.Warnings = warnings
		sess.release()
		return out, nil

	default:
		sess.release()
		if ended {
			c.log.Debug().Msg("Camera stream ended")
		}
		return &Outcome{
			Status:   OutcomeStopped,
			Warnings: warnings,
			TimedOut: reason == ReasonTimeout,
			Metrics:  c.monitor.Metrics(),
		}, nil
	}
}

// Stop halts the active session and releases the camera. It is a no-op
// when nothing is running.
func (c *QRController) Stop() {
	c.mu.Lock()
	sess := c.session
	if c.state == QRRequestingCamera {
		c.stopRequested = true
	}
	c.mu.Unlock()

	if sess != nil {
		sess.release()
	}
}

func (c *QRController) fail(ctx context.Context, err error) *Outcome {
	scanErr := Classify(model.ScanTypeQR, err)
	c.monitor.MarkFailed()
	c.emit(scanErr)
	c.log.Warn().Err(err).Str("code", scanErr.Code).Msg("QR scan failed")

	m := c.monitor.Metrics()
	rec := c.recorder.record(ctx, "", scanErr, m)
	return &Outcome{Status: OutcomeFailed, Error: scanErr, Metrics: m, Record: rec}
}

func (c *QRController) emit(e *ScanError) {
	if c.onError != nil {
		c.onError(e)
	}
}

func (c *QRController) setIdle() {
	c.mu.Lock()
	c.state = QRIdle
	c.session = nil
	c.mu.Unlock()
}
