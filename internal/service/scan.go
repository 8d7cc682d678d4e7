package service

import (
	"context"
	"errors"
	"image"

	"github.com/rs/zerolog"

	"propscan-api/internal/device"
	"propscan-api/internal/history"
	"propscan-api/internal/logger"
	"propscan-api/internal/model"
	"propscan-api/internal/scan"
	"propscan-api/pkg/apierror"
)

// ScanService builds one scan controller per request from the shared
// policy, history log and hand-off router.
type ScanService struct {
	policy     *scan.Policy
	history    *history.Store
	router     *scan.Router
	newDecoder func() scan.Decoder
	clock      scan.Clock
	log        zerolog.Logger
}

// NewScanService creates a scan service decoding with ZXing.
func NewScanService(policy *scan.Policy, hist *history.Store, router *scan.Router) *ScanService {
	return &ScanService{
		policy:     policy,
		history:    hist,
		router:     router,
		newDecoder: func() scan.Decoder { return scan.NewZXingDecoder() },
		clock:      scan.SystemClock(),
		log:        logger.WithComponent("ScanService"),
	}
}

// Policy returns the live scan policy.
func (s *ScanService) Policy() *scan.Policy {
	return s.policy
}

// History returns the scan history log.
func (s *ScanService) History() *history.Store {
	return s.history
}

// ConsumeHandoff returns and clears the serial number left for the create form.
func (s *ScanService) ConsumeHandoff(ctx context.Context) (string, bool, error) {
	return s.router.ConsumeHandoff(ctx)
}

// ScanQR runs a QR session over uploaded frames.
func (s *ScanService) ScanQR(ctx context.Context, frames []image.Image, caps device.Capabilities, returnTo string) (*scan.Outcome, error) {
	ctrl := scan.NewQRController(
		scan.NewFrameCamera(frames),
		s.newDecoder(),
		s.history,
		s.router,
		s.policy,
		model.DeviceInfo{Platform: string(caps.Platform), Model: caps.Model},
	)
	ctrl.SetClock(s.clock)

	out, err := ctrl.Start(ctx, returnTo)
	return out, s.routeError(err)
}

// ScanNFC resolves a tag read posted by the client. The read is served
// through the reader registered for the probed platform.
func (s *ScanService) ScanNFC(ctx context.Context, read scan.TagRead, caps device.Capabilities, returnTo string) (*scan.Outcome, error) {
	readers := scan.Readers{caps.Platform: scan.NewPayloadReader(read)}
	ctrl := scan.NewNFCController(readers, caps, s.history, s.router, s.policy)
	ctrl.SetClock(s.clock)

	out, err := ctrl.Start(ctx, returnTo)
	return out, s.routeError(err)
}

func (s *ScanService) routeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, scan.ErrSessionActive) {
		return apierror.Conflict("A scan session is already active")
	}
	s.log.Error().Err(err).Msg("Failed to store scan hand-off")
	return apierror.Unknown("")
}
