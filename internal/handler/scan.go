package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"propscan-api/internal/device"
	"propscan-api/internal/middleware"
	"propscan-api/internal/scan"
	"propscan-api/internal/service"
	"propscan-api/pkg/apierror"
	"propscan-api/pkg/response"
)

const (
	// MaxFrames caps the frames accepted by one QR scan request.
	MaxFrames = 60
	// MaxFrameDimension caps the declared width and height of a frame.
	MaxFrameDimension = 4096
	// DeviceIDHeader identifies the calling device when it has no session token.
	DeviceIDHeader = "X-Device-ID"
)

// ScanHandler runs scan sessions and serves the scan history log.
type ScanHandler struct {
	scans          *service.ScanService
	maxUploadBytes int64
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(scans *service.ScanService, maxUploadBytes int64) *ScanHandler {
	return &ScanHandler{scans: scans, maxUploadBytes: maxUploadBytes}
}

// ScanQR handles POST /api/v1/scan/qr
//
// The body is multipart/form-data with one or more "frames" image parts,
// scanned in order. PNG, JPEG, GIF and WebP are accepted.
func (h *ScanHandler) ScanQR(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		response.Error(w, apierror.BadRequest("Failed to parse multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["frames"]
	if len(files) > MaxFrames {
		response.Error(w, apierror.BadRequest(fmt.Sprintf("At most %d frames per request", MaxFrames)))
		return
	}

	frames := make([]image.Image, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			response.Error(w, apierror.BadRequest("Failed to read frame"))
			return
		}
		img, err := decodeFrame(f)
		f.Close()
		if err != nil {
			response.Error(w, apierror.ValidationError("Unsupported frame",
				apierror.FieldError{Field: fmt.Sprintf("frames[%d]", i), Message: err.Error()}))
			return
		}
		frames = append(frames, img)
	}

	out, err := h.scans.ScanQR(clientContext(r), frames, device.ProbeRequest(r), r.URL.Query().Get("returnTo"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, out)
}

// decodeFrame reads the image header first so oversized frames are
// rejected before their pixels are allocated.
func decodeFrame(f multipart.File) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, errors.New("not a decodable image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxFrameDimension || cfg.Height > MaxFrameDimension {
		return nil, fmt.Errorf("frame is %dx%d, at most %dx%d allowed", cfg.Width, cfg.Height, MaxFrameDimension, MaxFrameDimension)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.New("frame is not readable")
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.New("not a decodable image")
	}
	return img, nil
}

// clientContext scopes the scan hand-off slot to the calling device: the
// session token's device, then the X-Device-ID header, then the remote host.
func clientContext(r *http.Request) context.Context {
	client := ""
	if data := middleware.GetTokenDataFromContext(r.Context()); data != nil {
		client = data.DeviceID
	}
	if client == "" {
		client = strings.TrimSpace(r.Header.Get(DeviceIDHeader))
	}
	if client == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			client = host
		} else {
			client = r.RemoteAddr
		}
	}
	return scan.WithClient(r.Context(), client)
}

// NFCRecordRequest is one NDEF record as posted by a client. Text may be
// sent instead of raw data for already decoded text records.
type NFCRecordRequest struct {
	RecordType string `json:"recordType"`
	MediaType  string `json:"mediaType,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Lang       string `json:"lang,omitempty"`
	Data       []byte `json:"data,omitempty"`
	Text       string `json:"text,omitempty"`
}

// NFCScanRequest is a tag read captured on the client.
type NFCScanRequest struct {
	SerialNumber string             `json:"serialNumber"`
	Records      []NFCRecordRequest `json:"records"`
	// Error is the name of the reader error, e.g. "NotReadableError".
	Error string `json:"error,omitempty"`
}

// ScanNFC handles POST /api/v1/scan/nfc
func (h *ScanHandler) ScanNFC(w http.ResponseWriter, r *http.Request) {
	var req NFCScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	read := scan.TagRead{TagID: req.SerialNumber, Err: scan.CauseFromName(req.Error)}
	for _, rec := range req.Records {
		data := rec.Data
		if len(data) == 0 && rec.Text != "" {
			data = []byte(rec.Text)
		}
		read.Records = append(read.Records, scan.NDEFRecord{
			RecordType: rec.RecordType,
			MediaType:  rec.MediaType,
			Encoding:   rec.Encoding,
			Lang:       rec.Lang,
			Data:       data,
		})
	}

	out, err := h.scans.ScanNFC(clientContext(r), read, device.ProbeRequest(r), r.URL.Query().Get("returnTo"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, out)
}

// History handles GET /api/v1/scan/history
func (h *ScanHandler) History(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.scans.History().Records(r.Context()))
}

// Statistics handles GET /api/v1/scan/statistics
func (h *ScanHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.scans.History().Statistics(r.Context()))
}

// Trends handles GET /api/v1/scan/trends
func (h *ScanHandler) Trends(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.scans.History().Trends(r.Context(), time.Now()))
}

// Export handles GET /api/v1/scan/export
func (h *ScanHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.scans.History().Export(r.Context())
	if err != nil {
		response.Error(w, apierror.Unknown("failed to export history"))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="scan-history.json"`)
	response.Blob(w, "application/json", []byte(data))
}

// ClearHistory handles DELETE /api/v1/scan/history
func (h *ScanHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.scans.History().Clear(r.Context()); err != nil {
		response.Error(w, apierror.Unknown("failed to clear history"))
		return
	}
	response.NoContent(w)
}

// Handoff handles GET /api/v1/handoff
//
// It returns and clears the serial number a scan left for the create form.
func (h *ScanHandler) Handoff(w http.ResponseWriter, r *http.Request) {
	sn, found, err := h.scans.ConsumeHandoff(clientContext(r))
	if err != nil {
		response.Error(w, apierror.Unknown("failed to read hand-off"))
		return
	}
	response.OK(w, map[string]interface{}{
		"found":        found,
		"serialNumber": sn,
	})
}

// Capabilities handles GET /api/v1/device/capabilities
func Capabilities(w http.ResponseWriter, r *http.Request) {
	response.OK(w, device.ProbeRequest(r))
}
