package scan

import (
	"context"
	"errors"

	"propscan-api/internal/model"
)

// Low-level causes reported by cameras, tag readers and decoders. Device
// adapters wrap these so Classify can map them.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("device not found")
	ErrNotReadable      = errors.New("device not readable")
	ErrTimeout          = errors.New("timed out")
	ErrNotSupported     = errors.New("not supported")
	ErrNetwork          = errors.New("network failure")
)

// ErrSessionActive is returned by Start while a session is running.
var ErrSessionActive = errors.New("scan: session already active")

// Classified error codes.
const (
	CodeNFCNotSupported        = "NFC_NOT_SUPPORTED"
	CodeNFCPermissionDenied    = "NFC_PERMISSION_DENIED"
	CodeNFCReadError           = "NFC_READ_ERROR"
	CodeNFCTagFormatError      = "NFC_TAG_FORMAT_ERROR"
	CodeNFCTimeout             = "NFC_TIMEOUT"
	CodeCameraNotSupported     = "CAMERA_NOT_SUPPORTED"
	CodeCameraPermissionDenied = "CAMERA_PERMISSION_DENIED"
	CodeCameraInUse            = "CAMERA_IN_USE"
	CodeCameraQRInvalid        = "CAMERA_QR_INVALID"
	CodeNetworkError           = "NETWORK_ERROR"
	CodeInvalidSerialNumber    = "INVALID_SERIAL_NUMBER"
	CodeUnknownError           = "UNKNOWN_ERROR"
)

// ScanError is a classified, user-facing scan error.
type ScanError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Err        error  `json:"-"`
}

func (e *ScanError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error ends a scan session.
func (e *ScanError) Fatal() bool {
	return e.Code != CodeCameraQRInvalid && e.Code != CodeInvalidSerialNumber
}

var details = map[string]ScanError{
	CodeNFCNotSupported:        {Message: "This device does not support NFC", Suggestion: "Try scanning the QR code instead"},
	CodeNFCPermissionDenied:    {Message: "NFC permission was not granted", Suggestion: "Allow NFC access in the system settings"},
	CodeNFCReadError:           {Message: "Failed to read the NFC tag", Suggestion: "Make sure the tag is intact and try again"},
	CodeNFCTagFormatError:      {Message: "The NFC tag format is invalid", Suggestion: "Make sure you are using a property tag"},
	CodeNFCTimeout:             {Message: "NFC scan timed out", Suggestion: "Try scanning again"},
	CodeCameraNotSupported:     {Message: "This device has no usable camera", Suggestion: "Try scanning the NFC tag instead"},
	CodeCameraPermissionDenied: {Message: "Camera permission was not granted", Suggestion: "Allow camera access in the system settings"},
	CodeCameraInUse:            {Message: "The camera is being used by another application", Suggestion: "Close other camera applications and retry"},
	CodeCameraQRInvalid:        {Message: "The QR code format is invalid", Suggestion: "Make sure you are scanning a property QR code"},
	CodeNetworkError:           {Message: "Network connection error", Suggestion: "Check the network connection and retry"},
	CodeInvalidSerialNumber:    {Message: "Invalid serial number format", Suggestion: "Make sure you are scanning a property label"},
	CodeUnknownError:           {Message: "Unknown error", Suggestion: "Retry, and contact support if the problem persists"},
}

// Details returns a fresh ScanError for code. Unknown codes map to UNKNOWN_ERROR.
func Details(code string) *ScanError {
	d, ok := details[code]
	if !ok {
		code = CodeUnknownError
		d = details[code]
	}
	return &ScanError{Code: code, Message: d.Message, Suggestion: d.Suggestion}
}

// Classify maps err to the closed taxonomy for the given scan mode.
func Classify(mode model.ScanType, err error) *ScanError {
	if err == nil {
		return nil
	}

	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}

	nfc := mode == model.ScanTypeNFC
	pick := func(nfcCode, qrCode string) string {
		if nfc {
			return nfcCode
		}
		return qrCode
	}

	var code string
	switch {
	case errors.Is(err, ErrPermissionDenied):
		code = pick(CodeNFCPermissionDenied, CodeCameraPermissionDenied)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotSupported):
		code = pick(CodeNFCNotSupported, CodeCameraNotSupported)
	case errors.Is(err, ErrNotReadable):
		code = pick(CodeNFCReadError, CodeCameraInUse)
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code = pick(CodeNFCTimeout, CodeUnknownError)
	case errors.Is(err, ErrNetwork):
		code = CodeNetworkError
	default:
		code = CodeUnknownError
	}

	e := Details(code)
	e.Err = err
	return e
}
