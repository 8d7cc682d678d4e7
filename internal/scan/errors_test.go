package scan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"propscan-api/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		mode model.ScanType
		err  error
		want string
	}{
		{"camera permission", model.ScanTypeQR, fmt.Errorf("NotAllowedError: %w", ErrPermissionDenied), CodeCameraPermissionDenied},
		{"nfc permission", model.ScanTypeNFC, ErrPermissionDenied, CodeNFCPermissionDenied},
		{"no camera", model.ScanTypeQR, ErrNotFound, CodeCameraNotSupported},
		{"no nfc", model.ScanTypeNFC, ErrNotSupported, CodeNFCNotSupported},
		{"camera busy", model.ScanTypeQR, ErrNotReadable, CodeCameraInUse},
		{"nfc read", model.ScanTypeNFC, ErrNotReadable, CodeNFCReadError},
		{"nfc timeout", model.ScanTypeNFC, context.DeadlineExceeded, CodeNFCTimeout},
		{"qr timeout", model.ScanTypeQR, ErrTimeout, CodeUnknownError},
		{"network", model.ScanTypeQR, ErrNetwork, CodeNetworkError},
		{"unmapped", model.ScanTypeNFC, errors.New("boom"), CodeUnknownError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.mode, tt.err)
			assert.Equal(t, tt.want, got.Code)
			assert.NotEmpty(t, got.Message)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyKeepsScanError(t *testing.T) {
	orig := Details(CodeNFCTagFormatError)
	assert.Same(t, orig, Classify(model.ScanTypeQR, fmt.Errorf("wrap: %w", orig)))
	assert.Nil(t, Classify(model.ScanTypeQR, nil))
}

func TestDetails(t *testing.T) {
	e := Details(CodeCameraInUse)
	assert.Equal(t, CodeCameraInUse, e.Code)
	assert.NotEmpty(t, e.Suggestion)
	assert.True(t, e.Fatal())
	assert.False(t, Details(CodeCameraQRInvalid).Fatal())

	assert.Equal(t, CodeUnknownError, Details("NOPE").Code)
	assert.NotSame(t, Details(CodeUnknownError), Details(CodeUnknownError))
}
