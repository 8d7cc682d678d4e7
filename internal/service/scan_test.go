package service

import (
	"context"
	"image"
	"testing"
	"time"

	qrgen "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propscan-api/internal/device"
	"propscan-api/internal/history"
	"propscan-api/internal/kv"
	"propscan-api/internal/model"
	"propscan-api/internal/scan"
)

func newScanService() *ScanService {
	cfg := scan.DefaultConfig()
	cfg.QR.ScanInterval = time.Millisecond
	cfg.QR.Timeout = 5 * time.Second
	cfg.NFC.Timeout = time.Second
	cfg.NFC.RetryInterval = time.Millisecond

	store := kv.NewMemoryStore()
	return NewScanService(scan.NewPolicy(cfg), history.NewStore(store, history.DefaultMaxRecords), scan.NewRouter(store))
}

func textRecord(text string) scan.NDEFRecord {
	return scan.NDEFRecord{RecordType: "T", Data: append([]byte{0x02, 'e', 'n'}, text...)}
}

func TestScanNFCHandsOffToCreateForm(t *testing.T) {
	svc := newScanService()
	ctx := context.Background()
	caps := device.Capabilities{Platform: device.PlatformAndroid, HasNFC: true}

	out, err := svc.ScanNFC(ctx, scan.TagRead{TagID: "04:a2", Records: []scan.NDEFRecord{textRecord("prop-2024-000007")}}, caps, scan.NewPropertyRoute)
	require.NoError(t, err)

	assert.Equal(t, scan.OutcomeMatched, out.Status)
	assert.Equal(t, "PROP-2024-000007", out.SerialNumber)
	assert.Equal(t, scan.NewPropertyRoute, out.Redirect)

	sn, ok, err := svc.ConsumeHandoff(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "PROP-2024-000007", sn)

	records := svc.History().Records(ctx)
	require.Len(t, records, 1)
	assert.Equal(t, model.ScanTypeNFC, records[0].Type)
	assert.True(t, records[0].Success)
}

func TestScanNFCWithoutCapability(t *testing.T) {
	svc := newScanService()

	out, err := svc.ScanNFC(context.Background(), scan.TagRead{}, device.Capabilities{Platform: device.PlatformIOS}, "")
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeFailed, out.Status)
	assert.Equal(t, scan.CodeNFCNotSupported, out.Error.Code)
}

func TestScanQRFromUploadedFrames(t *testing.T) {
	svc := newScanService()
	code, err := qrgen.New("PROP-2024-000123", qrgen.Medium)
	require.NoError(t, err)

	out, err := svc.ScanQR(context.Background(), []image.Image{code.Image(512)}, device.Capabilities{Platform: device.PlatformIOS}, "/scan")
	require.NoError(t, err)

	assert.Equal(t, scan.OutcomeMatched, out.Status)
	assert.Equal(t, "/property/PROP-2024-000123", out.Redirect)
}

func TestScanQRWithoutFrames(t *testing.T) {
	svc := newScanService()

	out, err := svc.ScanQR(context.Background(), nil, device.Capabilities{}, "")
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeFailed, out.Status)
	assert.Equal(t, scan.CodeCameraNotSupported, out.Error.Code)
	assert.Len(t, svc.History().Records(context.Background()), 1)
}

func TestScanNFCPostedReadErrorFailsWithoutRetry(t *testing.T) {
	svc := newScanService()
	cfg := svc.Policy().Load()
	cfg.NFC.RetryInterval = time.Hour
	require.NoError(t, svc.Policy().Swap(cfg))

	caps := device.Capabilities{Platform: device.PlatformAndroid, HasNFC: true}
	out, err := svc.ScanNFC(context.Background(), scan.TagRead{Err: scan.CauseFromName("NotReadableError")}, caps, "")
	require.NoError(t, err)

	assert.Equal(t, scan.OutcomeFailed, out.Status)
	assert.Equal(t, scan.CodeNFCReadError, out.Error.Code)
	assert.Equal(t, 1, out.Metrics.Attempts)
	assert.Len(t, svc.History().Records(context.Background()), 1)
}

func TestScanNFCDecodesUTF16TextRecord(t *testing.T) {
	svc := newScanService()
	caps := device.Capabilities{Platform: device.PlatformAndroid, HasNFC: true}

	data := []byte{0x82, 'e', 'n'}
	for _, r := range "PROP-2024-000123" {
		data = append(data, 0, byte(r))
	}
	out, err := svc.ScanNFC(context.Background(), scan.TagRead{Records: []scan.NDEFRecord{{RecordType: "T", Data: data}}}, caps, "")
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeMatched, out.Status)
	assert.Equal(t, "/property/PROP-2024-000123", out.Redirect)
}
