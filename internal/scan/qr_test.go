package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propscan-api/internal/kv"
	"propscan-api/internal/model"
)

var iphone = model.DeviceInfo{Platform: "iOS", Model: "iPhone 15"}

func TestQRScanMatchesAndRoutesToDetail(t *testing.T) {
	hist, _ := newHistory()
	stream := &fakeStream{ready: true, frames: blankFrames(5)}
	camera := &fakeCamera{stream: stream}
	decoder := &scriptDecoder{results: []string{"prop-2024-000123"}}
	c := NewQRController(camera, decoder, hist, NewRouter(kv.NewMemoryStore()), testPolicy(), iphone)

	out, err := c.Start(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeMatched, out.Status)
	assert.Equal(t, "PROP-2024-000123", out.SerialNumber)
	assert.Equal(t, "/property/PROP-2024-000123", out.Redirect)
	assert.Equal(t, RearCamera, camera.gotC)
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Equal(t, QRIdle, c.State())

	records := hist.Records(context.Background())
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, model.ScanTypeQR, records[0].Type)
	assert.Equal(t, "PROP-2024-000123", records[0].SerialNumber)
	assert.Equal(t, iphone, records[0].DeviceInfo)
	assert.Equal(t, records[0].ID, out.Record.ID)
}

func TestQRScanDecodesRealCode(t *testing.T) {
	hist, store := newHistory()
	stream := &fakeStream{ready: true, frames: []image.Image{qrFrame(t, "PROP-2024-000042")}}
	c := NewQRController(&fakeCamera{stream: stream}, NewZXingDecoder(), hist, NewRouter(store), testPolicy(), iphone)

	out, err := c.Start(context.Background(), NewPropertyRoute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, out.Status)
	assert.Equal(t, NewPropertyRoute, out.Redirect)

	v, err := store.Get(context.Background(), HandoffKey)
	require.NoError(t, err)
	assert.Equal(t, "PROP-2024-000042", v)
}

func TestQRScanPermissionDenied(t *testing.T) {
	hist, store := newHistory()
	camera := &fakeCamera{err: fmt.Errorf("NotAllowedError: %w", ErrPermissionDenied)}
	c := NewQRController(camera, &scriptDecoder{}, hist, NewRouter(store), testPolicy(), iphone)

	var surfaced []*ScanError
	c.OnError(func(e *ScanError) { surfaced = append(surfaced, e) })

	out, err := c.Start(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Equal(t, CodeCameraPermissionDenied, out.Error.Code)
	require.Len(t, surfaced, 1)
	assert.Equal(t, CodeCameraPermissionDenied, surfaced[0].Code)
	assert.Equal(t, QRIdle, c.State())
	assert.Equal(t, 0, out.Metrics.Attempts)

	records := hist.Records(context.Background())
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Empty(t, records[0].SerialNumber)
	assert.NotEmpty(t, records[0].Error)
}

func TestQRScanInvalidPayloadKeepsScanning(t *testing.T) {
	hist, store := newHistory()
	stream := &fakeStream{ready: true, frames: blankFrames(3)}
	decoder := &scriptDecoder{results: []string{"https://example.com", "PROP-2024-000007"}}
	c := NewQRController(&fakeCamera{stream: stream}, decoder, hist, NewRouter(store), testPolicy(), iphone)

	var surfaced []string
	c.OnError(func(e *ScanError) { surfaced = append(surfaced, e.Code) })

	out, err := c.Start(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeMatched, out.Status)
	assert.Equal(t, []string{CodeCameraQRInvalid}, surfaced)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, 2, out.Metrics.Attempts)
	assert.Len(t, hist.Records(context.Background()), 1)
}

func TestQRScanDecoderFailureIsTerminal(t *testing.T) {
	hist, store := newHistory()
	stream := &fakeStream{ready: true, frames: blankFrames(3)}
	decoder := &scriptDecoder{err: errors.New("decoder crashed")}
	c := NewQRController(&fakeCamera{stream: stream}, decoder, hist, NewRouter(store), testPolicy(), iphone)

	out, err := c.Start(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Equal(t, CodeUnknownError, out.Error.Code)
	assert.Equal(t, int32(1), stream.closes.Load())
	records := hist.Records(context.Background())
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestQRScanStreamEndedIsStop(t *testing.T) {
	hist, store := newHistory()
	stream := &fakeStream{ready: true, frames: blankFrames(2)}
	c := NewQRController(&fakeCamera{stream: stream}, &scriptDecoder{}, hist, NewRouter(store), testPolicy(), iphone)

	out, err := c.Start(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeStopped, out.Status)
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Empty(t, hist.Records(context.Background()))
}

func TestQRScanStopTwiceReleasesOnce(t *testing.T) {
	hist, store := newHistory()
	stream := &fakeStream{}
	c := NewQRController(&fakeCamera{stream: stream}, &scriptDecoder{}, hist, NewRouter(store), testPolicy(), iphone)

	c.Stop()

	done := make(chan *Outcome, 1)
	go func() {
		out, err := c.Start(context.Background(), "")
		assert.NoError(t, err)
		done <- out
	}()

	require.Eventually(t, func() bool { return c.State() == QRScanning }, time.Second, time.Millisecond)

	_, err := c.Start(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionActive)

	c.Stop()
	c.Stop()

	out := <-done
	assert.Equal(t, OutcomeStopped, out.Status)
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Equal(t, QRIdle, c.State())

	c.Stop()
	assert.Equal(t, int32(1), stream.closes.Load())
}

func TestQRScanTimeout(t *testing.T) {
	hist, store := newHistory()
	stream := &fakeStream{}
	policy := testPolicy()
	cfg := policy.Load()
	cfg.QR.Timeout = 20 * time.Millisecond
	require.NoError(t, policy.Swap(cfg))

	c := NewQRController(&fakeCamera{stream: stream}, &scriptDecoder{}, hist, NewRouter(store), policy, iphone)

	out, err := c.Start(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeStopped, out.Status)
	assert.True(t, out.TimedOut)
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Empty(t, hist.Records(context.Background()))
}
