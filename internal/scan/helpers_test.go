package scan

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"propscan-api/internal/history"
	"propscan-api/internal/kv"
)

// fakeClock has a settable Now; tickers and timers are real.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Ticker(d time.Duration) Ticker { return realClock{}.Ticker(d) }

func (c *fakeClock) After(d time.Duration) <-chan time.Time { return realClock{}.After(d) }

type fakeStream struct {
	frames []image.Image
	ready  bool
	err    error
	next   atomic.Int32
	closes atomic.Int32
}

func (s *fakeStream) Frame() (image.Image, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	if !s.ready {
		return nil, false, nil
	}
	i := int(s.next.Add(1)) - 1
	if i >= len(s.frames) {
		return nil, false, ErrStreamEnded
	}
	return s.frames[i], true, nil
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

type fakeCamera struct {
	stream *fakeStream
	err    error
	opened atomic.Int32
	gotC   Constraints
}

func (c *fakeCamera) Open(ctx context.Context, cons Constraints) (Stream, error) {
	c.opened.Add(1)
	c.gotC = cons
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

// scriptDecoder returns results in order, then ErrNoCode.
type scriptDecoder struct {
	mu      sync.Mutex
	results []string
	err     error
}

func (d *scriptDecoder) Decode(buf *PixelBuffer) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	if len(d.results) == 0 {
		return "", ErrNoCode
	}
	r := d.results[0]
	d.results = d.results[1:]
	return r, nil
}

func blankFrames(n int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = image.NewRGBA(image.Rect(0, 0, 64, 48))
	}
	return frames
}

func testPolicy() *Policy {
	cfg := DefaultConfig()
	cfg.QR.ScanInterval = time.Millisecond
	cfg.QR.Timeout = 5 * time.Second
	cfg.NFC.Timeout = time.Second
	cfg.NFC.RetryInterval = time.Millisecond
	return NewPolicy(cfg)
}

func newHistory() (*history.Store, kv.Store) {
	store := kv.NewMemoryStore()
	return history.NewStore(store, history.DefaultMaxRecords), store
}
