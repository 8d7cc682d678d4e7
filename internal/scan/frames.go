package scan

import (
	"context"
	"image"
	"sync"
)

// FrameCamera serves a fixed sequence of frames, one per tick. It backs
// sessions built from frames uploaded by a client.
type FrameCamera struct {
	frames []image.Image
}

// NewFrameCamera returns a camera over frames. With no frames Open fails
// with ErrNotFound, as a device without video inputs would.
func NewFrameCamera(frames []image.Image) *FrameCamera {
	return &FrameCamera{frames: frames}
}

func (c *FrameCamera) Open(ctx context.Context, _ Constraints) (Stream, error) {
	if len(c.frames) == 0 {
		return nil, ErrNotFound
	}
	return &frameStream{frames: c.frames}, nil
}

type frameStream struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	closed bool
}

func (s *frameStream) Frame() (image.Image, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.next >= len(s.frames) {
		return nil, false, ErrStreamEnded
	}
	img := s.frames[s.next]
	s.next++
	return img, true, nil
}

func (s *frameStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
