package scan

import (
	"context"
	"errors"
	"sync/atomic"
)

// PayloadReader replays a tag read that a client already captured, e.g.
// through Web NFC or a native bridge, and posted to the API.
type PayloadReader struct {
	read     TagRead
	consumed atomic.Bool
}

// NewPayloadReader returns a reader that delivers read to the first
// subscription only. Later subscriptions end without a read.
func NewPayloadReader(read TagRead) *PayloadReader {
	return &PayloadReader{read: read}
}

func (r *PayloadReader) Scan(ctx context.Context) (<-chan TagRead, error) {
	ch := make(chan TagRead, 1)
	if !r.consumed.Swap(true) {
		ch <- r.read
	}
	close(ch)
	return ch, nil
}

// SingleShot reports that a failed read cannot be retried; the client
// has to capture a new one.
func (r *PayloadReader) SingleShot() bool {
	return true
}

var causesByName = map[string]error{
	"NotAllowedError":   ErrPermissionDenied,
	"SecurityError":     ErrPermissionDenied,
	"NotFoundError":     ErrNotFound,
	"NotReadableError":  ErrNotReadable,
	"TimeoutError":      ErrTimeout,
	"NotSupportedError": ErrNotSupported,
	"NetworkError":      ErrNetwork,
}

// CauseFromName maps a browser error name reported by a client, such as
// "NotAllowedError", onto a cause Classify understands. Unknown names map
// to a plain error carrying the name.
func CauseFromName(name string) error {
	if name == "" {
		return nil
	}
	if cause, ok := causesByName[name]; ok {
		return cause
	}
	return errors.New(name)
}
