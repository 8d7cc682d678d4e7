package scan

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"propscan-api/internal/kv"
)

const (
	// NewPropertyRoute is the record creation form.
	NewPropertyRoute = "/property/new"
	// HandoffKey is the slot holding a scanned serial for the creation form.
	// Each client gets its own slot, suffixed with ":" and the client id.
	HandoffKey = "scannedSerialCode"
)

type clientKey struct{}

// WithClient tags ctx with the id of the client a scan runs for.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// HandoffSlot returns the hand-off key of the client in ctx. Without a
// client the shared slot is used.
func HandoffSlot(ctx context.Context) string {
	if client, _ := ctx.Value(clientKey{}).(string); client != "" {
		return HandoffKey + ":" + client
	}
	return HandoffKey
}

// DetailRoute is the record view for a serial number.
func DetailRoute(serialNumber string) string {
	return "/property/" + url.PathEscape(serialNumber)
}

// Router decides where a client goes after a successful scan.
type Router struct {
	store kv.Store
}

// NewRouter creates a router that uses store for the hand-off slot.
func NewRouter(store kv.Store) *Router {
	return &Router{store: store}
}

// Route stores the serial in the hand-off slot when returnTo is the
// creation form, otherwise it resolves the detail view.
func (r *Router) Route(ctx context.Context, serialNumber, returnTo string) (string, error) {
	if returnTo != NewPropertyRoute {
		return DetailRoute(serialNumber), nil
	}
	if err := r.store.Set(ctx, HandoffSlot(ctx), serialNumber); err != nil {
		return "", fmt.Errorf("store handoff: %w", err)
	}
	return NewPropertyRoute, nil
}

// ConsumeHandoff returns and clears the pending scanned serial of the
// client in ctx.
func (r *Router) ConsumeHandoff(ctx context.Context) (string, bool, error) {
	slot := HandoffSlot(ctx)
	v, err := r.store.Get(ctx, slot)
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read handoff: %w", err)
	}
	if err := r.store.Remove(ctx, slot); err != nil {
		return "", false, fmt.Errorf("clear handoff: %w", err)
	}
	return v, v != "", nil
}
