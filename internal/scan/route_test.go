package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propscan-api/internal/kv"
)

func TestRouteToDetail(t *testing.T) {
	store := kv.NewMemoryStore()
	r := NewRouter(store)

	got, err := r.Route(context.Background(), "PROP-2024-000123", "")
	require.NoError(t, err)
	assert.Equal(t, "/property/PROP-2024-000123", got)

	_, err = store.Get(context.Background(), HandoffKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRouteHandoff(t *testing.T) {
	ctx := context.Background()
	r := NewRouter(kv.NewMemoryStore())

	got, err := r.Route(ctx, "PROP-2024-000123", NewPropertyRoute)
	require.NoError(t, err)
	assert.Equal(t, NewPropertyRoute, got)

	sn, ok, err := r.ConsumeHandoff(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "PROP-2024-000123", sn)

	_, ok, err = r.ConsumeHandoff(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandoffSlotPerClient(t *testing.T) {
	store := kv.NewMemoryStore()
	r := NewRouter(store)
	phoneA := WithClient(context.Background(), "phone-a")
	phoneB := WithClient(context.Background(), "phone-b")

	_, err := r.Route(phoneA, "PROP-2024-000200", NewPropertyRoute)
	require.NoError(t, err)

	v, err := store.Get(context.Background(), HandoffKey+":phone-a")
	require.NoError(t, err)
	assert.Equal(t, "PROP-2024-000200", v)

	_, ok, err := r.ConsumeHandoff(phoneB)
	require.NoError(t, err)
	assert.False(t, ok)

	sn, ok, err := r.ConsumeHandoff(phoneA)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "PROP-2024-000200", sn)

	assert.Equal(t, HandoffKey, HandoffSlot(context.Background()))
}
