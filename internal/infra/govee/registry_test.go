package govee_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govee-bridge/internal/domain"
	"govee-bridge/internal/infra/govee"
)

type fakeLister struct {
	devices []domain.Device
	err     error
	calls   int
}

func (f *fakeLister) ListDevices(_ context.Context, _ string) ([]domain.Device, error) {
	f.calls++
	return f.devices, f.err
}

func TestRegistry_SyncAndFind(t *testing.T) {
	lister := &fakeLister{devices: []domain.Device{
		{Name: "Bedroom Fan", Model: domain.ModelTowerFan, Address: "18:43:D4:AD:FC:BB:44:DA"},
		{Name: "Living Purifier", Model: domain.ModelAirPurifier, Address: "11:22:33"},
		{Name: "Strip Light", Model: domain.Model("H6159"), Address: "44:55:66"},
	}}
	registry := govee.NewRegistry(lister, "key", slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, registry.Sync(context.Background()))

	d, ok := registry.FindDevice("bedroom fan")
	require.True(t, ok)
	assert.Equal(t, "18:43:D4:AD:FC:BB:44:DA", d.Address)

	d, ok = registry.FindDevice("11:22:33")
	require.True(t, ok)
	assert.Equal(t, domain.ModelAirPurifier, d.Model)

	d, ok = registry.FindDevice("purifier")
	require.True(t, ok)
	assert.Equal(t, "Living Purifier", d.Name)

	_, ok = registry.FindDevice("garage")
	assert.False(t, ok)

	assert.Len(t, registry.GetDevices(), 3)
	assert.Len(t, registry.Supported(), 2)
	assert.Contains(t, registry.Summary(), "unsupported")
}

func TestRegistry_SyncErrorKeepsPreviousListing(t *testing.T) {
	lister := &fakeLister{devices: []domain.Device{{Name: "Fan", Model: domain.ModelTowerFan, Address: "AA"}}}
	registry := govee.NewRegistry(lister, "key", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, registry.Sync(context.Background()))

	lister.err = &domain.AuthenticationError{StatusCode: 400}
	err := registry.Sync(context.Background())

	var authErr *domain.AuthenticationError
	assert.True(t, errors.As(err, &authErr))
	assert.Len(t, registry.GetDevices(), 1)
}
