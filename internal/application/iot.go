package application

import (
	"context"

	"govee-bridge/internal/capability"
	"govee-bridge/internal/domain"
)

// GoveeAPI is the vendor transport used by DeviceClient.
type GoveeAPI interface {
	GetState(ctx context.Context, id domain.Identity) (*capability.StateResponse, error)
	ControlRouter(ctx context.Context, id domain.Identity, requested capability.RouterCapability) (*capability.ControlResponse, error)
	ControlLegacy(ctx context.Context, id domain.Identity, cmd capability.LegacyCommand) (*capability.LegacyResponse, error)
}

type DeviceRegistry interface {
	Sync(ctx context.Context) error
	GetDevices() []domain.Device
	FindDevice(nameOrAddress string) (domain.Device, bool)
}

// StatePublisher pushes device states to a host (Home Assistant, MQTT,
// metrics).
type StatePublisher interface {
	Name() string
	Publish(ctx context.Context, state domain.DeviceState) error
}
