package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"govee-bridge/internal/capability"
	"govee-bridge/internal/domain"
)

// DeviceClient drives one physical device. Reads always go to the vendor;
// the held snapshot only changes on a successful refresh.
type DeviceClient struct {
	identity domain.Identity
	api      GoveeAPI
	logger   *slog.Logger

	mu   sync.RWMutex
	last domain.Snapshot
}

func NewDeviceClient(identity domain.Identity, api GoveeAPI, logger *slog.Logger) (*DeviceClient, error) {
	if !identity.Model.Supported() {
		return nil, fmt.Errorf("creating device client: %w", &domain.UnsupportedCapabilityError{Model: identity.Model, Instance: "device"})
	}
	return &DeviceClient{
		identity: identity,
		api:      api,
		logger:   logger.With("sku", string(identity.Model), "device", identity.Address),
	}, nil
}

func (d *DeviceClient) Identity() domain.Identity {
	return d.identity
}

// Last returns the most recent snapshot, nil before the first refresh.
func (d *DeviceClient) Last() domain.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

func (d *DeviceClient) Refresh(ctx context.Context) (domain.Snapshot, error) {
	resp, err := d.api.GetState(ctx, d.identity)
	if err != nil {
		return nil, fmt.Errorf("refreshing state: %w", err)
	}

	snap := capability.Decode(d.identity.Model, resp.Payload.Capabilities)

	d.mu.Lock()
	d.last = snap
	d.mu.Unlock()

	return snap, nil
}

// Apply sends one command and returns the post-command state. When the
// vendor does not acknowledge it, the previous snapshot is returned with the
// error and nothing is refreshed. An acknowledged command whose refresh
// fails returns the previous snapshot with ErrRefreshAfterAck.
func (d *DeviceClient) Apply(ctx context.Context, cmd domain.Command) (domain.Snapshot, error) {
	previous := d.Last()

	wire, err := capability.Encode(d.identity.Model, cmd)
	if err != nil {
		return previous, err
	}

	switch wire.Route {
	case capability.RouteLegacy:
		resp, err := d.api.ControlLegacy(ctx, d.identity, wire.Legacy)
		if err != nil {
			return previous, fmt.Errorf("sending %s: %w", cmd.Instance, err)
		}
		if err := capability.VerifyLegacy(wire.Legacy, resp); err != nil {
			d.logger.Warn("command rejected", "instance", cmd.Instance, "value", cmd.Value, "error", err)
			return previous, err
		}
	default:
		resp, err := d.api.ControlRouter(ctx, d.identity, wire.Router)
		if err != nil {
			return previous, fmt.Errorf("sending %s: %w", cmd.Instance, err)
		}
		if err := capability.VerifyRouter(wire.Router, resp); err != nil {
			d.logger.Warn("command rejected", "instance", cmd.Instance, "value", cmd.Value, "error", err)
			return previous, err
		}
	}

	d.logger.Info("command acknowledged", "instance", cmd.Instance, "value", cmd.Value, "route", wire.Route.String())

	snap, err := d.Refresh(ctx)
	if err != nil {
		return previous, fmt.Errorf("%w: %w", domain.ErrRefreshAfterAck, err)
	}
	return snap, nil
}

// Do plans an intent and applies its commands in order, stopping at the first
// failure.
func (d *DeviceClient) Do(ctx context.Context, intent domain.Intent) (domain.Snapshot, error) {
	cmds, err := capability.Plan(d.identity.Model, intent)
	if err != nil {
		return d.Last(), err
	}

	var snap domain.Snapshot
	for _, cmd := range cmds {
		snap, err = d.Apply(ctx, cmd)
		if err != nil {
			return snap, err
		}
	}
	return snap, nil
}
