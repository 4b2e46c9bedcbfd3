package application

import (
	"context"
	"fmt"
	"log/slog"

	"govee-bridge/internal/domain"
)

// ResolveDevices fills in whatever a configured device is missing (name,
// model or address) from the vendor listing. Entries without an address are
// looked up by name, all others by address. The registry is synced at most
// once, and only when something needs resolving.
func ResolveDevices(ctx context.Context, configured []domain.Device, registry DeviceRegistry, logger *slog.Logger) ([]domain.Device, error) {
	resolved := make([]domain.Device, 0, len(configured))
	synced := false

	for _, d := range configured {
		if d.Name != "" && d.Address != "" && d.Model != "" {
			resolved = append(resolved, d)
			continue
		}

		if !synced {
			if err := registry.Sync(ctx); err != nil {
				return nil, fmt.Errorf("resolving devices: %w", err)
			}
			synced = true
		}

		lookup := d.Address
		if lookup == "" {
			lookup = d.Name
		}
		listed, ok := registry.FindDevice(lookup)
		if !ok {
			return nil, fmt.Errorf("resolving device %q: not found in device listing", lookup)
		}
		if listed.Name == "" && d.Name == "" {
			return nil, fmt.Errorf("resolving device %q: listing has no name, set one in the config", lookup)
		}

		if d.Name == "" {
			d.Name = listed.Name
		}
		if d.Address == "" {
			d.Address = listed.Address
		}
		if d.Model == "" {
			d.Model = listed.Model
		}

		logger.Info("device resolved", "name", d.Name, "sku", string(d.Model), "device", d.Address)
		resolved = append(resolved, d)
	}

	return resolved, nil
}
