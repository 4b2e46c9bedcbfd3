package govee

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"govee-bridge/internal/domain"
)

type DeviceLister interface {
	ListDevices(ctx context.Context, apiKey string) ([]domain.Device, error)
}

// Registry caches the device listing of one API key so configured devices
// can be resolved by name.
type Registry struct {
	lister DeviceLister
	apiKey string
	logger *slog.Logger

	mu          sync.RWMutex
	devices     []domain.Device
	deviceIndex map[string]int
}

func NewRegistry(lister DeviceLister, apiKey string, logger *slog.Logger) *Registry {
	return &Registry{
		lister:      lister,
		apiKey:      apiKey,
		logger:      logger,
		deviceIndex: make(map[string]int),
	}
}

func (r *Registry) Sync(ctx context.Context) error {
	r.logger.Info("syncing devices from Govee")

	devices, err := r.lister.ListDevices(ctx, r.apiKey)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	index := make(map[string]int, len(devices))
	for i := range devices {
		index[strings.ToLower(devices[i].Name)] = i
		index[strings.ToLower(devices[i].Address)] = i
	}

	r.mu.Lock()
	r.devices = devices
	r.deviceIndex = index
	r.mu.Unlock()

	r.logger.Info("sync complete", "devices", len(devices))
	return nil
}

func (r *Registry) GetDevices() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Device, len(r.devices))
	copy(result, r.devices)
	return result
}

// Supported returns the listed devices whose model this module can drive.
func (r *Registry) Supported() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Device
	for _, d := range r.devices {
		if d.Model.Supported() {
			result = append(result, d)
		}
	}
	return result
}

// FindDevice matches an exact name or address first, then a name substring.
func (r *Registry) FindDevice(nameOrAddress string) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(nameOrAddress))
	if key == "" {
		return domain.Device{}, false
	}

	if i, ok := r.deviceIndex[key]; ok {
		return r.devices[i], true
	}

	for _, d := range r.devices {
		if strings.Contains(strings.ToLower(d.Name), key) {
			return d, true
		}
	}

	return domain.Device{}, false
}

func (r *Registry) Summary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, d := range r.devices {
		support := "unsupported"
		if d.Model.Supported() {
			support = string(d.Kind())
		}
		sb.WriteString(fmt.Sprintf("%-24s %-6s %-26s %s\n", d.Name, d.Model, d.Address, support))
	}
	return sb.String()
}

func (r *Registry) StartPeriodicSync(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Sync(ctx); err != nil {
					r.logger.Error("periodic sync failed", "error", err)
				}
			}
		}
	}()
}
