package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"govee-bridge/internal/domain"
	"govee-bridge/internal/infra"
)

const (
	DefaultPollInterval        = 30 * time.Second
	DefaultThermometerInterval = 10 * time.Minute
)

// DefaultInterval returns the poll interval used when a device is added
// without one.
func DefaultInterval(kind domain.DeviceKind) time.Duration {
	if kind == domain.DeviceKindThermometer {
		return DefaultThermometerInterval
	}
	return DefaultPollInterval
}

type deviceEntry struct {
	device   domain.Device
	client   *DeviceClient
	interval time.Duration
	state    domain.DeviceState
	notified bool
}

// Coordinator polls every configured device, publishes what it sees and
// routes commands to the right DeviceClient.
type Coordinator struct {
	api        GoveeAPI
	apiKey     string
	notifier   Notifier
	publishers []StatePublisher
	retry      infra.RetryConfig
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[string]*deviceEntry
	order   []string
}

func NewCoordinator(api GoveeAPI, apiKey string, notifier Notifier, logger *slog.Logger) *Coordinator {
	retry := infra.DefaultRetryConfig()
	retry.ShouldRetry = domain.IsRetryable

	return &Coordinator{
		api:      api,
		apiKey:   apiKey,
		notifier: notifier,
		retry:    retry,
		logger:   logger,
		entries:  make(map[string]*deviceEntry),
	}
}

func (c *Coordinator) AddPublisher(p StatePublisher) {
	c.publishers = append(c.publishers, p)
}

// SetRetryConfig replaces the refresh backoff. Only transport errors are
// retried whatever cfg.ShouldRetry says.
func (c *Coordinator) SetRetryConfig(cfg infra.RetryConfig) {
	cfg.ShouldRetry = domain.IsRetryable
	c.retry = cfg
}

// AddDevice registers a device. A zero interval picks the default for the
// device kind.
func (c *Coordinator) AddDevice(device domain.Device, interval time.Duration) error {
	if device.Slug() == "" {
		return fmt.Errorf("adding device %q (%s): a name is required", device.Name, device.Address)
	}
	client, err := NewDeviceClient(device.Identity(c.apiKey), c.api, c.logger)
	if err != nil {
		return fmt.Errorf("adding device %q: %w", device.Name, err)
	}
	if interval <= 0 {
		interval = DefaultInterval(device.Kind())
	}

	key := strings.ToLower(device.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return fmt.Errorf("adding device %q: duplicate name", device.Name)
	}
	c.entries[key] = &deviceEntry{
		device:   device,
		client:   client,
		interval: interval,
		state:    domain.DeviceState{Device: device},
	}
	c.order = append(c.order, key)

	c.logger.Info("device added", "name", device.Name, "sku", string(device.Model), "interval", interval)
	return nil
}

func (c *Coordinator) Devices() []domain.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]domain.Device, 0, len(c.order))
	for _, key := range c.order {
		devices = append(devices, c.entries[key].device)
	}
	return devices
}

func (c *Coordinator) States() []domain.DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make([]domain.DeviceState, 0, len(c.order))
	for _, key := range c.order {
		states = append(states, c.entries[key].state)
	}
	return states
}

func (c *Coordinator) State(name string) (domain.DeviceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[strings.ToLower(name)]
	if !ok {
		return domain.DeviceState{}, false
	}
	return e.state, true
}

// Run refreshes every device once, then polls each on its own interval until
// ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.RLock()
	keys := append([]string(nil), c.order...)
	c.mu.RUnlock()

	if len(keys) == 0 {
		return fmt.Errorf("starting coordinator: no devices configured")
	}

	c.logger.Info("coordinator started", "devices", len(keys))

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			c.poll(ctx, key)
		}(key)
	}
	wg.Wait()

	return ctx.Err()
}

// RefreshAll refreshes every device once and returns the resulting states.
func (c *Coordinator) RefreshAll(ctx context.Context) []domain.DeviceState {
	c.mu.RLock()
	keys := append([]string(nil), c.order...)
	c.mu.RUnlock()

	states := make([]domain.DeviceState, 0, len(keys))
	for _, key := range keys {
		state, _ := c.refresh(ctx, key)
		states = append(states, state)
	}
	return states
}

// Refresh refreshes one device now.
func (c *Coordinator) Refresh(ctx context.Context, name string) (domain.DeviceState, error) {
	key := strings.ToLower(name)
	if _, ok := c.entry(key); !ok {
		return domain.DeviceState{}, fmt.Errorf("%w: %s", domain.ErrDeviceNotConfigured, name)
	}
	return c.refresh(ctx, key)
}

func (c *Coordinator) poll(ctx context.Context, key string) {
	e, ok := c.entry(key)
	if !ok {
		return
	}

	if _, err := c.refresh(ctx, key); err != nil && ctx.Err() == nil {
		c.logger.Error("initial refresh", "device", e.device.Name, "error", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.refresh(ctx, key); err != nil && ctx.Err() == nil {
				c.logger.Error("refreshing device", "device", e.device.Name, "error", err)
			}
		}
	}
}

func (c *Coordinator) refresh(ctx context.Context, key string) (domain.DeviceState, error) {
	e, ok := c.entry(key)
	if !ok {
		return domain.DeviceState{}, domain.ErrDeviceNotConfigured
	}

	var snap domain.Snapshot
	err := infra.WithRetry(ctx, c.retry, func() error {
		var err error
		snap, err = e.client.Refresh(ctx)
		return err
	})

	c.mu.Lock()
	if err != nil {
		e.state.Available = false
		e.state.LastError = err.Error()
	} else {
		e.state.Snapshot = snap
		e.state.Available = true
		e.state.LastError = ""
		e.notified = false
	}
	e.state.UpdatedAt = time.Now()
	state := e.state
	c.mu.Unlock()

	if err != nil {
		c.reportFailure(ctx, key, err)
	}
	c.publish(ctx, state)

	return state, err
}

// Execute plans and applies an intent on the named device. A humidity target
// on a thermometer is kept locally and republished.
func (c *Coordinator) Execute(ctx context.Context, name string, intent domain.Intent) (domain.DeviceState, error) {
	key := strings.ToLower(name)
	e, ok := c.entry(key)
	if !ok {
		return domain.DeviceState{}, fmt.Errorf("%w: %s", domain.ErrDeviceNotConfigured, name)
	}

	if intent.Action == domain.ActionSetHumidity && e.device.Kind() == domain.DeviceKindThermometer {
		return c.setTargetHumidity(ctx, e, intent.Humidity)
	}

	c.logger.Info("executing intent", "device", e.device.Name, "action", intent.Action)

	snap, err := e.client.Do(ctx, intent)

	c.mu.Lock()
	if snap != nil {
		e.state.Snapshot = snap
	}
	if err != nil {
		e.state.LastError = err.Error()
	} else {
		e.state.Available = true
		e.state.LastError = ""
	}
	e.state.UpdatedAt = time.Now()
	state := e.state
	c.mu.Unlock()

	if err != nil {
		c.reportFailure(ctx, key, err)
		return state, fmt.Errorf("executing %s on %s: %w", intent.Action, e.device.Name, err)
	}

	c.publish(ctx, state)
	return state, nil
}

func (c *Coordinator) setTargetHumidity(ctx context.Context, e *deviceEntry, humidity float64) (domain.DeviceState, error) {
	if humidity < 0 || humidity > 100 {
		current, _ := c.State(e.device.Name)
		return current, &domain.UnsupportedCapabilityError{Model: e.device.Model, Instance: "targetHumidity", Value: humidity}
	}

	c.mu.Lock()
	target := humidity
	e.state.TargetHumidity = &target
	e.state.UpdatedAt = time.Now()
	state := e.state
	c.mu.Unlock()

	c.logger.Info("target humidity set", "device", state.Device.Name, "humidity", humidity)
	c.publish(ctx, state)
	return state, nil
}

func (c *Coordinator) entry(key string) (*deviceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// reportFailure notifies the user once per failure streak about
// configuration errors. Transport errors are only logged.
func (c *Coordinator) reportFailure(ctx context.Context, key string, err error) {
	if !domain.IsConfigurationError(err) {
		return
	}

	c.mu.Lock()
	e := c.entries[key]
	already := e.notified
	e.notified = true
	c.mu.Unlock()

	if already {
		return
	}

	c.logger.Error("device configuration error", "device", e.device.Name, "error", err)
	if notifyErr := c.notifier.Notify(ctx, fmt.Sprintf("%s: %s", e.device.Name, err.Error())); notifyErr != nil {
		c.logger.Error("notifying error", "error", notifyErr)
	}
}

func (c *Coordinator) publish(ctx context.Context, state domain.DeviceState) {
	for _, p := range c.publishers {
		if err := p.Publish(ctx, state); err != nil {
			c.logger.Warn("publishing state", "publisher", p.Name(), "device", state.Device.Name, "error", err)
		}
	}
}
