package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"govee-bridge/config"
	"govee-bridge/internal/application"
	"govee-bridge/internal/infra"
	"govee-bridge/internal/infra/govee"
	"govee-bridge/internal/infra/homeassistant"
	"govee-bridge/internal/infra/metrics"
	"govee-bridge/internal/infra/mqtt"
	"govee-bridge/internal/infra/pushover"
)

// app holds everything wired from one config file.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	client      *govee.Client
	registry    *govee.Registry
	coordinator *application.Coordinator
	metrics     *metrics.Metrics
	mqtt        *mqtt.Client
}

type publishers struct {
	homeAssistant bool
	mqtt          bool
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, pub publishers) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	opts := []govee.Option{govee.WithTimeout(config.Duration(cfg.Govee.Timeout, govee.DefaultTimeout))}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		opts = append(opts, govee.WithObserver(a.metrics))
	}

	routerURL, legacyURL := cfg.Govee.RouterURL, cfg.Govee.LegacyURL
	if routerURL == "" {
		routerURL = govee.DefaultRouterURL
	}
	if legacyURL == "" {
		legacyURL = govee.DefaultLegacyURL
	}
	a.client = govee.NewClientWithURL(routerURL, legacyURL, logger, opts...)
	a.registry = govee.NewRegistry(a.client, cfg.Govee.APIKey, logger)

	var notifier application.Notifier = &application.NoopNotifier{}
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	}

	a.coordinator = application.NewCoordinator(a.client, cfg.Govee.APIKey, notifier, logger)
	retry := infra.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Poll.RetryAttempts
	a.coordinator.SetRetryConfig(retry)

	if a.metrics != nil {
		a.coordinator.AddPublisher(a.metrics)
	}
	if pub.homeAssistant && cfg.HomeAssistant.Enabled {
		a.coordinator.AddPublisher(homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger))
	}
	if pub.mqtt && cfg.MQTT.Enabled {
		client, err := mqtt.NewClient(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		}, logger)
		if err != nil {
			return nil, err
		}
		a.mqtt = client
		a.coordinator.AddPublisher(client)
	}

	devices, err := application.ResolveDevices(ctx, cfg.DomainDevices(), a.registry, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	for _, d := range devices {
		if err := a.coordinator.AddDevice(d, cfg.PollInterval(d)); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) close() {
	if a.mqtt != nil {
		a.mqtt.Close()
	}
}

func (a *app) syncInterval() time.Duration {
	return config.Duration(a.cfg.Govee.SyncInterval, time.Hour)
}

func (a *app) requireDevice(name string) error {
	if _, ok := a.coordinator.State(name); !ok {
		return fmt.Errorf("device %q is not in the config", name)
	}
	return nil
}
