package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"govee-bridge/internal/domain"
)

type Config struct {
	Govee         GoveeConfig         `yaml:"govee"`
	Devices       []DeviceConfig      `yaml:"devices"`
	Poll          PollConfig          `yaml:"poll"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HTTP          HTTPConfig          `yaml:"http"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Log           LogConfig           `yaml:"log"`
}

type GoveeConfig struct {
	APIKey       string `yaml:"api_key"`
	RouterURL    string `yaml:"router_url"`
	LegacyURL    string `yaml:"legacy_url"`
	Timeout      string `yaml:"timeout"`
	SyncInterval string `yaml:"sync_interval"`
}

// DeviceConfig is one device to bridge. SKU and device may be omitted, in
// which case they are looked up by name in the vendor's device listing.
type DeviceConfig struct {
	Name         string `yaml:"name"`
	SKU          string `yaml:"sku"`
	Device       string `yaml:"device"`
	PollInterval string `yaml:"poll_interval"`
}

type PollConfig struct {
	Interval            string `yaml:"interval"`
	ThermometerInterval string `yaml:"thermometer_interval"`
	RetryAttempts       int    `yaml:"retry_attempts"`
}

type HomeAssistantConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Enabled     bool   `yaml:"enabled"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
	RateLimit int    `yaml:"rate_limit"`
	Enabled   bool   `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so ${VARS} in the file can come from it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Govee.Timeout == "" {
		c.Govee.Timeout = "10s"
	}
	if c.Govee.SyncInterval == "" {
		c.Govee.SyncInterval = "1h"
	}
	if c.Poll.Interval == "" {
		c.Poll.Interval = "30s"
	}
	if c.Poll.ThermometerInterval == "" {
		c.Poll.ThermometerInterval = "10m"
	}
	if c.Poll.RetryAttempts == 0 {
		c.Poll.RetryAttempts = 3
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "govee-bridge"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "govee"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Govee.APIKey == "" {
		return fmt.Errorf("govee.api_key is required")
	}
	for i, d := range c.Devices {
		if d.Name == "" && d.Device == "" {
			return fmt.Errorf("devices[%d]: name or device is required", i)
		}
		if d.SKU != "" && !domain.ParseModel(d.SKU).Supported() {
			return fmt.Errorf("devices[%d]: unsupported sku %q", i, d.SKU)
		}
		if d.PollInterval != "" {
			if _, err := time.ParseDuration(d.PollInterval); err != nil {
				return fmt.Errorf("devices[%d]: invalid poll_interval: %w", i, err)
			}
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

// DomainDevices converts the device entries.
func (c *Config) DomainDevices() []domain.Device {
	devices := make([]domain.Device, 0, len(c.Devices))
	for _, d := range c.Devices {
		var model domain.Model
		if d.SKU != "" {
			model = domain.ParseModel(d.SKU)
		}
		devices = append(devices, domain.Device{Name: d.Name, Model: model, Address: d.Device})
	}
	return devices
}

// PollInterval picks the interval for a device: its own setting, else the
// thermometer or general default. Unparseable values fall back to the
// coordinator's defaults.
func (c *Config) PollInterval(d domain.Device) time.Duration {
	for _, dc := range c.Devices {
		if dc.PollInterval != "" && (dc.Name == d.Name || (dc.Device != "" && dc.Device == d.Address)) {
			if v, err := time.ParseDuration(dc.PollInterval); err == nil {
				return v
			}
		}
	}

	raw := c.Poll.Interval
	if d.Kind() == domain.DeviceKindThermometer {
		raw = c.Poll.ThermometerInterval
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return v
}

func Duration(raw string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}
