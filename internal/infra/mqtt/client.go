package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"govee-bridge/internal/domain"
)

const (
	DefaultTopicPrefix = "govee"
	publishTimeout     = 5 * time.Second
)

type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Executor runs an intent on a configured device.
type Executor interface {
	Execute(ctx context.Context, name string, intent domain.Intent) (domain.DeviceState, error)
}

// Client publishes retained device states on <prefix>/<slug>/state and
// accepts intents on <prefix>/<slug>/set.
type Client struct {
	client paho.Client
	prefix string
	qos    byte
	logger *slog.Logger

	mu      sync.RWMutex
	devices map[string]string // slug -> configured name
	locks   map[string]*sync.Mutex

	inflight sync.WaitGroup
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", token.Error())
	}

	return NewClientWithPaho(client, cfg.TopicPrefix, cfg.QoS, logger), nil
}

// NewClientWithPaho wraps an already connected paho client.
func NewClientWithPaho(client paho.Client, prefix string, qos byte, logger *slog.Logger) *Client {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Client{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		logger:  logger,
		devices: make(map[string]string),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (c *Client) Name() string { return "mqtt" }

func (c *Client) Publish(_ context.Context, state domain.DeviceState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	topic := StateTopic(c.prefix, state.Device.Slug())
	token := c.client.Publish(topic, c.qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// SubscribeCommands routes intents received for devices to exec. Messages
// for unknown slugs are logged and dropped. Each command runs in its own
// goroutine so paho's delivery is never held up by vendor calls; commands for
// the same device are still applied one at a time.
func (c *Client) SubscribeCommands(ctx context.Context, devices []domain.Device, exec Executor) error {
	c.mu.Lock()
	for _, d := range devices {
		c.devices[d.Slug()] = d.Name
		c.locks[d.Slug()] = &sync.Mutex{}
	}
	c.mu.Unlock()

	topic := CommandFilter(c.prefix)
	token := c.client.Subscribe(topic, c.qos, func(_ paho.Client, msg paho.Message) {
		slug, intent, err := c.parseMessage(msg.Topic(), msg.Payload())
		if err != nil {
			c.logger.Warn("mqtt command dropped", "topic", msg.Topic(), "error", err)
			return
		}

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			if err := c.execute(ctx, exec, slug, intent); err != nil {
				c.logger.Warn("mqtt command failed", "topic", msg.Topic(), "error", err)
			}
		}()
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, token.Error())
	}

	c.logger.Info("subscribed to mqtt commands", "topic", topic)
	return nil
}

func (c *Client) parseMessage(topic string, payload []byte) (string, domain.Intent, error) {
	slug, ok := SlugFromCommandTopic(c.prefix, topic)
	if !ok {
		return "", domain.Intent{}, fmt.Errorf("unexpected topic")
	}

	c.mu.RLock()
	_, ok = c.devices[slug]
	c.mu.RUnlock()
	if !ok {
		return "", domain.Intent{}, fmt.Errorf("unknown device %q", slug)
	}

	intent, err := ParseCommand(payload)
	if err != nil {
		return "", domain.Intent{}, err
	}
	return slug, intent, nil
}

func (c *Client) execute(ctx context.Context, exec Executor, slug string, intent domain.Intent) error {
	c.mu.RLock()
	name, lock := c.devices[slug], c.locks[slug]
	c.mu.RUnlock()

	lock.Lock()
	defer lock.Unlock()

	if _, err := exec.Execute(ctx, name, intent); err != nil {
		return fmt.Errorf("executing %s: %w", intent.Action, err)
	}
	return nil
}

// Close waits for running commands, then disconnects.
func (c *Client) Close() {
	c.inflight.Wait()
	c.client.Disconnect(250)
	c.logger.Info("mqtt disconnected")
}
