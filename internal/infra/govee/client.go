package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"govee-bridge/internal/capability"
	"govee-bridge/internal/domain"
)

const (
	DefaultRouterURL = "https://openapi.api.govee.com"
	DefaultLegacyURL = "https://developer-api.govee.com"
	DefaultTimeout   = 10 * time.Second

	apiKeyHeader     = "Govee-API-Key"
	msgDeviceMissing = "devices not exist"
)

// Endpoint labels reported to the Observer.
const (
	EndpointDevices = "devices"
	EndpointState   = "state"
	EndpointControl = "control"
	EndpointLegacy  = "legacy_control"
)

// Observer receives one call per vendor request.
type Observer interface {
	ObserveRequest(endpoint, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, time.Duration) {}

type Client struct {
	routerURL  string
	legacyURL  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(logger *slog.Logger, opts ...Option) *Client {
	return NewClientWithURL(DefaultRouterURL, DefaultLegacyURL, logger, opts...)
}

func NewClientWithURL(routerURL, legacyURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		routerURL:  strings.TrimSuffix(routerURL, "/"),
		legacyURL:  strings.TrimSuffix(legacyURL, "/"),
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		logger:     logger,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type routerRequest struct {
	RequestID string        `json:"requestId"`
	Payload   routerPayload `json:"payload"`
}

type routerPayload struct {
	SKU        string                       `json:"sku"`
	Device     string                       `json:"device"`
	Capability *capability.RouterCapability `json:"capability,omitempty"`
}

type legacyRequest struct {
	Model  string                   `json:"model"`
	Cmd    capability.LegacyCommand `json:"cmd"`
	Device string                   `json:"device"`
}

// GetState queries the current capability list of a device.
func (c *Client) GetState(ctx context.Context, id domain.Identity) (*capability.StateResponse, error) {
	body, err := json.Marshal(routerRequest{
		RequestID: uuid.NewString(),
		Payload:   routerPayload{SKU: string(id.Model), Device: id.Address},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling state request: %w", err)
	}

	respBody, err := c.doRouter(ctx, EndpointState, http.MethodPost, "/router/api/v1/device/state", id.APIKey, body)
	if err != nil {
		return nil, err
	}

	var result capability.StateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &domain.TransportError{StatusCode: http.StatusOK, Body: string(respBody), Err: fmt.Errorf("parsing state: %w", err)}
	}
	return &result, nil
}

// ControlRouter sends a toggle style capability. The caller must verify the
// echoed capability; the vendor answers 200 even when it ignores the change.
func (c *Client) ControlRouter(ctx context.Context, id domain.Identity, requested capability.RouterCapability) (*capability.ControlResponse, error) {
	body, err := json.Marshal(routerRequest{
		RequestID: uuid.NewString(),
		Payload:   routerPayload{SKU: string(id.Model), Device: id.Address, Capability: &requested},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling control request: %w", err)
	}

	respBody, err := c.doRouter(ctx, EndpointControl, http.MethodPost, "/router/api/v1/device/control", id.APIKey, body)
	if err != nil {
		return nil, err
	}

	var result capability.ControlResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &domain.TransportError{StatusCode: http.StatusOK, Body: string(respBody), Err: fmt.Errorf("parsing control response: %w", err)}
	}
	return &result, nil
}

// ControlLegacy sends a gear or mode change to the appliance API. Its HTTP
// status is unreliable, so non-200 answers are returned for the caller to
// interpret rather than raised.
func (c *Client) ControlLegacy(ctx context.Context, id domain.Identity, cmd capability.LegacyCommand) (*capability.LegacyResponse, error) {
	body, err := json.Marshal(legacyRequest{Model: string(id.Model), Cmd: cmd, Device: id.Address})
	if err != nil {
		return nil, fmt.Errorf("marshaling legacy request: %w", err)
	}

	status, respBody, err := c.do(ctx, EndpointLegacy, http.MethodPut, c.legacyURL+"/v1/appliance/devices/control", id.APIKey, body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("legacy control response", "status", status, "body", string(respBody))

	var result capability.LegacyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &domain.TransportError{StatusCode: status, Body: string(respBody), Err: fmt.Errorf("parsing legacy response: %w", err)}
	}
	result.HTTPStatus = status
	return &result, nil
}

// ListDevices returns every device bound to the API key.
func (c *Client) ListDevices(ctx context.Context, apiKey string) ([]domain.Device, error) {
	respBody, err := c.doRouter(ctx, EndpointDevices, http.MethodGet, "/router/api/v1/user/devices", apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching devices: %w", err)
	}

	var result struct {
		Code capability.FlexInt `json:"code"`
		Msg  string             `json:"message"`
		Data []struct {
			SKU        string `json:"sku"`
			Device     string `json:"device"`
			DeviceName string `json:"deviceName"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &domain.TransportError{StatusCode: http.StatusOK, Body: string(respBody), Err: fmt.Errorf("parsing devices: %w", err)}
	}

	devices := make([]domain.Device, 0, len(result.Data))
	for _, d := range result.Data {
		devices = append(devices, domain.Device{
			Name:    d.DeviceName,
			Model:   domain.ParseModel(d.SKU),
			Address: d.Device,
		})
	}
	return devices, nil
}

// doRouter applies the router API error taxonomy on top of do.
func (c *Client) doRouter(ctx context.Context, endpoint, method, path, apiKey string, body []byte) ([]byte, error) {
	status, respBody, err := c.do(ctx, endpoint, method, c.routerURL+path, apiKey, body)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusBadRequest:
		return nil, &domain.AuthenticationError{StatusCode: status, Body: string(respBody)}
	case status != http.StatusOK:
		return nil, &domain.TransportError{StatusCode: status, Body: string(respBody)}
	}

	var envelope struct {
		Msg     string `json:"msg"`
		Payload struct {
			SKU    string `json:"sku"`
			Device string `json:"device"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Msg == msgDeviceMissing {
		return nil, &domain.DeviceNotFoundError{SKU: envelope.Payload.SKU, Device: envelope.Payload.Device}
	}

	return respBody, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, url, apiKey string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	status, respBody, err := c.roundTrip(ctx, method, url, apiKey, body)
	c.observer.ObserveRequest(endpoint, outcome(status, err), time.Since(start))

	if err != nil {
		c.logger.Warn("govee request failed", "endpoint", endpoint, "error", err)
		return 0, nil, err
	}

	c.logger.Debug("govee response", "endpoint", endpoint, "status", status)
	return status, respBody, nil
}

func (c *Client) roundTrip(ctx context.Context, method, url, apiKey string, body []byte) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, nil, &domain.TransportError{Err: fmt.Errorf("creating request: %w", err)}
	}

	req.Header.Set(apiKeyHeader, apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &domain.TransportError{Timeout: isTimeout(ctx, err), Err: fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &domain.TransportError{StatusCode: resp.StatusCode, Timeout: isTimeout(ctx, err), Err: fmt.Errorf("reading response: %w", err)}
	}

	return resp.StatusCode, respBody, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcome(status int, err error) string {
	switch {
	case err != nil:
		var transportErr *domain.TransportError
		if errors.As(err, &transportErr) && transportErr.Timeout {
			return "timeout"
		}
		return "error"
	case status == http.StatusOK:
		return "ok"
	default:
		return fmt.Sprintf("%d", status)
	}
}
