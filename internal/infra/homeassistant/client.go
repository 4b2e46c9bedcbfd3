package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"govee-bridge/internal/domain"
	"govee-bridge/internal/infra"
)

// Client publishes device states to Home Assistant through its REST states
// API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	// Remove trailing slash if present
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (c *Client) Name() string { return "homeassistant" }

// Publish writes every entity derived from state.
func (c *Client) Publish(ctx context.Context, state domain.DeviceState) error {
	for _, e := range Entities(state) {
		if err := c.SetState(ctx, e); err != nil {
			return fmt.Errorf("publishing %s: %w", e.EntityID, err)
		}
	}
	c.logger.Debug("published to home assistant", "device", state.Device.Name)
	return nil
}

func (c *Client) SetState(ctx context.Context, e EntityState) error {
	body, err := json.Marshal(struct {
		State      string         `json:"state"`
		Attributes map[string]any `json:"attributes,omitempty"`
	}{e.State, e.Attributes})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/api/states/"+e.EntityID, body); err != nil {
		return fmt.Errorf("setting state: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	cfg := infra.DefaultRetryConfig()
	cfg.ShouldRetry = func(err error) bool {
		var perm *permanentError
		return !errors.As(err, &perm)
	}

	retryErr := infra.WithRetry(ctx, cfg, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = strings.NewReader(string(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &permanentError{msg: "unauthorized: check your Home Assistant token"}
		}

		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("home assistant API error %d (retryable): %s", resp.StatusCode, string(respBody))
		}

		if resp.StatusCode >= 400 {
			return &permanentError{msg: fmt.Sprintf("home assistant API error %d: %s", resp.StatusCode, string(respBody))}
		}

		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}

// permanentError is a response that retrying cannot fix.
type permanentError struct {
	msg string
}

func (e *permanentError) Error() string { return e.msg }
