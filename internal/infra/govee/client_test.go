package govee_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"govee-bridge/internal/capability"
	"govee-bridge/internal/domain"
	"govee-bridge/internal/infra/govee"
)

var testIdentity = domain.NewIdentity(domain.ModelTowerFan, "18:43:D4:AD:FC:BB:44:DA", "test-key")

func newTestClient(server *httptest.Server, opts ...govee.Option) *govee.Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return govee.NewClientWithURL(server.URL, server.URL, logger, opts...)
}

func TestClient_GetState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/router/api/v1/device/state" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Govee-API-Key"); got != "test-key" {
			t.Errorf("api key header: got %q, want test-key", got)
		}

		var req struct {
			RequestID string `json:"requestId"`
			Payload   struct {
				SKU    string `json:"sku"`
				Device string `json:"device"`
			} `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if req.RequestID == "" {
			t.Error("requestId is empty")
		}
		if req.Payload.SKU != "H7102" || req.Payload.Device != testIdentity.Address {
			t.Errorf("payload: got %+v", req.Payload)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"requestId": req.RequestID,
			"code":      200,
			"msg":       "success",
			"payload": map[string]any{
				"sku":    "H7102",
				"device": testIdentity.Address,
				"capabilities": []map[string]any{
					{"type": "devices.capabilities.online", "instance": "online", "state": map[string]any{"value": true}},
					{"type": "devices.capabilities.on_off", "instance": "powerSwitch", "state": map[string]any{"value": 1}},
				},
			},
		})
	}))
	defer server.Close()

	resp, err := newTestClient(server).GetState(context.Background(), testIdentity)
	if err != nil {
		t.Fatalf("GetState error: %v", err)
	}

	if len(resp.Payload.Capabilities) != 2 {
		t.Fatalf("capabilities count: got %d, want 2", len(resp.Payload.Capabilities))
	}
	if resp.Payload.Capabilities[1].Instance != "powerSwitch" {
		t.Errorf("instance: got %s, want powerSwitch", resp.Payload.Capabilities[1].Instance)
	}
}

func TestClient_GetState_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		checkFn func(t *testing.T, err error)
	}{
		{
			name:   "bad request is an auth failure",
			status: http.StatusBadRequest,
			body:   `{"code":400,"msg":"Invalid API Key"}`,
			checkFn: func(t *testing.T, err error) {
				var authErr *domain.AuthenticationError
				if !errors.As(err, &authErr) {
					t.Fatalf("got %T %v, want AuthenticationError", err, err)
				}
			},
		},
		{
			name:   "unknown device",
			status: http.StatusOK,
			body:   `{"code":400,"msg":"devices not exist","payload":{"sku":"H7102","device":"AA:BB"}}`,
			checkFn: func(t *testing.T, err error) {
				var notFound *domain.DeviceNotFoundError
				if !errors.As(err, &notFound) {
					t.Fatalf("got %T %v, want DeviceNotFoundError", err, err)
				}
				if notFound.SKU != "H7102" || notFound.Device != "AA:BB" {
					t.Errorf("echoed device: got (%s, %s)", notFound.SKU, notFound.Device)
				}
			},
		},
		{
			name:   "server error keeps status and body",
			status: http.StatusInternalServerError,
			body:   `upstream exploded`,
			checkFn: func(t *testing.T, err error) {
				var transportErr *domain.TransportError
				if !errors.As(err, &transportErr) {
					t.Fatalf("got %T %v, want TransportError", err, err)
				}
				if transportErr.StatusCode != http.StatusInternalServerError {
					t.Errorf("status: got %d", transportErr.StatusCode)
				}
				if transportErr.Body != "upstream exploded" {
					t.Errorf("body: got %q", transportErr.Body)
				}
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"msg":"too many requests"}`,
			checkFn: func(t *testing.T, err error) {
				if !domain.IsRetryable(err) {
					t.Fatalf("got %v, want retryable error", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(server).GetState(context.Background(), testIdentity)
			if err == nil {
				t.Fatal("expected error")
			}
			tt.checkFn(t, err)
		})
	}
}

func TestClient_GetState_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := newTestClient(server, govee.WithTimeout(50*time.Millisecond)).GetState(context.Background(), testIdentity)

	var transportErr *domain.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("got %T %v, want TransportError", err, err)
	}
	if !transportErr.Timeout {
		t.Errorf("timeout flag not set: %v", err)
	}
}

func TestClient_ControlRouter(t *testing.T) {
	var gotCapability capability.RouterCapability

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/router/api/v1/device/control" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var req struct {
			Payload struct {
				Capability capability.RouterCapability `json:"capability"`
			} `json:"payload"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotCapability = req.Payload.Capability

		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"msg":  "success",
			"capability": map[string]any{
				"type":     req.Payload.Capability.Type,
				"instance": req.Payload.Capability.Instance,
				"value":    req.Payload.Capability.Value,
				"state":    map[string]any{"status": "success"},
			},
		})
	}))
	defer server.Close()

	requested := capability.RouterCapability{Type: capability.TypeOnOff, Instance: "powerSwitch", Value: 1}
	resp, err := newTestClient(server).ControlRouter(context.Background(), testIdentity, requested)
	if err != nil {
		t.Fatalf("ControlRouter error: %v", err)
	}

	if gotCapability != requested {
		t.Errorf("sent capability: got %+v, want %+v", gotCapability, requested)
	}
	if err := capability.VerifyRouter(requested, resp); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestClient_ControlLegacy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/appliance/devices/control" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var req struct {
			Model  string                   `json:"model"`
			Cmd    capability.LegacyCommand `json:"cmd"`
			Device string                   `json:"device"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		if req.Cmd.Name == "gear" && req.Cmd.Value > 8 {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"Unsupported cmd value","status":400}`)
			return
		}
		if req.Model != "H7102" || req.Device != testIdentity.Address {
			t.Errorf("request: got model=%s device=%s", req.Model, req.Device)
		}
		io.WriteString(w, `{"message":"Success","code":200,"data":{}}`)
	}))
	defer server.Close()

	client := newTestClient(server)

	resp, err := client.ControlLegacy(context.Background(), testIdentity, capability.LegacyCommand{Name: "gear", Value: 3})
	if err != nil {
		t.Fatalf("ControlLegacy error: %v", err)
	}
	if code, ok := resp.ResultCode(); !ok || code != 200 {
		t.Errorf("code: got %d (present %t), want 200", code, ok)
	}

	resp, err = client.ControlLegacy(context.Background(), testIdentity, capability.LegacyCommand{Name: "gear", Value: 12})
	if err != nil {
		t.Fatalf("non-200 legacy responses must not raise: %v", err)
	}
	if resp.HTTPStatus != http.StatusBadRequest {
		t.Errorf("http status: got %d, want 400", resp.HTTPStatus)
	}
	if code, _ := resp.ResultCode(); code != 400 {
		t.Errorf("status field: got %d, want 400", code)
	}
}

func TestClient_ListDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/router/api/v1/user/devices" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code":    200,
			"message": "success",
			"data": []map[string]any{
				{"sku": "H7102", "device": "18:43:D4:AD:FC:BB:44:DA", "deviceName": "Bedroom Fan"},
				{"sku": "h5179", "device": "AA:BB:CC", "deviceName": "Office Thermometer"},
			},
		})
	}))
	defer server.Close()

	devices, err := newTestClient(server).ListDevices(context.Background(), "test-key")
	if err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("devices count: got %d, want 2", len(devices))
	}
	if devices[0].Name != "Bedroom Fan" || devices[0].Model != domain.ModelTowerFan {
		t.Errorf("first device: got %+v", devices[0])
	}
	if devices[1].Model != domain.ModelThermometer {
		t.Errorf("model should be normalised: got %s", devices[1].Model)
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveRequest(endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, endpoint+":"+outcome)
}

func TestClient_ReportsToObserver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	observer := &recordingObserver{}
	client := newTestClient(server, govee.WithObserver(observer))

	client.GetState(context.Background(), testIdentity)

	if len(observer.calls) != 1 || observer.calls[0] != "state:503" {
		t.Errorf("observer calls: got %v, want [state:503]", observer.calls)
	}
}
