package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"govee-bridge/internal/domain"
	"govee-bridge/internal/infra/httpapi"
)

type fakeService struct {
	states   map[string]domain.DeviceState
	executed []domain.Intent
	err      error
}

func (f *fakeService) States() []domain.DeviceState {
	out := make([]domain.DeviceState, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, s)
	}
	return out
}

func (f *fakeService) State(name string) (domain.DeviceState, bool) {
	s, ok := f.states[strings.ToLower(name)]
	return s, ok
}

func (f *fakeService) Execute(_ context.Context, name string, intent domain.Intent) (domain.DeviceState, error) {
	f.executed = append(f.executed, intent)
	if f.err != nil {
		return domain.DeviceState{}, f.err
	}
	s, ok := f.states[strings.ToLower(name)]
	if !ok {
		return domain.DeviceState{}, fmt.Errorf("%w: %s", domain.ErrDeviceNotConfigured, name)
	}
	return s, nil
}

func newService() *fakeService {
	return &fakeService{states: map[string]domain.DeviceState{
		"bedroom": {
			Device:    domain.Device{Name: "Bedroom", Model: domain.ModelThermometer, Address: "AA:BB"},
			Available: true,
			Snapshot:  &domain.ThermometerSnapshot{Online: true, TemperatureF: 71.6, HumidityPercent: 45},
		},
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServer_ListAndGet(t *testing.T) {
	server := httpapi.NewServer(":0", "", newService(), discardLogger())
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d, want %d", rec.Code, http.StatusOK)
	}

	var states []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &states); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices/BEDROOM", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"temperature_f":71.6`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices/garage", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestServer_Command(t *testing.T) {
	svc := newService()
	server := httpapi.NewServer(":0", "", svc, discardLogger())

	body := `{"action":"set_humidity","humidity":40}`
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/devices/bedroom/commands", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(svc.executed) != 1 || svc.executed[0].Humidity != 40 {
		t.Errorf("unexpected intents: %+v", svc.executed)
	}
}

func TestServer_CommandErrors(t *testing.T) {
	tests := []struct {
		name       string
		device     string
		body       string
		err        error
		wantStatus int
	}{
		{"invalid json", "bedroom", `{`, nil, http.StatusBadRequest},
		{"missing action", "bedroom", `{"percentage":10}`, nil, http.StatusBadRequest},
		{"unknown device", "garage", `{"action":"turn_on"}`, nil, http.StatusNotFound},
		{"unsupported", "bedroom", `{"action":"turn_on"}`, &domain.UnsupportedCapabilityError{Model: domain.ModelThermometer, Instance: "powerSwitch"}, http.StatusBadRequest},
		{"rejected", "bedroom", `{"action":"turn_on"}`, &domain.CommandRejectedError{Instance: "powerSwitch", Requested: 1, Reason: "echoed value differs"}, http.StatusConflict},
		{"timeout", "bedroom", `{"action":"turn_on"}`, &domain.TransportError{Timeout: true, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"acknowledged, stale state", "bedroom", `{"action":"turn_on"}`, fmt.Errorf("%w: %w", domain.ErrRefreshAfterAck, &domain.TransportError{StatusCode: 502}), http.StatusAccepted},
		{"bad key", "bedroom", `{"action":"turn_on"}`, &domain.AuthenticationError{StatusCode: 400}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			svc.err = tt.err
			server := httpapi.NewServer(":0", "", svc, discardLogger())

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/devices/"+tt.device+"/commands", strings.NewReader(tt.body))
			server.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status code: got %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestServer_AuthToken(t *testing.T) {
	authToken := "test-secret-token-123"
	server := httpapi.NewServer(":0", authToken, newService(), discardLogger())
	handler := server.Handler()

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"valid token in header", authToken, "", http.StatusOK},
		{"valid token in query", "", authToken, http.StatusOK},
		{"invalid token", "wrong-token", "", http.StatusUnauthorized},
		{"missing token", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/devices"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("X-Auth-Token", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status code: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestServer_HealthSkipsAuth(t *testing.T) {
	server := httpapi.NewServer(":0", "secret", newService(), discardLogger())
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code before start: got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := server.Start(ctx); err != nil {
		t.Fatalf("starting server: %v", err)
	}
	defer server.Stop()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"available":1`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestServer_RateLimitsCommands(t *testing.T) {
	server := httpapi.NewServer(":0", "", newService(), discardLogger(),
		httpapi.WithRateLimiter(httpapi.NewRateLimiter(2, time.Minute)))
	handler := server.Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/devices/bedroom/commands", strings.NewReader(`{"action":"turn_off"}`))
		req.RemoteAddr = "10.0.0.5:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status codes: %v", codes)
	}
}

func TestServer_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("govee_api_requests_total 1\n"))
	})
	server := httpapi.NewServer(":0", "", newService(), discardLogger(), httpapi.WithMetricsHandler(metrics))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "govee_api_requests_total") {
		t.Errorf("unexpected metrics response %d: %s", rec.Code, rec.Body.String())
	}
}
