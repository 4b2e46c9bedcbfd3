// Package capability translates between the Govee capability-list wire
// format and the typed snapshots and commands of the domain package.
package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	TypeOnline   = "devices.capabilities.online"
	TypeOnOff    = "devices.capabilities.on_off"
	TypeToggle   = "devices.capabilities.toggle"
	TypeWorkMode = "devices.capabilities.work_mode"
	TypeProperty = "devices.capabilities.property"
)

// Capability is one record of the vendor's device state.
type Capability struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	State    State  `json:"state"`
}

type State struct {
	Value  json.RawMessage `json:"value"`
	Status string          `json:"status,omitempty"`
}

type StateResponse struct {
	RequestID string       `json:"requestId"`
	Code      FlexInt      `json:"code"`
	Msg       string       `json:"msg"`
	Payload   StatePayload `json:"payload"`
}

type StatePayload struct {
	SKU          string       `json:"sku"`
	Device       string       `json:"device"`
	Capabilities []Capability `json:"capabilities"`
}

// RouterCapability is the router API control shape.
type RouterCapability struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	Value    int    `json:"value"`
}

type ControlResponse struct {
	RequestID  string      `json:"requestId"`
	Code       FlexInt     `json:"code"`
	Msg        string      `json:"msg"`
	Capability ControlEcho `json:"capability"`
}

// ControlEcho is the capability the vendor echoes back after a control call.
type ControlEcho struct {
	Type     string          `json:"type"`
	Instance string          `json:"instance"`
	Value    json.RawMessage `json:"value"`
	State    State           `json:"state"`
}

// LegacyCommand is the appliance API control shape.
type LegacyCommand struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// LegacyResponse carries either "code" or "status" depending on the vendor
// version.
type LegacyResponse struct {
	Message    string   `json:"message"`
	Code       *FlexInt `json:"code,omitempty"`
	Status     *FlexInt `json:"status,omitempty"`
	HTTPStatus int      `json:"-"`
}

func (r *LegacyResponse) ResultCode() (int, bool) {
	if r.Code != nil {
		return int(*r.Code), true
	}
	if r.Status != nil {
		return int(*r.Status), true
	}
	return 0, false
}

type Route int

const (
	RouteRouter Route = iota
	RouteLegacy
)

func (r Route) String() string {
	if r == RouteLegacy {
		return "legacy"
	}
	return "router"
}

// Wire is an encoded command. Exactly one of Router or Legacy is meaningful,
// selected by Route.
type Wire struct {
	Route  Route
	Router RouterCapability
	Legacy LegacyCommand
}

// FlexInt accepts a JSON number or a numeric string.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("parsing code %q: %w", s, err)
		}
		*f = FlexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexInt(int(n))
	return nil
}
