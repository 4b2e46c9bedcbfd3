package domain

import "time"

// DeviceState is what the bridge publishes for one configured device.
type DeviceState struct {
	Device         Device    `json:"device"`
	Snapshot       Snapshot  `json:"snapshot,omitempty"`
	Available      bool      `json:"available"`
	TargetHumidity *float64  `json:"target_humidity,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
