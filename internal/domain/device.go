package domain

import "strings"

type Model string

const (
	ModelTowerFan    Model = "H7102"
	ModelAirPurifier Model = "H7126"
	ModelThermometer Model = "H5179"
)

type DeviceKind string

const (
	DeviceKindFan         DeviceKind = "fan"
	DeviceKindPurifier    DeviceKind = "purifier"
	DeviceKindThermometer DeviceKind = "thermometer"
	DeviceKindOther       DeviceKind = "other"
)

// ParseModel normalises a SKU as entered by a user ("h7102" -> H7102).
func ParseModel(sku string) Model {
	return Model(strings.ToUpper(strings.TrimSpace(sku)))
}

func (m Model) Kind() DeviceKind {
	switch m {
	case ModelTowerFan:
		return DeviceKindFan
	case ModelAirPurifier:
		return DeviceKindPurifier
	case ModelThermometer:
		return DeviceKindThermometer
	default:
		return DeviceKindOther
	}
}

func (m Model) Supported() bool {
	return m.Kind() != DeviceKindOther
}

// Device is a device as listed by the vendor or configured by the user.
type Device struct {
	Name    string `json:"name" yaml:"name"`
	Model   Model  `json:"sku" yaml:"sku"`
	Address string `json:"device" yaml:"device"`
}

func (d Device) Kind() DeviceKind {
	return d.Model.Kind()
}

// Slug is the lower-case, underscore separated form of the device name used
// for entity ids and MQTT topics.
func (d Device) Slug() string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(d.Name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && sb.Len() > 0 {
				sb.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}

// Identity selects which cloud resource a client targets. It is a value type
// and is never mutated after construction.
type Identity struct {
	Model   Model
	Address string
	APIKey  string
}

func NewIdentity(model Model, address, apiKey string) Identity {
	return Identity{Model: model, Address: address, APIKey: apiKey}
}

func (d Device) Identity(apiKey string) Identity {
	return NewIdentity(d.Model, d.Address, apiKey)
}
