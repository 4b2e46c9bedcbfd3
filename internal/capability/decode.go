package capability

import (
	"encoding/json"
	"math"
	"strconv"

	"govee-bridge/internal/domain"
)

// Decode builds the snapshot variant for model from a state query. Records
// with unknown instances or unexpected value shapes are skipped, leaving the
// affected fields at their sentinel. It returns nil for unsupported models.
func Decode(model domain.Model, caps []Capability) domain.Snapshot {
	switch model.Kind() {
	case domain.DeviceKindFan:
		return decodeFan(caps)
	case domain.DeviceKindPurifier:
		return decodePurifier(caps)
	case domain.DeviceKindThermometer:
		return decodeThermometer(caps)
	default:
		return nil
	}
}

func decodeFan(caps []Capability) *domain.FanSnapshot {
	s := domain.NewFanSnapshot()
	for _, c := range caps {
		switch c.Instance {
		case domain.InstanceOnline:
			if v, ok := boolValue(c.State.Value); ok {
				s.Online = v
			}
		case domain.InstancePowerSwitch:
			if v, ok := intValue(c.State.Value); ok {
				s.PowerOn = v == 1
			}
		case domain.InstanceOscillationToggle:
			if v, ok := intValue(c.State.Value); ok {
				s.Oscillating = v == 1
			}
		case domain.InstanceWorkMode:
			if mode, value, ok := workModeValue(c.State.Value); ok {
				s.WorkMode = mode
				s.ModeName = ModeName(domain.ModelTowerFan, mode)
				s.ModeValue = value
			}
		}
	}
	s.SpeedPercent = FanPercentage(s.PowerOn, s.ModeValue)
	return s
}

func decodePurifier(caps []Capability) *domain.PurifierSnapshot {
	s := domain.NewPurifierSnapshot()
	for _, c := range caps {
		switch c.Instance {
		case domain.InstanceOnline:
			if v, ok := boolValue(c.State.Value); ok {
				s.Online = v
			}
		case domain.InstancePowerSwitch:
			if v, ok := intValue(c.State.Value); ok {
				s.PowerOn = v == 1
			}
		case domain.InstanceWorkMode:
			if mode, value, ok := workModeValue(c.State.Value); ok {
				s.WorkMode = mode
				s.ModeName = ModeName(domain.ModelAirPurifier, mode)
				s.ModeValue = value
				s.SpeedPercent = PurifierPercentage(value)
			}
		case domain.InstanceFilterLifeTime:
			if v, ok := floatValue(c.State.Value); ok {
				s.FilterLifePercent = v
			}
		case domain.InstanceAirQuality:
			if v, ok := intValue(c.State.Value); ok {
				s.AirQuality = v
			}
		}
	}
	return s
}

func decodeThermometer(caps []Capability) *domain.ThermometerSnapshot {
	s := domain.NewThermometerSnapshot()
	for _, c := range caps {
		switch c.Instance {
		case domain.InstanceOnline:
			if v, ok := boolValue(c.State.Value); ok {
				s.Online = v
			}
		case domain.InstanceSensorTemperature:
			if v, ok := floatValue(c.State.Value); ok {
				s.TemperatureF = Fahrenheit(v)
			}
		case domain.InstanceSensorHumidity:
			if v, ok := humidityValue(c.State.Value); ok {
				s.HumidityPercent = v
			}
		}
	}
	return s
}

// Fahrenheit converts the raw sensor value (hundredths of a degree Celsius).
// The hundredths are truncated before scaling.
func Fahrenheit(raw float64) float64 {
	return math.Trunc(raw/100)*1.8 + 32
}

func FanPercentage(on bool, modeValue int) float64 {
	if !on {
		return 0
	}
	return float64(modeValue) / 8 * 100
}

func PurifierPercentage(modeValue int) float64 {
	return float64(modeValue) / 4 * 100
}

func floatValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func intValue(raw json.RawMessage) (int, bool) {
	f, ok := floatValue(raw)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func boolValue(raw json.RawMessage) (bool, bool) {
	v, ok := intValue(raw)
	if !ok {
		return false, false
	}
	return v != 0, true
}

func workModeValue(raw json.RawMessage) (int, int, bool) {
	var v struct {
		WorkMode  *float64 `json:"workMode"`
		ModeValue *float64 `json:"modeValue"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.WorkMode == nil {
		return 0, 0, false
	}
	value := 0
	if v.ModeValue != nil {
		value = int(*v.ModeValue)
	}
	return int(*v.WorkMode), value, true
}

func humidityValue(raw json.RawMessage) (float64, bool) {
	var v struct {
		CurrentHumidity *float64 `json:"currentHumidity"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.CurrentHumidity == nil {
		return 0, false
	}
	return float64(int(*v.CurrentHumidity)) / 100, true
}
