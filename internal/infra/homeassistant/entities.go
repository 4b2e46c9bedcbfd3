package homeassistant

import (
	"math"
	"strconv"

	"govee-bridge/internal/capability"
	"govee-bridge/internal/domain"
)

const (
	stateOn          = "on"
	stateOff         = "off"
	stateUnknown     = "unknown"
	stateUnavailable = "unavailable"
)

// EntityState is one Home Assistant entity as written to /api/states.
type EntityState struct {
	EntityID   string
	State      string
	Attributes map[string]any
}

// Entities maps a device state onto the entities Home Assistant shows for
// it: a fan entity for fans and purifiers, a climate entity for thermometers,
// and sensors for status and every measured value.
func Entities(state domain.DeviceState) []EntityState {
	slug := state.Device.Slug()
	name := state.Device.Name

	entities := []EntityState{statusSensor(slug, name, state)}

	switch snap := state.Snapshot.(type) {
	case *domain.FanSnapshot:
		entities = append(entities, fanEntity(slug, name, state, snap.PowerOn, snap.SpeedPercent, snap.ModeName, map[string]any{
			"oscillating": snap.Oscillating,
		}))
	case *domain.PurifierSnapshot:
		entities = append(entities,
			fanEntity(slug, name, state, snap.PowerOn, snap.SpeedPercent, snap.ModeName, nil),
			sensor(slug+"_filter_life", name+" Filter Life", state.Available, snap.FilterLifePercent != domain.UnknownFilterLife, snap.FilterLifePercent, map[string]any{
				"unit_of_measurement": "%",
				"state_class":         "measurement",
			}),
			sensor(slug+"_air_quality", name+" Air Quality", state.Available, snap.AirQuality != domain.UnknownAirQuality, float64(snap.AirQuality), map[string]any{
				"device_class": "aqi",
				"state_class":  "measurement",
			}),
		)
	case *domain.ThermometerSnapshot:
		hasTemp := snap.TemperatureF != domain.UnknownTemperature
		hasHumidity := snap.HumidityPercent != domain.UnknownHumidity
		entities = append(entities,
			sensor(slug+"_temperature", name+" Temperature", state.Available, hasTemp, snap.TemperatureF, map[string]any{
				"device_class":        "temperature",
				"unit_of_measurement": "°F",
				"state_class":         "measurement",
			}),
			sensor(slug+"_humidity", name+" Humidity", state.Available, hasHumidity, snap.HumidityPercent, map[string]any{
				"device_class":        "humidity",
				"unit_of_measurement": "%",
				"state_class":         "measurement",
			}),
			climateEntity(slug, name, state, snap, hasTemp, hasHumidity),
		)
	}

	return entities
}

func statusSensor(slug, name string, state domain.DeviceState) EntityState {
	value := "Unknown"
	if state.Snapshot != nil {
		value = "Offline"
		if state.Snapshot.IsOnline() {
			value = "Online"
		}
	}
	return EntityState{
		EntityID: "sensor." + slug + "_status",
		State:    value,
		Attributes: map[string]any{
			"friendly_name": name + " Status",
			"device_class":  "enum",
			"options":       []string{"Online", "Offline", "Unknown"},
		},
	}
}

func fanEntity(slug, name string, state domain.DeviceState, on bool, pct float64, mode string, extra map[string]any) EntityState {
	attrs := map[string]any{
		"friendly_name": name,
		"percentage":    pct,
		"preset_modes":  capability.PresetModes(state.Device.Model),
	}
	if mode != domain.UnknownModeName {
		attrs["preset_mode"] = mode
	}
	if gears := capability.Gears(state.Device.Model); gears > 0 {
		attrs["percentage_step"] = 100.0 / float64(gears)
	}
	for k, v := range extra {
		attrs[k] = v
	}

	value := stateOff
	if on {
		value = stateOn
	}
	if !state.Available {
		value = stateUnavailable
	}

	return EntityState{EntityID: "fan." + slug, State: value, Attributes: attrs}
}

func climateEntity(slug, name string, state domain.DeviceState, snap *domain.ThermometerSnapshot, hasTemp, hasHumidity bool) EntityState {
	attrs := map[string]any{
		"friendly_name":      name,
		"temperature_unit":   "°F",
		"hvac_modes":         []string{},
		"supported_features": 4,
		"target_temp_step":   0.1,
		"min_humidity":       0,
		"max_humidity":       100,
	}
	if hasTemp {
		attrs["current_temperature"] = snap.TemperatureF
	}
	if hasHumidity {
		attrs["current_humidity"] = snap.HumidityPercent
	}
	if state.TargetHumidity != nil {
		attrs["humidity"] = *state.TargetHumidity
	}

	value := stateUnknown
	if !state.Available {
		value = stateUnavailable
	}

	return EntityState{EntityID: "climate." + slug, State: value, Attributes: attrs}
}

func sensor(id, friendly string, available, known bool, value float64, attrs map[string]any) EntityState {
	attrs["friendly_name"] = friendly

	s := stateUnknown
	switch {
	case !available:
		s = stateUnavailable
	case known:
		s = formatNumber(value)
	}

	return EntityState{EntityID: "sensor." + id, State: s, Attributes: attrs}
}

// formatNumber renders a reading with at most one decimal.
func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
