package domain

// Capability instance names understood by the codec.
const (
	InstancePowerSwitch       = "powerSwitch"
	InstanceOscillationToggle = "oscillationToggle"
	InstanceWorkMode          = "workMode"
	InstanceGear              = "gear"
	InstanceMode              = "mode"
	InstanceSensorTemperature = "sensorTemperature"
	InstanceSensorHumidity    = "sensorHumidity"
	InstanceFilterLifeTime    = "filterLifeTime"
	InstanceAirQuality        = "airQuality"
	InstanceOnline            = "online"
)

// Command asks the vendor to set one capability instance to a value.
type Command struct {
	Instance string `json:"instance"`
	Value    int    `json:"value"`
}

func PowerCommand(on bool) Command {
	return Command{Instance: InstancePowerSwitch, Value: boolToInt(on)}
}

func OscillationCommand(on bool) Command {
	return Command{Instance: InstanceOscillationToggle, Value: boolToInt(on)}
}

func GearCommand(gear int) Command {
	return Command{Instance: InstanceGear, Value: gear}
}

func ModeCommand(code int) Command {
	return Command{Instance: InstanceMode, Value: code}
}

type Action string

const (
	ActionTurnOn        Action = "turn_on"
	ActionTurnOff       Action = "turn_off"
	ActionOscillate     Action = "oscillate"
	ActionSetPercentage Action = "set_percentage"
	ActionSetPresetMode Action = "set_preset_mode"
	ActionSetHumidity   Action = "set_humidity"
	ActionUnknown       Action = "unknown"
)

// Intent is a caller-level request. It is planned into one or more Commands
// for the device's model.
type Intent struct {
	Action     Action  `json:"action"`
	On         bool    `json:"on,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	PresetMode string  `json:"preset_mode,omitempty"`
	Humidity   float64 `json:"humidity,omitempty"`
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
