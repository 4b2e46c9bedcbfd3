package domain

// Values reported for fields whose capability instance was missing from the
// most recent state query.
const (
	UnknownTemperature = -999.0
	UnknownHumidity    = -1.0
	UnknownFilterLife  = -1.0
	UnknownAirQuality  = -1
	UnknownWorkMode    = -1
	UnknownModeName    = "Unknown"
)

// Snapshot is the decoded view of a device's most recent polled state. The
// concrete type is one of *FanSnapshot, *PurifierSnapshot or
// *ThermometerSnapshot.
type Snapshot interface {
	Kind() DeviceKind
	IsOnline() bool
	snapshot()
}

type FanSnapshot struct {
	Online       bool    `json:"online"`
	PowerOn      bool    `json:"power_on"`
	Oscillating  bool    `json:"oscillating"`
	WorkMode     int     `json:"work_mode"`
	ModeName     string  `json:"mode_name"`
	ModeValue    int     `json:"mode_value"`
	SpeedPercent float64 `json:"speed_percent"`
}

func NewFanSnapshot() *FanSnapshot {
	return &FanSnapshot{WorkMode: UnknownWorkMode, ModeName: UnknownModeName}
}

func (s *FanSnapshot) Kind() DeviceKind { return DeviceKindFan }
func (s *FanSnapshot) IsOnline() bool   { return s.Online }
func (s *FanSnapshot) snapshot()        {}

type PurifierSnapshot struct {
	Online            bool    `json:"online"`
	PowerOn           bool    `json:"power_on"`
	WorkMode          int     `json:"work_mode"`
	ModeName          string  `json:"mode_name"`
	ModeValue         int     `json:"mode_value"`
	SpeedPercent      float64 `json:"speed_percent"`
	FilterLifePercent float64 `json:"filter_life_percent"`
	AirQuality        int     `json:"air_quality"`
}

func NewPurifierSnapshot() *PurifierSnapshot {
	return &PurifierSnapshot{
		WorkMode:          UnknownWorkMode,
		ModeName:          UnknownModeName,
		FilterLifePercent: UnknownFilterLife,
		AirQuality:        UnknownAirQuality,
	}
}

func (s *PurifierSnapshot) Kind() DeviceKind { return DeviceKindPurifier }
func (s *PurifierSnapshot) IsOnline() bool   { return s.Online }
func (s *PurifierSnapshot) snapshot()        {}

type ThermometerSnapshot struct {
	Online          bool    `json:"online"`
	TemperatureF    float64 `json:"temperature_f"`
	HumidityPercent float64 `json:"humidity_percent"`
}

func NewThermometerSnapshot() *ThermometerSnapshot {
	return &ThermometerSnapshot{
		TemperatureF:    UnknownTemperature,
		HumidityPercent: UnknownHumidity,
	}
}

func (s *ThermometerSnapshot) Kind() DeviceKind { return DeviceKindThermometer }
func (s *ThermometerSnapshot) IsOnline() bool   { return s.Online }
func (s *ThermometerSnapshot) snapshot()        {}
