package capability

import (
	"sort"
	"strings"

	"govee-bridge/internal/domain"
)

var fanModes = map[int]string{
	1: "Normal",
	2: "Custom",
	5: "Sleep",
	6: "Nature",
}

var purifierModes = map[int]string{
	0: "Custom",
	1: "Sleeping",
	2: "Low",
	3: "High",
}

func modeTable(model domain.Model) map[int]string {
	switch model.Kind() {
	case domain.DeviceKindFan:
		return fanModes
	case domain.DeviceKindPurifier:
		return purifierModes
	default:
		return nil
	}
}

// ModeName returns the label of a work-mode code, or "Unknown".
func ModeName(model domain.Model, code int) string {
	if name, ok := modeTable(model)[code]; ok {
		return name
	}
	return domain.UnknownModeName
}

// ModeCode looks a preset name up case-insensitively.
func ModeCode(model domain.Model, name string) (int, bool) {
	for code, label := range modeTable(model) {
		if strings.EqualFold(label, strings.TrimSpace(name)) {
			return code, true
		}
	}
	return 0, false
}

// PresetModes lists the mode labels of a model ordered by code.
func PresetModes(model domain.Model) []string {
	table := modeTable(model)
	codes := make([]int, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	names := make([]string, 0, len(codes))
	for _, code := range codes {
		names = append(names, table[code])
	}
	return names
}

// Gears is the number of speed steps of a model, 0 when it has no speed.
func Gears(model domain.Model) int {
	switch model.Kind() {
	case domain.DeviceKindFan:
		return 8
	case domain.DeviceKindPurifier:
		return 4
	default:
		return 0
	}
}
