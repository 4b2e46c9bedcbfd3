package capability

import (
	"math"

	"govee-bridge/internal/domain"
)

// The router control endpoint only accepts the toggles; gear and mode changes
// must go through the appliance endpoint or the vendor silently ignores them.
type instanceSpec struct {
	route   Route
	capType string
	valid   func(model domain.Model, value int) bool
}

var (
	powerSpec       = instanceSpec{route: RouteRouter, capType: TypeOnOff, valid: isBinary}
	oscillationSpec = instanceSpec{route: RouteRouter, capType: TypeToggle, valid: isBinary}
	gearSpec        = instanceSpec{route: RouteLegacy, valid: isGear}
	modeSpec        = instanceSpec{route: RouteLegacy, valid: isMode}
)

var instanceTables = map[domain.Model]map[string]instanceSpec{
	domain.ModelTowerFan: {
		domain.InstancePowerSwitch:       powerSpec,
		domain.InstanceOscillationToggle: oscillationSpec,
		domain.InstanceGear:              gearSpec,
		domain.InstanceMode:              modeSpec,
	},
	domain.ModelAirPurifier: {
		domain.InstancePowerSwitch: powerSpec,
		domain.InstanceGear:        gearSpec,
		domain.InstanceMode:        modeSpec,
	},
	domain.ModelThermometer: {},
}

// Supports reports whether model accepts commands for instance.
func Supports(model domain.Model, instance string) bool {
	_, ok := instanceTables[model][instance]
	return ok
}

// Encode turns a command into its wire shape and picks the endpoint.
func Encode(model domain.Model, cmd domain.Command) (Wire, error) {
	entry, ok := instanceTables[model][cmd.Instance]
	if !ok {
		return Wire{}, &domain.UnsupportedCapabilityError{Model: model, Instance: cmd.Instance}
	}
	if !entry.valid(model, cmd.Value) {
		return Wire{}, &domain.UnsupportedCapabilityError{Model: model, Instance: cmd.Instance, Value: cmd.Value}
	}

	if entry.route == RouteLegacy {
		return Wire{
			Route:  RouteLegacy,
			Legacy: LegacyCommand{Name: cmd.Instance, Value: cmd.Value},
		}, nil
	}
	return Wire{
		Route:  RouteRouter,
		Router: RouterCapability{Type: entry.capType, Instance: cmd.Instance, Value: cmd.Value},
	}, nil
}

// Plan expands an intent into the commands that realise it, in the order
// they must be sent.
func Plan(model domain.Model, intent domain.Intent) ([]domain.Command, error) {
	var cmds []domain.Command

	switch intent.Action {
	case domain.ActionTurnOn:
		cmds = append(cmds, domain.PowerCommand(true))
		if intent.PresetMode != "" {
			cmd, err := presetCommand(model, intent.PresetMode)
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, cmd)
		}
		if intent.Percentage > 0 {
			cmd, err := percentageCommand(model, intent.Percentage)
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, cmd)
		}
	case domain.ActionTurnOff:
		cmds = append(cmds, domain.PowerCommand(false))
	case domain.ActionOscillate:
		cmds = append(cmds, domain.OscillationCommand(intent.On))
	case domain.ActionSetPercentage:
		cmd, err := percentageCommand(model, intent.Percentage)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	case domain.ActionSetPresetMode:
		cmd, err := presetCommand(model, intent.PresetMode)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	case domain.ActionSetHumidity:
		return nil, &domain.UnsupportedCapabilityError{Model: model, Instance: "targetHumidity"}
	default:
		return nil, &domain.UnsupportedCapabilityError{Model: model, Instance: string(intent.Action)}
	}

	for _, cmd := range cmds {
		if _, err := Encode(model, cmd); err != nil {
			return nil, err
		}
	}
	return cmds, nil
}

// GearForPercentage maps 1..100 onto the model's gears, rounding up so any
// non-zero percentage runs the device.
func GearForPercentage(model domain.Model, pct float64) int {
	gears := Gears(model)
	if gears == 0 || pct <= 0 {
		return 0
	}
	gear := int(math.Ceil(pct / 100 * float64(gears)))
	if gear < 1 {
		gear = 1
	}
	if gear > gears {
		gear = gears
	}
	return gear
}

func percentageCommand(model domain.Model, pct float64) (domain.Command, error) {
	if pct < 0 || pct > 100 {
		return domain.Command{}, &domain.UnsupportedCapabilityError{Model: model, Instance: domain.InstanceGear, Value: pct}
	}
	if pct == 0 {
		return domain.PowerCommand(false), nil
	}
	if Gears(model) == 0 {
		return domain.Command{}, &domain.UnsupportedCapabilityError{Model: model, Instance: domain.InstanceGear}
	}
	return domain.GearCommand(GearForPercentage(model, pct)), nil
}

func presetCommand(model domain.Model, preset string) (domain.Command, error) {
	code, ok := ModeCode(model, preset)
	if !ok {
		return domain.Command{}, &domain.UnsupportedCapabilityError{Model: model, Instance: domain.InstanceMode, Value: preset}
	}
	return domain.ModeCommand(code), nil
}

func isBinary(_ domain.Model, v int) bool {
	return v == 0 || v == 1
}

func isGear(model domain.Model, v int) bool {
	return v >= 1 && v <= Gears(model)
}

func isMode(model domain.Model, v int) bool {
	_, ok := modeTable(model)[v]
	return ok
}
