package charger

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	modbus "github.com/hootrhino/solix-modbus"
)

// Telemetry registers, Anker SOLIX V1 Modbus protocol.
const (
	RegLNVoltageL1  = 20053 // uint16, V x10
	RegLNVoltageL2  = 20054
	RegLNVoltageL3  = 20055
	RegLLVoltageL12 = 20056
	RegLLVoltageL23 = 20057
	RegLLVoltageL31 = 20058

	RegCurrentL1 = 20059 // uint16, A x100
	RegCurrentL2 = 20060
	RegCurrentL3 = 20061

	RegActivePowerL1    = 20062 // uint32, W
	RegActivePowerL2    = 20064
	RegActivePowerL3    = 20066
	RegTotalActivePower = 20068

	RegReactivePowerL1 = 20070 // uint32
	RegReactivePowerL2 = 20072
	RegReactivePowerL3 = 20074

	RegApparentPowerL1 = 20076 // uint32
	RegApparentPowerL2 = 20078
	RegApparentPowerL3 = 20080

	RegSessionDuration = 20082 // uint32, s
	RegSessionEnergy   = 20084 // uint32, Wh

	RegOperatingMode         = 20086
	RegPWMEnabled            = 20089
	RegChargingMode          = 20090
	RegCPSignalStatus        = 20092
	RegLoadBalancingEnabled  = 20093
	RegSolarBalancingEnabled = 20094
	RegCPAcquisitionVoltage  = 20095
	RegLEDBrightness         = 20096 // %
	RegChargingStatus        = 20097 // 0..8
	RegRelay1Temperature     = 20098 // °C
	RegRelay2Temperature     = 20099
)

// Control registers, write only.
const (
	RegCommand      = 21000 // 1 start, 2 stop
	RegBoost        = 21001 // 1 on, once per session
	RegTimeout      = 21002 // seconds, > 5
	RegPhaseSetting = 21003 // 0 auto, 1 single, 2 three
	RegMaxCurrent   = 21004 // A
)

// EnumMap names the raw values of an enumerated register.
type EnumMap map[uint32]string

// Name returns the state name of raw, or unknown_<raw>.
func (m EnumMap) Name(raw uint32) string {
	if name, ok := m[raw]; ok {
		return name
	}
	return fmt.Sprintf("unknown_%d", raw)
}

// Options returns the known state names ordered by raw value.
func (m EnumMap) Options() []string {
	var highest uint32
	for raw := range m {
		if raw > highest {
			highest = raw
		}
	}
	options := make([]string, 0, len(m))
	for raw := uint32(0); raw <= highest; raw++ {
		if name, ok := m[raw]; ok {
			options = append(options, name)
		}
	}
	return options
}

var (
	ChargingStatusMap = EnumMap{
		0: "idle",
		1: "preparing",
		2: "charging",
		3: "charger_paused",
		4: "vehicle_paused",
		5: "charging_completed",
		6: "reserving",
		7: "disabled",
		8: "error",
	}
	OperatingModeMap        = EnumMap{1: "single_phase", 3: "three_phase"}
	ChargingModeMap         = EnumMap{0: "solar+grid", 1: "only_solar"}
	CPAcquisitionVoltageMap = EnumMap{
		0:  "A (12V)",
		3:  "B1 (9V)",
		4:  "B2 (9V)",
		5:  "C1 (6V)",
		6:  "C2 (6V)",
		7:  "Error",
		8:  "D1 (3V)",
		9:  "D2 (3V)",
		10: "E (0V)",
		11: "F (-12V)",
	}
	PhaseMap = EnumMap{0: "auto", 1: "single_phase", 2: "three_phase"}
)

// Phase is the phase setting written to RegPhaseSetting.
type Phase uint16

const (
	PhaseAuto   Phase = 0
	PhaseSingle Phase = 1
	PhaseThree  Phase = 2
)

func (p Phase) String() string {
	return PhaseMap.Name(uint32(p))
}

// ParsePhase maps "auto", "single_phase" or "three_phase" to a Phase.
func ParsePhase(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for raw, name := range PhaseMap {
		if name == s {
			return Phase(raw), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown phase %q, expected one of %v", s, PhaseMap.Options())
}

// Width is the number of bits a sensor occupies.
type Width int

const (
	Width16 Width = 16
	Width32 Width = 32
)

// Sensor describes one telemetry point of the charger.
type Sensor struct {
	Key         string
	Name        string
	Register    int
	Width       Width
	Scale       float64 // divisor applied to the raw value, 0 means none
	Unit        string
	DeviceClass string
	States      EnumMap // enumerated sensors only
	Binary      bool    // 0/1 flag
}

// Reading is a decoded sensor value.
type Reading struct {
	Key   string
	Raw   uint32
	Value float64
	State string // enum name, "on"/"off" for flags, the formatted value otherwise
}

// Decode converts a raw register value into a Reading.
func (s Sensor) Decode(raw uint32) Reading {
	r := Reading{Key: s.Key, Raw: raw, Value: float64(raw)}
	if s.Scale > 0 {
		r.Value = float64(raw) / s.Scale
	}
	switch {
	case s.States != nil:
		r.State = s.States.Name(raw)
	case s.Binary:
		r.State = "off"
		if raw == 1 {
			r.State = "on"
		}
	case s.Scale > 0:
		r.State = fmt.Sprintf("%g", r.Value)
	default:
		r.State = fmt.Sprintf("%d", raw)
	}
	return r
}

// Read fetches and decodes the sensor.
func (s Sensor) Read(ctx context.Context, client modbus.RegisterClient) (Reading, error) {
	var raw uint32
	switch s.Width {
	case Width32:
		v, err := client.ReadU32(ctx, s.Register)
		if err != nil {
			return Reading{}, errors.Wrapf(err, "read %s", s.Key)
		}
		raw = v
	default:
		v, err := client.ReadU16(ctx, s.Register)
		if err != nil {
			return Reading{}, errors.Wrapf(err, "read %s", s.Key)
		}
		raw = uint32(v)
	}
	return s.Decode(raw), nil
}

// Sensor keys of the poll snapshot.
const (
	KeyChargingStatus = "charging_status"
	KeyPower          = "power_w"
	KeyDuration       = "duration_s"
	KeyEnergy         = "energy_wh"
)

var (
	chargingStatusSensor = Sensor{Key: KeyChargingStatus, Name: "Charging Status", Register: RegChargingStatus, Width: Width16, DeviceClass: "enum", States: ChargingStatusMap}
	powerSensor          = Sensor{Key: KeyPower, Name: "Total Active Power", Register: RegTotalActivePower, Width: Width32, Unit: "W", DeviceClass: "power"}
	durationSensor       = Sensor{Key: KeyDuration, Name: "Session Duration", Register: RegSessionDuration, Width: Width32, Unit: "s", DeviceClass: "duration"}
	energySensor         = Sensor{Key: KeyEnergy, Name: "Session Energy", Register: RegSessionEnergy, Width: Width32, Unit: "Wh", DeviceClass: "energy"}
)

// Sensors is the full telemetry table.
var Sensors = []Sensor{
	chargingStatusSensor,
	powerSensor,
	energySensor,
	durationSensor,

	{Key: "v_l1n", Name: "L1-N Voltage", Register: RegLNVoltageL1, Width: Width16, Scale: 10, Unit: "V", DeviceClass: "voltage"},
	{Key: "v_l2n", Name: "L2-N Voltage", Register: RegLNVoltageL2, Width: Width16, Scale: 10, Unit: "V", DeviceClass: "voltage"},
	{Key: "v_l3n", Name: "L3-N Voltage", Register: RegLNVoltageL3, Width: Width16, Scale: 10, Unit: "V", DeviceClass: "voltage"},
	{Key: "v_l12", Name: "L1-L2 Voltage", Register: RegLLVoltageL12, Width: Width16, Scale: 10, Unit: "V", DeviceClass: "voltage"},
	{Key: "v_l23", Name: "L2-L3 Voltage", Register: RegLLVoltageL23, Width: Width16, Scale: 10, Unit: "V", DeviceClass: "voltage"},
	{Key: "v_l31", Name: "L3-L1 Voltage", Register: RegLLVoltageL31, Width: Width16, Scale: 10, Unit: "V", DeviceClass: "voltage"},

	{Key: "i_l1", Name: "L1 Current", Register: RegCurrentL1, Width: Width16, Scale: 100, Unit: "A", DeviceClass: "current"},
	{Key: "i_l2", Name: "L2 Current", Register: RegCurrentL2, Width: Width16, Scale: 100, Unit: "A", DeviceClass: "current"},
	{Key: "i_l3", Name: "L3 Current", Register: RegCurrentL3, Width: Width16, Scale: 100, Unit: "A", DeviceClass: "current"},

	{Key: "p_l1", Name: "L1 Active Power", Register: RegActivePowerL1, Width: Width32, Unit: "W", DeviceClass: "power"},
	{Key: "p_l2", Name: "L2 Active Power", Register: RegActivePowerL2, Width: Width32, Unit: "W", DeviceClass: "power"},
	{Key: "p_l3", Name: "L3 Active Power", Register: RegActivePowerL3, Width: Width32, Unit: "W", DeviceClass: "power"},

	{Key: "q_l1", Name: "L1 Reactive Power", Register: RegReactivePowerL1, Width: Width32, Unit: "W"},
	{Key: "q_l2", Name: "L2 Reactive Power", Register: RegReactivePowerL2, Width: Width32, Unit: "W"},
	{Key: "q_l3", Name: "L3 Reactive Power", Register: RegReactivePowerL3, Width: Width32, Unit: "W"},

	{Key: "s_l1", Name: "L1 Apparent Power", Register: RegApparentPowerL1, Width: Width32, Unit: "W"},
	{Key: "s_l2", Name: "L2 Apparent Power", Register: RegApparentPowerL2, Width: Width32, Unit: "W"},
	{Key: "s_l3", Name: "L3 Apparent Power", Register: RegApparentPowerL3, Width: Width32, Unit: "W"},

	{Key: "operating_mode", Name: "Operating Mode", Register: RegOperatingMode, Width: Width16, DeviceClass: "enum", States: OperatingModeMap},
	{Key: "charging_mode", Name: "Charging Mode", Register: RegChargingMode, Width: Width16, DeviceClass: "enum", States: ChargingModeMap},
	{Key: "cp_acq_voltage", Name: "CP Acquisition Voltage", Register: RegCPAcquisitionVoltage, Width: Width16, DeviceClass: "enum", States: CPAcquisitionVoltageMap},

	{Key: "pwm_enabled", Name: "PWM Enabled", Register: RegPWMEnabled, Width: Width16, Binary: true},
	{Key: "load_balancing_enabled", Name: "Load Balancing Enabled", Register: RegLoadBalancingEnabled, Width: Width16, Binary: true},
	{Key: "solar_balancing_enabled", Name: "Solar Balancing Enabled", Register: RegSolarBalancingEnabled, Width: Width16, Binary: true},
	{Key: "cp_signal_status", Name: "CP Signal Status", Register: RegCPSignalStatus, Width: Width16, Binary: true},

	{Key: "led_brightness", Name: "LED Brightness", Register: RegLEDBrightness, Width: Width16, Unit: "%"},
	{Key: "relay1_temp", Name: "Relay 1 Temperature", Register: RegRelay1Temperature, Width: Width16, Unit: "°C", DeviceClass: "temperature"},
	{Key: "relay2_temp", Name: "Relay 2 Temperature", Register: RegRelay2Temperature, Width: Width16, Unit: "°C", DeviceClass: "temperature"},
}

// SensorByKey looks up a sensor of the telemetry table.
func SensorByKey(key string) (Sensor, bool) {
	for _, s := range Sensors {
		if s.Key == key {
			return s, true
		}
	}
	return Sensor{}, false
}
