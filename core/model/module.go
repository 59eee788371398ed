package model

// Module slot layout: slots 1..48 hold modules, slot 0 is unused. Modules are
// managed in (odd primary, even secondary) pairs.
const (
	ModuleCount = 48
	ModuleSlots = ModuleCount + 1
	// BaseModuleCurrent is the default capability of a single module in amps.
	BaseModuleCurrent = 30.0
)

// ModuleState is the operating state reported by a power module.
type ModuleState uint8

const (
	StateNormalOff ModuleState = 0x00
	StateOn        ModuleState = 0x01
	StateFaultOff  ModuleState = 0x11
)

// String returns the wire name of the state.
func (s ModuleState) String() string {
	switch s {
	case StateNormalOff:
		return "NORMAL_OFF"
	case StateOn:
		return "ON"
	case StateFaultOff:
		return "FAULT_OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseModuleState is the inverse of String. Unknown values map to NORMAL_OFF.
func ParseModuleState(s string) ModuleState {
	switch s {
	case "ON":
		return StateOn
	case "FAULT_OFF":
		return StateFaultOff
	default:
		return StateNormalOff
	}
}

// ProfilingType is the direction of an ongoing power profiling run.
type ProfilingType uint8

const (
	ProfileIncrease ProfilingType = 0x00
	ProfileDecrease ProfilingType = 0x01
)

func (p ProfilingType) String() string {
	switch p {
	case ProfileIncrease:
		return "INCREASE"
	case ProfileDecrease:
		return "DECREASE"
	default:
		return "UNKNOWN"
	}
}

// ParseProfilingType maps "INCREASE" to ProfileIncrease and anything else to
// ProfileDecrease.
func ParseProfilingType(s string) ProfilingType {
	if s == "INCREASE" {
		return ProfileIncrease
	}
	return ProfileDecrease
}

// FaultBits is the 24-bit fault vector reported by a module.
type FaultBits uint32

// FaultBitCount is the width of the fault vector.
const FaultBitCount = 24

var faultNames = [...]string{
	"NO_FAULT", "INPUT_UNDER_VOLTAGE", "INPUT_OVER_VOLTAGE", "OUTPUT_OVER_VOLTAGE",
	"OUTPUT_OVER_CURRENT", "HIGH_TEMPERATURE", "FAN_FAULT", "HARDWARE_FAULT",
	"BUS_EXCEPTION", "SCI_COMM_EXCEPTION", "DISCHARGE_FAULT", "PFC_SHUTDOWN_EXCEPTION",
	"OUTPUT_UNDER_VOLTAGE_WARNING", "OUTPUT_OVER_VOLTAGE_WARNING", "POWER_LIMIT_HIGH_TEMP",
	"SHORT_CIRCUIT_FAULT",
}

// Has reports whether bit is set.
func (f FaultBits) Has(bit int) bool {
	if bit < 0 || bit >= FaultBitCount {
		return false
	}
	return f&(1<<uint(bit)) != 0
}

// Set returns f with bit set.
func (f FaultBits) Set(bit int) FaultBits {
	if bit < 0 || bit >= FaultBitCount {
		return f
	}
	return f | 1<<uint(bit)
}

// Names lists the names of the set bits. Bits without a name are skipped.
func (f FaultBits) Names() []string {
	names := []string{}
	for i, n := range faultNames {
		if f.Has(i) {
			names = append(names, n)
		}
	}
	return names
}

// ParseFaultBits rebuilds a vector from the names produced by Names.
// Unknown names are ignored.
func ParseFaultBits(names []string) FaultBits {
	var f FaultBits
	for _, n := range names {
		for bit, known := range faultNames {
			if n == known {
				f = f.Set(bit)
				break
			}
		}
	}
	return f
}

// Module holds the status and capability of one power module.
type Module struct {
	Alive     bool
	Active    bool
	Connector ConnectorID
	State     ModuleState
	Address   uint32

	MaxVoltage     float64
	MaxCurrent     float64
	MinVoltage     float64
	MinCurrent     float64
	MaxPower       float64
	MinPower       float64
	MaxTemperature float64
	MinTemperature float64

	PhaseAVoltage float64
	PhaseBVoltage float64
	PhaseCVoltage float64
	Temperature   float64
	InputVoltage  float64
	InputCurrent  float64
	OutputVoltage float64
	OutputCurrent float64

	FaultTriggered   bool
	ProfilingOngoing bool
	ProfileType      ProfilingType
	Faults           FaultBits
}

// NewModule returns a module in its start-up state: alive, idle and
// unassigned with the given current capability.
func NewModule(address uint32, maxCurrent float64) Module {
	return Module{
		Alive:       true,
		Address:     address,
		State:       StateNormalOff,
		MaxCurrent:  maxCurrent,
		ProfileType: ProfileIncrease,
	}
}

// Release clears the assignment of the module.
func (m *Module) Release() {
	m.Active = false
	m.Connector = NoConnector
}

// Idle reports whether the module can be claimed.
func (m Module) Idle() bool { return m.Alive && !m.Active }
