package model

import (
	"strconv"
	"strings"
)

// ConnectorID identifies a charging connector. Slot 0 is the "no connector"
// sentinel used for unassigned modules.
type ConnectorID uint8

const (
	NoConnector ConnectorID = 0
	// ConnectorCount is the number of physical connectors.
	ConnectorCount = 12
	// ConnectorSlots is the size of the connector registry including the sentinel.
	ConnectorSlots = ConnectorCount + 1
)

// Valid reports whether c names a physical connector.
func (c ConnectorID) Valid() bool { return c >= 1 && c <= ConnectorCount }

// String returns the external name of the connector, e.g. "Connector3".
func (c ConnectorID) String() string {
	switch {
	case c == NoConnector:
		return "DEFAULT"
	case c.Valid():
		return "Connector" + strconv.Itoa(int(c))
	default:
		return "UNKNOWN"
	}
}

// ParseConnector converts an external connector name back to its id.
func ParseConnector(name string) (ConnectorID, bool) {
	rest, ok := strings.CutPrefix(name, "Connector")
	if !ok {
		return NoConnector, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > ConnectorCount {
		return NoConnector, false
	}
	c := ConnectorID(n)
	if c.String() != name {
		return NoConnector, false
	}
	return c, true
}

// Connectors returns the ids of all physical connectors in ascending order.
func Connectors() []ConnectorID {
	ids := make([]ConnectorID, 0, ConnectorCount)
	for c := ConnectorID(1); c <= ConnectorCount; c++ {
		ids = append(ids, c)
	}
	return ids
}

// Connector captures the EVSE and EV side of one charging outlet.
type Connector struct {
	Active bool `json:"isActive"`

	// Values reported by the power cabinet to the connector.
	EVSEMaxCurrent     float64 `json:"EVSEMaxCurrent"`
	EVSEMaxVoltage     float64 `json:"EVSEMaxVoltage"`
	EVSEMinCurrent     float64 `json:"EVSEMinCurrent"`
	EVSEMinVoltage     float64 `json:"EVSEMinVoltage"`
	EVSEPresentCurrent float64 `json:"EVSEPresentCurrent"`
	EVSEPresentVoltage float64 `json:"EVSEPresentVoltage"`
	EVSEMaxPower       float64 `json:"EVSEMaxPower"`

	// Values requested by the vehicle. EVMaxCurrent is the current the
	// allocation tries to cover.
	EVMaxCurrent    float64 `json:"EVMaxCurrent"`
	EVMaxVoltage    float64 `json:"EVMaxVoltage"`
	EVTargetCurrent float64 `json:"EVTargetCurrent"`
	EVTargetVoltage float64 `json:"EVTargetVoltage"`
	EVMaxPower      float64 `json:"EVMaxPower"`
}

// RequestedCurrent is the current the vehicle asked for.
func (c Connector) RequestedCurrent() float64 { return c.EVMaxCurrent }
