package topology

import "github.com/kilianp07/powermux/core/model"

const (
	// SubsetSize is the number of module slots sharing relay interconnects.
	SubsetSize = 8
	// SupersetSize is the number of module slots reachable through super muxes.
	SupersetSize = 16
	// SubsetCount and SupersetCount cover the 48 module slots.
	SubsetCount   = model.ModuleCount / SubsetSize
	SupersetCount = model.ModuleCount / SupersetSize

	// SuperMuxBase separates "normal" muxes (300s) from "super" muxes (400s).
	SuperMuxBase = 400
)

// RelayLink is a bypass relay joining two primary modules two slots apart.
type RelayLink struct {
	ID uint16
	A  int
	B  int
}

// Touches reports whether the relay is connected to module m.
func (r RelayLink) Touches(m int) bool { return r.A == m || r.B == m }

// Other returns the module on the other side of the relay.
func (r RelayLink) Other(m int) int {
	if r.A == m {
		return r.B
	}
	return r.A
}

// MuxLink joins the module groups of two connectors.
type MuxLink struct {
	ID uint16
	A  model.ConnectorID
	B  model.ConnectorID
}

// Super reports whether the mux bridges two supersets.
func (m MuxLink) Super() bool { return m.ID >= SuperMuxBase }

// Touches reports whether c is one of the mux endpoints.
func (m MuxLink) Touches(c model.ConnectorID) bool { return m.A == c || m.B == c }

// Peer returns the endpoint opposite to c.
func (m MuxLink) Peer(c model.ConnectorID) model.ConnectorID {
	if m.A == c {
		return m.B
	}
	return m.A
}

var relays = [...]RelayLink{
	{201, 1, 3}, {202, 3, 5}, {203, 5, 7},
	{204, 9, 11}, {205, 11, 13}, {206, 13, 15},
	{207, 17, 19}, {208, 19, 21}, {209, 21, 23},
	{210, 25, 27}, {211, 27, 29}, {212, 29, 31},
	{213, 33, 35}, {214, 35, 37}, {215, 37, 39},
	{216, 41, 43}, {217, 43, 45}, {218, 45, 47},
}

var muxes = [...]MuxLink{
	{301, 1, 3}, {302, 1, 4}, {303, 2, 3}, {304, 2, 4},
	{305, 5, 7}, {306, 5, 8}, {307, 6, 7}, {308, 6, 8},
	{309, 9, 11}, {310, 9, 12}, {311, 10, 11}, {312, 10, 12},
	{401, 4, 5}, {402, 8, 9}, {403, 1, 12},
}

// Relays returns a copy of the relay table in table order.
func Relays() []RelayLink {
	out := make([]RelayLink, len(relays))
	copy(out, relays[:])
	return out
}

// Muxes returns a copy of the mux table in table order.
func Muxes() []MuxLink {
	out := make([]MuxLink, len(muxes))
	copy(out, muxes[:])
	return out
}

// Relay looks a relay up by id.
func Relay(id uint16) (RelayLink, bool) {
	for _, r := range relays {
		if r.ID == id {
			return r, true
		}
	}
	return RelayLink{}, false
}

// Mux looks a mux up by id.
func Mux(id uint16) (MuxLink, bool) {
	for _, m := range muxes {
		if m.ID == id {
			return m, true
		}
	}
	return MuxLink{}, false
}
