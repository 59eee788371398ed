package topology

import "github.com/kilianp07/powermux/core/model"

// ValidModule reports whether m is a physical module slot.
func ValidModule(m int) bool { return m >= 1 && m <= model.ModuleCount }

// DefaultModule returns the primary module that feeds connector c directly.
// Odd connectors sit on the first slot of their subset, even ones on the
// last primary slot.
func DefaultModule(c model.ConnectorID) int {
	n := int(c)
	base := ((n - 1) / 2) * SubsetSize
	if n%2 == 1 {
		return base + 1
	}
	return base + 7
}

// Subset returns the 1-based subset that contains connector c.
func Subset(c model.ConnectorID) int { return (int(c)-1)/2 + 1 }

// Superset returns the 1-based superset that contains connector c.
func Superset(c model.ConnectorID) int { return (int(c)-1)/4 + 1 }

// SubsetBegin returns the first module slot of subset s.
func SubsetBegin(s int) int { return (s-1)*SubsetSize + 1 }

// SupersetBegin returns the first module slot of superset s.
func SupersetBegin(s int) int { return (s-1)*SupersetSize + 1 }

// ModuleSubset returns the 1-based subset of module m.
func ModuleSubset(m int) int { return (m-1)/SubsetSize + 1 }

// DefaultConnector returns the connector whose default module is m, or
// NoConnector for modules that are not a default supply point.
func DefaultConnector(m int) model.ConnectorID {
	if !ValidModule(m) {
		return model.NoConnector
	}
	subset := ModuleSubset(m)
	switch m - SubsetBegin(subset) {
	case 0:
		return model.ConnectorID(subset*2 - 1)
	case 6:
		return model.ConnectorID(subset * 2)
	default:
		return model.NoConnector
	}
}

// RelayBetween returns the relay directly joining modules a and b.
func RelayBetween(a, b int) (RelayLink, bool) {
	for _, r := range relays {
		if (r.A == a && r.B == b) || (r.A == b && r.B == a) {
			return r, true
		}
	}
	return RelayLink{}, false
}

// RelaysOfModule returns the relays attached to module m in table order.
func RelaysOfModule(m int) []RelayLink {
	var out []RelayLink
	for _, r := range relays {
		if r.Touches(m) {
			out = append(out, r)
			if len(out) == 2 {
				break
			}
		}
	}
	return out
}

// RelayChain decomposes the span between modules a and b into the chain of
// adjacent relays that must be closed to join them. Spans of 2, 4 and 6 slots
// inside a subset are supported; anything else reports ok=false.
func RelayChain(a, b int) ([]RelayLink, bool) {
	if a > b {
		a, b = b, a
	}
	span := b - a
	if span != 2 && span != 4 && span != 6 {
		return nil, false
	}
	chain := make([]RelayLink, 0, span/2)
	for m := a; m < b; m += 2 {
		r, ok := RelayBetween(m, m+2)
		if !ok {
			return nil, false
		}
		chain = append(chain, r)
	}
	return chain, true
}

// MuxBetween returns the mux directly joining connectors a and b.
func MuxBetween(a, b model.ConnectorID) (MuxLink, bool) {
	for _, m := range muxes {
		if (m.A == a && m.B == b) || (m.A == b && m.B == a) {
			return m, true
		}
	}
	return MuxLink{}, false
}

// MuxesOfConnector returns every mux incident to c in table order: up to two
// normal muxes, one super mux and an optional extra one.
func MuxesOfConnector(c model.ConnectorID) []MuxLink {
	var out []MuxLink
	for _, m := range muxes {
		if m.Touches(c) {
			out = append(out, m)
		}
	}
	return out
}

// MirrorMux returns the odd/even sibling of a normal mux id (301<->302, ...).
// Super muxes have no mirror.
func MirrorMux(id uint16) (uint16, bool) {
	if id >= SuperMuxBase || id < 300 {
		return 0, false
	}
	if id%2 == 1 {
		return id + 1, true
	}
	return id - 1, true
}

// ChainTargets returns the same-subset modules reachable from the default
// module of a connector, nearest first. Even connectors extend downward and
// odd connectors upward.
func ChainTargets(c model.ConnectorID) []int {
	start := DefaultModule(c)
	step := 2
	if int(c)%2 == 0 {
		step = -2
	}
	return []int{start + step, start + 2*step, start + 3*step}
}

// RelaysOfSubset returns the relays inside subset s in table order.
func RelaysOfSubset(s int) []RelayLink {
	var out []RelayLink
	for _, r := range relays {
		if ModuleSubset(r.A) == s {
			out = append(out, r)
		}
	}
	return out
}
