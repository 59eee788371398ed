// Package state holds the mutable registry of modules, connectors and switch
// positions. A SystemState is not safe for concurrent use; callers serialize
// access (see core/scheduler).
package state

import (
	"sort"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/topology"
)

// SystemState is the single owned aggregate of all switching state.
type SystemState struct {
	modules    [model.ModuleSlots]model.Module
	connectors [model.ConnectorSlots]model.Connector
	relays     map[uint16]bool
	muxes      map[uint16]bool
}

// New builds the start-up state: every module alive, idle and able to supply
// maxCurrent amps, every connector inactive and every switch open.
func New(maxCurrent float64) *SystemState {
	if maxCurrent <= 0 {
		maxCurrent = model.BaseModuleCurrent
	}
	s := &SystemState{
		relays: make(map[uint16]bool, len(topology.Relays())),
		muxes:  make(map[uint16]bool, len(topology.Muxes())),
	}
	for i := 1; i < model.ModuleSlots; i++ {
		s.modules[i] = model.NewModule(uint32(i), maxCurrent)
	}
	for _, r := range topology.Relays() {
		s.relays[r.ID] = false
	}
	for _, m := range topology.Muxes() {
		s.muxes[m.ID] = false
	}
	return s
}

// Module returns the module in slot m, or nil when m is not a module slot.
func (s *SystemState) Module(m int) *model.Module {
	if !topology.ValidModule(m) {
		return nil
	}
	return &s.modules[m]
}

// Connector returns connector c, or nil for the sentinel and unknown ids.
func (s *SystemState) Connector(c model.ConnectorID) *model.Connector {
	if !c.Valid() {
		return nil
	}
	return &s.connectors[c]
}

// ConnectorActive reports whether c is a valid, active connector.
func (s *SystemState) ConnectorActive(c model.ConnectorID) bool {
	conn := s.Connector(c)
	return conn != nil && conn.Active
}

// ModuleActive reports whether module m is currently assigned.
func (s *SystemState) ModuleActive(m int) bool {
	mod := s.Module(m)
	return mod != nil && mod.Active
}

// Holder returns the connector module m is assigned to.
func (s *SystemState) Holder(m int) model.ConnectorID {
	mod := s.Module(m)
	if mod == nil {
		return model.NoConnector
	}
	return mod.Connector
}

// RelayOn reports the position of relay id. Unknown ids read as open.
func (s *SystemState) RelayOn(id uint16) bool { return s.relays[id] }

// SetRelay records the position of relay id and reports whether it changed.
func (s *SystemState) SetRelay(id uint16, on bool) bool {
	prev, ok := s.relays[id]
	if !ok || prev == on {
		return false
	}
	s.relays[id] = on
	return true
}

// MuxOn reports the position of mux id. Unknown ids read as open.
func (s *SystemState) MuxOn(id uint16) bool { return s.muxes[id] }

// SetMux records the position of mux id and reports whether it changed.
func (s *SystemState) SetMux(id uint16, on bool) bool {
	prev, ok := s.muxes[id]
	if !ok || prev == on {
		return false
	}
	s.muxes[id] = on
	return true
}

// ActiveMuxes returns the ids of the closed muxes incident to c in table order.
func (s *SystemState) ActiveMuxes(c model.ConnectorID) []uint16 {
	var ids []uint16
	for _, m := range topology.MuxesOfConnector(c) {
		if s.muxes[m.ID] {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// MuxIsolated reports whether no mux incident to c is closed.
func (s *SystemState) MuxIsolated(c model.ConnectorID) bool {
	return len(s.ActiveMuxes(c)) == 0
}

// AssignedModules lists the module slots held by c in ascending order.
func (s *SystemState) AssignedModules(c model.ConnectorID) []int {
	var out []int
	if c == model.NoConnector {
		return out
	}
	for i := 1; i < model.ModuleSlots; i++ {
		if s.modules[i].Connector == c {
			out = append(out, i)
		}
	}
	return out
}

// AssignedCurrent sums the current capability of the modules held by c.
func (s *SystemState) AssignedCurrent(c model.ConnectorID) float64 {
	total := 0.0
	for _, m := range s.AssignedModules(c) {
		total += s.modules[m].MaxCurrent
	}
	return total
}

// Relays returns the relay positions keyed by id.
func (s *SystemState) Relays() map[uint16]bool { return copyFlags(s.relays) }

// Muxes returns the mux positions keyed by id.
func (s *SystemState) Muxes() map[uint16]bool { return copyFlags(s.muxes) }

// ClosedSwitches lists the ids of every closed relay and mux, ascending.
func (s *SystemState) ClosedSwitches() []uint16 {
	var ids []uint16
	for id, on := range s.relays {
		if on {
			ids = append(ids, id)
		}
	}
	for id, on := range s.muxes {
		if on {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns a deep copy of the state.
func (s *SystemState) Clone() *SystemState {
	c := &SystemState{
		modules:    s.modules,
		connectors: s.connectors,
		relays:     copyFlags(s.relays),
		muxes:      copyFlags(s.muxes),
	}
	return c
}

// SetModule replaces module m. It is used when restoring persisted state.
func (s *SystemState) SetModule(m int, mod model.Module) bool {
	if m < 0 || m >= model.ModuleSlots {
		return false
	}
	s.modules[m] = mod
	return true
}

// SetConnector replaces connector c. It is used when restoring persisted state.
func (s *SystemState) SetConnector(c model.ConnectorID, conn model.Connector) bool {
	if !c.Valid() {
		return false
	}
	s.connectors[c] = conn
	return true
}

func copyFlags(in map[uint16]bool) map[uint16]bool {
	out := make(map[uint16]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
