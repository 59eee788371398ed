package state

import (
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/topology"
)

// spareModuleCurrent is the current one module pair is rated for when sizing
// EVSE headroom.
const spareModuleCurrent = 2 * 33.5

// HasSpareModules estimates how many module pairs the EVSE headroom of c could
// give up: (EVSEMaxCurrent - EVMaxCurrent) / 67 A, zero without headroom.
func (s *SystemState) HasSpareModules(c model.ConnectorID) int {
	conn := s.Connector(c)
	if conn == nil {
		return 0
	}
	extra := conn.EVSEMaxCurrent - conn.EVMaxCurrent
	if extra <= 0 {
		return 0
	}
	return int(extra / spareModuleCurrent)
}

// HasFreeModules reports whether subset has at least one idle module slot.
func (s *SystemState) HasFreeModules(subset int) bool {
	if subset < 1 || subset > topology.SubsetCount {
		return false
	}
	begin := topology.SubsetBegin(subset)
	for m := begin; m < begin+topology.SubsetSize; m++ {
		if !s.modules[m].Active {
			return true
		}
	}
	return false
}

// TotalCapacity sums the current capability of every alive module.
func (s *SystemState) TotalCapacity() float64 {
	total := 0.0
	for i := 1; i < model.ModuleSlots; i++ {
		if s.modules[i].Alive {
			total += s.modules[i].MaxCurrent
		}
	}
	return total
}
