package metrics

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/state"
)

// Summarize builds the report of st. Utilisation is the share of alive
// module capacity assigned to connectors; MeanSatisfaction averages the
// satisfaction of active connectors and is 1 when none is active.
func Summarize(st *state.SystemState, cycle uint64, kind string, at time.Time, took time.Duration) CycleReport {
	r := CycleReport{Cycle: cycle, Kind: kind, Time: at, Duration: took}

	var assigned, capacity []float64
	for m := 1; m <= model.ModuleCount; m++ {
		mod := st.Module(m)
		if !mod.Alive {
			continue
		}
		capacity = append(capacity, mod.MaxCurrent)
		if mod.Active {
			r.AssignedModules++
			assigned = append(assigned, mod.MaxCurrent)
		} else {
			r.IdleModules++
		}
	}
	if total := floats.Sum(capacity); total > 0 {
		r.Utilisation = floats.Sum(assigned) / total
	}

	var satisfaction []float64
	for _, c := range model.Connectors() {
		conn := st.Connector(c)
		cr := ConnectorReport{
			Connector:    c.String(),
			Active:       conn.Active,
			Requested:    conn.EVMaxCurrent,
			Assigned:     st.AssignedCurrent(c),
			Modules:      len(st.AssignedModules(c)),
			SpareModules: st.HasSpareModules(c),
		}
		cr.Sufficient = cr.Assigned >= cr.Requested
		if conn.Active {
			r.ActiveConnectors++
			satisfaction = append(satisfaction, cr.Satisfaction())
		}
		r.Connectors = append(r.Connectors, cr)
	}
	r.MeanSatisfaction = 1
	if len(satisfaction) > 0 {
		r.MeanSatisfaction = stat.Mean(satisfaction, nil)
	}

	for _, on := range st.Relays() {
		if on {
			r.ClosedRelays++
		}
	}
	for _, on := range st.Muxes() {
		if on {
			r.ClosedMuxes++
		}
	}
	return r
}
