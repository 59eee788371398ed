// Package snapshot captures the externally visible state after every
// rebalance cycle and command batch, and restores state from a capture.
package snapshot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/state"
	"github.com/kilianp07/powermux/core/topology"
)

// Kinds of capture.
const (
	KindCycle    = "cycle"
	KindCommands = "commands"
	KindRestore  = "restore"
	KindLive     = "live"
)

// ConnectorView is the exported state of one connector.
type ConnectorView struct {
	model.Connector
	SpareModules int `json:"spare_modules"`
}

// ModuleView is the exported state of one module slot.
type ModuleView struct {
	Active    bool     `json:"isActive"`
	Alive     bool     `json:"isAlive"`
	Connector string   `json:"Connector"`
	State     string   `json:"state"`
	Address   int      `json:"moduleAddress"`
	MaxVolt   float64  `json:"MaxVoltage"`
	MaxCurr   float64  `json:"MaxCurrent"`
	MinVolt   float64  `json:"MinVoltage"`
	MinCurr   float64  `json:"MinCurrent"`
	MaxPower  float64  `json:"MaxPower"`
	MinPower  float64  `json:"MinPower"`
	MaxTemp   float64  `json:"MaxTemperature"`
	MinTemp   float64  `json:"MinTemperature"`
	PhaseA    float64  `json:"PhaseAVoltage"`
	PhaseB    float64  `json:"PhaseBVoltage"`
	PhaseC    float64  `json:"PhaseCVoltage"`
	Temp      float64  `json:"temperature"`
	InVolt    float64  `json:"inputVoltage"`
	InCurr    float64  `json:"inputCurrent"`
	OutVolt   float64  `json:"outputVoltage"`
	OutCurr   float64  `json:"outputCurrent"`
	Fault     bool     `json:"isFaultTriggered"`
	Profiling bool     `json:"isProfilingOngoing"`
	Profile   string   `json:"ProfileType"`
	Faults    []string `json:"faultBits"`
}

// Snapshot is a consistent capture of modules, connectors and switches.
type Snapshot struct {
	Seq         uint64                   `json:"seq"`
	Kind        string                   `json:"kind"`
	Time        time.Time                `json:"time"`
	Connectors  map[string]ConnectorView `json:"connectors"`
	Modules     []ModuleView             `json:"modules"`
	Switches    map[string]bool          `json:"switches"`
	Assignments map[string][]int         `json:"assignments"`
}

// Publisher receives every snapshot taken by the scheduler.
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) error
}

// Build captures st. It must be called while the caller has exclusive
// access to st.
func Build(st *state.SystemState, seq uint64, kind string, at time.Time) Snapshot {
	s := Snapshot{
		Seq:         seq,
		Kind:        kind,
		Time:        at,
		Connectors:  make(map[string]ConnectorView, model.ConnectorCount),
		Modules:     make([]ModuleView, model.ModuleSlots),
		Switches:    make(map[string]bool, len(topology.Relays())+len(topology.Muxes())),
		Assignments: make(map[string][]int, model.ConnectorCount),
	}
	for _, c := range model.Connectors() {
		s.Connectors[c.String()] = ConnectorView{Connector: *st.Connector(c), SpareModules: st.HasSpareModules(c)}
		mods := st.AssignedModules(c)
		if mods == nil {
			mods = []int{}
		}
		s.Assignments[c.String()] = mods
	}
	s.Modules[0] = moduleView(0, model.Module{})
	for m := 1; m <= model.ModuleCount; m++ {
		s.Modules[m] = moduleView(m, *st.Module(m))
	}
	for id, on := range st.Relays() {
		s.Switches[strconv.Itoa(int(id))] = on
	}
	for id, on := range st.Muxes() {
		s.Switches[strconv.Itoa(int(id))] = on
	}
	return s
}

func moduleView(i int, m model.Module) ModuleView {
	return ModuleView{
		Active:    m.Active,
		Alive:     m.Alive,
		Connector: m.Connector.String(),
		State:     m.State.String(),
		Address:   i,
		MaxVolt:   m.MaxVoltage,
		MaxCurr:   m.MaxCurrent,
		MinVolt:   m.MinVoltage,
		MinCurr:   m.MinCurrent,
		MaxPower:  m.MaxPower,
		MinPower:  m.MinPower,
		MaxTemp:   m.MaxTemperature,
		MinTemp:   m.MinTemperature,
		PhaseA:    m.PhaseAVoltage,
		PhaseB:    m.PhaseBVoltage,
		PhaseC:    m.PhaseCVoltage,
		Temp:      m.Temperature,
		InVolt:    m.InputVoltage,
		InCurr:    m.InputCurrent,
		OutVolt:   m.OutputVoltage,
		OutCurr:   m.OutputCurrent,
		Fault:     m.FaultTriggered,
		Profiling: m.ProfilingOngoing,
		Profile:   m.ProfileType.String(),
		Faults:    m.Faults.Names(),
	}
}

// Module converts the view back into a module.
func (v ModuleView) Module() model.Module {
	c, _ := model.ParseConnector(v.Connector)
	return model.Module{
		Active:           v.Active,
		Alive:            v.Alive,
		Connector:        c,
		State:            model.ParseModuleState(v.State),
		Address:          uint32(v.Address),
		MaxVoltage:       v.MaxVolt,
		MaxCurrent:       v.MaxCurr,
		MinVoltage:       v.MinVolt,
		MinCurrent:       v.MinCurr,
		MaxPower:         v.MaxPower,
		MinPower:         v.MinPower,
		MaxTemperature:   v.MaxTemp,
		MinTemperature:   v.MinTemp,
		PhaseAVoltage:    v.PhaseA,
		PhaseBVoltage:    v.PhaseB,
		PhaseCVoltage:    v.PhaseC,
		Temperature:      v.Temp,
		InputVoltage:     v.InVolt,
		InputCurrent:     v.InCurr,
		OutputVoltage:    v.OutVolt,
		OutputCurrent:    v.OutCurr,
		FaultTriggered:   v.Fault,
		ProfilingOngoing: v.Profiling,
		ProfileType:      model.ParseProfilingType(v.Profile),
		Faults:           model.ParseFaultBits(v.Faults),
	}
}

// ErrModuleCount is wrapped by Restore when the capture does not hold every
// module slot.
var ErrModuleCount = fmt.Errorf("expected %d module records", model.ModuleSlots)

// Restore rebuilds a state from s. The module list must hold exactly one
// record per slot including the unused slot 0; anything else is rejected
// without touching st. Missing connectors are returned as skipped names.
//
// The restored state keeps the allocation invariants: a module record without
// a connector, or held by a connector that is not active once connectors are
// restored, is loaded idle. A closed relay survives only when both its
// modules belong to the same connector, a closed mux only when one
// connector holds the default pairs on both sides or one side holds the
// default pair of the other.
func Restore(st *state.SystemState, s Snapshot) (skipped []string, err error) {
	if len(s.Modules) != model.ModuleSlots {
		return nil, fmt.Errorf("%w, found %d", ErrModuleCount, len(s.Modules))
	}
	for m := 1; m <= model.ModuleCount; m++ {
		mod := s.Modules[m].Module()
		if mod.Connector == model.NoConnector || !mod.Alive {
			mod.Release()
		} else {
			mod.Active = true
		}
		st.SetModule(m, mod)
	}
	for _, c := range model.Connectors() {
		v, ok := s.Connectors[c.String()]
		if !ok {
			skipped = append(skipped, c.String())
			continue
		}
		st.SetConnector(c, v.Connector)
	}
	for m := 1; m <= model.ModuleCount; m++ {
		if mod := st.Module(m); mod.Active && !st.ConnectorActive(mod.Connector) {
			mod.Release()
		}
	}
	for _, r := range topology.Relays() {
		st.SetRelay(r.ID, false)
	}
	for _, mx := range topology.Muxes() {
		st.SetMux(mx.ID, false)
	}
	for key, on := range s.Switches {
		id, err := strconv.Atoi(key)
		if err != nil || !on {
			continue
		}
		if r, ok := topology.Relay(uint16(id)); ok {
			if a := pairHolder(st, r.A); a != model.NoConnector && a == pairHolder(st, r.B) {
				st.SetRelay(r.ID, true)
			}
			continue
		}
		if mx, ok := topology.Mux(uint16(id)); ok && muxConsistent(st, mx) {
			st.SetMux(mx.ID, true)
		}
	}
	return skipped, nil
}

// pairHolder returns the connector holding a slot of the pair starting at
// primary module m.
func pairHolder(st *state.SystemState, m int) model.ConnectorID {
	if st.ModuleActive(m) {
		return st.Holder(m)
	}
	if st.ModuleActive(m + 1) {
		return st.Holder(m + 1)
	}
	return model.NoConnector
}

func muxConsistent(st *state.SystemState, mx topology.MuxLink) bool {
	ha := pairHolder(st, topology.DefaultModule(mx.A))
	hb := pairHolder(st, topology.DefaultModule(mx.B))
	switch {
	case hb != model.NoConnector && hb == mx.A:
		return true
	case ha != model.NoConnector && ha == mx.B:
		return true
	}
	return ha != model.NoConnector && ha == hb
}
