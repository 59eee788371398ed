package metrics

import (
	"time"
)

// ConnectorReport is the allocation outcome of one connector after a cycle.
type ConnectorReport struct {
	Connector    string
	Active       bool
	Requested    float64
	Assigned     float64
	Modules      int
	Sufficient   bool
	SpareModules int
}

// Satisfaction is the share of the requested current covered, capped at 1.
// Connectors that request nothing are fully satisfied.
func (r ConnectorReport) Satisfaction() float64 {
	if r.Requested <= 0 {
		return 1
	}
	if r.Assigned >= r.Requested {
		return 1
	}
	return r.Assigned / r.Requested
}

// CycleReport summarises the state left by one rebalance cycle or command
// batch.
type CycleReport struct {
	Cycle            uint64
	Kind             string
	Time             time.Time
	Duration         time.Duration
	Connectors       []ConnectorReport
	ActiveConnectors int
	AssignedModules  int
	IdleModules      int
	Utilisation      float64
	MeanSatisfaction float64
	ClosedRelays     int
	ClosedMuxes      int
	Err              string
}

// MetricsSink records cycle reports for observability purposes.
type MetricsSink interface {
	RecordCycle(r CycleReport) error
}

// CommandEvent captures one applied command.
type CommandEvent struct {
	CommandID string
	Connector string
	Action    string
	Current   float64
	Accepted  bool
	Error     string
	Time      time.Time
}

// CommandRecorder records applied commands.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// SwitchEvent records one relay or mux transition.
type SwitchEvent struct {
	SwitchID uint16
	Kind     string
	On       bool
	Time     time.Time
}

// SwitchRecorder records switch transitions.
type SwitchRecorder interface {
	RecordSwitch(ev SwitchEvent) error
}

// PartialAllocationEvent is recorded when a connector is left under-powered.
type PartialAllocationEvent struct {
	Connector string
	Shortfall float64
	Time      time.Time
}

// PartialAllocationRecorder records under-powered allocations.
type PartialAllocationRecorder interface {
	RecordPartialAllocation(ev PartialAllocationEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordCycle(CycleReport) error                        { return nil }
func (NopSink) RecordCommand(CommandEvent) error                     { return nil }
func (NopSink) RecordSwitch(SwitchEvent) error                       { return nil }
func (NopSink) RecordPartialAllocation(PartialAllocationEvent) error { return nil }
