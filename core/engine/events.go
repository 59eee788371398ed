package engine

import (
	"time"

	"github.com/kilianp07/powermux/core/model"
)

// EventKind classifies engine events.
type EventKind int

const (
	ModuleAssigned EventKind = iota
	ModuleReleased
	RelaySwitched
	MuxSwitched
	ConnectorActivated
	ConnectorStopped
	PartialAllocation
)

func (k EventKind) String() string {
	switch k {
	case ModuleAssigned:
		return "module_assigned"
	case ModuleReleased:
		return "module_released"
	case RelaySwitched:
		return "relay_switched"
	case MuxSwitched:
		return "mux_switched"
	case ConnectorActivated:
		return "connector_activated"
	case ConnectorStopped:
		return "connector_stopped"
	case PartialAllocation:
		return "partial_allocation"
	default:
		return "unknown"
	}
}

// Event describes one change applied by the engine.
type Event struct {
	Kind      EventKind
	Connector model.ConnectorID
	Module    int
	SwitchID  uint16
	On        bool
	// Shortfall is the missing current for PartialAllocation events.
	Shortfall float64
	Time      time.Time
}

// IsSwitch reports whether the event moves a relay or a mux.
func (e Event) IsSwitch() bool { return e.Kind == RelaySwitched || e.Kind == MuxSwitched }

// EventSink receives engine events. eventbus.TypedBus[Event] satisfies it.
type EventSink interface {
	Publish(Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

// Recorder is an EventSink that keeps every event in memory.
type Recorder struct {
	Events []Event
}

// Publish appends e.
func (r *Recorder) Publish(e Event) { r.Events = append(r.Events, e) }

// Count returns the number of recorded events of kind k.
func (r *Recorder) Count(k EventKind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
