package metrics

import (
	"context"

	"github.com/kilianp07/powermux/core/engine"
	coremetrics "github.com/kilianp07/powermux/core/metrics"
	"github.com/kilianp07/powermux/internal/eventbus"
)

// StartEventCollector subscribes to the engine event bus and records switch
// transitions and partial allocations on sink. It stops when ctx is cancelled
// or the bus is closed; the returned channel is closed on exit.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[engine.Event], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev engine.Event) {
	switch ev.Kind {
	case engine.RelaySwitched, engine.MuxSwitched:
		r, ok := sink.(coremetrics.SwitchRecorder)
		if !ok {
			return
		}
		kind := "relay"
		if ev.Kind == engine.MuxSwitched {
			kind = "mux"
		}
		_ = r.RecordSwitch(coremetrics.SwitchEvent{SwitchID: ev.SwitchID, Kind: kind, On: ev.On, Time: ev.Time})
	case engine.PartialAllocation:
		if r, ok := sink.(coremetrics.PartialAllocationRecorder); ok {
			_ = r.RecordPartialAllocation(coremetrics.PartialAllocationEvent{
				Connector: ev.Connector.String(),
				Shortfall: ev.Shortfall,
				Time:      ev.Time,
			})
		}
	}
}
