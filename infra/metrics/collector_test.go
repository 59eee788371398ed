package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/powermux/core/engine"
	coremetrics "github.com/kilianp07/powermux/core/metrics"
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/state"
	"github.com/kilianp07/powermux/internal/eventbus"
)

type eventSink struct {
	coremetrics.NopSink
	mu       sync.Mutex
	switches []coremetrics.SwitchEvent
	partial  []coremetrics.PartialAllocationEvent
}

func (s *eventSink) RecordSwitch(ev coremetrics.SwitchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switches = append(s.switches, ev)
	return nil
}

func (s *eventSink) RecordPartialAllocation(ev coremetrics.PartialAllocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = append(s.partial, ev)
	return nil
}

func (s *eventSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.switches), len(s.partial)
}

func TestEventCollectorRecordsSwitches(t *testing.T) {
	bus := eventbus.NewTyped[engine.Event]()
	sink := &eventSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, sink)

	eng := engine.New(state.New(0), nil, engine.WithEventSink(bus))
	// 180 A needs three pairs: the default pair plus two through relays.
	cmd := model.Command{ID: "x", Connector: 1, Action: model.ActionStart, TargetVoltage: 400, TargetCurrent: 180}
	require.NoError(t, eng.ApplyCommand(cmd))

	require.Eventually(t, func() bool {
		n, _ := sink.counts()
		return n >= 2
	}, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	require.Equal(t, "relay", sink.switches[0].Kind)
	require.True(t, sink.switches[0].On)
	sink.mu.Unlock()

	cancel()
	<-done
}

func TestEventCollectorStopsOnClose(t *testing.T) {
	bus := eventbus.NewTyped[engine.Event]()
	done := StartEventCollector(context.Background(), bus, &eventSink{})
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("collector did not stop")
	}
}

func TestEventCollectorNilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, &eventSink{})
	<-done
}
