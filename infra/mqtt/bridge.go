package mqtt

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/kilianp07/powermux/core/engine"
	"github.com/kilianp07/powermux/infra/logger"
	"github.com/kilianp07/powermux/internal/eventbus"
)

// SwitchOrder is published on <prefix>/switch/<id>/set for every relay or
// mux transition decided by the engine.
type SwitchOrder struct {
	CommandID string `json:"command_id"`
	SwitchID  uint16 `json:"switch_id"`
	Kind      string `json:"kind"`
	On        bool   `json:"on"`
	Timestamp int64  `json:"timestamp"`
}

// SwitchBridge forwards relay and mux events to the hardware controllers.
type SwitchBridge struct {
	client *Client
	log    logger.Logger
}

// NewSwitchBridge publishes through client.
func NewSwitchBridge(client *Client) *SwitchBridge {
	return &SwitchBridge{client: client, log: logger.New("switch_bridge")}
}

// Start consumes bus until ctx is cancelled or the bus is closed. The
// returned channel is closed on exit.
func (b *SwitchBridge) Start(ctx context.Context, bus *eventbus.TypedBus[engine.Event]) <-chan struct{} {
	done := make(chan struct{})
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
				if !ev.IsSwitch() {
					continue
				}
				if err := b.Forward(ev); err != nil {
					b.log.Errorf("switch %d: %v", ev.SwitchID, err)
				}
			}
		}
	}()
	return done
}

// Forward publishes one switch order for ev.
func (b *SwitchBridge) Forward(ev engine.Event) error {
	kind := "relay"
	if ev.Kind == engine.MuxSwitched {
		kind = "mux"
	}
	order := SwitchOrder{
		CommandID: uuid.NewString(),
		SwitchID:  ev.SwitchID,
		Kind:      kind,
		On:        ev.On,
		Timestamp: ev.Time.UnixMilli(),
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	topic := b.client.Config().Topic("switch", strconv.Itoa(int(ev.SwitchID)), "set")
	if err := b.client.Publish(topic, "switch", false, payload); err != nil {
		return err
	}
	b.log.Debugf("switch %s %d on=%t (%s)", kind, ev.SwitchID, ev.On, order.CommandID)
	return nil
}
