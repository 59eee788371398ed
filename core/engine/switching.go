package engine

import (
	"fmt"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/topology"
)

func invalidConnector(c model.ConnectorID) error {
	return fmt.Errorf("%w: %d", ErrInvalidConnector, c)
}

// primaryOf returns the odd slot of the pair containing m.
func primaryOf(m int) int {
	if m%2 == 0 {
		return m - 1
	}
	return m
}

// claimPair assigns the pair (m, m+1) to c. The claim succeeds only when no
// slot of the pair is active and at least one of them is alive; dead slots
// are skipped.
func (e *Engine) claimPair(c model.ConnectorID, m int) bool {
	primary := e.st.Module(m)
	if primary == nil || !c.Valid() {
		return false
	}
	secondary := e.st.Module(m + 1)
	if primary.Active || (secondary != nil && secondary.Active) {
		return false
	}
	claimed := false
	for _, slot := range []int{m, m + 1} {
		p := e.st.Module(slot)
		if p == nil || !p.Alive {
			continue
		}
		p.Active = true
		p.Connector = c
		claimed = true
		e.emit(Event{Kind: ModuleAssigned, Connector: c, Module: slot})
	}
	if claimed {
		e.markActive(c)
	}
	return claimed
}

func (e *Engine) markActive(c model.ConnectorID) {
	conn := e.st.Connector(c)
	if conn == nil || conn.Active {
		return
	}
	conn.Active = true
	e.emit(Event{Kind: ConnectorActivated, Connector: c})
}

func (e *Engine) release(m int) {
	mod := e.st.Module(m)
	if mod == nil {
		return
	}
	prev := mod.Connector
	wasActive := mod.Active
	mod.Release()
	if wasActive || prev != model.NoConnector {
		e.emit(Event{Kind: ModuleReleased, Connector: prev, Module: m})
	}
}

func (e *Engine) setRelay(id uint16, on bool) {
	if e.st.SetRelay(id, on) {
		e.emit(Event{Kind: RelaySwitched, SwitchID: id, On: on})
	}
}

func (e *Engine) setMux(id uint16, on bool) {
	if e.st.SetMux(id, on) {
		e.emit(Event{Kind: MuxSwitched, SwitchID: id, On: on})
	}
}

// closeRelayChain closes every relay between modules a and b. Spans that do
// not resolve to a relay chain are reported and leave the fabric untouched.
func (e *Engine) closeRelayChain(a, b int) bool {
	chain, ok := topology.RelayChain(a, b)
	if !ok {
		e.log.Warnf("no relay chain between modules %d and %d", a, b)
		return false
	}
	for _, r := range chain {
		e.setRelay(r.ID, true)
	}
	return true
}

func (e *Engine) allMuxesOff(c model.ConnectorID) {
	for _, m := range topology.MuxesOfConnector(c) {
		e.setMux(m.ID, false)
	}
}
