package engine

import (
	"fmt"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/topology"
)

// IsolateModule releases the pair containing module m and opens every relay
// attached to it. Isolating an idle pair is a no-op.
func (e *Engine) IsolateModule(m int) error {
	if !topology.ValidModule(m) {
		err := fmt.Errorf("%w: %d", ErrInvalidModule, m)
		e.log.Errorf("isolate module: %v", err)
		return err
	}
	primary := primaryOf(m)
	e.release(primary)
	e.release(primary + 1)
	for _, r := range topology.RelaysOfModule(primary) {
		e.setRelay(r.ID, false)
	}
	return nil
}

// IsolateConnector tears down whatever currently occupies the supply path of
// an inactive connector and opens all of its muxes.
//
// When the default module of c is held by another connector p the teardown
// widens with the mux situation: only the default pair when c has no closed
// mux, every module p holds in the superset of c when the direct mux to p and
// a second mux of c are closed, and every module p holds in the subset of c
// otherwise.
func (e *Engine) IsolateConnector(c model.ConnectorID) error {
	conn, err := e.connector(c)
	if err != nil {
		e.log.Errorf("isolate connector: %v", err)
		return err
	}
	if conn.Active {
		err := fmt.Errorf("%w: %s must be stopped first", ErrConnectorActive, c)
		e.log.Errorf("isolate connector: %v", err)
		return err
	}

	def := topology.DefaultModule(c)
	if !e.st.ModuleActive(def) && e.st.MuxIsolated(c) {
		return nil
	}

	if e.st.ModuleActive(def) {
		holder := e.st.Holder(def)
		active := e.st.ActiveMuxes(c)
		direct, hasDirect := topology.MuxBetween(c, holder)
		switch {
		case len(active) == 0:
			if err := e.IsolateModule(def); err != nil {
				return err
			}
		case hasDirect && e.st.MuxOn(direct.ID):
			if len(active) >= 2 {
				e.isolateHeld(holder, topology.SupersetBegin(topology.Superset(c)), topology.SupersetSize)
			} else {
				e.isolateHeld(holder, topology.SubsetBegin(topology.Subset(c)), topology.SubsetSize)
			}
		case !hasDirect:
			e.isolateHeld(holder, topology.SubsetBegin(topology.Subset(c)), topology.SubsetSize)
		default:
			e.log.Warnf("%s: default module held by %s behind an open mux %d", c, holder, direct.ID)
		}
	}
	e.allMuxesOff(c)
	return nil
}

// isolateHeld isolates every module of [begin, begin+size) held by holder.
func (e *Engine) isolateHeld(holder model.ConnectorID, begin, size int) {
	if holder == model.NoConnector {
		return
	}
	for m := begin; m < begin+size; m++ {
		if e.st.Holder(m) == holder {
			_ = e.IsolateModule(m)
		}
	}
}

// StopConnector releases every module of an active connector, isolates the
// peers it borrowed from through closed muxes and marks it inactive.
func (e *Engine) StopConnector(c model.ConnectorID) error {
	conn, err := e.connector(c)
	if err != nil {
		e.log.Errorf("stop connector: %v", err)
		return err
	}
	if !conn.Active {
		return nil
	}
	for _, m := range e.st.AssignedModules(c) {
		if e.st.Holder(m) == c {
			_ = e.IsolateModule(m)
		}
	}
	for _, id := range e.st.ActiveMuxes(c) {
		mux, ok := topology.Mux(id)
		if !ok {
			continue
		}
		if err := e.IsolateConnector(mux.Peer(c)); err != nil {
			e.log.Warnf("stop %s: isolate peer: %v", c, err)
		}
		e.setMux(id, false)
	}
	conn.Active = false
	e.emit(Event{Kind: ConnectorStopped, Connector: c})
	return nil
}
