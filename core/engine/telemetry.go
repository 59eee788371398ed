package engine

import (
	"fmt"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/topology"
)

// UpdateModule applies fn to the record of module m. The allocation fields
// (Active, Connector) stay owned by the engine and are restored after fn.
// A held module reported dead is released; once neither slot of its pair is
// held the pair is isolated, and every module of the holder cut off from its
// feed by the opened relays is released too.
func (e *Engine) UpdateModule(m int, fn func(*model.Module)) error {
	if !topology.ValidModule(m) {
		err := fmt.Errorf("%w: %d", ErrInvalidModule, m)
		e.log.Errorf("update module: %v", err)
		return err
	}
	mod := e.st.Module(m)
	active, holder := mod.Active, mod.Connector
	fn(mod)
	mod.Active, mod.Connector = active, holder
	if mod.Alive || !active {
		return nil
	}

	e.log.Warnf("module %d held by %s went down", m, holder)
	e.release(m)
	primary := primaryOf(m)
	if !e.st.ModuleActive(primary) && !e.st.ModuleActive(primary+1) {
		err := e.IsolateModule(primary)
		e.pruneUnreachable(holder)
		return err
	}
	return nil
}

// pruneUnreachable releases the modules of c that no closed relay path joins
// to a feed point of c. Feed points are the default modules of c and of every
// connector linked to c through closed muxes. Muxes left leading to an idle
// peer whose default c no longer holds are opened.
func (e *Engine) pruneUnreachable(c model.ConnectorID) {
	if !c.Valid() {
		return
	}
	feeds := []model.ConnectorID{c}
	seen := map[model.ConnectorID]bool{c: true}
	for i := 0; i < len(feeds); i++ {
		for _, mux := range topology.MuxesOfConnector(feeds[i]) {
			peer := mux.Peer(feeds[i])
			if e.st.MuxOn(mux.ID) && !seen[peer] {
				seen[peer] = true
				feeds = append(feeds, peer)
			}
		}
	}

	reached := make(map[int]bool)
	var queue []int
	for _, f := range feeds {
		def := topology.DefaultModule(f)
		if !reached[def] && e.holds(c, def) {
			reached[def] = true
			queue = append(queue, def)
		}
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, r := range topology.RelaysOfModule(p) {
			next := r.Other(p)
			if e.st.RelayOn(r.ID) && !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, m := range e.st.AssignedModules(c) {
		if p := primaryOf(m); !reached[p] && e.st.Holder(m) == c {
			e.log.Warnf("module %d of %s lost its relay path", m, c)
			_ = e.IsolateModule(p)
		}
	}
	for _, mux := range topology.MuxesOfConnector(c) {
		peer := mux.Peer(c)
		if e.st.MuxOn(mux.ID) && !e.st.ConnectorActive(peer) && !e.holds(c, topology.DefaultModule(peer)) {
			e.setMux(mux.ID, false)
		}
	}
}

// holds reports whether c holds a slot of the pair containing m.
func (e *Engine) holds(c model.ConnectorID, m int) bool {
	p := primaryOf(m)
	return (e.st.ModuleActive(p) && e.st.Holder(p) == c) ||
		(e.st.ModuleActive(p+1) && e.st.Holder(p+1) == c)
}
