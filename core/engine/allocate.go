package engine

import (
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/topology"
)

// AssignPowerModules grows the module set of c until its requested current is
// covered or the topology offers no further step. Steps are tried in fixed
// priority order: default pair, same-subset relay chain, normal mux peers,
// then super mux peers with one more normal mux hop behind them.
//
// A connector left under-powered is a valid terminal state; it is reported
// as a PartialAllocation event, not as an error.
func (e *Engine) AssignPowerModules(c model.ConnectorID) error {
	conn, err := e.connector(c)
	if err != nil {
		e.log.Errorf("assign power modules: %v", err)
		return err
	}
	if conn.Active {
		if e.SufficientPower(c) {
			return nil
		}
	} else if err := e.IsolateConnector(c); err != nil {
		return err
	}

	if e.assignLocal(c) || e.assignNormalMux(c) || e.assignSuperMux(c) {
		return nil
	}
	shortfall := e.deficit(c)
	e.log.Infof("%s left under-powered, missing %.1f A", c, shortfall)
	e.emit(Event{Kind: PartialAllocation, Connector: c, Shortfall: shortfall})
	return nil
}

// assignLocal claims the default pair of c and its own relay chain.
func (e *Engine) assignLocal(c model.ConnectorID) bool {
	e.claimPair(c, topology.DefaultModule(c))
	if e.SufficientPower(c) {
		return true
	}
	return e.extendChain(c, c)
}

// extendChain claims, on behalf of c, the same-subset modules reachable from
// the default module of owner, closing the relays along the way.
func (e *Engine) extendChain(c, owner model.ConnectorID) bool {
	start := topology.DefaultModule(owner)
	for _, target := range topology.ChainTargets(owner) {
		if e.claimPair(c, target) {
			e.closeRelayChain(start, target)
		}
		if e.SufficientPower(c) {
			return true
		}
	}
	return false
}

// borrowDefault claims the default pair of an idle peer through mux and closes
// the mux. It reports whether the pair was claimed.
func (e *Engine) borrowDefault(c, peer model.ConnectorID, mux topology.MuxLink) bool {
	if e.st.ConnectorActive(peer) {
		return false
	}
	def := e.st.Module(topology.DefaultModule(peer))
	if def == nil || !def.Idle() {
		return false
	}
	if !e.claimPair(c, topology.DefaultModule(peer)) {
		return false
	}
	e.setMux(mux.ID, true)
	return true
}

// assignNormalMux borrows the block of the first idle peer reachable through
// a normal mux.
func (e *Engine) assignNormalMux(c model.ConnectorID) bool {
	for _, mux := range topology.MuxesOfConnector(c) {
		if mux.Super() {
			continue
		}
		peer := mux.Peer(c)
		if !e.borrowDefault(c, peer, mux) {
			continue
		}
		if e.SufficientPower(c) {
			return true
		}
		return e.extendChain(c, peer)
	}
	return false
}

// assignSuperMux borrows the block of an idle peer in another superset, then
// one more idle block reachable from that peer through a normal mux.
func (e *Engine) assignSuperMux(c model.ConnectorID) bool {
	for _, mux := range topology.MuxesOfConnector(c) {
		if !mux.Super() {
			continue
		}
		superPeer := mux.Peer(c)
		if !e.borrowDefault(c, superPeer, mux) {
			continue
		}
		if e.SufficientPower(c) || e.extendChain(c, superPeer) {
			return true
		}
		for _, hop := range topology.MuxesOfConnector(superPeer) {
			if hop.Super() {
				continue
			}
			subPeer := hop.Peer(superPeer)
			if !e.borrowDefault(c, subPeer, hop) {
				continue
			}
			if e.SufficientPower(c) || e.extendChain(c, subPeer) {
				return true
			}
			break
		}
	}
	return false
}
