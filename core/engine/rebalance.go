package engine

import (
	"errors"
	"fmt"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/topology"
)

// AutoCount lets Reclaim derive the number of pairs to release from the
// surplus of the connector.
const AutoCount = -1

// Reclaim releases up to count end modules of an over-provisioned connector.
// With AutoCount the count is surplus/ExtraThreshold. Only end modules are
// considered so the assigned block never fragments, and a release never takes
// the connector below its requested current. It returns the number of pairs
// released.
func (e *Engine) Reclaim(c model.ConnectorID, count int) (int, error) {
	conn, err := e.connector(c)
	if err != nil {
		return 0, err
	}
	if !conn.Active {
		return 0, nil
	}
	if count < 0 {
		if !e.ExtraPower(c) {
			return 0, nil
		}
		count = int(e.Surplus(c) / ExtraThreshold)
	}
	if count == 0 {
		return 0, nil
	}

	def := topology.DefaultModule(c)
	removed := 0
	for m := 1; m < model.ModuleSlots && removed < count; m += 2 {
		mod := e.st.Module(m)
		if !mod.Alive || !mod.Active || mod.Connector != c || m == def {
			continue
		}
		if e.Surplus(c)-e.pairCurrent(m) < 0 {
			continue
		}
		if e.releaseEnd(c, m) {
			removed++
		}
	}
	if removed > 0 {
		e.log.Debugf("reclaimed %d pair(s) from %s", removed, c)
	}
	return removed, nil
}

// releaseEnd isolates m when it is an end module of the block held by c.
func (e *Engine) releaseEnd(c model.ConnectorID, m int) bool {
	relays := topology.RelaysOfModule(m)
	switch len(relays) {
	case 2:
		if e.st.RelayOn(relays[0].ID) && e.st.RelayOn(relays[1].ID) {
			return false
		}
		_ = e.IsolateModule(m)
		return true
	case 1:
		owner := topology.DefaultConnector(m)
		relayOn := e.st.RelayOn(relays[0].ID)
		isolated := e.st.MuxIsolated(owner)
		switch {
		case relayOn && isolated:
			// fed through the relay only
			_ = e.IsolateModule(m)
			return true
		case !relayOn && !isolated && len(e.st.ActiveMuxes(owner)) == 1:
			// fed through a single mux: drop the module and the mux path
			_ = e.IsolateModule(m)
			if err := e.IsolateConnector(owner); err != nil {
				e.log.Warnf("reclaim %s: isolate %s: %v", c, owner, err)
			}
			return true
		}
		return false
	default:
		e.log.Errorf("invalid relay ids for module %d", m)
		return false
	}
}

// Fill hands idle primary modules sitting between two assigned blocks to the
// neighbour that still lacks power, and idle default modules of inactive
// connectors to an under-powered neighbour in the same subset.
func (e *Engine) Fill(iteration int) error {
	for m := 1; m < model.ModuleSlots; m += 2 {
		mod := e.st.Module(m)
		if !mod.Alive || mod.Active {
			continue
		}
		owner := topology.DefaultConnector(m)
		if owner == model.NoConnector {
			if err := e.fillMiddle(m); err != nil {
				return fmt.Errorf("fill iteration %d: %w", iteration, err)
			}
			continue
		}
		if e.st.ConnectorActive(owner) {
			continue
		}
		neighbour := m - 2
		if (m-1)%topology.SubsetSize == 0 {
			neighbour = m + 2
		}
		holder := e.st.Holder(neighbour)
		if holder != model.NoConnector && !e.SufficientPower(holder) {
			if e.claimPair(holder, m) {
				e.closeRelayChain(neighbour, m)
			}
		}
	}
	return nil
}

func (e *Engine) fillMiddle(m int) error {
	if len(topology.RelaysOfModule(m)) != 2 {
		return nil
	}
	a, b := e.st.Holder(m-2), e.st.Holder(m+2)
	if a == model.NoConnector && b == model.NoConnector {
		return nil
	}
	if e.SufficientPower(a) && e.SufficientPower(b) {
		return nil
	}
	preferA, err := e.preference(a, b)
	if err != nil {
		return err
	}
	winner, from := b, m+2
	if preferA {
		winner, from = a, m-2
	}
	if e.SufficientPower(winner) {
		return nil
	}
	if e.claimPair(winner, m) {
		e.closeRelayChain(from, m)
	}
	return nil
}

// preference reports whether a should receive a contested module rather than
// b. The sentinel never wins, nor does a connector that already has enough
// power. Between two under-powered connectors the larger deficit wins and a
// tie goes to a.
func (e *Engine) preference(a, b model.ConnectorID) (bool, error) {
	switch {
	case a == model.NoConnector && b == model.NoConnector:
		return false, fmt.Errorf("%w: both connectors are unassigned", ErrPreferenceInvariant)
	case a == model.NoConnector:
		return false, nil
	case b == model.NoConnector:
		return true, nil
	}
	sa, sb := e.SufficientPower(a), e.SufficientPower(b)
	switch {
	case sa && sb:
		return false, fmt.Errorf("%w: %s and %s both have sufficient power", ErrPreferenceInvariant, a, b)
	case sa:
		return false, nil
	case sb:
		return true, nil
	}
	return e.deficit(a) >= e.deficit(b), nil
}

// TopUp adds at most one idle default pair to an under-powered connector
// through an open mux whose peer is inactive. Normal muxes are tried before
// super muxes; a normal mux is skipped while its mirror is closed.
func (e *Engine) TopUp(c model.ConnectorID) bool {
	conn := e.st.Connector(c)
	if conn == nil || !conn.Active || e.SufficientPower(c) {
		return false
	}
	muxes := topology.MuxesOfConnector(c)
	for _, super := range []bool{false, true} {
		for _, mux := range muxes {
			if mux.Super() != super || e.st.MuxOn(mux.ID) {
				continue
			}
			if mirror, ok := topology.MirrorMux(mux.ID); ok && e.st.MuxOn(mirror) {
				continue
			}
			if e.borrowDefault(c, mux.Peer(c), mux) {
				return true
			}
		}
	}
	return false
}

// Cycle runs one rebalance pass over every connector: reclaim surplus, fill
// iterations times, then top up. A fill failure aborts the remaining fill
// iterations; the top-up pass still runs and the error is returned.
func (e *Engine) Cycle(iterations int) error {
	if iterations <= 0 {
		iterations = DefaultFillIterations
	}
	var errs []error
	for _, c := range model.Connectors() {
		if _, err := e.Reclaim(c, AutoCount); err != nil {
			errs = append(errs, err)
		}
	}
	for i := 1; i <= iterations; i++ {
		if err := e.Fill(i); err != nil {
			e.log.Errorf("%v", err)
			errs = append(errs, err)
			break
		}
	}
	for _, c := range model.Connectors() {
		e.TopUp(c)
	}
	return errors.Join(errs...)
}
