package engine

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/state"
	"github.com/kilianp07/powermux/core/topology"
)

func newTestEngine(maxCurrent float64) (*Engine, *Recorder) {
	rec := &Recorder{}
	return New(state.New(maxCurrent), nil, WithEventSink(rec)), rec
}

func apply(t *testing.T, e *Engine, c model.ConnectorID, action model.Action, current float64) {
	t.Helper()
	cmd := model.Command{ID: "t", Connector: c, Action: action, TargetVoltage: 400, TargetCurrent: current}
	if err := e.ApplyCommand(cmd); err != nil {
		t.Fatalf("%s %s: %v", action, c, err)
	}
}

func span(a, b int) []int {
	out := make([]int, 0, b-a+1)
	for i := a; i <= b; i++ {
		out = append(out, i)
	}
	return out
}

func TestStartClaimsDefaultPair(t *testing.T) {
	e, rec := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)

	st := e.State()
	if !st.ConnectorActive(1) {
		t.Fatalf("connector 1 should be active")
	}
	assert.Equal(t, []int{1, 2}, st.AssignedModules(1))
	if !e.SufficientPower(1) {
		t.Fatalf("60A request should be covered by the default pair")
	}
	if len(st.ClosedSwitches()) != 0 {
		t.Fatalf("no switch expected, got %v", st.ClosedSwitches())
	}
	if rec.Count(ModuleAssigned) != 2 || rec.Count(ConnectorActivated) != 1 {
		t.Fatalf("unexpected events %+v", rec.Events)
	}
}

func TestRelayChaining(t *testing.T) {
	cases := []struct {
		name    string
		c       model.ConnectorID
		current float64
		modules []int
		closed  []uint16
	}{
		{"distance 2", 1, 120, span(1, 4), []uint16{201}},
		{"distance 4", 1, 180, span(1, 6), []uint16{201, 202}},
		{"distance 6", 1, 240, span(1, 8), []uint16{201, 202, 203}},
		{"even walks down", 2, 120, span(5, 8), []uint16{203}},
		{"last subset", 12, 180, span(43, 48), []uint16{217, 218}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(0)
			apply(t, e, tc.c, model.ActionStart, tc.current)
			assert.Equal(t, tc.modules, e.State().AssignedModules(tc.c))
			assert.Equal(t, tc.closed, e.State().ClosedSwitches())
		})
	}
}

func TestNormalMuxBorrow(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 300)
	st := e.State()
	assert.Equal(t, span(1, 10), st.AssignedModules(1))
	assert.Equal(t, []uint16{201, 202, 203, 301}, st.ClosedSwitches())
	if st.ConnectorActive(3) {
		t.Fatalf("peer connector must stay inactive")
	}
}

func TestSuperMuxSecondHop(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 12, model.ActionStart, 800)
	st := e.State()
	want := append(span(1, 12), span(33, 48)...)
	assert.Equal(t, want, st.AssignedModules(12))
	for _, id := range []uint16{301, 310, 403} {
		if !st.MuxOn(id) {
			t.Fatalf("mux %d should be closed", id)
		}
	}
	if !e.SufficientPower(12) {
		t.Fatalf("800A should be reachable")
	}
}

func TestSuperMuxBusyPeerSkipsSecondHop(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)
	apply(t, e, 12, model.ActionStart, 800)
	st := e.State()
	assert.Equal(t, span(1, 2), st.AssignedModules(1))
	assert.Equal(t, span(33, 48), st.AssignedModules(12))
	if st.MuxOn(403) || st.MuxOn(301) {
		t.Fatalf("no switch toward a busy super peer may close")
	}
	if st.ModuleActive(9) {
		t.Fatalf("block behind a busy super peer must stay idle")
	}
	checkInvariants(t, st, 0)
}

func TestPartialAllocationIsNotAnError(t *testing.T) {
	e, rec := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 10000)
	if e.SufficientPower(1) {
		t.Fatalf("request cannot be covered")
	}
	if rec.Count(PartialAllocation) != 1 {
		t.Fatalf("expected one partial allocation event, got %d", rec.Count(PartialAllocation))
	}
	for _, ev := range rec.Events {
		if ev.Kind == PartialAllocation && ev.Shortfall <= 0 {
			t.Fatalf("shortfall not reported: %+v", ev)
		}
	}
}

func TestAssignStopRoundTrip(t *testing.T) {
	for _, req := range []float64{60, 240, 300, 800, 10000} {
		e, _ := newTestEngine(0)
		before := e.State().Clone()
		apply(t, e, 1, model.ActionStart, req)
		if err := e.StopConnector(1); err != nil {
			t.Fatalf("stop: %v", err)
		}
		st := e.State()
		if ids := st.ClosedSwitches(); len(ids) != 0 {
			t.Fatalf("request %.0f: switches left closed: %v", req, ids)
		}
		for m := 1; m <= model.ModuleCount; m++ {
			if st.Module(m).Active != before.Module(m).Active || st.Module(m).Connector != before.Module(m).Connector {
				t.Fatalf("request %.0f: module %d not restored", req, m)
			}
		}
		if st.ConnectorActive(1) {
			t.Fatalf("connector still active")
		}
	}
}

func TestIsolateModuleIdempotent(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 240)
	require.NoError(t, e.IsolateModule(5))
	once := e.State().Clone()
	require.NoError(t, e.IsolateModule(5))
	assert.Equal(t, once, e.State())
	assert.Equal(t, []int{1, 2, 3, 4, 7, 8}, e.State().AssignedModules(1))
	assert.Equal(t, []uint16{201}, e.State().ClosedSwitches())
}

func TestIsolateModuleInvalid(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)
	before := e.State().Clone()
	for _, m := range []int{0, 49, -3} {
		require.ErrorIs(t, e.IsolateModule(m), ErrInvalidModule)
	}
	assert.Equal(t, before, e.State())
}

func TestIsolateConnectorRejectsActive(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)
	require.ErrorIs(t, e.IsolateConnector(1), ErrConnectorActive)
	require.ErrorIs(t, e.IsolateConnector(13), ErrInvalidConnector)
	assert.Equal(t, []int{1, 2}, e.State().AssignedModules(1))
}

func TestIsolateConnectorSubset(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 300)
	apply(t, e, 3, model.ActionStart, 60)

	st := e.State()
	assert.Equal(t, span(1, 8), st.AssignedModules(1))
	assert.Equal(t, []int{9, 10}, st.AssignedModules(3))
	if st.MuxOn(301) {
		t.Fatalf("mux 301 should be open")
	}
}

func TestIsolateConnectorSuperset(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 12, model.ActionStart, 800)
	// connector 1 sees two closed muxes, one of them direct to the holder
	apply(t, e, 1, model.ActionStart, 60)

	st := e.State()
	assert.Equal(t, []int{1, 2}, st.AssignedModules(1))
	assert.Equal(t, span(33, 48), st.AssignedModules(12))
	for m := 3; m <= 16; m++ {
		if st.ModuleActive(m) {
			t.Fatalf("module %d should have been released with the superset", m)
		}
	}
	for _, id := range []uint16{301, 302, 403} {
		if st.MuxOn(id) {
			t.Fatalf("mux %d should be open", id)
		}
	}
	if !st.MuxOn(310) {
		t.Fatalf("mux 310 is outside the teardown")
	}
}

func TestStopCascadesToMuxPeers(t *testing.T) {
	e, rec := newTestEngine(0)
	apply(t, e, 12, model.ActionStart, 800)
	apply(t, e, 12, model.ActionStop, 0)
	st := e.State()
	if len(st.ClosedSwitches()) != 0 {
		t.Fatalf("switches left closed: %v", st.ClosedSwitches())
	}
	conn := st.Connector(12)
	if conn.EVMaxCurrent != 0 || conn.EVMaxVoltage != 0 {
		t.Fatalf("stop must clear the request: %+v", conn)
	}
	if rec.Count(ConnectorStopped) != 1 {
		t.Fatalf("expected one stop event")
	}
}

func TestReclaimBelowThreshold(t *testing.T) {
	e, _ := newTestEngine(15)
	apply(t, e, 1, model.ActionStart, 90)
	apply(t, e, 1, model.ActionUpdate, 60)
	require.Len(t, e.State().AssignedModules(1), 6)

	n, err := e.Reclaim(1, AutoCount)
	require.NoError(t, err)
	if n != 0 {
		t.Fatalf("extra of 30A must not reclaim, removed %d", n)
	}
	assert.Len(t, e.State().AssignedModules(1), 6)
}

func TestReclaimEndModulesOnly(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 240)
	apply(t, e, 1, model.ActionUpdate, 60)

	n, err := e.Reclaim(1, AutoCount)
	require.NoError(t, err)
	if n != 1 {
		t.Fatalf("only the edge pair is an end module, removed %d", n)
	}
	assert.Equal(t, span(1, 6), e.State().AssignedModules(1))
	assert.Equal(t, []uint16{201, 202}, e.State().ClosedSwitches())
}

func TestReclaimMuxBorrowedPair(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 300)
	apply(t, e, 1, model.ActionUpdate, 180)

	n, err := e.Reclaim(1, AutoCount)
	require.NoError(t, err)
	if n != 2 {
		t.Fatalf("removed %d", n)
	}
	st := e.State()
	assert.Equal(t, span(1, 6), st.AssignedModules(1))
	assert.Equal(t, []uint16{201, 202}, st.ClosedSwitches())
	if !st.MuxIsolated(3) {
		t.Fatalf("mux path to connector 3 should be torn down")
	}
}

func TestCycleConverges(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 240)
	apply(t, e, 1, model.ActionUpdate, 60)

	// one end pair per cycle until the surplus drops below the threshold
	for _, want := range [][]int{span(1, 6), span(1, 4), span(1, 2), span(1, 2)} {
		require.NoError(t, e.Cycle(DefaultFillIterations))
		assert.Equal(t, want, e.State().AssignedModules(1))
	}
	assert.Empty(t, e.State().ClosedSwitches())
	if !e.SufficientPower(1) {
		t.Fatalf("reclaim must never starve the connector")
	}
}

func TestFillMiddleModule(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)
	apply(t, e, 1, model.ActionUpdate, 120)
	apply(t, e, 2, model.ActionStart, 120)

	require.NoError(t, e.Fill(1))
	st := e.State()
	assert.Equal(t, span(1, 4), st.AssignedModules(1))
	assert.Equal(t, span(5, 8), st.AssignedModules(2))
	assert.Equal(t, []uint16{201, 203}, st.ClosedSwitches())
}

func TestFillIdleDefaultModule(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 2, model.ActionStart, 180)
	apply(t, e, 2, model.ActionUpdate, 240)

	require.NoError(t, e.Fill(1))
	st := e.State()
	assert.Equal(t, span(1, 8), st.AssignedModules(2))
	assert.Equal(t, []uint16{201, 202, 203}, st.ClosedSwitches())
	if !e.SufficientPower(2) {
		t.Fatalf("connector 2 should be covered after fill")
	}
}

func TestPreference(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)
	apply(t, e, 2, model.ActionStart, 60)

	_, err := e.preference(model.NoConnector, model.NoConnector)
	require.ErrorIs(t, err, ErrPreferenceInvariant)
	_, err = e.preference(1, 2)
	require.ErrorIs(t, err, ErrPreferenceInvariant)

	if ok, _ := e.preference(model.NoConnector, 1); ok {
		t.Fatalf("sentinel must lose")
	}
	if ok, _ := e.preference(1, model.NoConnector); !ok {
		t.Fatalf("sentinel must lose")
	}

	apply(t, e, 1, model.ActionUpdate, 120)
	if ok, err := e.preference(1, 2); err != nil || !ok {
		t.Fatalf("the only under-powered side must win: %v %v", ok, err)
	}
	if ok, err := e.preference(2, 1); err != nil || ok {
		t.Fatalf("the only under-powered side must win: %v %v", ok, err)
	}

	apply(t, e, 2, model.ActionUpdate, 150)
	if ok, _ := e.preference(2, 1); !ok {
		t.Fatalf("larger deficit must win")
	}
	apply(t, e, 2, model.ActionUpdate, 120)
	if ok, _ := e.preference(2, 1); !ok {
		t.Fatalf("tie goes to the first connector")
	}
}

func TestTopUpSkipsMirroredMux(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)
	apply(t, e, 1, model.ActionUpdate, 200)
	e.State().SetMux(302, true)

	if !e.TopUp(1) {
		t.Fatalf("a super mux peer is still available")
	}
	st := e.State()
	if st.Holder(9) != model.NoConnector {
		t.Fatalf("mux 301 mirrors a closed mux and must be skipped")
	}
	if st.Holder(47) != 1 || !st.MuxOn(403) {
		t.Fatalf("expected the pair behind mux 403")
	}
}

func TestTopUpPrefersNormalMux(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)
	apply(t, e, 1, model.ActionUpdate, 200)

	if !e.TopUp(1) {
		t.Fatalf("top up expected")
	}
	st := e.State()
	assert.Equal(t, []int{1, 2, 9, 10}, st.AssignedModules(1))
	assert.Equal(t, []uint16{301}, st.ClosedSwitches())
	if e.TopUp(2) {
		t.Fatalf("inactive connectors are never topped up")
	}
}

func TestApplyCommand(t *testing.T) {
	e, _ := newTestEngine(0)
	err := e.ApplyCommand(model.Command{Connector: 14, Action: model.ActionStart, TargetCurrent: 60})
	require.ErrorIs(t, err, ErrInvalidConnector)

	apply(t, e, 4, model.ActionUpdate, 120)
	if e.State().ConnectorActive(4) {
		t.Fatalf("update must not allocate")
	}
	assert.Equal(t, 120.0, e.State().Connector(4).EVMaxCurrent)
	apply(t, e, 4, model.ActionNone, 0)
	assert.Equal(t, 120.0, e.State().Connector(4).EVMaxCurrent)
}

func TestInvariantsUnderRandomLoad(t *testing.T) {
	e, _ := newTestEngine(0)
	rng := rand.New(rand.NewSource(7))
	actions := []model.Action{model.ActionStart, model.ActionStart, model.ActionStop, model.ActionUpdate}
	for step := 0; step < 400; step++ {
		c := model.ConnectorID(rng.Intn(model.ConnectorCount) + 1)
		action := actions[rng.Intn(len(actions))]
		if action == model.ActionStart && e.State().ConnectorActive(c) {
			action = model.ActionUpdate
		}
		apply(t, e, c, action, float64(rng.Intn(12)+1)*60)
		if step%5 == 0 {
			if err := e.Cycle(DefaultFillIterations); err != nil {
				t.Fatalf("step %d: cycle: %v", step, err)
			}
		}
		checkInvariants(t, e.State(), step)
	}
}

func checkInvariants(t *testing.T, st *state.SystemState, step int) {
	t.Helper()
	for m := 1; m <= model.ModuleCount; m++ {
		mod := st.Module(m)
		if mod.Active != (mod.Connector != model.NoConnector) {
			t.Fatalf("step %d: module %d active=%v connector=%v", step, m, mod.Active, mod.Connector)
		}
		if mod.Active && !mod.Alive {
			t.Fatalf("step %d: dead module %d is active", step, m)
		}
		if mod.Active && !st.ConnectorActive(mod.Connector) {
			t.Fatalf("step %d: module %d held by inactive %s", step, m, mod.Connector)
		}
	}
	for _, r := range topology.Relays() {
		if !st.RelayOn(r.ID) {
			continue
		}
		if a, b := st.Holder(r.A), st.Holder(r.B); a == model.NoConnector || a != b {
			t.Fatalf("step %d: relay %d joins %s and %s", step, r.ID, a, b)
		}
	}
}

func TestRender(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 120)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, e.State()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, topology.SubsetCount+1)
	assert.Equal(t, "S1 | 01 01 01 01 -- -- -- -- | 201:1 202:0 203:0", lines[0])
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "MUX 301:0"))
}

func TestUpdateModuleKeepsAllocation(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 60)
	err := e.UpdateModule(1, func(m *model.Module) {
		m.Temperature = 55
		m.Active = false
		m.Connector = model.NoConnector
	})
	require.NoError(t, err)
	assert.Equal(t, 55.0, e.State().Module(1).Temperature)
	assert.Equal(t, []int{1, 2}, e.State().AssignedModules(1))
}

func TestUpdateModuleDeadReleases(t *testing.T) {
	e, rec := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 120)
	require.True(t, e.State().RelayOn(201))

	require.NoError(t, e.UpdateModule(3, func(m *model.Module) { m.Alive = false }))
	assert.Equal(t, []int{1, 2, 4}, e.State().AssignedModules(1))
	assert.True(t, e.State().RelayOn(201), "pair 3-4 still delivers through its secondary")

	require.NoError(t, e.UpdateModule(4, func(m *model.Module) { m.Alive = false }))
	assert.Equal(t, []int{1, 2}, e.State().AssignedModules(1))
	assert.False(t, e.State().RelayOn(201))
	assert.GreaterOrEqual(t, rec.Count(ModuleReleased), 2)
	checkInvariants(t, e.State(), 0)

	if err := e.UpdateModule(49, func(*model.Module) {}); !errors.Is(err, ErrInvalidModule) {
		t.Fatalf("expected ErrInvalidModule, got %v", err)
	}
}

// fedModules walks closed relays from the default modules of c and of every
// connector joined to c through closed muxes.
func fedModules(st *state.SystemState, c model.ConnectorID) map[int]bool {
	conns := []model.ConnectorID{c}
	seen := map[model.ConnectorID]bool{c: true}
	for i := 0; i < len(conns); i++ {
		for _, mux := range topology.MuxesOfConnector(conns[i]) {
			if p := mux.Peer(conns[i]); st.MuxOn(mux.ID) && !seen[p] {
				seen[p] = true
				conns = append(conns, p)
			}
		}
	}
	fed := map[int]bool{}
	var queue []int
	for _, f := range conns {
		def := topology.DefaultModule(f)
		if st.Holder(def) == c || st.Holder(def+1) == c {
			fed[def] = true
			queue = append(queue, def)
		}
	}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		for _, r := range topology.RelaysOfModule(m) {
			if next := r.Other(m); st.RelayOn(r.ID) && !fed[next] {
				fed[next] = true
				queue = append(queue, next)
			}
		}
	}
	return fed
}

func TestUpdateModuleDeadPairCutsChain(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 240)
	require.Equal(t, span(1, 8), e.State().AssignedModules(1))

	for _, m := range []int{3, 4} {
		require.NoError(t, e.UpdateModule(m, func(md *model.Module) { md.Alive = false }))
	}
	st := e.State()
	assert.Equal(t, []int{1, 2}, st.AssignedModules(1))
	assert.Empty(t, st.ClosedSwitches())
	assert.Equal(t, 60.0, st.AssignedCurrent(1))
	if e.SufficientPower(1) {
		t.Fatalf("connector 1 must not count modules cut off from it")
	}
	checkInvariants(t, st, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Cycle(DefaultFillIterations))
		fed := fedModules(st, 1)
		for _, m := range st.AssignedModules(1) {
			if !fed[primaryOf(m)] {
				t.Fatalf("cycle %d: module %d held by connector 1 without a path (closed %v)", i, m, st.ClosedSwitches())
			}
		}
		checkInvariants(t, st, i)
	}
}

func TestUpdateModuleDeadBorrowedDefault(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 360)
	st := e.State()
	require.Equal(t, span(1, 12), st.AssignedModules(1))
	require.True(t, st.MuxOn(301))

	for _, m := range []int{9, 10} {
		require.NoError(t, e.UpdateModule(m, func(md *model.Module) { md.Alive = false }))
	}
	assert.Equal(t, span(1, 8), st.AssignedModules(1))
	assert.Equal(t, []uint16{201, 202, 203}, st.ClosedSwitches())
	checkInvariants(t, st, 0)
}

func TestIsolateConnectorDefaultOnly(t *testing.T) {
	e, _ := newTestEngine(0)
	apply(t, e, 1, model.ActionStart, 240)
	// no mux of connector 2 is closed: only the default pair is taken back
	apply(t, e, 2, model.ActionStart, 60)

	st := e.State()
	assert.Equal(t, span(1, 6), st.AssignedModules(1))
	assert.Equal(t, []int{7, 8}, st.AssignedModules(2))
	assert.Equal(t, []uint16{201, 202}, st.ClosedSwitches())
}

func TestIsolateConnectorNoDirectMux(t *testing.T) {
	e, _ := newTestEngine(0)
	st := e.State()
	for m := 9; m <= 16; m++ {
		mod := st.Module(m)
		mod.Active, mod.Connector = true, 5
	}
	st.Connector(5).Active = true
	for _, id := range []uint16{204, 205, 206} {
		st.SetRelay(id, true)
	}
	st.SetMux(301, true)

	require.NoError(t, e.IsolateConnector(3))
	for m := 9; m <= 16; m++ {
		if st.ModuleActive(m) {
			t.Fatalf("module %d should be released", m)
		}
	}
	assert.Empty(t, st.ClosedSwitches())
}
