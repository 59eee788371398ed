package topology

import (
	"testing"

	"github.com/kilianp07/powermux/core/model"
)

func TestDefaultModule(t *testing.T) {
	want := map[model.ConnectorID]int{
		1: 1, 2: 7, 3: 9, 4: 15, 5: 17, 6: 23,
		7: 25, 8: 31, 9: 33, 10: 39, 11: 41, 12: 47,
	}
	for c, m := range want {
		if got := DefaultModule(c); got != m {
			t.Errorf("DefaultModule(%d) = %d, want %d", c, got, m)
		}
		if got := DefaultConnector(m); got != c {
			t.Errorf("DefaultConnector(%d) = %v, want %v", m, got, c)
		}
	}
	if got := DefaultConnector(3); got != model.NoConnector {
		t.Fatalf("module 3 should have no default connector, got %v", got)
	}
	if got := DefaultConnector(0); got != model.NoConnector {
		t.Fatalf("module 0 should have no default connector, got %v", got)
	}
}

func TestSubsetAndSuperset(t *testing.T) {
	checks := []struct {
		c        model.ConnectorID
		subset   int
		superset int
	}{
		{1, 1, 1}, {2, 1, 1}, {3, 2, 1}, {4, 2, 1},
		{5, 3, 2}, {8, 4, 2}, {9, 5, 3}, {12, 6, 3},
	}
	for _, tc := range checks {
		if got := Subset(tc.c); got != tc.subset {
			t.Errorf("Subset(%d) = %d, want %d", tc.c, got, tc.subset)
		}
		if got := Superset(tc.c); got != tc.superset {
			t.Errorf("Superset(%d) = %d, want %d", tc.c, got, tc.superset)
		}
	}
	if SubsetBegin(3) != 17 || SupersetBegin(3) != 33 {
		t.Fatalf("unexpected begin slots %d %d", SubsetBegin(3), SupersetBegin(3))
	}
}

func TestRelayChain(t *testing.T) {
	chain, ok := RelayChain(1, 5)
	if !ok || len(chain) != 2 || chain[0].ID != 201 || chain[1].ID != 202 {
		t.Fatalf("unexpected chain 1..5: %v %v", chain, ok)
	}
	chain, ok = RelayChain(47, 41)
	if !ok || len(chain) != 3 {
		t.Fatalf("expected three relays for 41..47, got %v", chain)
	}
	for i, id := range []uint16{216, 217, 218} {
		if chain[i].ID != id {
			t.Fatalf("chain[%d] = %d, want %d", i, chain[i].ID, id)
		}
	}
	if _, ok := RelayChain(1, 9); ok {
		t.Fatalf("span of 8 must not resolve")
	}
	if _, ok := RelayChain(7, 9); ok {
		t.Fatalf("relays never cross a subset boundary")
	}
}

func TestRelaysOfModule(t *testing.T) {
	if got := RelaysOfModule(1); len(got) != 1 || got[0].ID != 201 {
		t.Fatalf("module 1 relays: %v", got)
	}
	if got := RelaysOfModule(3); len(got) != 2 {
		t.Fatalf("module 3 relays: %v", got)
	}
	if got := RelaysOfModule(2); len(got) != 0 {
		t.Fatalf("secondary modules have no relay: %v", got)
	}
}

func TestMuxQueries(t *testing.T) {
	m, ok := MuxBetween(3, 1)
	if !ok || m.ID != 301 || m.Super() {
		t.Fatalf("unexpected mux %v %v", m, ok)
	}
	if m.Peer(1) != 3 || m.Peer(3) != 1 {
		t.Fatalf("peer mismatch")
	}
	if _, ok := MuxBetween(1, 2); ok {
		t.Fatalf("connectors of one subset share no mux")
	}
	got := MuxesOfConnector(1)
	if len(got) != 3 || got[0].ID != 301 || got[1].ID != 302 || got[2].ID != 403 {
		t.Fatalf("connector 1 muxes: %v", got)
	}
	if !got[2].Super() {
		t.Fatalf("403 is a super mux")
	}
	if id, ok := MirrorMux(301); !ok || id != 302 {
		t.Fatalf("mirror of 301: %d", id)
	}
	if id, ok := MirrorMux(304); !ok || id != 303 {
		t.Fatalf("mirror of 304: %d", id)
	}
	if _, ok := MirrorMux(401); ok {
		t.Fatalf("super mux has no mirror")
	}
}

func TestChainTargets(t *testing.T) {
	if got := ChainTargets(1); got[0] != 3 || got[2] != 7 {
		t.Fatalf("odd connector walks upward: %v", got)
	}
	if got := ChainTargets(2); got[0] != 5 || got[2] != 1 {
		t.Fatalf("even connector walks downward: %v", got)
	}
}

func TestTableSizes(t *testing.T) {
	if len(Relays()) != 18 || len(Muxes()) != 15 {
		t.Fatalf("unexpected table sizes %d %d", len(Relays()), len(Muxes()))
	}
	for _, r := range Relays() {
		if r.B-r.A != 2 || ModuleSubset(r.A) != ModuleSubset(r.B) {
			t.Fatalf("relay %d must join modules 2 apart in one subset", r.ID)
		}
	}
}
