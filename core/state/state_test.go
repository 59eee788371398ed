package state

import (
	"testing"

	"github.com/kilianp07/powermux/core/model"
)

func TestNewDefaults(t *testing.T) {
	s := New(0)
	if s.Module(0) != nil || s.Module(49) != nil {
		t.Fatalf("sentinel and out-of-range slots must not be addressable")
	}
	for i := 1; i <= model.ModuleCount; i++ {
		m := s.Module(i)
		if !m.Alive || m.Active || m.Connector != model.NoConnector {
			t.Fatalf("module %d not in start-up state: %+v", i, m)
		}
		if m.MaxCurrent != model.BaseModuleCurrent {
			t.Fatalf("module %d current %.1f", i, m.MaxCurrent)
		}
	}
	if len(s.ClosedSwitches()) != 0 {
		t.Fatalf("all switches start open")
	}
	if s.TotalCapacity() != 48*model.BaseModuleCurrent {
		t.Fatalf("capacity %.1f", s.TotalCapacity())
	}
}

func TestSwitchFlags(t *testing.T) {
	s := New(30)
	if !s.SetRelay(201, true) {
		t.Fatalf("expected change")
	}
	if s.SetRelay(201, true) {
		t.Fatalf("second close is not a change")
	}
	if s.SetRelay(999, true) || s.RelayOn(999) {
		t.Fatalf("unknown relay must be ignored")
	}
	s.SetMux(301, true)
	s.SetMux(403, true)
	got := s.ActiveMuxes(1)
	if len(got) != 2 || got[0] != 301 || got[1] != 403 {
		t.Fatalf("active muxes %v", got)
	}
	if s.MuxIsolated(1) || !s.MuxIsolated(2) {
		t.Fatalf("isolation flags wrong")
	}
}

func TestAssignedCurrentAndClone(t *testing.T) {
	s := New(30)
	for _, m := range []int{1, 2, 3} {
		mod := s.Module(m)
		mod.Active = true
		mod.Connector = 1
	}
	if got := s.AssignedCurrent(1); got != 90 {
		t.Fatalf("assigned current %.1f", got)
	}
	c := s.Clone()
	c.Module(1).Release()
	c.SetRelay(201, true)
	if !s.Module(1).Active || s.RelayOn(201) {
		t.Fatalf("clone must not alias the original")
	}
	if got := s.AssignedModules(model.NoConnector); len(got) != 0 {
		t.Fatalf("sentinel holds nothing: %v", got)
	}
}

func TestSpareAndFreeModules(t *testing.T) {
	s := New(30)
	conn := s.Connector(1)
	conn.EVSEMaxCurrent = 200
	conn.EVMaxCurrent = 60
	if got := s.HasSpareModules(1); got != 2 {
		t.Fatalf("spare modules %d", got)
	}
	conn.EVMaxCurrent = 250
	if got := s.HasSpareModules(1); got != 0 {
		t.Fatalf("no headroom expected, got %d", got)
	}
	for m := 1; m <= 8; m++ {
		s.Module(m).Active = true
	}
	if s.HasFreeModules(1) {
		t.Fatalf("subset 1 is full")
	}
	if !s.HasFreeModules(2) || s.HasFreeModules(7) {
		t.Fatalf("free module check wrong")
	}
}
