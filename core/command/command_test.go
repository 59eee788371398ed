package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/powermux/core/model"
)

func TestMemorySourceReplaceAndConsume(t *testing.T) {
	s := NewMemorySource()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.Submit(model.Command{Connector: 2, Action: model.ActionStart, TargetCurrent: 60, Received: base.Add(time.Second)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("id not assigned")
	}
	if _, err := s.Submit(model.Command{Connector: 1, Action: model.ActionStart, TargetCurrent: 120, Received: base}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Submit(model.Command{Connector: 13, Action: model.ActionStart}); err == nil {
		t.Fatalf("expected invalid connector error")
	}

	batch, _ := s.Poll(context.Background())
	if len(batch) != 2 || batch[0].Connector != 1 || batch[1].Connector != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}

	// replaced while the batch is applied
	if _, err := s.Submit(model.Command{Connector: 2, Action: model.ActionStop}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.Consume(context.Background(), batch); err != nil {
		t.Fatalf("consume: %v", err)
	}
	left, _ := s.Poll(context.Background())
	if len(left) != 1 || left[0].Connector != 2 || left[0].Action != model.ActionStop {
		t.Fatalf("newer command lost: %+v", left)
	}
}

type failingSource struct{}

func (failingSource) Poll(context.Context) ([]model.Command, error) {
	return nil, errors.New("unreadable")
}
func (failingSource) Consume(context.Context, []model.Command) error { return nil }

func TestMultiSource(t *testing.T) {
	a, b := NewMemorySource(), NewMemorySource()
	m := NewMultiSource(a, failingSource{}, b)
	if _, err := a.Submit(model.Command{Connector: 1, Action: model.ActionStart}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Submit(model.Command{Connector: 5, Action: model.ActionStop}); err != nil {
		t.Fatal(err)
	}
	cmds, err := m.Poll(context.Background())
	if err == nil {
		t.Fatalf("failing source error expected")
	}
	if len(cmds) != 2 {
		t.Fatalf("expected commands of healthy sources, got %d", len(cmds))
	}
	if err := m.Consume(context.Background(), cmds); err != nil {
		t.Fatalf("consume: %v", err)
	}
	for _, s := range []*MemorySource{a, b} {
		if left, _ := s.Poll(context.Background()); len(left) != 0 {
			t.Fatalf("commands not consumed: %+v", left)
		}
	}
}
