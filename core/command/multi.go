package command

import (
	"context"
	"errors"
	"sync"

	"github.com/kilianp07/powermux/core/model"
)

// MultiSource polls several sources as one. Commands are routed back to the
// source they came from on Consume. A failing source is skipped for that poll
// and its error returned alongside the commands of the others.
type MultiSource struct {
	Sources []Source

	mu     sync.Mutex
	origin map[string]int
}

// NewMultiSource combines sources.
func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{Sources: sources, origin: map[string]int{}}
}

// Poll collects pending commands from every source.
func (m *MultiSource) Poll(ctx context.Context) ([]model.Command, error) {
	var (
		out  []model.Command
		errs []error
	)
	origin := map[string]int{}
	for i, s := range m.Sources {
		cmds, err := s.Poll(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, c := range cmds {
			origin[c.ID] = i
		}
		out = append(out, cmds...)
	}
	m.mu.Lock()
	m.origin = origin
	m.mu.Unlock()
	SortBatch(out)
	return out, errors.Join(errs...)
}

// Consume forwards each command to its source.
func (m *MultiSource) Consume(ctx context.Context, cmds []model.Command) error {
	m.mu.Lock()
	groups := make(map[int][]model.Command)
	for _, c := range cmds {
		if i, ok := m.origin[c.ID]; ok {
			groups[i] = append(groups[i], c)
		}
	}
	m.mu.Unlock()
	var errs []error
	for i, g := range groups {
		if err := m.Sources[i].Consume(ctx, g); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
