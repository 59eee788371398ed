package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/powermux/core/model"
)

// MemorySource keeps at most one command per connector, like the trigger
// file: a newer command for the same connector replaces the pending one.
type MemorySource struct {
	mu   sync.Mutex
	cmds map[model.ConnectorID]model.Command
	now  func() time.Time
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{cmds: map[model.ConnectorID]model.Command{}, now: time.Now}
}

// Submit queues cmd and returns it with its id and arrival time filled in.
func (s *MemorySource) Submit(cmd model.Command) (model.Command, error) {
	if !cmd.Connector.Valid() {
		return cmd, fmt.Errorf("invalid connector %d", cmd.Connector)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.Received.IsZero() {
		cmd.Received = s.now()
	}
	s.cmds[cmd.Connector] = cmd
	return cmd, nil
}

// Poll returns the pending commands in arrival order.
func (s *MemorySource) Poll(context.Context) ([]model.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Command
	for _, c := range s.cmds {
		if c.Pending() {
			out = append(out, c)
		}
	}
	SortBatch(out)
	return out, nil
}

// Consume resets the applied commands. A command replaced after the poll is
// left pending.
func (s *MemorySource) Consume(_ context.Context, cmds []model.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cmds {
		cur, ok := s.cmds[c.Connector]
		if !ok || cur.ID != c.ID {
			continue
		}
		cur.Action = model.ActionNone
		s.cmds[c.Connector] = cur
	}
	return nil
}
