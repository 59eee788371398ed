// Package command defines where external connector commands come from. A
// Source is polled by the scheduler; commands it returns are applied as one
// batch and then consumed, which resets their action to none.
package command

import (
	"context"
	"sort"

	"github.com/kilianp07/powermux/core/model"
)

// Source provides pending connector commands.
type Source interface {
	// Poll returns the commands waiting to be applied. An error means the
	// input could not be read and the poll is skipped.
	Poll(ctx context.Context) ([]model.Command, error)
	// Consume marks the given commands as applied.
	Consume(ctx context.Context, cmds []model.Command) error
}

// SortBatch orders a batch by arrival time, then connector.
func SortBatch(cmds []model.Command) {
	sort.SliceStable(cmds, func(i, j int) bool {
		if !cmds[i].Received.Equal(cmds[j].Received) {
			return cmds[i].Received.Before(cmds[j].Received)
		}
		return cmds[i].Connector < cmds[j].Connector
	})
}
