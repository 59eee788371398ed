package snapshot

import (
	"context"
	"slices"
	"time"

	coresnap "github.com/kilianp07/powermux/core/snapshot"
)

// Query filters the snapshot history. Zero fields match everything.
type Query struct {
	Start time.Time
	End   time.Time
	Kind  string
	// Connector keeps snapshots in which the named connector held at least
	// one module.
	Connector string
	Limit     int
}

// HistoryStore keeps every published snapshot.
type HistoryStore interface {
	coresnap.Publisher
	Query(ctx context.Context, q Query) ([]coresnap.Snapshot, error)
	Close() error
}

func (q Query) matches(s coresnap.Snapshot) bool {
	if !q.Start.IsZero() && s.Time.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && s.Time.After(q.End) {
		return false
	}
	if q.Kind != "" && s.Kind != q.Kind {
		return false
	}
	if q.Connector != "" && len(s.Assignments[q.Connector]) == 0 {
		return false
	}
	return true
}

// limit keeps the q.Limit most recent snapshots, oldest first.
func (q Query) limit(out []coresnap.Snapshot) []coresnap.Snapshot {
	slices.SortStableFunc(out, func(a, b coresnap.Snapshot) int {
		if a.Seq < b.Seq {
			return -1
		}
		if a.Seq > b.Seq {
			return 1
		}
		return a.Time.Compare(b.Time)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}
