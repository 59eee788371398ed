package mqtt

import (
	"context"
	"encoding/json"
	"errors"

	coresnap "github.com/kilianp07/powermux/core/snapshot"
)

// SnapshotPublisher publishes every snapshot as a retained message on
// <prefix>/state and the module list of each connector on
// <prefix>/connector/<name>/modules.
type SnapshotPublisher struct {
	client *Client
}

// NewSnapshotPublisher publishes through client.
func NewSnapshotPublisher(client *Client) *SnapshotPublisher {
	return &SnapshotPublisher{client: client}
}

// Publish sends the snapshot.
func (p *SnapshotPublisher) Publish(_ context.Context, s coresnap.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	cfg := p.client.Config()
	errs := []error{p.client.Publish(cfg.Topic("state"), "state", true, payload)}
	for name, mods := range s.Assignments {
		b, err := json.Marshal(mods)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, p.client.Publish(cfg.Topic("connector", name, "modules"), "state", true, b))
	}
	return errors.Join(errs...)
}
