package engine

import (
	"fmt"

	"github.com/kilianp07/powermux/core/model"
)

// ApplyCommand executes one external command. start records the requested
// voltage and current then allocates; stop tears the connector down then
// clears its request; update only records the new request and leaves the
// allocation to the next rebalance cycle.
func (e *Engine) ApplyCommand(cmd model.Command) error {
	conn, err := e.connector(cmd.Connector)
	if err != nil {
		return fmt.Errorf("command %s: %w", cmd.ID, err)
	}
	switch cmd.Action {
	case model.ActionStart:
		conn.EVMaxVoltage = cmd.TargetVoltage
		conn.EVMaxCurrent = cmd.TargetCurrent
		return e.AssignPowerModules(cmd.Connector)
	case model.ActionStop:
		if err := e.StopConnector(cmd.Connector); err != nil {
			return err
		}
		conn.EVMaxVoltage = 0
		conn.EVMaxCurrent = 0
	case model.ActionUpdate:
		conn.EVMaxVoltage = cmd.TargetVoltage
		conn.EVMaxCurrent = cmd.TargetCurrent
	case model.ActionNone, "":
	default:
		return fmt.Errorf("command %s: unknown action %q", cmd.ID, cmd.Action)
	}
	return nil
}
