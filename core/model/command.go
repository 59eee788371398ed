package model

import (
	"fmt"
	"time"
)

// Action is the operation requested for a connector.
type Action string

const (
	ActionNone   Action = "none"
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionUpdate Action = "update"
)

// ParseAction validates an action string. An empty string is treated as none.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case "", ActionNone:
		return ActionNone, nil
	case ActionStart, ActionStop, ActionUpdate:
		return Action(s), nil
	default:
		return ActionNone, fmt.Errorf("unknown action %q", s)
	}
}

// Command is one external request for a connector.
type Command struct {
	ID            string
	Connector     ConnectorID
	Action        Action
	TargetVoltage float64
	TargetCurrent float64
	Received      time.Time
}

// Pending reports whether the command still needs to be applied.
func (c Command) Pending() bool { return c.Action != ActionNone && c.Action != "" }
