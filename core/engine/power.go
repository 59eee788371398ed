package engine

import "github.com/kilianp07/powermux/core/model"

// SufficientPower reports whether the modules assigned to c cover its
// requested current. The sentinel connector never needs power.
func (e *Engine) SufficientPower(c model.ConnectorID) bool {
	if c == model.NoConnector {
		return true
	}
	conn := e.st.Connector(c)
	if conn == nil {
		return false
	}
	return e.st.AssignedCurrent(c) >= conn.EVMaxCurrent
}

// Surplus is the assigned current of c minus its requested current. It is
// negative while c is under-powered.
func (e *Engine) Surplus(c model.ConnectorID) float64 {
	conn := e.st.Connector(c)
	if conn == nil {
		return 0
	}
	return e.st.AssignedCurrent(c) - conn.EVMaxCurrent
}

// ExtraPower reports whether c holds at least ExtraThreshold amps more than
// requested.
func (e *Engine) ExtraPower(c model.ConnectorID) bool {
	return e.Surplus(c) >= ExtraThreshold
}

func (e *Engine) deficit(c model.ConnectorID) float64 {
	if s := e.Surplus(c); s < 0 {
		return -s
	}
	return 0
}

func (e *Engine) pairCurrent(m int) float64 {
	total := 0.0
	for _, slot := range []int{m, m + 1} {
		if mod := e.st.Module(slot); mod != nil && mod.Active {
			total += mod.MaxCurrent
		}
	}
	return total
}
