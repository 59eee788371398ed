package engine

import (
	"time"

	"github.com/kilianp07/powermux/core/logger"
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/state"
)

const (
	// ExtraThreshold is the surplus, in amps, from which a connector is
	// considered over-provisioned: two base-module equivalents.
	ExtraThreshold = 2 * model.BaseModuleCurrent
	// DefaultFillIterations is the number of fill passes per rebalance cycle.
	DefaultFillIterations = 3
)

// Engine applies allocation, isolation and rebalancing on a SystemState.
type Engine struct {
	st     *state.SystemState
	log    logger.Logger
	events EventSink
	now    func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithEventSink routes engine events to sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.events = sink
		}
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine operating on st.
func New(st *state.SystemState, log logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Discard{}
	}
	e := &Engine{st: st, log: log, events: nopSink{}, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State exposes the state the engine mutates.
func (e *Engine) State() *state.SystemState { return e.st }

func (e *Engine) emit(ev Event) {
	ev.Time = e.now()
	e.events.Publish(ev)
}

func (e *Engine) connector(c model.ConnectorID) (*model.Connector, error) {
	conn := e.st.Connector(c)
	if conn == nil {
		return nil, invalidConnector(c)
	}
	return conn, nil
}
