package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/powermux/core/metrics"
)

// PromSink exposes allocation state and switching activity as Prometheus
// metrics.
type PromSink struct {
	cycles      *prometheus.CounterVec
	duration    prometheus.Histogram
	assigned    *prometheus.GaugeVec
	requested   *prometheus.GaugeVec
	satisfied   *prometheus.GaugeVec
	utilisation prometheus.Gauge
	closed      *prometheus.GaugeVec
	commands    *prometheus.CounterVec
	switches    *prometheus.CounterVec
	partial     *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powermux_passes_total",
			Help: "Rebalance cycles and command batches run, by kind and outcome",
		}, []string{"kind", "failed"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "powermux_pass_duration_seconds",
			Help:    "Time spent holding the state for one cycle or batch",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		assigned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "powermux_connector_assigned_amperes",
			Help: "Current deliverable by the modules held by each connector",
		}, []string{"connector"}),
		requested: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "powermux_connector_requested_amperes",
			Help: "Current requested by the vehicle on each connector",
		}, []string{"connector"}),
		satisfied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "powermux_connector_satisfaction_ratio",
			Help: "Share of the requested current covered, capped at 1",
		}, []string{"connector"}),
		utilisation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powermux_module_utilisation_ratio",
			Help: "Share of alive modules assigned to a connector",
		}),
		closed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "powermux_switches_closed",
			Help: "Closed relays and muxes",
		}, []string{"kind"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powermux_commands_total",
			Help: "Commands applied, by action and acceptance",
		}, []string{"action", "accepted"}),
		switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powermux_switch_transitions_total",
			Help: "Relay and mux transitions",
		}, []string{"kind", "state"}),
		partial: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powermux_partial_allocations_total",
			Help: "Allocations that left a connector under-powered",
		}, []string{"connector"}),
	}
	var err error
	if s.cycles, err = register(reg, s.cycles); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.assigned, err = register(reg, s.assigned); err != nil {
		return nil, err
	}
	if s.requested, err = register(reg, s.requested); err != nil {
		return nil, err
	}
	if s.satisfied, err = register(reg, s.satisfied); err != nil {
		return nil, err
	}
	if s.utilisation, err = register(reg, s.utilisation); err != nil {
		return nil, err
	}
	if s.closed, err = register(reg, s.closed); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, s.commands); err != nil {
		return nil, err
	}
	if s.switches, err = register(reg, s.switches); err != nil {
		return nil, err
	}
	if s.partial, err = register(reg, s.partial); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCycle updates the per-connector gauges from the report.
func (s *PromSink) RecordCycle(r coremetrics.CycleReport) error {
	s.cycles.WithLabelValues(r.Kind, strconv.FormatBool(r.Err != "")).Inc()
	s.duration.Observe(r.Duration.Seconds())
	for _, c := range r.Connectors {
		s.assigned.WithLabelValues(c.Connector).Set(c.Assigned)
		s.requested.WithLabelValues(c.Connector).Set(c.Requested)
		s.satisfied.WithLabelValues(c.Connector).Set(c.Satisfaction())
	}
	s.utilisation.Set(r.Utilisation)
	s.closed.WithLabelValues("relay").Set(float64(r.ClosedRelays))
	s.closed.WithLabelValues("mux").Set(float64(r.ClosedMuxes))
	return nil
}

// RecordCommand counts an applied or rejected command.
func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.Action, strconv.FormatBool(ev.Accepted)).Inc()
	return nil
}

// RecordSwitch counts a relay or mux transition.
func (s *PromSink) RecordSwitch(ev coremetrics.SwitchEvent) error {
	state := "off"
	if ev.On {
		state = "on"
	}
	s.switches.WithLabelValues(ev.Kind, state).Inc()
	return nil
}

// RecordPartialAllocation counts an under-powered allocation.
func (s *PromSink) RecordPartialAllocation(ev coremetrics.PartialAllocationEvent) error {
	s.partial.WithLabelValues(ev.Connector).Inc()
	return nil
}
