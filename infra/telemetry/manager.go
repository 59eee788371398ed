// Package telemetry ingests power module readings from MQTT and folds them
// into the engine state between rebalance passes.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/powermux/config"
	"github.com/kilianp07/powermux/core/engine"
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/topology"
	"github.com/kilianp07/powermux/infra/logger"
	infmqtt "github.com/kilianp07/powermux/infra/mqtt"
)

// Subscriber is the part of the MQTT client used by the manager.
type Subscriber interface {
	Subscribe(topic, qosKey string, handler paho.MessageHandler) error
	Config() infmqtt.Config
}

// Executor runs fn with exclusive access to the engine.
type Executor interface {
	Do(fn func(e *engine.Engine))
}

// Reading is one telemetry message of a module. Absent fields leave the
// module record unchanged.
type Reading struct {
	Module         int      `json:"module"`
	Alive          *bool    `json:"alive"`
	State          *string  `json:"state"`
	MaxCurrent     *float64 `json:"max_current"`
	MaxVoltage     *float64 `json:"max_voltage"`
	MaxPower       *float64 `json:"max_power"`
	Temperature    *float64 `json:"temperature"`
	InputVoltage   *float64 `json:"input_voltage"`
	InputCurrent   *float64 `json:"input_current"`
	OutputVoltage  *float64 `json:"output_voltage"`
	OutputCurrent  *float64 `json:"output_current"`
	PhaseAVoltage  *float64 `json:"phase_a_voltage"`
	PhaseBVoltage  *float64 `json:"phase_b_voltage"`
	PhaseCVoltage  *float64 `json:"phase_c_voltage"`
	FaultTriggered *bool    `json:"fault_triggered"`
	Faults         []string `json:"faults"`
	TS             *int64   `json:"ts"`
}

// Apply copies the present fields onto m.
func (r Reading) Apply(m *model.Module) {
	if r.Alive != nil {
		m.Alive = *r.Alive
	}
	if r.State != nil {
		m.State = model.ParseModuleState(*r.State)
	}
	setFloat(&m.MaxCurrent, r.MaxCurrent)
	setFloat(&m.MaxVoltage, r.MaxVoltage)
	setFloat(&m.MaxPower, r.MaxPower)
	setFloat(&m.Temperature, r.Temperature)
	setFloat(&m.InputVoltage, r.InputVoltage)
	setFloat(&m.InputCurrent, r.InputCurrent)
	setFloat(&m.OutputVoltage, r.OutputVoltage)
	setFloat(&m.OutputCurrent, r.OutputCurrent)
	setFloat(&m.PhaseAVoltage, r.PhaseAVoltage)
	setFloat(&m.PhaseBVoltage, r.PhaseBVoltage)
	setFloat(&m.PhaseCVoltage, r.PhaseCVoltage)
	if r.FaultTriggered != nil {
		m.FaultTriggered = *r.FaultTriggered
	}
	if r.Faults != nil {
		m.Faults = model.ParseFaultBits(r.Faults)
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

type queued struct {
	reading Reading
	arrived time.Time
}

// Manager queues the latest reading per module and applies the queue
// periodically through the executor.
type Manager struct {
	cfg  config.TelemetryConfig
	sub  Subscriber
	exec Executor
	log  logger.Logger
	now  func() time.Time

	mu       sync.Mutex
	pending  map[int]queued
	lastSeen map[int]time.Time

	received    prometheus.Counter
	decodeErrs  prometheus.Counter
	applied     prometheus.Counter
	stale       prometheus.Counter
	lastCollect prometheus.Gauge
	latency     prometheus.Histogram
}

// NewManager prepares telemetry ingestion. Metrics are registered on reg,
// or on the default registerer when reg is nil.
func NewManager(cfg config.TelemetryConfig, sub Subscriber, exec Executor, reg prometheus.Registerer) (*Manager, error) {
	m := &Manager{
		cfg:         cfg,
		sub:         sub,
		exec:        exec,
		log:         logger.New("telemetry"),
		now:         time.Now,
		pending:     make(map[int]queued),
		lastSeen:    make(map[int]time.Time),
		received:    prometheus.NewCounter(prometheus.CounterOpts{Name: "powermux_telemetry_messages_total", Help: "Number of module telemetry messages received"}),
		decodeErrs:  prometheus.NewCounter(prometheus.CounterOpts{Name: "powermux_telemetry_decode_errors_total", Help: "Number of undecodable telemetry messages"}),
		applied:     prometheus.NewCounter(prometheus.CounterOpts{Name: "powermux_telemetry_applied_total", Help: "Number of readings applied to the module state"}),
		stale:       prometheus.NewCounter(prometheus.CounterOpts{Name: "powermux_telemetry_stale_total", Help: "Number of modules marked dead after falling silent"}),
		lastCollect: prometheus.NewGauge(prometheus.GaugeOpts{Name: "powermux_telemetry_last_apply_timestamp_seconds", Help: "Unix timestamp of the last telemetry application"}),
		latency:     prometheus.NewHistogram(prometheus.HistogramOpts{Name: "powermux_telemetry_apply_latency_seconds", Help: "Delay between reception and application of a reading", Buckets: prometheus.DefBuckets}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{m.received, m.decodeErrs, m.applied, m.stale, m.lastCollect, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register telemetry metrics: %w", err)
		}
	}
	return m, nil
}

// Topic is the wildcard subscription for all module readings.
func (m *Manager) Topic() string {
	return m.sub.Config().Topic("module", "+", "telemetry")
}

// Start subscribes and applies queued readings until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.sub.Subscribe(m.Topic(), "telemetry", m.onMessage); err != nil {
		return fmt.Errorf("subscribe telemetry: %w", err)
	}
	ticker := time.NewTicker(time.Duration(m.cfg.Interval()) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Manager) onMessage(_ paho.Client, msg paho.Message) {
	m.received.Inc()
	if err := m.process(msg.Payload(), msg.Topic()); err != nil {
		m.decodeErrs.Inc()
		m.log.Errorf("telemetry decode: %v", err)
	}
}

// extractModule returns the module index of a <prefix>/module/<n>/telemetry
// topic, or 0.
func extractModule(topic string) int {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-3] != "module" {
		return 0
	}
	n, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0
	}
	return n
}

func (m *Manager) process(payload []byte, topic string) error {
	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return err
	}
	if r.Module == 0 {
		r.Module = extractModule(topic)
	}
	if !topology.ValidModule(r.Module) {
		return fmt.Errorf("%w: %d", engine.ErrInvalidModule, r.Module)
	}
	if r.MaxCurrent != nil && *r.MaxCurrent < 0 {
		zero := 0.0
		r.MaxCurrent = &zero
	}
	arrived := m.now()
	m.mu.Lock()
	m.pending[r.Module] = queued{reading: r, arrived: arrived}
	m.lastSeen[r.Module] = arrived
	m.mu.Unlock()
	return nil
}

// Flush applies every queued reading and marks silent modules dead.
func (m *Manager) Flush() {
	now := m.now()
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[int]queued)
	var silent []int
	if limit := time.Duration(m.cfg.Stale()) * time.Second; limit > 0 {
		for mod, seen := range m.lastSeen {
			if now.Sub(seen) > limit {
				silent = append(silent, mod)
				delete(m.lastSeen, mod)
			}
		}
	}
	m.mu.Unlock()
	if len(batch) == 0 && len(silent) == 0 {
		return
	}

	m.exec.Do(func(e *engine.Engine) {
		for mod, q := range batch {
			if err := e.UpdateModule(mod, q.reading.Apply); err != nil {
				m.log.Errorf("apply telemetry for module %d: %v", mod, err)
				continue
			}
			m.applied.Inc()
			m.latency.Observe(now.Sub(q.arrived).Seconds())
		}
		for _, mod := range silent {
			m.log.Warnf("module %d silent for more than %ds", mod, m.cfg.Stale())
			if err := e.UpdateModule(mod, func(md *model.Module) { md.Alive = false }); err == nil {
				m.stale.Inc()
			}
		}
	})
	m.lastCollect.SetToCurrentTime()
}

// Pending returns the number of queued readings.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
