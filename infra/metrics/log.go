package metrics

import (
	coremetrics "github.com/kilianp07/powermux/core/metrics"
	"github.com/kilianp07/powermux/infra/logger"
)

// LogConfig selects the level of cycle reports. Partial allocations are
// always logged as warnings.
type LogConfig struct {
	Verbose bool `json:"verbose"`
}

// LogSink writes cycle reports to the structured log.
type LogSink struct {
	log     logger.Logger
	verbose bool
}

func NewLogSink(cfg LogConfig, log logger.Logger) *LogSink {
	if log == nil {
		log = logger.New("metrics")
	}
	return &LogSink{log: log, verbose: cfg.Verbose}
}

func (s *LogSink) RecordCycle(r coremetrics.CycleReport) error {
	fields := map[string]any{
		"cycle":             r.Cycle,
		"kind":              r.Kind,
		"active_connectors": r.ActiveConnectors,
		"assigned_modules":  r.AssignedModules,
		"utilisation":       r.Utilisation,
		"satisfaction":      r.MeanSatisfaction,
		"duration_ms":       r.Duration.Milliseconds(),
	}
	if r.Err != "" {
		s.log.Errorf("cycle %d (%s) failed: %s", r.Cycle, r.Kind, r.Err)
		return nil
	}
	if s.verbose {
		for _, c := range r.Connectors {
			if c.Active {
				fields[c.Connector] = c.Modules
			}
		}
	}
	s.log.Debugw("cycle report", fields)
	return nil
}

func (s *LogSink) RecordPartialAllocation(ev coremetrics.PartialAllocationEvent) error {
	s.log.Warnf("%s under-powered by %.1fA", ev.Connector, ev.Shortfall)
	return nil
}
