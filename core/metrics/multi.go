package metrics

// MultiSink fans reports out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycle forwards the report to all sinks, returning the first error encountered.
func (m *MultiSink) RecordCycle(r CycleReport) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycle(r); err != nil {
			return err
		}
	}
	return nil
}

// RecordCommand forwards command events to sinks that support them.
func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CommandRecorder); ok {
			if err := rec.RecordCommand(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSwitch forwards switch transitions.
func (m *MultiSink) RecordSwitch(ev SwitchEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SwitchRecorder); ok {
			if err := rec.RecordSwitch(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPartialAllocation forwards under-powered allocations.
func (m *MultiSink) RecordPartialAllocation(ev PartialAllocationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PartialAllocationRecorder); ok {
			if err := rec.RecordPartialAllocation(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
