package metrics

import "testing"

type recordSink struct {
	count int
}

func (r *recordSink) RecordCycle(CycleReport) error {
	r.count++
	return nil
}

func (r *recordSink) RecordCommand(CommandEvent) error {
	r.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2, NopSink{})
	if err := m.RecordCycle(CycleReport{}); err != nil {
		t.Fatalf("record cycle: %v", err)
	}
	if err := m.RecordCommand(CommandEvent{}); err != nil {
		t.Fatalf("record command: %v", err)
	}
	// recordSink does not implement SwitchRecorder
	if err := m.RecordSwitch(SwitchEvent{}); err != nil {
		t.Fatalf("record switch: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("reports not forwarded")
	}
}
