package scenarios

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kilianp07/powermux/core/engine"
	"github.com/kilianp07/powermux/core/logger"
	"github.com/kilianp07/powermux/core/model"
	coresnap "github.com/kilianp07/powermux/core/snapshot"
	"github.com/kilianp07/powermux/core/state"
)

// Result is the outcome of a scenario run.
type Result struct {
	Snapshot coresnap.Snapshot
	Grid     string
	Events   *engine.Recorder
	RelaysOn []uint16
	MuxesOn  []uint16
}

// Run replays sc on a fresh engine. Commands go through the same path as in
// the service; errors of individual commands are logged and the run goes on.
func Run(sc *Scenario, log logger.Logger) (*Result, error) {
	if log == nil {
		log = logger.Discard{}
	}
	st := state.New(sc.MaxCurrent)
	for _, m := range sc.DeadModules {
		mod := st.Module(m)
		if mod == nil {
			return nil, fmt.Errorf("dead module %d: %w", m, engine.ErrInvalidModule)
		}
		mod.Alive = false
	}
	rec := &engine.Recorder{}
	clock := time.Unix(0, 0).UTC()
	eng := engine.New(st, log, engine.WithEventSink(rec), engine.WithClock(func() time.Time { return clock }))
	iterations := sc.FillIterations
	if iterations <= 0 {
		iterations = engine.DefaultFillIterations
	}

	for i, step := range sc.Steps {
		clock = clock.Add(time.Second)
		for _, m := range step.Kill {
			if err := eng.UpdateModule(m, func(md *model.Module) { md.Alive = false }); err != nil {
				log.Errorf("step %d: %v", i, err)
			}
		}
		if step.Action != "" {
			cmd, err := step.ToModel(fmt.Sprintf("%s-%d", sc.Name, i))
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			if err := eng.ApplyCommand(cmd); err != nil {
				log.Errorf("step %d: %v", i, err)
			}
		}
		for n := 0; n < step.Cycles; n++ {
			if err := eng.Cycle(iterations); err != nil {
				log.Errorf("step %d cycle %d: %v", i, n, err)
			}
		}
	}

	var grid strings.Builder
	if err := engine.Render(&grid, st); err != nil {
		return nil, err
	}
	res := &Result{
		Snapshot: coresnap.Build(st, uint64(len(sc.Steps)), coresnap.KindCycle, clock),
		Grid:     grid.String(),
		Events:   rec,
		RelaysOn: closed(st.Relays()),
		MuxesOn:  closed(st.Muxes()),
	}
	return res, nil
}

func closed(flags map[uint16]bool) []uint16 {
	out := []uint16{}
	for id, on := range flags {
		if on {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Check compares res with the expectations of sc and lists every mismatch.
func Check(sc *Scenario, res *Result) []string {
	if sc.Expected == nil {
		return nil
	}
	var out []string
	for name, want := range sc.Expected.Assignments {
		got := res.Snapshot.Assignments[name]
		if !slices.Equal(got, want) {
			out = append(out, fmt.Sprintf("%s: modules %v, want %v", name, got, want))
		}
	}
	if want := sc.Expected.RelaysOn; want != nil && !slices.Equal(res.RelaysOn, sorted(want)) {
		out = append(out, fmt.Sprintf("relays on %v, want %v", res.RelaysOn, want))
	}
	if want := sc.Expected.MuxesOn; want != nil && !slices.Equal(res.MuxesOn, sorted(want)) {
		out = append(out, fmt.Sprintf("muxes on %v, want %v", res.MuxesOn, want))
	}
	if got := res.Events.Count(engine.PartialAllocation); got != sc.Expected.Partial {
		out = append(out, fmt.Sprintf("partial allocations %d, want %d", got, sc.Expected.Partial))
	}
	return out
}

func sorted(ids []uint16) []uint16 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
