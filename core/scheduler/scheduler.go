package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kilianp07/powermux/core/command"
	"github.com/kilianp07/powermux/core/engine"
	"github.com/kilianp07/powermux/core/logger"
	"github.com/kilianp07/powermux/core/metrics"
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/monitoring"
	"github.com/kilianp07/powermux/core/snapshot"
	"github.com/kilianp07/powermux/core/state"
)

const tracerName = "github.com/kilianp07/powermux/core/scheduler"

// Scheduler coordinates the rebalance and command actors over one engine.
type Scheduler struct {
	cfg    SchedulerConfig
	eng    *engine.Engine
	source command.Source
	pub    snapshot.Publisher
	sink   metrics.MetricsSink
	log    logger.Logger
	tracer trace.Tracer
	now    func() time.Time

	mu     sync.Mutex
	idleCh *sync.Cond
	idle   bool
	seq    uint64

	cycles  atomic.Uint64
	batches atomic.Uint64

	// enter and exit bracket every exclusive episode; tests use them to
	// detect overlap.
	enter, exit func()
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithSource sets the command source polled by the command actor.
func WithSource(src command.Source) Option { return func(s *Scheduler) { s.source = src } }

// WithPublisher sets where snapshots go after every cycle and batch.
func WithPublisher(p snapshot.Publisher) Option { return func(s *Scheduler) { s.pub = p } }

// WithMetrics sets the sink receiving cycle reports and command events.
func WithMetrics(m metrics.MetricsSink) Option { return func(s *Scheduler) { s.sink = m } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithTracer sets the tracer used for cycle and batch spans.
func WithTracer(t trace.Tracer) Option { return func(s *Scheduler) { s.tracer = t } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New creates a scheduler driving eng. The engine's state must not be
// touched by anything else once the scheduler runs.
func New(cfg SchedulerConfig, eng *engine.Engine, opts ...Option) *Scheduler {
	cfg.SetDefaults()
	s := &Scheduler{
		cfg:  cfg,
		eng:  eng,
		idle: true,
		now:  time.Now,
	}
	s.idleCh = sync.NewCond(&s.mu)
	for _, o := range opts {
		o(s)
	}
	if s.pub == nil {
		s.pub = snapshot.NewMultiPublisher()
	}
	if s.sink == nil {
		s.sink = metrics.NopSink{}
	}
	if s.log == nil {
		s.log = logger.Discard{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Cycles returns the number of completed rebalance cycles.
func (s *Scheduler) Cycles() uint64 { return s.cycles.Load() }

// Batches returns the number of applied command batches.
func (s *Scheduler) Batches() uint64 { return s.batches.Load() }

// Run starts both actors and blocks until ctx is cancelled and both have
// returned. A cycle or batch in progress always completes first.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer monitoring.Recover()
		s.rebalanceLoop(ctx)
	}()
	if s.source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer monitoring.Recover()
			s.commandLoop(ctx)
		}()
	}
	wg.Wait()
	s.log.Infof("scheduler stopped after %d cycles and %d batches", s.Cycles(), s.Batches())
}

func (s *Scheduler) rebalanceLoop(ctx context.Context) {
	for {
		if err := s.RunCycle(ctx); err != nil {
			s.log.Errorf("rebalance cycle: %v", err)
		}
		if !s.sleep(ctx, s.cfg.RebalanceInterval()) {
			return
		}
	}
}

func (s *Scheduler) commandLoop(ctx context.Context) {
	for {
		if !s.sleep(ctx, s.cfg.PollInterval()) {
			return
		}
		cmds, err := s.source.Poll(ctx)
		if err != nil {
			s.log.Warnf("command poll: %v", err)
		}
		pending := cmds[:0:0]
		for _, c := range cmds {
			if c.Pending() {
				pending = append(pending, c)
			}
		}
		if len(pending) == 0 {
			continue
		}
		if err := s.ApplyBatch(ctx, pending); err != nil {
			s.log.Errorf("command batch: %v", err)
		}
	}
}

// sleep waits for d in ticks, reporting false once ctx is done.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	tick := s.cfg.Tick()
	if tick <= 0 || tick > d {
		tick = d
	}
	for waited := time.Duration(0); ; waited += tick {
		if ctx.Err() != nil {
			return false
		}
		if waited >= d {
			return true
		}
		t := time.NewTimer(tick)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

func (s *Scheduler) lock() {
	s.mu.Lock()
	if s.enter != nil {
		s.enter()
	}
}

func (s *Scheduler) unlock() {
	if s.exit != nil {
		s.exit()
	}
	s.mu.Unlock()
}

// RunCycle runs one rebalance cycle under exclusive access and publishes
// the resulting snapshot. Engine errors are reported and returned; the
// snapshot is published regardless.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "rebalance.cycle")
	defer span.End()

	s.lock()
	defer s.unlock()
	s.idle = false
	start := s.now()

	err := s.eng.Cycle(s.cfg.FillIterations)
	if err != nil {
		monitoring.Report("rebalance", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	n := s.cycles.Add(1)
	pubErr := s.publish(ctx, snapshot.KindCycle, start, err)
	span.SetAttributes(attribute.Int64("powermux.cycle", int64(n)))

	s.idle = true
	s.idleCh.Broadcast()
	return errors.Join(err, pubErr)
}

// ApplyBatch applies cmds in order once the rebalance actor is idle, then
// publishes a snapshot and consumes the commands at the source. A rejected
// command does not stop the batch.
func (s *Scheduler) ApplyBatch(ctx context.Context, cmds []model.Command) error {
	ctx, span := s.tracer.Start(ctx, "commands.batch", trace.WithAttributes(attribute.Int("powermux.commands", len(cmds))))
	defer span.End()

	s.lock()
	defer s.unlock()
	for !s.idle {
		s.idleCh.Wait()
	}
	start := s.now()

	var errs []error
	for _, cmd := range cmds {
		err := s.eng.ApplyCommand(cmd)
		ev := metrics.CommandEvent{
			CommandID: cmd.ID,
			Connector: cmd.Connector.String(),
			Action:    string(cmd.Action),
			Current:   cmd.TargetCurrent,
			Accepted:  err == nil,
			Time:      s.now(),
		}
		if err != nil {
			ev.Error = err.Error()
			s.log.Warnf("command %s rejected: %v", cmd.ID, err)
			monitoring.Report("commands", err)
			errs = append(errs, err)
		} else {
			s.log.Infof("applied %s on %s (%.0f V, %.0f A)", cmd.Action, cmd.Connector, cmd.TargetVoltage, cmd.TargetCurrent)
		}
		if rec, ok := s.sink.(metrics.CommandRecorder); ok {
			if rerr := rec.RecordCommand(ev); rerr != nil {
				s.log.Warnf("record command: %v", rerr)
			}
		}
	}
	s.batches.Add(1)
	batchErr := errors.Join(errs...)
	pubErr := s.publish(ctx, snapshot.KindCommands, start, batchErr)

	if s.source != nil {
		if err := s.source.Consume(ctx, cmds); err != nil {
			s.log.Errorf("consume commands: %v", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		span.SetStatus(codes.Error, "commands rejected")
	}
	return errors.Join(append(errs, pubErr)...)
}

// publish snapshots the state and records the cycle report. Callers hold mu.
func (s *Scheduler) publish(ctx context.Context, kind string, start time.Time, cause error) error {
	s.seq++
	at := s.now()
	st := s.eng.State()
	snap := snapshot.Build(st, s.seq, kind, at)
	report := metrics.Summarize(st, s.seq, kind, at, at.Sub(start))
	if cause != nil {
		report.Err = cause.Error()
	}
	if err := s.sink.RecordCycle(report); err != nil {
		s.log.Warnf("record cycle: %v", err)
	}
	if err := s.pub.Publish(ctx, snap); err != nil {
		s.log.Errorf("publish snapshot: %v", err)
		return err
	}
	s.log.Debugw("snapshot published", map[string]any{
		"seq":         s.seq,
		"kind":        kind,
		"assigned":    report.AssignedModules,
		"utilisation": report.Utilisation,
	})
	return nil
}

// Snapshot captures the current state under exclusive access. It carries the
// sequence number of the last published snapshot and is not published.
func (s *Scheduler) Snapshot(kind string) snapshot.Snapshot {
	s.lock()
	defer s.unlock()
	return snapshot.Build(s.eng.State(), s.seq, kind, s.now())
}

// Do runs fn with exclusive access to the engine, between cycles and batches.
// Changes made by fn are published with the next pass.
func (s *Scheduler) Do(fn func(e *engine.Engine)) {
	s.lock()
	defer s.unlock()
	fn(s.eng)
}

// View runs fn with exclusive access to the state. fn must not retain st.
func (s *Scheduler) View(fn func(st *state.SystemState)) {
	s.lock()
	defer s.unlock()
	fn(s.eng.State())
}
