package sim

import (
	"context"
	"time"

	"warlane/server/internal/telemetry"
	"warlane/server/internal/world"
	"warlane/server/logging"
)

// DefaultTickRate is the fixed simulation cadence (ΔT = 100 ms).
const DefaultTickRate = 10

// overrunWarnFactor: a tick longer than this many ΔT is reported loudly but
// never cancelled.
const overrunWarnFactor = 5

// LoopConfig tunes the tick loop.
type LoopConfig struct {
	TickRate        int
	CommandCapacity int
}

func (cfg LoopConfig) normalized() LoopConfig {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = 1024
	}
	return cfg
}

// Hooks let the transport layer observe tick boundaries without touching
// components. AfterTick runs after the outcome stage, before the applied
// journal resets; Shutdown runs once after the final tick drains.
type Hooks struct {
	AfterTick func(*world.World)
	Shutdown  func(*world.World)
}

// Loop drives the world at a fixed cadence: drain commands, run the
// scheduler stages, process outcomes single-threaded, publish, sleep to the
// next boundary.
type Loop struct {
	w      *world.World
	sched  *Scheduler
	buffer *CommandBuffer
	cfg    LoopConfig
	hooks  Hooks

	logger  telemetry.Logger
	metrics *telemetry.Counters
}

// NewLoop wires a built scheduler to a world.
func NewLoop(w *world.World, sched *Scheduler, cfg LoopConfig, hooks Hooks) *Loop {
	cfg = cfg.normalized()
	return &Loop{
		w:       w,
		sched:   sched,
		buffer:  NewCommandBuffer(cfg.CommandCapacity, w.Metrics()),
		cfg:     cfg,
		hooks:   hooks,
		logger:  w.Logger(),
		metrics: w.Metrics(),
	}
}

// Submit stages a command from an ingress adapter. Safe for concurrent use.
func (l *Loop) Submit(cmd Command) bool {
	return l.buffer.Push(cmd)
}

// World exposes the simulation state to read-only callers (diagnostics).
func (l *Loop) World() *world.World { return l.w }

// Step advances exactly one tick with the given true elapsed ΔT. Exposed for
// tests and deterministic harnesses.
func (l *Loop) Step(delta float64) error {
	w := l.w
	w.Clock.Tick++
	w.Clock.Delta = delta
	w.Clock.Elapsed += delta

	commands := l.buffer.Drain()
	l.sched.RunTick(w, commands)
	if err := w.ProcessOutcomes(); err != nil {
		return err
	}
	w.Modifiers.Tick(delta)

	if l.hooks.AfterTick != nil {
		l.hooks.AfterTick(w)
	}
	w.Applied = w.Applied[:0]
	w.Rejections = w.Rejections[:0]
	w.Casts = w.Casts[:0]
	return nil
}

// Run blocks until the context is cancelled or an invariant violation
// escalates. Overruns are logged and the next tick integrates the true
// elapsed time; there is no time dilation.
func (l *Loop) Run(ctx context.Context) error {
	dt := time.Second / time.Duration(l.cfg.TickRate)
	next := time.Now().Add(dt)
	delta := dt.Seconds()

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		default:
		}

		started := time.Now()
		if err := l.Step(delta); err != nil {
			l.logger.Printf("tick %d aborted: %v", l.w.Clock.Tick, err)
			l.shutdownAfterFault()
			return err
		}
		elapsed := time.Since(started)
		overrun := elapsed > dt
		if l.metrics != nil {
			l.metrics.RecordTick(elapsed, overrun)
		}
		if overrun {
			severity := logging.SeverityWarn
			if elapsed > time.Duration(overrunWarnFactor)*dt {
				severity = logging.SeverityError
			}
			l.w.Publisher().Publish(ctx, logging.Event{
				Type:     logging.EventTickOverrun,
				Tick:     l.w.Clock.Tick,
				Severity: severity,
				Category: logging.CategorySystem,
				Payload:  map[string]any{"elapsedMs": elapsed.Milliseconds(), "budgetMs": dt.Milliseconds()},
			})
		}

		now := time.Now()
		if sleep := next.Sub(now); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return l.shutdown()
			case <-timer.C:
			}
			delta = dt.Seconds()
			next = next.Add(dt)
		} else {
			// Overrun: integrate the true elapsed time next tick and
			// rebase the schedule instead of bursting to catch up.
			delta = now.Sub(next.Add(-dt)).Seconds()
			next = now.Add(dt)
		}
	}
}

// shutdown drains the in-flight state and publishes a final snapshot.
func (l *Loop) shutdown() error {
	if err := l.w.ProcessOutcomes(); err != nil {
		return err
	}
	if l.hooks.Shutdown != nil {
		l.hooks.Shutdown(l.w)
	}
	return nil
}

func (l *Loop) shutdownAfterFault() {
	if l.hooks.Shutdown != nil {
		l.hooks.Shutdown(l.w)
	}
}
