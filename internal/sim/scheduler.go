package sim

import (
	"errors"
	"fmt"
	"sync"

	"warlane/server/internal/outcome"
	"warlane/server/internal/world"
)

// ErrAccessOverlap is returned when a system declares a component in both its
// read and write sets.
var ErrAccessOverlap = errors.New("system read and write sets overlap")

// Access is a system's declared component footprint. The sets are static:
// declared once at registration and validated there.
type Access struct {
	Read  []world.ComponentKey
	Write []world.ComponentKey
}

// Ctx is what a system sees during its slice of the tick: the world, the
// commands staged for this tick, and per-system deferred emission buffers
// merged at the stage barrier.
type Ctx struct {
	World    *world.World
	Commands []Command
	Out      *outcome.Buffer
	Damage   *[]world.DamagePacket
}

// EmitDamage stages a raw damage packet for the damage stage.
func (c *Ctx) EmitDamage(p world.DamagePacket) {
	*c.Damage = append(*c.Damage, p)
}

// System is a function over the store that runs each tick with declared
// read/write access.
type System interface {
	Name() string
	Access() Access
	Run(*Ctx)
}

type systemEntry struct {
	id     int
	system System
	access Access
	after  []string
	out    *outcome.Buffer
	damage []world.DamagePacket
}

// Scheduler derives a stage order from the registered dependency edges and
// the access-set conflict rule, then drives each tick over a worker pool.
type Scheduler struct {
	entries []*systemEntry
	stages  [][]*systemEntry
	workers int
	built   bool
}

// NewScheduler constructs a scheduler running at most workers systems
// concurrently within a stage.
func NewScheduler(workers int) *Scheduler {
	if workers < 2 {
		workers = 2
	}
	return &Scheduler{workers: workers}
}

// Register adds a system. after names systems that must have run earlier in
// the tick. Registration fails when the read and write sets overlap.
func (s *Scheduler) Register(sys System, after ...string) error {
	if s.built {
		return errors.New("scheduler already built")
	}
	access := sys.Access()
	seen := make(map[world.ComponentKey]bool, len(access.Write))
	for _, key := range access.Write {
		seen[key] = true
	}
	for _, key := range access.Read {
		if seen[key] {
			return fmt.Errorf("system %q: %w on %s", sys.Name(), ErrAccessOverlap, key)
		}
	}
	for _, name := range s.names() {
		if name == sys.Name() {
			return fmt.Errorf("duplicate system %q", sys.Name())
		}
	}
	entry := &systemEntry{
		id:     len(s.entries),
		system: sys,
		access: access,
		after:  after,
		out:    outcome.NewBuffer(len(s.entries)),
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Scheduler) names() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.system.Name())
	}
	return names
}

// conflicts applies the pairwise rule: two systems may share a stage only
// when neither writes what the other touches.
func conflicts(a, b Access) bool {
	touch := func(acc Access) map[world.ComponentKey]bool {
		m := make(map[world.ComponentKey]bool, len(acc.Read)+len(acc.Write))
		for _, k := range acc.Read {
			m[k] = true
		}
		for _, k := range acc.Write {
			m[k] = true
		}
		return m
	}
	bTouch := touch(b)
	for _, k := range a.Write {
		if bTouch[k] {
			return true
		}
	}
	aTouch := touch(a)
	for _, k := range b.Write {
		if aTouch[k] {
			return true
		}
	}
	return false
}

// Build topologically orders the systems into stages. Systems in the same
// topological rank split into sub-stages until the conflict rule holds for
// every concurrent pair.
func (s *Scheduler) Build() error {
	if s.built {
		return nil
	}
	byName := make(map[string]*systemEntry, len(s.entries))
	for _, e := range s.entries {
		byName[e.system.Name()] = e
	}

	// Kahn's algorithm over the declared edges.
	indegree := make(map[*systemEntry]int, len(s.entries))
	dependents := make(map[*systemEntry][]*systemEntry, len(s.entries))
	for _, e := range s.entries {
		for _, dep := range e.after {
			upstream, ok := byName[dep]
			if !ok {
				return fmt.Errorf("system %q depends on unknown system %q", e.system.Name(), dep)
			}
			indegree[e]++
			dependents[upstream] = append(dependents[upstream], e)
		}
	}

	placed := 0
	frontier := make([]*systemEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if indegree[e] == 0 {
			frontier = append(frontier, e)
		}
	}
	for len(frontier) > 0 {
		// One topological rank; carve into conflict-free sub-stages,
		// preserving registration order for determinism.
		rank := frontier
		for len(rank) > 0 {
			var stage []*systemEntry
			var rest []*systemEntry
			for _, candidate := range rank {
				fits := true
				for _, member := range stage {
					if conflicts(candidate.access, member.access) {
						fits = false
						break
					}
				}
				if fits {
					stage = append(stage, candidate)
				} else {
					rest = append(rest, candidate)
				}
			}
			s.stages = append(s.stages, stage)
			rank = rest
		}

		var next []*systemEntry
		for _, e := range frontier {
			placed++
			for _, dep := range dependents[e] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}
	if placed != len(s.entries) {
		return errors.New("dependency cycle among systems")
	}
	s.built = true
	return nil
}

// Stages exposes the computed stage layout as system names, for tests and
// diagnostics.
func (s *Scheduler) Stages() [][]string {
	out := make([][]string, 0, len(s.stages))
	for _, stage := range s.stages {
		names := make([]string, 0, len(stage))
		for _, e := range stage {
			names = append(names, e.system.Name())
		}
		out = append(out, names)
	}
	return out
}

// RunTick executes every stage. Within a stage systems run concurrently;
// each stage ends with a barrier that merges the per-system outcome and
// damage buffers in registration order, keeping replay deterministic.
func (s *Scheduler) RunTick(w *world.World, commands []Command) {
	for _, stage := range s.stages {
		if len(stage) == 1 {
			s.runOne(stage[0], w, commands)
		} else {
			var wg sync.WaitGroup
			sem := make(chan struct{}, s.workers)
			for _, e := range stage {
				wg.Add(1)
				sem <- struct{}{}
				go func(e *systemEntry) {
					defer func() {
						<-sem
						wg.Done()
					}()
					s.runOne(e, w, commands)
				}(e)
			}
			wg.Wait()
		}

		// Barrier: merge deferred emissions deterministically.
		buffers := make([]*outcome.Buffer, 0, len(stage))
		for _, e := range stage {
			buffers = append(buffers, e.out)
		}
		w.Outcomes.Merge(buffers)
		for _, e := range stage {
			if len(e.damage) > 0 {
				w.DamageQueue = append(w.DamageQueue, e.damage...)
				e.damage = e.damage[:0]
			}
		}
	}
}

func (s *Scheduler) runOne(e *systemEntry, w *world.World, commands []Command) {
	ctx := Ctx{
		World:    w,
		Commands: commands,
		Out:      e.out,
		Damage:   &e.damage,
	}
	e.system.Run(&ctx)
}
