package sim

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"warlane/server/internal/ability"
	"warlane/server/internal/world"
)

type fakeSystem struct {
	name   string
	access Access
	run    func(*Ctx)
}

func (s fakeSystem) Name() string   { return s.name }
func (s fakeSystem) Access() Access { return s.access }
func (s fakeSystem) Run(ctx *Ctx) {
	if s.run != nil {
		s.run(ctx)
	}
}

func emptyWorld(t *testing.T) *world.World {
	t.Helper()
	reg, err := ability.BuildRegistry(nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	return world.New(world.Config{Seed: "sched"}, nil, world.ArchetypeSet{}, reg, world.Deps{})
}

func TestRegisterRejectsOverlappingAccess(t *testing.T) {
	sched := NewScheduler(2)
	err := sched.Register(fakeSystem{
		name: "bad",
		access: Access{
			Read:  []world.ComponentKey{world.KeyPosition},
			Write: []world.ComponentKey{world.KeyPosition},
		},
	})
	if !errors.Is(err, ErrAccessOverlap) {
		t.Fatalf("expected ErrAccessOverlap, got %v", err)
	}
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	sched := NewScheduler(2)
	sys := fakeSystem{name: "twin"}
	if err := sched.Register(sys); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := sched.Register(sys); err == nil {
		t.Fatal("duplicate system names must be rejected")
	}
}

func TestBuildDetectsCycles(t *testing.T) {
	sched := NewScheduler(2)
	if err := sched.Register(fakeSystem{name: "a"}, "b"); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := sched.Register(fakeSystem{name: "b"}, "a"); err != nil {
		t.Fatalf("Register b: %v", err)
	}
	if err := sched.Build(); err == nil {
		t.Fatal("cycle must fail the build")
	}
}

func TestBuildSplitsConflictingRankIntoSubStages(t *testing.T) {
	sched := NewScheduler(2)
	writePos := Access{Write: []world.ComponentKey{world.KeyPosition}}
	writeVel := Access{Write: []world.ComponentKey{world.KeyVelocity}}
	if err := sched.Register(fakeSystem{name: "a", access: writePos}); err != nil {
		t.Fatal(err)
	}
	if err := sched.Register(fakeSystem{name: "b", access: writePos}); err != nil {
		t.Fatal(err)
	}
	if err := sched.Register(fakeSystem{name: "c", access: writeVel}); err != nil {
		t.Fatal(err)
	}
	if err := sched.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	stages := sched.Stages()
	if len(stages) != 2 {
		t.Fatalf("expected 2 sub-stages, got %v", stages)
	}
	// a and c do not conflict and share the first sub-stage; b waits.
	if len(stages[0]) != 2 || stages[0][0] != "a" || stages[0][1] != "c" {
		t.Fatalf("unexpected first stage %v", stages[0])
	}
	if len(stages[1]) != 1 || stages[1][0] != "b" {
		t.Fatalf("unexpected second stage %v", stages[1])
	}
}

func TestRunTickHonorsDependencyOrder(t *testing.T) {
	sched := NewScheduler(4)
	var mu sync.Mutex
	var order []string
	mark := func(name string) func(*Ctx) {
		return func(*Ctx) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	if err := sched.Register(fakeSystem{name: "first", run: mark("first")}); err != nil {
		t.Fatal(err)
	}
	if err := sched.Register(fakeSystem{name: "second", run: mark("second")}, "first"); err != nil {
		t.Fatal(err)
	}
	if err := sched.Register(fakeSystem{name: "third", run: mark("third")}, "second"); err != nil {
		t.Fatal(err)
	}
	if err := sched.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	sched.RunTick(emptyWorld(t), nil)
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("unexpected run order %v", order)
	}
}

func TestConcurrentStageSystemsObserveBarrier(t *testing.T) {
	sched := NewScheduler(4)
	var concurrentPeak atomic.Int32
	var inFlight atomic.Int32
	body := func(*Ctx) {
		cur := inFlight.Add(1)
		for {
			peak := concurrentPeak.Load()
			if cur <= peak || concurrentPeak.CompareAndSwap(peak, cur) {
				break
			}
		}
		inFlight.Add(-1)
	}
	keys := []world.ComponentKey{world.KeyPosition, world.KeyVelocity, world.KeyFaction, world.KeyAttack}
	for i, name := range []string{"w", "x", "y", "z"} {
		sys := fakeSystem{
			name:   name,
			access: Access{Write: []world.ComponentKey{keys[i]}},
			run:    body,
		}
		if err := sched.Register(sys); err != nil {
			t.Fatal(err)
		}
	}
	if err := sched.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	stages := sched.Stages()
	if len(stages) != 1 || len(stages[0]) != 4 {
		t.Fatalf("disjoint writers must share one stage, got %v", stages)
	}
	sched.RunTick(emptyWorld(t), nil)
}

func TestCommandBufferFIFOAndOverflow(t *testing.T) {
	buf := NewCommandBuffer(2, nil)
	if !buf.Push(Command{PlayerID: "a"}) || !buf.Push(Command{PlayerID: "b"}) {
		t.Fatal("pushes within capacity must succeed")
	}
	if buf.Push(Command{PlayerID: "c"}) {
		t.Fatal("push beyond capacity must fail")
	}
	drained := buf.Drain()
	if len(drained) != 2 || drained[0].PlayerID != "a" || drained[1].PlayerID != "b" {
		t.Fatalf("expected FIFO drain, got %v", drained)
	}
	if buf.Len() != 0 {
		t.Fatal("drain must empty the buffer")
	}
	if !buf.Push(Command{PlayerID: "c"}) {
		t.Fatal("buffer must accept again after drain")
	}
}
