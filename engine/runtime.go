package engine

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/ironrail/stcore/internal/control"
	"github.com/ironrail/stcore/internal/debug"
	"github.com/ironrail/stcore/internal/eval"
	"github.com/ironrail/stcore/internal/eventlog"
	ioSub "github.com/ironrail/stcore/internal/io"
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/retain"
	"github.com/ironrail/stcore/internal/scheduler"
	"github.com/ironrail/stcore/internal/stdlib"
	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
)

// Runtime owns one loaded program's full lifecycle: storage, the
// scheduler, the I/O subsystem, the debug control plane, retain
// persistence, and the command channel auxiliary threads use to talk
// to the runtime thread, per spec.md's concurrency model.
type Runtime struct {
	mu sync.Mutex
	// storageMu guards direct control-plane pokes (Eval/Set/IoRead/
	// IoWrite/IoForce/IoUnforce/Restart/Scopes/Variables) against
	// racing the tick loop's own storage mutation. Pause/Resume/step
	// and breakpoint requests don't need it: debug.Control already
	// serializes those against the evaluator via its own stop-gate.
	storageMu sync.Mutex

	log     *log.Logger
	profile value.DateTimeProfile

	program           *program.Program
	storage           *storage.VariableStorage
	programInstances  map[string]value.InstanceId
	retainDeclared    map[string]bool
	retainNames       []string

	io    *ioSub.Subsystem
	sched *scheduler.Runner
	clock *scheduler.ManualClock

	debugCtl  *debug.Control
	eventLog  *eventlog.Log
	ctlServer *control.Server

	retainStore          *retain.Store
	retainSaveIntervalNs int64
	lastRetainSaveNs     int64

	// lastIoSnapshot is the bound I/O image as of the previous Tick's
	// WritePhase, diffed against the current one so the control server
	// can emit "invalidated" events instead of re-publishing unchanged
	// state every cycle.
	lastIoSnapshot ioSub.Snapshot

	builtins eval.Builtins
	stdFbs   eval.StandardFBs

	cmdCh chan command

	faulted         bool
	shutdown        bool
	faultPolicyName string
}

// Config collects everything Runtime.New needs beyond the program
// itself.
type Config struct {
	Program              *program.Program
	Profile              value.DateTimeProfile
	FaultPolicy          scheduler.FaultPolicy
	Tasks                []scheduler.Task
	RetainPath           string
	RetainSaveIntervalNs int64
	Logger               *log.Logger
}

func New(cfg Config) (*Runtime, error) {
	st := storage.New()
	if err := materializeGlobals(st, cfg.Program, cfg.Profile); err != nil {
		return nil, err
	}
	instances, err := materializeProgramInstances(st, cfg.Program, cfg.Profile)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	rt := &Runtime{
		log:                  logger,
		profile:              cfg.Profile,
		program:              cfg.Program,
		storage:              st,
		programInstances:     instances,
		retainNames:          retainNames(cfg.Program),
		io:                   ioSub.NewSubsystem(st),
		clock:                &scheduler.ManualClock{},
		eventLog:             eventlog.NewLog(),
		retainStore:          retain.NewStore(cfg.RetainPath),
		retainSaveIntervalNs: cfg.RetainSaveIntervalNs,
		builtins:             stdlib.Functions{},
		stdFbs:               stdlib.StandardFBs{},
		cmdCh:                make(chan command, 16),
		faultPolicyName:      faultPolicyToName(cfg.FaultPolicy),
	}
	rt.retainDeclared = make(map[string]bool, len(rt.retainNames))
	for _, n := range rt.retainNames {
		rt.retainDeclared[n] = true
	}

	rt.debugCtl = debug.NewControl(st, func() int64 { return rt.clock.Now() })
	rt.debugCtl.SetWatchEvaluator(rt.evalWatch)

	rt.sched = scheduler.NewRunner(rt.clock, scheduler.StorageGlobals{Storage: st}, rt.runProgram, rt.eventLog, cfg.FaultPolicy)
	rt.sched.SetResetFn(rt.policyResetFn())
	for _, t := range cfg.Tasks {
		rt.sched.AddTask(t)
	}

	return rt, nil
}

func (rt *Runtime) policyResetFn() scheduler.ResetFn {
	return func() {
		_ = materializeGlobals(rt.storage, rt.program, rt.profile)
	}
}

// runProgram is the scheduler.ProgramRunner: it runs one declared
// PROGRAM's body through a fresh EvalContext. The debug thread id is
// the program's own name — there is one evaluation "thread" per
// program body, consistent with how breakpoints/stepping are scoped.
func (rt *Runtime) runProgram(programName string) error {
	return rt.runProgramBody(programName, programName)
}

func (rt *Runtime) runProgramBody(threadID, programName string) error {
	def, ok := rt.program.Programs[programName]
	if !ok {
		return fmt.Errorf("engine: program %q not found", programName)
	}
	instanceId := rt.programInstances[programName]

	ctx := eval.NewEvalContext(rt.storage, rt.program.Registry, rt.program, rt.profile)
	ctx.ThreadID = threadID
	ctx.Builtins = rt.builtins
	ctx.StandardFBs = rt.stdFbs
	ctx.DebugHook = rt.debugCtl

	return eval.RunProgram(ctx, instanceId, def.Body)
}

// Tick drains pending commands, advances I/O and the scheduler by one
// cycle, and checks the retain save interval — the full cycle
// orchestration spec.md's control-flow section describes.
func (rt *Runtime) Tick() error {
	rt.drainCommands()

	rt.mu.Lock()
	faulted := rt.faulted
	rt.mu.Unlock()
	if faulted {
		return fmt.Errorf("engine: runtime is in fault state, restart required")
	}

	// storageMu brackets only the non-blocking I/O phases: a thread
	// paused mid-cycle inside sched.Tick() must not hold this runtime
	// thread's exclusive lock on storage, or a control.Eval/Scopes/
	// Variables request issued while stopped (the whole point of being
	// stopped) would deadlock behind it. Program execution itself races
	// the direct storage pokes below only in the narrow window where a
	// thread is running (not stopped) and a control request lands
	// mid-statement; the debug stop-gate is what actually serializes
	// control requests against the evaluator, not this mutex.
	rt.storageMu.Lock()
	ioErr := rt.io.ReadPhase()
	rt.storageMu.Unlock()
	if ioErr != nil {
		return fmt.Errorf("engine: io read phase: %w", ioErr)
	}

	if err := rt.sched.Tick(); err != nil {
		rt.mu.Lock()
		rt.faulted = rt.sched.Faulted()
		rt.mu.Unlock()
		if rt.faulted {
			// SafeHalt: drive outputs to their configured safe state
			// before reporting the fault, per spec.md's O2 scenario.
			// Storage itself is left untouched — it may be mid-cycle
			// inconsistent, which is exactly what SafeHalt freezes.
			rt.storageMu.Lock()
			if safeErr := rt.io.DriveSafeState(); safeErr != nil {
				rt.log.Printf("engine: drive safe state failed: %v", safeErr)
			}
			rt.storageMu.Unlock()
		}
		return err
	}

	rt.storageMu.Lock()
	ioErr = rt.io.WritePhase()
	rt.storageMu.Unlock()
	if ioErr != nil {
		return fmt.Errorf("engine: io write phase: %w", ioErr)
	}

	rt.publishIoInvalidation()

	rt.storageMu.Lock()
	rt.maybeSaveRetain()
	rt.storageMu.Unlock()
	return nil
}

// publishIoInvalidation diffs the bound I/O image against the last
// published snapshot and broadcasts an "invalidated" event naming only
// the areas that actually changed, the supplemented IoSnapshot diffing
// feature backing the control protocol's invalidated{areas} event.
func (rt *Runtime) publishIoInvalidation() {
	if rt.ctlServer == nil {
		return
	}
	rt.storageMu.Lock()
	snap := rt.io.Snapshot()
	rt.storageMu.Unlock()

	changed := ioSub.Diff(rt.lastIoSnapshot, snap)
	rt.lastIoSnapshot = snap
	if len(changed) == 0 {
		return
	}
	areas := make(map[string]bool, 3)
	for _, e := range changed {
		areas[ioAreaName(e.Addr.Area)] = true
	}
	out := make([]string, 0, len(areas))
	for a := range areas {
		out = append(out, a)
	}
	sort.Strings(out)
	rt.ctlServer.Broadcast(control.Event{Type: "invalidated", Body: control.InvalidatedBody{Areas: out}})
}

func (rt *Runtime) maybeSaveRetain() {
	if rt.retainSaveIntervalNs <= 0 {
		return
	}
	now := rt.clock.Now()
	if now-rt.lastRetainSaveNs < rt.retainSaveIntervalNs {
		return
	}
	rt.lastRetainSaveNs = now
	if err := rt.retainStore.Save(rt.storage, rt.retainNames); err != nil {
		rt.log.Printf("engine: retain save failed: %v", err)
	}
}

// Advance moves the simulated clock forward by deltaNanos and ticks.
func (rt *Runtime) Advance(deltaNanos int64) error {
	rt.clock.Advance(deltaNanos)
	return rt.Tick()
}

func (rt *Runtime) evalWatch(expr *program.Expr) (debug.Comparable, error) {
	ctx := eval.NewEvalContext(rt.storage, rt.program.Registry, rt.program, rt.profile)
	v, err := eval.EvalExpr(ctx, expr)
	if err != nil {
		return nil, err
	}
	return valueComparable{v}, nil
}

// valueComparable bridges value.Value.Equal to debug.Comparable so
// internal/debug never needs to import internal/value directly.
type valueComparable struct{ v value.Value }

func (c valueComparable) Equal(other debug.Comparable) bool {
	o, ok := other.(valueComparable)
	if !ok {
		return false
	}
	return c.v.Equal(o.v)
}
