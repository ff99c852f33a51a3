package debug

import (
	"sync"

	"github.com/ironrail/stcore/internal/eval"
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/storage"
)

// StopEvent is published when a thread halts at a statement boundary.
type StopEvent struct {
	Reason            StopReason
	Location          program.SourceLocation
	ThreadID          string
	Generation        uint64
	AllThreadsStopped bool
}

// Control mediates a single debug session on one runtime: breakpoints,
// the per-thread mode machine, the stop-gate, watch expressions, and
// snapshotting. It implements eval.DebugHook.
type Control struct {
	mu    sync.Mutex
	files map[uint32]*fileTable

	threadsMu sync.Mutex
	threads   map[string]*threadState

	gate *stopGate

	emitMu sync.Mutex
	emit   func(StopEvent)

	watchesMu    sync.Mutex
	watches      []*trackedWatch
	watchEval    WatchEvaluator
	watchChanged bool

	storage  *storage.VariableStorage
	nowFn    func() int64 // simulated ticks, for Snapshot()
}

var _ eval.DebugHook = (*Control)(nil)

func NewControl(st *storage.VariableStorage, nowFn func() int64) *Control {
	return &Control{
		files:   make(map[uint32]*fileTable),
		threads: make(map[string]*threadState),
		gate:    newStopGate(),
		storage: st,
		nowFn:   nowFn,
	}
}

// SetEmitter installs the callback used to publish StopEvents (e.g. to
// the control server's client connections). Until set, stops are
// computed and blocked on but never externally observable.
func (c *Control) SetEmitter(fn func(StopEvent)) {
	c.emitMu.Lock()
	c.emit = fn
	c.emitMu.Unlock()
}

func (c *Control) threadFor(threadID string) *threadState {
	c.threadsMu.Lock()
	defer c.threadsMu.Unlock()
	ts, ok := c.threads[threadID]
	if !ok {
		ts = newThreadState()
		c.threads[threadID] = ts
	}
	return ts
}

// StatementBoundary implements eval.DebugHook. It is called by the
// evaluator before executing every statement; it blocks internally
// until execution should proceed.
func (c *Control) StatementBoundary(threadID string, frameDepth int, loc program.SourceLocation) {
	ts := c.threadFor(threadID)

	bp, bpGen, bpHit := c.matchBreakpoint(loc.FileId, loc)
	var reason StopReason
	stop := false
	gen := bpGen
	if bpHit {
		reason, stop = ReasonBreakpoint, true
		_ = bp
	} else if r, ok := ts.shouldStop(frameDepth); ok {
		reason, stop = r, true
		gen = c.currentGeneration(loc.FileId)
	}
	if !stop {
		return
	}

	c.gate.Drain()

	// Re-check generation after draining: a table replacement that
	// raced with an in-flight request invalidates this stop (scenario
	// S3) without the thread ever observing it.
	if bpHit && c.currentGeneration(loc.FileId) != bpGen {
		return
	}

	ts.pauseForStop()
	c.reevaluateWatches()
	c.publish(StopEvent{
		Reason:            reason,
		Location:          loc,
		ThreadID:          threadID,
		Generation:        gen,
		AllThreadsStopped: c.allStopped(),
	})
	ts.block()
}

func (c *Control) publish(e StopEvent) {
	c.emitMu.Lock()
	fn := c.emit
	c.emitMu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (c *Control) allStopped() bool {
	c.threadsMu.Lock()
	defer c.threadsMu.Unlock()
	for _, ts := range c.threads {
		ts.mu.Lock()
		stopped := ts.stopped
		ts.mu.Unlock()
		if !stopped {
			return false
		}
	}
	return len(c.threads) > 0
}

// --- control requests; each brackets its state mutation with the
// stop-gate so an in-flight stop publication cannot race ahead of the
// response the caller is about to send. ---

func (c *Control) Pause(threadID string) {
	c.gate.Enter()
	defer c.gate.Leave()
	if threadID == "" {
		c.threadsMu.Lock()
		all := make([]*threadState, 0, len(c.threads))
		for _, ts := range c.threads {
			all = append(all, ts)
		}
		c.threadsMu.Unlock()
		for _, ts := range all {
			ts.setMode(Paused, 0)
		}
		return
	}
	c.threadFor(threadID).setMode(Paused, 0)
}

func (c *Control) ContinueRun(threadID string) {
	c.gate.Enter()
	defer c.gate.Leave()
	if threadID == "" {
		c.threadsMu.Lock()
		all := make([]*threadState, 0, len(c.threads))
		for _, ts := range c.threads {
			all = append(all, ts)
		}
		c.threadsMu.Unlock()
		for _, ts := range all {
			ts.setMode(Running, 0)
		}
		return
	}
	c.threadFor(threadID).setMode(Running, 0)
}

func (c *Control) StepIn(threadID string) {
	c.gate.Enter()
	defer c.gate.Leave()
	c.threadFor(threadID).setMode(SteppingIn, 0)
}

func (c *Control) StepOver(threadID string, currentFrameDepth int) {
	c.gate.Enter()
	defer c.gate.Leave()
	c.threadFor(threadID).setMode(SteppingOver, currentFrameDepth)
}

func (c *Control) StepOut(threadID string, currentFrameDepth int) {
	c.gate.Enter()
	defer c.gate.Leave()
	c.threadFor(threadID).setMode(SteppingOut, currentFrameDepth)
}

// Snapshot returns a deep copy of the runtime's storage and the
// simulated time it was taken at, safe to inspect without racing the
// running evaluator.
type Snapshot struct {
	Storage *storage.VariableStorage
	Now     int64
}

func (c *Control) Snapshot() Snapshot {
	return Snapshot{Storage: c.storage.DeepCopy(), Now: c.nowFn()}
}
