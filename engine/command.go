package engine

import (
	"github.com/ironrail/stcore/internal/debug"
	"github.com/ironrail/stcore/internal/io"
	"github.com/ironrail/stcore/internal/scheduler"
	"github.com/ironrail/stcore/internal/value"
)

// commandKind is one of the command channel's message types an
// auxiliary thread may send the runtime thread, per spec.md's
// concurrency model. Pause/Resume/StepIn/StepOver/StepOut bypass this
// queue entirely: debug.Control already enforces its own FIFO
// ordering via the stop-gate, so routing them through here as well
// would just add a second, redundant serialization point.
//
// cmdReloadBytecode and cmdSnapshot are not yet wired: a hot bytecode
// reload needs a re-materialization path that preserves retained
// storage across the swap, and an on-demand snapshot needs a reply
// payload the current reply-by-closing-a-channel shape can't carry.
// Left out of this command set until a caller needs them; Restart and
// ConfigSet on the control.Backend side cover cold/warm reload today.
type commandKind int

const (
	cmdUpdateFaultPolicy commandKind = iota
	cmdUpdateRetainSaveInterval
	cmdUpdateIoSafeState
)

// command is one queued request plus the channel its caller blocks on
// for a reply, enforcing the FIFO "response precedes any subsequent
// debug stop" ordering spec.md requires by processing commands only at
// the start of Tick, on the runtime thread.
type command struct {
	kind    commandKind
	policy  scheduler.FaultPolicy
	ns      int64
	ioName  string
	ioValue value.Value
	reply   chan struct{}
}

// drainCommands processes every command queued since the last Tick.
// Called only from the runtime thread, at the start of Tick.
func (rt *Runtime) drainCommands() {
	for {
		select {
		case c := <-rt.cmdCh:
			rt.apply(c)
			if c.reply != nil {
				close(c.reply)
			}
		default:
			return
		}
	}
}

func (rt *Runtime) apply(c command) {
	switch c.kind {
	case cmdUpdateRetainSaveInterval:
		rt.retainSaveIntervalNs = c.ns
	case cmdUpdateFaultPolicy:
		rt.sched.SetFaultPolicy(c.policy)
	case cmdUpdateIoSafeState:
		rt.io.SetSafeValue(c.ioName, c.ioValue)
	}
}

// send enqueues c and blocks until the runtime thread has processed it.
func (rt *Runtime) send(c command) {
	c.reply = make(chan struct{})
	rt.cmdCh <- c
	<-c.reply
}

// UpdateRetainSaveInterval reconfigures the periodic retain-save
// cadence from an auxiliary thread.
func (rt *Runtime) UpdateRetainSaveInterval(ns int64) {
	rt.send(command{kind: cmdUpdateRetainSaveInterval, ns: ns})
}

// UpdateFaultPolicy reconfigures the policy applied on the next
// program fault from an auxiliary thread.
func (rt *Runtime) UpdateFaultPolicy(p scheduler.FaultPolicy) {
	rt.send(command{kind: cmdUpdateFaultPolicy, policy: p})
}

// updateIoSafeState reconfigures an output binding's SafeHalt value
// from an auxiliary thread.
func (rt *Runtime) updateIoSafeState(name string, v value.Value) {
	rt.send(command{kind: cmdUpdateIoSafeState, ioName: name, ioValue: v})
}

// IoSubsystem exposes the I/O subsystem for driver registration at
// startup (before the first Tick — not safe to call concurrently with
// a running tick loop).
func (rt *Runtime) IoSubsystem() *io.Subsystem { return rt.io }

// DebugControl exposes the debug control plane so a control.Server can
// wire its emitter and route breakpoint/step requests.
func (rt *Runtime) DebugControl() *debug.Control { return rt.debugCtl }
