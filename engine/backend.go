package engine

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/ironrail/stcore/internal/control"
	"github.com/ironrail/stcore/internal/debug"
	"github.com/ironrail/stcore/internal/eval"
	"github.com/ironrail/stcore/internal/eventlog"
	"github.com/ironrail/stcore/internal/io"
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/retain"
	"github.com/ironrail/stcore/internal/scheduler"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

var _ control.Backend = (*Runtime)(nil)

// SetControlServer wires srv as the destination for stop events and
// for terminated{restart} notifications this Runtime emits; call once
// before the first Tick.
func (rt *Runtime) SetControlServer(srv *control.Server) {
	rt.ctlServer = srv
	rt.debugCtl.SetEmitter(func(e debug.StopEvent) {
		rt.ctlServer.Broadcast(control.Event{Type: "stopped", Body: control.StoppedBody{
			Reason:            string(e.Reason),
			ThreadID:          e.ThreadID,
			AllThreadsStopped: e.AllThreadsStopped,
			Generation:        e.Generation,
		}})
	})
}

// Status reports coarse runtime health for the "status" control type.
func (rt *Runtime) Status() (interface{}, error) {
	rt.mu.Lock()
	faulted, shutdown := rt.faulted, rt.shutdown
	rt.mu.Unlock()
	return map[string]interface{}{
		"faulted":  faulted,
		"shutdown": shutdown,
		"now_ns":   rt.clock.Now(),
	}, nil
}

// Health reports every registered I/O driver's self-reported state.
func (rt *Runtime) Health() (interface{}, error) {
	drivers := rt.io.Drivers()
	out := make([]map[string]interface{}, len(drivers))
	for i, h := range drivers {
		out[i] = map[string]interface{}{"status": h.Status.String(), "reason": h.Reason}
	}
	return map[string]interface{}{"drivers": out}, nil
}

// TasksStats reports each task's current scheduling bookkeeping for
// the "tasks.stats" control type.
func (rt *Runtime) TasksStats() (interface{}, error) {
	return rt.sched.TaskStats(), nil
}

// TasksProfile renders the scheduler's accumulated per-(task, program)
// cycle-time samples as a gzip-compressed pprof profile, base64-encoded
// for the "tasks.profile" control type — the concrete consumer of
// Runner.Profile(), so the recorded samples reach a client rather than
// only ever being written by profiler.record.
func (rt *Runtime) TasksProfile() (interface{}, error) {
	prof := rt.sched.Profile()
	var buf bytes.Buffer
	if err := prof.Write(&buf); err != nil {
		return nil, fmt.Errorf("engine: render task profile: %w", err)
	}
	return map[string]interface{}{
		"format": "pprof",
		"data":   base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func (rt *Runtime) Pause(threadID string) error {
	rt.debugCtl.Pause(threadID)
	return nil
}

func (rt *Runtime) Resume(threadID string) error {
	rt.debugCtl.ContinueRun(threadID)
	return nil
}

func (rt *Runtime) StepIn(threadID string) error {
	rt.debugCtl.StepIn(threadID)
	return nil
}

func (rt *Runtime) StepOver(threadID string, frameDepth int) error {
	rt.debugCtl.StepOver(threadID, frameDepth)
	return nil
}

func (rt *Runtime) StepOut(threadID string, frameDepth int) error {
	rt.debugCtl.StepOut(threadID, frameDepth)
	return nil
}

// SetBreakpoints replaces fileID's breakpoint table. The protocol's
// Line/EndLine fields are carried straight through as this runtime's
// byte-offset SourceLocation.Start/End: line->offset mapping is a
// front-end source-map concern, out of scope for the core (see
// spec.md's Out of Scope list), so a client that wants line-based
// breakpoints resolves lines to offsets itself before calling in.
func (rt *Runtime) SetBreakpoints(fileID uint32, specs []control.BreakpointSpec) (uint64, error) {
	bps := make([]debug.Breakpoint, len(specs))
	for i, s := range specs {
		bps[i] = debug.Breakpoint{
			Location:     sourceLocationFromSpec(fileID, s),
			Condition:    s.Condition,
			HitCondition: s.HitCondition,
			LogMessage:   s.LogMessage,
		}
	}
	return rt.debugCtl.SetBreakpointsForFile(fileID, bps), nil
}

func (rt *Runtime) ClearBreakpoints(fileID uint32) error {
	rt.debugCtl.ClearBreakpoints(fileID)
	return nil
}

func (rt *Runtime) ListBreakpoints(fileID uint32) ([]control.BreakpointSpec, error) {
	bps, _ := rt.debugCtl.ListBreakpoints(fileID)
	out := make([]control.BreakpointSpec, len(bps))
	for i, bp := range bps {
		out[i] = control.BreakpointSpec{
			Line: bp.Location.Start, EndLine: bp.Location.End,
			Condition: bp.Condition, HitCondition: bp.HitCondition,
			LogMessage: bp.LogMessage, Hits: bp.Hits,
		}
	}
	return out, nil
}

func (rt *Runtime) IoRead(addr string) (interface{}, error) {
	a, err := io.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	if a.Wildcard {
		return nil, vmerr.New(vmerr.InvalidConfig, "address %q is a wildcard, not readable", addr)
	}
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()
	v, err := io.ReadAddress(rt.storage.Io, a, ioKindForSize(a.Size))
	if err != nil {
		return nil, err
	}
	return valueToWire(v), nil
}

func (rt *Runtime) IoWrite(addr string, raw interface{}) error {
	a, err := io.ParseAddress(addr)
	if err != nil {
		return err
	}
	if a.Wildcard {
		return vmerr.New(vmerr.InvalidConfig, "address %q is a wildcard, not writable", addr)
	}
	v, err := wireToValue(ioKindForSize(a.Size), raw)
	if err != nil {
		return err
	}
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()
	return io.WriteAddress(rt.storage.Io, a, v)
}

func (rt *Runtime) IoForce(addr string, raw interface{}) error {
	a, err := io.ParseAddress(addr)
	if err != nil {
		return err
	}
	v, err := wireToValue(ioKindForSize(a.Size), raw)
	if err != nil {
		return err
	}
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()
	rt.io.Force(a, v)
	rt.eventLog.Record(eventlog.Event{Kind: eventlog.ForceApplied, Time: rt.clock.Now(), Address: addr})
	return nil
}

func (rt *Runtime) IoUnforce(addr string) error {
	a, err := io.ParseAddress(addr)
	if err != nil {
		return err
	}
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()
	rt.io.Unforce(a)
	rt.eventLog.Record(eventlog.Event{Kind: eventlog.ForceCleared, Time: rt.clock.Now(), Address: addr})
	return nil
}

func (rt *Runtime) Eval(expr string) (interface{}, error) {
	e, err := parsePathExpr(expr)
	if err != nil {
		return nil, err
	}
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()
	ctx := eval.NewEvalContext(rt.storage, rt.program.Registry, rt.program, rt.profile)
	v, err := eval.EvalExpr(ctx, e)
	if err != nil {
		return nil, err
	}
	return valueToWire(v), nil
}

func (rt *Runtime) Set(name string, raw interface{}) error {
	e, err := parsePathExpr(name)
	if err != nil {
		return err
	}
	lv, err := pathExprToLValue(e)
	if err != nil {
		return err
	}
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()
	ctx := eval.NewEvalContext(rt.storage, rt.program.Registry, rt.program, rt.profile)
	cur, err := eval.EvalExpr(ctx, e)
	if err != nil {
		return err
	}
	v, err := wireToValue(cur.Kind, raw)
	if err != nil {
		return err
	}
	return eval.AssignLValue(ctx, lv, v)
}

// Restart reinitializes the runtime per mode: "cold" re-defaults every
// global/retain/instance; "warm" additionally reloads the retain store
// and applies it over the fresh defaults, the basis for reload-with-
// state spec.md's retain/restart section describes.
func (rt *Runtime) Restart(mode string) error {
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()

	if err := materializeGlobals(rt.storage, rt.program, rt.profile); err != nil {
		return fmt.Errorf("engine: restart: %w", err)
	}
	instances, err := materializeProgramInstances(rt.storage, rt.program, rt.profile)
	if err != nil {
		return fmt.Errorf("engine: restart: %w", err)
	}
	rt.programInstances = instances

	if mode == "warm" {
		snap, err := rt.retainStore.Load()
		if err != nil {
			return fmt.Errorf("engine: restart: load retain store: %w", err)
		}
		retain.Apply(rt.storage, snap, rt.retainDeclared)
	}

	rt.mu.Lock()
	rt.faulted = false
	rt.mu.Unlock()

	rt.eventLog.Record(eventlog.Event{Kind: eventlog.RestartOccurred, Time: rt.clock.Now(), Mode: mode})
	if rt.ctlServer != nil {
		rt.ctlServer.Broadcast(control.Event{Type: "terminated", Body: control.TerminatedBody{Restart: true}})
	}
	return nil
}

func (rt *Runtime) Shutdown() error {
	rt.mu.Lock()
	rt.shutdown = true
	rt.mu.Unlock()
	if rt.ctlServer != nil {
		rt.ctlServer.Broadcast(control.Event{Type: "terminated", Body: control.TerminatedBody{Restart: false}})
	}
	return nil
}

// ConfigGet/ConfigSet expose the small set of runtime knobs that can
// change after load without a restart: the fault policy and the
// retain-save cadence. Anything else — driver wiring, task tables,
// control transport — is fixed at load time, per the config package's
// scope.
func (rt *Runtime) ConfigGet(key string) (interface{}, error) {
	switch key {
	case "fault_policy":
		return rt.faultPolicyName, nil
	case "retain_save_interval_ms":
		return rt.retainSaveIntervalNs / 1e6, nil
	default:
		return nil, vmerr.New(vmerr.InvalidConfig, "unknown config key %q", key)
	}
}

func (rt *Runtime) ConfigSet(key string, raw interface{}) error {
	switch key {
	case "fault_policy":
		name, ok := raw.(string)
		if !ok {
			return vmerr.New(vmerr.TypeMismatch, "fault_policy must be a string")
		}
		p, err := faultPolicyFromName(name)
		if err != nil {
			return err
		}
		rt.faultPolicyName = name
		rt.UpdateFaultPolicy(p)
		return nil
	case "retain_save_interval_ms":
		ms, ok := asFloat(raw)
		if !ok {
			return vmerr.New(vmerr.TypeMismatch, "retain_save_interval_ms must be a number")
		}
		rt.UpdateRetainSaveInterval(int64(ms) * 1e6)
		return nil
	default:
		return vmerr.New(vmerr.InvalidConfig, "unknown config key %q", key)
	}
}

func faultPolicyToName(p scheduler.FaultPolicy) string {
	switch p {
	case scheduler.ContinueWithLastValues:
		return "continue_with_last_values"
	case scheduler.Reset:
		return "reset"
	default:
		return "safe_halt"
	}
}

func faultPolicyFromName(name string) (scheduler.FaultPolicy, error) {
	switch name {
	case "", "safe_halt":
		return scheduler.SafeHalt, nil
	case "continue_with_last_values":
		return scheduler.ContinueWithLastValues, nil
	case "reset":
		return scheduler.Reset, nil
	default:
		return scheduler.SafeHalt, vmerr.New(vmerr.InvalidConfig, "unknown fault_policy %q", name)
	}
}

// Scopes reports the variable scopes visible to a stopped thread: its
// innermost local frame (if any) plus globals and retains, in the
// debug-adapter-style shape clients use to drive a Variables request.
func (rt *Runtime) Scopes(threadID string) (interface{}, error) {
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()
	scopes := []map[string]interface{}{
		{"name": "Globals", "ref": "global"},
		{"name": "Retains", "ref": "retain"},
	}
	if f := rt.storage.CurrentFrame(); f != nil {
		scopes = append([]map[string]interface{}{{"name": "Locals", "ref": fmt.Sprintf("local:%d", f.Id)}}, scopes...)
	}
	return map[string]interface{}{"thread_id": threadID, "scopes": scopes}, nil
}

// Variables expands one scope reference returned by Scopes (or a
// ValueRef-shaped struct/array cursor would need its own ref scheme;
// this runtime only expands the three top-level scopes, which covers
// the common "inspect globals while stopped" debug client workflow).
func (rt *Runtime) Variables(ref string) (interface{}, error) {
	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()
	switch {
	case ref == "global":
		return rt.namedValues(rt.storage.GlobalNames(), rt.storage.GetGlobal), nil
	case ref == "retain":
		return rt.namedValues(rt.storage.RetainNames(), rt.storage.GetRetain), nil
	case rt.storage.CurrentFrame() != nil && ref == fmt.Sprintf("local:%d", rt.storage.CurrentFrame().Id):
		f := rt.storage.CurrentFrame()
		return rt.namedValues(f.Locals.Names(), f.Get), nil
	default:
		return nil, vmerr.New(vmerr.InvalidConfig, "unknown variables ref %q", ref)
	}
}

func (rt *Runtime) namedValues(names []string, get func(string) (value.Value, bool)) interface{} {
	out := make(map[string]interface{}, len(names))
	for _, n := range names {
		if v, ok := get(n); ok {
			out[n] = valueToWire(v)
		}
	}
	return out
}

func sourceLocationFromSpec(fileID uint32, s control.BreakpointSpec) program.SourceLocation {
	return program.SourceLocation{FileId: fileID, Start: s.Line, End: s.EndLine}
}

// UpdateWatchdog installs or clears task taskName's per-task watchdog:
// a soft deadline beyond its single-cycle execution_deadline that, if
// exceeded trips consecutive times, forces SafeHalt regardless of the
// task's own FaultPolicy.
func (rt *Runtime) UpdateWatchdog(taskName string, watchdogMs int64, trips int) error {
	if !rt.sched.SetTaskWatchdog(taskName, watchdogMs*1e6, trips) {
		return vmerr.New(vmerr.InvalidConfig, "unknown task %q", taskName)
	}
	return nil
}

// UpdateIoSafeState reconfigures the value output binding name is
// driven to when the runtime enters SafeHalt, the UpdateIoSafeState
// command spec.md's command channel lists.
func (rt *Runtime) UpdateIoSafeState(name string, raw interface{}) error {
	kind, ok := rt.io.BindingKind(name)
	if !ok {
		return vmerr.New(vmerr.InvalidConfig, "unknown output binding %q", name)
	}
	v, err := wireToValue(kind, raw)
	if err != nil {
		return err
	}
	rt.updateIoSafeState(name, v)
	return nil
}

// meshPayload is the opaque shape MeshSnapshot exports and MeshApply
// consumes: the retainable variable subset plus each task's next-due
// pointer, letting a collaborating runtime replicate warm state without
// this module knowing anything about how the two instances found each
// other or exchanged the payload.
type meshPayload struct {
	Retain map[string]interface{} `json:"retain"`
	Tasks  map[string]int64       `json:"tasks"`
}

func (rt *Runtime) MeshSnapshot() (interface{}, error) {
	rt.storageMu.Lock()
	snap := retain.Build(rt.storage, rt.retainNames)
	rt.storageMu.Unlock()

	out := meshPayload{
		Retain: make(map[string]interface{}, len(snap.Entries)),
		Tasks:  make(map[string]int64),
	}
	for _, e := range snap.Entries {
		out.Retain[e.Name] = valueToWire(e.Value)
	}
	for _, ts := range rt.sched.TaskStats() {
		out.Tasks[ts.Name] = ts.NextDue
	}
	return out, nil
}

func (rt *Runtime) MeshApply(data interface{}) error {
	raw, ok := data.(map[string]interface{})
	if !ok {
		return vmerr.New(vmerr.TypeMismatch, "mesh payload must be an object")
	}

	rt.storageMu.Lock()
	defer rt.storageMu.Unlock()

	if retained, ok := raw["retain"].(map[string]interface{}); ok {
		entries := make([]retain.Entry, 0, len(retained))
		for name, rawVal := range retained {
			cur, ok := rt.storage.GetRetain(name)
			if !ok {
				continue
			}
			v, err := wireToValue(cur.Kind, rawVal)
			if err != nil {
				return fmt.Errorf("engine: mesh apply: retain %q: %w", name, err)
			}
			entries = append(entries, retain.Entry{Name: name, Value: v})
		}
		retain.Apply(rt.storage, retain.Snapshot{Entries: entries}, rt.retainDeclared)
	}

	if tasks, ok := raw["tasks"].(map[string]interface{}); ok {
		for name, rawDue := range tasks {
			due, ok := asFloat(rawDue)
			if !ok {
				continue
			}
			rt.sched.SetTaskNextDue(name, int64(due))
		}
	}
	return nil
}
