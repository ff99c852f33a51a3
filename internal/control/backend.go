package control

// Backend is the subset of the engine facade the control server needs
// to serve requests. The engine implements this directly; tests and
// the server's own unit tests supply a fake.
type Backend interface {
	Status() (interface{}, error)
	Health() (interface{}, error)
	TasksStats() (interface{}, error)
	TasksProfile() (interface{}, error)

	Pause(threadID string) error
	Resume(threadID string) error
	StepIn(threadID string) error
	StepOver(threadID string, frameDepth int) error
	StepOut(threadID string, frameDepth int) error

	SetBreakpoints(fileID uint32, specs []BreakpointSpec) (uint64, error)
	ClearBreakpoints(fileID uint32) error
	ListBreakpoints(fileID uint32) ([]BreakpointSpec, error)

	IoRead(addr string) (interface{}, error)
	IoWrite(addr string, value interface{}) error
	IoForce(addr string, value interface{}) error
	IoUnforce(addr string) error

	Eval(expr string) (interface{}, error)
	Set(name string, value interface{}) error

	Restart(mode string) error
	Shutdown() error

	ConfigGet(key string) (interface{}, error)
	ConfigSet(key string, value interface{}) error

	Scopes(threadID string) (interface{}, error)
	Variables(ref string) (interface{}, error)

	UpdateWatchdog(taskName string, watchdogMs int64, trips int) error
	UpdateIoSafeState(name string, value interface{}) error

	// MeshSnapshot exports the retainable variable subset plus each
	// task's next-due pointer as an opaque payload a collaborating
	// runtime instance can later hand back to MeshApply, letting an
	// external mesh/discovery component replicate warm state between
	// two runtimes without this module knowing about networking.
	MeshSnapshot() (interface{}, error)
	MeshApply(data interface{}) error
}

// BreakpointSpec is the wire shape of one breakpoint, shared by
// breakpoints.set requests and breakpoints.list responses.
type BreakpointSpec struct {
	Line         uint32 `json:"line"`
	EndLine      uint32 `json:"end_line"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hit_condition,omitempty"`
	LogMessage   string `json:"log_message,omitempty"`
	Hits         int    `json:"hits,omitempty"`
}
