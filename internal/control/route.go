package control

import (
	"encoding/json"
	"fmt"

	"github.com/ironrail/stcore/internal/vmerr"
)

// route maps one request type to a Backend call, decoding params as
// needed. Unknown types return "unknown" per spec.md's External
// Interfaces section.
func route(b Backend, reqType string, params json.RawMessage) (interface{}, error) {
	switch reqType {
	case "status":
		return b.Status()
	case "health":
		return b.Health()
	case "tasks.stats":
		return b.TasksStats()
	case "tasks.profile":
		return b.TasksProfile()

	case "pause":
		var p struct {
			ThreadID string `json:"thread_id"`
		}
		decode(params, &p)
		return nil, b.Pause(p.ThreadID)
	case "resume":
		var p struct {
			ThreadID string `json:"thread_id"`
		}
		decode(params, &p)
		return nil, b.Resume(p.ThreadID)
	case "step_in":
		var p struct {
			ThreadID string `json:"thread_id"`
		}
		decode(params, &p)
		return nil, b.StepIn(p.ThreadID)
	case "step_over":
		var p struct {
			ThreadID   string `json:"thread_id"`
			FrameDepth int    `json:"frame_depth"`
		}
		decode(params, &p)
		return nil, b.StepOver(p.ThreadID, p.FrameDepth)
	case "step_out":
		var p struct {
			ThreadID   string `json:"thread_id"`
			FrameDepth int    `json:"frame_depth"`
		}
		decode(params, &p)
		return nil, b.StepOut(p.ThreadID, p.FrameDepth)

	case "breakpoints.set":
		var p struct {
			FileID      uint32           `json:"file_id"`
			Breakpoints []BreakpointSpec `json:"breakpoints"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		gen, err := b.SetBreakpoints(p.FileID, p.Breakpoints)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"generation": gen}, nil
	case "breakpoints.clear":
		var p struct {
			FileID uint32 `json:"file_id"`
		}
		decode(params, &p)
		return nil, b.ClearBreakpoints(p.FileID)
	case "breakpoints.list":
		var p struct {
			FileID uint32 `json:"file_id"`
		}
		decode(params, &p)
		return b.ListBreakpoints(p.FileID)

	case "io.read":
		var p struct {
			Addr string `json:"addr"`
		}
		decode(params, &p)
		return b.IoRead(p.Addr)
	case "io.write":
		var p struct {
			Addr  string      `json:"addr"`
			Value interface{} `json:"value"`
		}
		decode(params, &p)
		return nil, b.IoWrite(p.Addr, p.Value)
	case "io.force":
		var p struct {
			Addr  string      `json:"addr"`
			Value interface{} `json:"value"`
		}
		decode(params, &p)
		return nil, b.IoForce(p.Addr, p.Value)
	case "io.unforce":
		var p struct {
			Addr string `json:"addr"`
		}
		decode(params, &p)
		return nil, b.IoUnforce(p.Addr)

	case "eval":
		var p struct {
			Expr string `json:"expr"`
		}
		decode(params, &p)
		return b.Eval(p.Expr)
	case "set":
		var p struct {
			Name  string      `json:"name"`
			Value interface{} `json:"value"`
		}
		decode(params, &p)
		return nil, b.Set(p.Name, p.Value)

	case "restart":
		var p struct {
			Mode string `json:"mode"`
		}
		decode(params, &p)
		return nil, b.Restart(p.Mode)
	case "shutdown":
		return nil, b.Shutdown()

	case "config.get":
		var p struct {
			Key string `json:"key"`
		}
		decode(params, &p)
		return b.ConfigGet(p.Key)
	case "config.set":
		var p struct {
			Key   string      `json:"key"`
			Value interface{} `json:"value"`
		}
		decode(params, &p)
		return nil, b.ConfigSet(p.Key, p.Value)

	case "scopes":
		var p struct {
			ThreadID string `json:"thread_id"`
		}
		decode(params, &p)
		return b.Scopes(p.ThreadID)
	case "variables":
		var p struct {
			Ref string `json:"ref"`
		}
		decode(params, &p)
		return b.Variables(p.Ref)

	case "tasks.update_watchdog":
		var p struct {
			TaskName   string `json:"task_name"`
			WatchdogMs int64  `json:"watchdog_ms"`
			Trips      int    `json:"trips"`
		}
		decode(params, &p)
		return nil, b.UpdateWatchdog(p.TaskName, p.WatchdogMs, p.Trips)

	case "io.update_safe_state":
		var p struct {
			Name  string      `json:"name"`
			Value interface{} `json:"value"`
		}
		decode(params, &p)
		return nil, b.UpdateIoSafeState(p.Name, p.Value)

	case "mesh.snapshot":
		return b.MeshSnapshot()
	case "mesh.apply":
		var p struct {
			Data interface{} `json:"data"`
		}
		decode(params, &p)
		return nil, b.MeshApply(p.Data)

	default:
		return nil, errUnknownType
	}
}

// errUnknownType is returned verbatim as the response error message
// ("unknown") for any request type this server does not recognize.
var errUnknownType = vmerr.New(vmerr.ControlError, "unknown")

func decode(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("control: decode params: %w", err)
	}
	return nil
}
