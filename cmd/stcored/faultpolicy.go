package main

import (
	"fmt"

	"github.com/ironrail/stcore/internal/scheduler"
)

// parseFaultPolicy resolves runtime.toml's textual fault_policy to the
// scheduler enum, mirroring format.Module.FaultPolicy's own mapping so
// a config override and a program-declared default agree on spelling.
func parseFaultPolicy(name string) (scheduler.FaultPolicy, error) {
	switch name {
	case "", "safe_halt":
		return scheduler.SafeHalt, nil
	case "continue_with_last_values":
		return scheduler.ContinueWithLastValues, nil
	case "reset":
		return scheduler.Reset, nil
	default:
		return scheduler.SafeHalt, fmt.Errorf("unknown fault_policy %q", name)
	}
}
