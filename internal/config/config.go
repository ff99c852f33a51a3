// Package config implements the typed runtime configuration read at
// startup from runtime.toml/io.toml-shaped data. The pack this
// runtime was built from carries no TOML library, so this package
// implements a minimal reader over encoding/json-shaped data for the
// parts the runtime itself owns; turning an operator's actual TOML
// files into that shape is the caller's concern (cmd/stcored), not
// re-implemented here.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Runtime is the decoded shape of runtime.toml: scheduler fault policy,
// retain save cadence, and the debug control plane's listen address.
type Runtime struct {
	FaultPolicy          string        `json:"fault_policy"`
	RetainPath           string        `json:"retain_path"`
	RetainSaveInterval   time.Duration `json:"-"`
	RetainSaveIntervalMs int64         `json:"retain_save_interval_ms"`
	ControlSocket        string        `json:"control_socket"`
	ControlTcpAddr       string        `json:"control_tcp_addr"`
	ControlTcpAuthToken  string        `json:"control_tcp_auth_token"`
}

// IO is the decoded shape of io.toml: the driver list a Subsystem
// registers at startup, in the order they must run.
type IO struct {
	Drivers []DriverConfig `json:"drivers"`
}

type DriverConfig struct {
	Name   string            `json:"name"`
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params"`
}

// LoadRuntime decodes a Runtime config from r.
func LoadRuntime(r io.Reader) (Runtime, error) {
	var rt Runtime
	if err := json.NewDecoder(r).Decode(&rt); err != nil {
		return Runtime{}, fmt.Errorf("config: decode runtime config: %w", err)
	}
	rt.RetainSaveInterval = time.Duration(rt.RetainSaveIntervalMs) * time.Millisecond
	if err := rt.validate(); err != nil {
		return Runtime{}, err
	}
	return rt, nil
}

func (rt Runtime) validate() error {
	switch rt.FaultPolicy {
	case "", "safe_halt", "continue_with_last_values", "reset":
	default:
		return fmt.Errorf("config: unknown fault_policy %q", rt.FaultPolicy)
	}
	if rt.ControlTcpAddr != "" && rt.ControlTcpAuthToken == "" {
		return fmt.Errorf("config: control_tcp_addr set without control_tcp_auth_token")
	}
	return nil
}

// LoadIO decodes an IO config from r.
func LoadIO(r io.Reader) (IO, error) {
	var cfg IO
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return IO{}, fmt.Errorf("config: decode io config: %w", err)
	}
	seen := make(map[string]bool, len(cfg.Drivers))
	for _, d := range cfg.Drivers {
		if d.Name == "" {
			return IO{}, fmt.Errorf("config: driver with empty name")
		}
		if seen[d.Name] {
			return IO{}, fmt.Errorf("config: duplicate driver name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return cfg, nil
}
