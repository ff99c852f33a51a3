package main

import (
	"fmt"

	"github.com/ironrail/stcore/internal/config"
	"github.com/ironrail/stcore/internal/io"
)

// nullDriver is a loopback stand-in I/O transport: it touches neither
// buf on ReadInputs nor WriteOutputs, leaving the image exactly as the
// program or an operator's forces left it. Concrete fieldbus drivers
// (GPIO, Modbus, MQTT) are out of scope; this exists only so stcored
// has something to register by default for local exercise of the
// bound-address/force/safe-state machinery without real hardware.
type nullDriver struct {
	name string
}

func (d *nullDriver) Name() string                 { return d.name }
func (d *nullDriver) ReadInputs(buf []byte) error   { return nil }
func (d *nullDriver) WriteOutputs(buf []byte) error { return nil }
func (d *nullDriver) Health() io.Health             { return io.Health{Status: io.HealthOk} }

// newConfiguredDriver resolves one io.toml driver entry to a Driver
// implementation. "null" is the only kind this core ships; anything
// else names a concrete fieldbus transport this module deliberately
// does not implement (see the driver contract section of the runtime
// specification this daemon serves).
func newConfiguredDriver(dc config.DriverConfig) (io.Driver, error) {
	switch dc.Kind {
	case "", "null":
		return &nullDriver{name: dc.Name}, nil
	default:
		return nil, fmt.Errorf("driver kind %q is not built into stcored; wire a concrete transport at the call site", dc.Kind)
	}
}

// driverErrorPolicy resolves an io.toml driver's on_error param to the
// Subsystem composition policy; unset or unrecognized defaults to
// OnErrorFault, matching spec.md's default driver-error behavior.
func driverErrorPolicy(dc config.DriverConfig) io.OnErrorPolicy {
	if dc.Params["on_error"] == "degrade" {
		return io.OnErrorDegrade
	}
	return io.OnErrorFault
}
