package io

import (
	"fmt"

	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// Health is a driver's self-reported operating state.
type Health struct {
	Status HealthStatus
	Reason string
}

type HealthStatus int

const (
	HealthOk HealthStatus = iota
	HealthDegraded
	HealthFaulted
)

func (h HealthStatus) String() string {
	switch h {
	case HealthOk:
		return "ok"
	case HealthDegraded:
		return "degraded"
	case HealthFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// OnErrorPolicy selects what a composed Subsystem does when one driver's
// ReadInputs/WriteOutputs returns an error.
type OnErrorPolicy int

const (
	// OnErrorFault propagates the error, faulting the runtime via the
	// scheduler's FaultPolicy.
	OnErrorFault OnErrorPolicy = iota
	// OnErrorDegrade marks the driver Degraded and continues the cycle
	// with its last-known image contents untouched.
	OnErrorDegrade
)

// Driver is the contract a physical or virtual I/O transport implements.
// ReadInputs fills buf (sized to the input area) at cycle start;
// WriteOutputs consumes buf (the output area) at cycle end. Health
// reports the driver's current operating state without blocking.
type Driver interface {
	Name() string
	ReadInputs(buf []byte) error
	WriteOutputs(buf []byte) error
	Health() Health
}

// registeredDriver pairs a Driver with its composition policy and the
// most recent Health observed (degrade-and-continue drivers keep
// running the cycle even while Degraded).
type registeredDriver struct {
	driver Driver
	policy OnErrorPolicy
	health Health
}

// Subsystem composes zero or more Drivers over one VariableStorage's
// IoImage, in registration order for both reads and writes, so a
// downstream driver observes an upstream driver's writes within the
// same phase.
type Subsystem struct {
	storage  *storage.VariableStorage
	drivers  []*registeredDriver
	bindings []Binding
}

func NewSubsystem(s *storage.VariableStorage) *Subsystem {
	return &Subsystem{storage: s}
}

// Register adds driver to the composition, invoked in the order
// Register was called.
func (sub *Subsystem) Register(d Driver, policy OnErrorPolicy) {
	sub.drivers = append(sub.drivers, &registeredDriver{driver: d, policy: policy, health: Health{Status: HealthOk}})
}

// Drivers returns the registered drivers' current health, in
// registration order.
func (sub *Subsystem) Drivers() []Health {
	out := make([]Health, len(sub.drivers))
	for i, rd := range sub.drivers {
		out[i] = rd.health
	}
	return out
}

// BindingDirection is whether a Binding copies into storage (input) or
// out of storage (output) at cycle boundaries.
type BindingDirection int

const (
	BindInput BindingDirection = iota
	BindOutput
)

// Binding associates a declared variable name with a direct address.
// Bound inputs are copied from the image into storage at cycle start;
// bound outputs are copied from storage into the image at cycle end.
type Binding struct {
	Name    string
	Addr    Address
	Dir     BindingDirection
	RefKind value.Kind // runtime kind of the bound variable, for byte<->Value conversion

	// SafeValue is the value an output binding is driven to when the
	// runtime enters SafeHalt, per spec.md's "outputs are driven to
	// their configured safe state" requirement. Zero value (all-zero
	// bits) unless UpdateIoSafeState reconfigures it. Unused for input
	// bindings.
	SafeValue value.Value
}

// Bind records a variable<->address association. It does not itself
// touch storage; ReadPhase/WritePhase perform the actual copy.
func (sub *Subsystem) Bind(b Binding) {
	sub.storage.Io.EnsureByte(b.Addr.Area, b.Addr.EndByte())
	sub.bindings = append(sub.bindings, b)
}

// ReadPhase runs every driver's ReadInputs into the input area (growing
// it first to the largest bound address), then copies bound input
// variables into storage.
func (sub *Subsystem) ReadPhase() error {
	for _, rd := range sub.drivers {
		if err := sub.runRead(rd); err != nil {
			return err
		}
	}
	for _, b := range sub.bindings {
		if b.Dir != BindInput {
			continue
		}
		v, err := ReadAddress(sub.storage.Io, b.Addr, b.RefKind)
		if err != nil {
			return err
		}
		sub.storage.SetGlobal(b.Name, v)
	}
	return nil
}

func (sub *Subsystem) runRead(rd *registeredDriver) error {
	buf := sub.storage.Io.Input
	if err := rd.driver.ReadInputs(buf); err != nil {
		return sub.handleDriverError(rd, err)
	}
	rd.health = rd.driver.Health()
	return nil
}

// WritePhase copies bound output variables into the output area, then
// applies active forces so they supersede any program write, then runs
// every driver's WriteOutputs in registration order.
func (sub *Subsystem) WritePhase() error {
	for _, b := range sub.bindings {
		if b.Dir != BindOutput {
			continue
		}
		v, ok := sub.storage.GetGlobal(b.Name)
		if !ok {
			continue
		}
		if err := WriteAddress(sub.storage.Io, b.Addr, v); err != nil {
			return err
		}
	}
	sub.storage.Io.ApplyForces()
	for _, rd := range sub.drivers {
		if err := sub.runWrite(rd); err != nil {
			return err
		}
	}
	return nil
}

func (sub *Subsystem) runWrite(rd *registeredDriver) error {
	buf := sub.storage.Io.Output
	if err := rd.driver.WriteOutputs(buf); err != nil {
		return sub.handleDriverError(rd, err)
	}
	rd.health = rd.driver.Health()
	return nil
}

func (sub *Subsystem) handleDriverError(rd *registeredDriver, err error) error {
	switch rd.policy {
	case OnErrorDegrade:
		rd.health = Health{Status: HealthDegraded, Reason: err.Error()}
		return nil
	default:
		rd.health = Health{Status: HealthFaulted, Reason: err.Error()}
		return vmerr.IoDriverError(fmt.Sprintf("%s: %v", rd.driver.Name(), err))
	}
}

// BindingKind reports the runtime Kind of the output binding named
// name, so a caller can decode a raw wire value before calling
// SetSafeValue.
func (sub *Subsystem) BindingKind(name string) (value.Kind, bool) {
	for _, b := range sub.bindings {
		if b.Name == name && b.Dir == BindOutput {
			return b.RefKind, true
		}
	}
	return 0, false
}

// SetSafeValue reconfigures the safe state an output binding named name
// is driven to on SafeHalt, the UpdateIoSafeState command spec.md's
// command channel lists. Reports whether a bound output by that name
// was found.
func (sub *Subsystem) SetSafeValue(name string, v value.Value) bool {
	for i, b := range sub.bindings {
		if b.Name == name && b.Dir == BindOutput {
			sub.bindings[i].SafeValue = v
			return true
		}
	}
	return false
}

// DriveSafeState writes every bound output's configured safe value into
// the output image and runs every driver's WriteOutputs once more so
// the safe state actually reaches the physical/virtual transport,
// without touching storage (the fault may have left storage in an
// inconsistent state, which is exactly what SafeHalt freezes).
func (sub *Subsystem) DriveSafeState() error {
	for _, b := range sub.bindings {
		if b.Dir != BindOutput {
			continue
		}
		if err := WriteAddress(sub.storage.Io, b.Addr, b.SafeValue); err != nil {
			return err
		}
	}
	sub.storage.Io.ApplyForces()
	for _, rd := range sub.drivers {
		if err := sub.runWrite(rd); err != nil {
			return err
		}
	}
	return nil
}

// Force overrides addr in the output image until cleared; it supersedes
// program writes for that location, applied last in WritePhase.
func (sub *Subsystem) Force(addr Address, v value.Value) {
	f := storage.Force{Area: addr.Area, Byte: addr.Byte, Bit: addr.Bit, Value: v}
	sub.storage.Io.SetForce(f)
}

func (sub *Subsystem) Unforce(addr Address) {
	sub.storage.Io.ClearForce(addr.Area, addr.Byte, addr.Bit)
}

func (sub *Subsystem) Forces() []storage.Force {
	return sub.storage.Io.Forces()
}
