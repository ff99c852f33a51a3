package io

import (
	"testing"

	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
)

// memDriver is an in-memory Driver used to test composition order and
// the degrade-and-continue error policy.
type memDriver struct {
	name    string
	in, out []byte
	err     error
	health  Health
}

func (d *memDriver) Name() string { return d.name }
func (d *memDriver) ReadInputs(buf []byte) error {
	if d.err != nil {
		return d.err
	}
	copy(buf, d.in)
	return nil
}
func (d *memDriver) WriteOutputs(buf []byte) error {
	if d.err != nil {
		return d.err
	}
	d.out = append([]byte(nil), buf...)
	return nil
}
func (d *memDriver) Health() Health { return d.health }

func TestSubsystemBindingRoundTrip(t *testing.T) {
	s := storage.New()
	sub := NewSubsystem(s)
	drv := &memDriver{name: "sim", in: []byte{0xFF, 0, 0}}
	sub.Register(drv, OnErrorFault)

	addr, _ := ParseAddress("%IX0.0")
	sub.Bind(Binding{Name: "start", Addr: addr, Dir: BindInput, RefKind: value.KindBool})

	if err := sub.ReadPhase(); err != nil {
		t.Fatalf("ReadPhase: %v", err)
	}
	v, ok := s.GetGlobal("start")
	if !ok || !v.Bool {
		t.Fatalf("start = %+v, ok=%v; want true", v, ok)
	}
}

func TestSubsystemWritePhaseAppliesForceLast(t *testing.T) {
	s := storage.New()
	sub := NewSubsystem(s)
	drv := &memDriver{name: "sim"}
	sub.Register(drv, OnErrorFault)

	addr, _ := ParseAddress("%QX0.0")
	sub.Bind(Binding{Name: "lamp", Addr: addr, Dir: BindOutput, RefKind: value.KindBool})
	s.SetGlobal("lamp", value.Bool(false))

	sub.Force(addr, value.Bool(true))
	if err := sub.WritePhase(); err != nil {
		t.Fatalf("WritePhase: %v", err)
	}
	if drv.out[0]&1 == 0 {
		t.Fatalf("expected forced bit set in driver output, got %08b", drv.out[0])
	}
}

func TestSubsystemDegradeContinues(t *testing.T) {
	s := storage.New()
	sub := NewSubsystem(s)
	s.Io.EnsureByte(storage.AreaInput, 0)
	bad := &memDriver{name: "flaky", err: errFake{}}
	sub.Register(bad, OnErrorDegrade)

	if err := sub.ReadPhase(); err != nil {
		t.Fatalf("ReadPhase with OnErrorDegrade should not propagate: %v", err)
	}
	health := sub.Drivers()[0]
	if health.Status != HealthDegraded {
		t.Errorf("driver health = %v, want Degraded", health.Status)
	}
}

func TestSubsystemFaultPropagates(t *testing.T) {
	s := storage.New()
	sub := NewSubsystem(s)
	bad := &memDriver{name: "broken", err: errFake{}}
	sub.Register(bad, OnErrorFault)

	if err := sub.ReadPhase(); err == nil {
		t.Fatal("expected ReadPhase to propagate the driver error")
	}
}

type errFake struct{}

func (errFake) Error() string { return "simulated driver failure" }
