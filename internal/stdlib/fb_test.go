package stdlib

import (
	"testing"
	"time"

	"github.com/ironrail/stcore/internal/eval"
	"github.com/ironrail/stcore/internal/program"
	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/types"
	"github.com/ironrail/stcore/internal/value"
)

func newFbCtx() (*eval.EvalContext, value.InstanceId) {
	reg := types.NewRegistry()
	st := storage.New()
	prog := program.NewProgram(reg)
	ctx := eval.NewEvalContext(st, reg, prog, value.DefaultProfile())
	id := st.CreateInstance("SR", nil)
	return ctx, id
}

func setIn(ctx *eval.EvalContext, id value.InstanceId, name string, v value.Value) {
	ctx.Storage.SetInstanceVar(id, name, v)
}

func TestSRIsSetDominant(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "S1", value.Bool(true))
	setIn(ctx, id, "R", value.Bool(true))
	out, err := invokeSR(ctx, id, nil)
	if err != nil {
		t.Fatalf("invokeSR: %v", err)
	}
	if !out["Q1"].Bool {
		t.Errorf("SR with S1=R=TRUE should latch Q1=TRUE (set-dominant), got %v", out["Q1"])
	}

	setIn(ctx, id, "S1", value.Bool(false))
	setIn(ctx, id, "R", value.Bool(true))
	out, _ = invokeSR(ctx, id, nil)
	if out["Q1"].Bool {
		t.Errorf("SR with S1=FALSE R=TRUE should reset Q1=FALSE")
	}
}

func TestRSIsResetDominant(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "S", value.Bool(true))
	setIn(ctx, id, "R1", value.Bool(true))
	out, err := invokeRS(ctx, id, nil)
	if err != nil {
		t.Fatalf("invokeRS: %v", err)
	}
	if out["Q1"].Bool {
		t.Errorf("RS with S=R1=TRUE should hold Q1=FALSE (reset-dominant), got %v", out["Q1"])
	}

	setIn(ctx, id, "R1", value.Bool(false))
	setIn(ctx, id, "S", value.Bool(true))
	out, _ = invokeRS(ctx, id, nil)
	if !out["Q1"].Bool {
		t.Errorf("RS with S=TRUE R1=FALSE should set Q1=TRUE")
	}
}

func TestRTrigFiresOnRisingEdgeOnly(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "CLK", value.Bool(false))
	out, _ := invokeTrig(ctx, id, nil, true)
	if out["Q"].Bool {
		t.Errorf("R_TRIG should not fire on the first FALSE observation")
	}
	setIn(ctx, id, "CLK", value.Bool(true))
	out, _ = invokeTrig(ctx, id, nil, true)
	if !out["Q"].Bool {
		t.Errorf("R_TRIG should fire on FALSE->TRUE transition")
	}
	out, _ = invokeTrig(ctx, id, nil, true)
	if out["Q"].Bool {
		t.Errorf("R_TRIG should not re-fire while CLK stays TRUE")
	}
}

func TestFTrigFiresOnFallingEdgeOnly(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "CLK", value.Bool(true))
	invokeTrig(ctx, id, nil, false)
	setIn(ctx, id, "CLK", value.Bool(false))
	out, _ := invokeTrig(ctx, id, nil, false)
	if !out["Q"].Bool {
		t.Errorf("F_TRIG should fire on TRUE->FALSE transition")
	}
	out, _ = invokeTrig(ctx, id, nil, false)
	if out["Q"].Bool {
		t.Errorf("F_TRIG should not re-fire while CLK stays FALSE")
	}
}

func TestCTUCountsUpToPVAndResets(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "PV", value.Int(value.KindDInt, 2))
	pulse := func(cu bool) map[string]value.Value {
		setIn(ctx, id, "CU", value.Bool(cu))
		out, err := invokeCounter(ctx, id, nil, true, false)
		if err != nil {
			t.Fatalf("invokeCounter(CTU): %v", err)
		}
		return out
	}
	pulse(true)
	out := pulse(false)
	if out["CV"].Int != 1 {
		t.Fatalf("after one CU pulse, CV = %d, want 1", out["CV"].Int)
	}
	pulse(true)
	out = pulse(false)
	if out["CV"].Int != 2 || !out["Q"].Bool {
		t.Fatalf("after CV reaches PV=2, CV=%d Q=%v, want CV=2 Q=true", out["CV"].Int, out["Q"].Bool)
	}

	setIn(ctx, id, "R", value.Bool(true))
	out, _ = invokeCounter(ctx, id, nil, true, false)
	if out["CV"].Int != 0 {
		t.Errorf("R=TRUE should reset CV to 0, got %d", out["CV"].Int)
	}
}

func TestCTDCountsDownToZero(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "PV", value.Int(value.KindDInt, 2))
	setIn(ctx, id, "LD", value.Bool(true))
	out, err := invokeCounter(ctx, id, nil, false, true)
	if err != nil {
		t.Fatalf("invokeCounter(CTD load): %v", err)
	}
	if out["CV"].Int != 2 {
		t.Fatalf("LD should load CV from PV: CV=%d, want 2", out["CV"].Int)
	}
	setIn(ctx, id, "LD", value.Bool(false))
	pulse := func(cd bool) map[string]value.Value {
		setIn(ctx, id, "CD", value.Bool(cd))
		out, _ := invokeCounter(ctx, id, nil, false, true)
		return out
	}
	pulse(true)
	out = pulse(false)
	pulse(true)
	out = pulse(false)
	if out["CV"].Int != 0 || !out["Q"].Bool {
		t.Fatalf("after two CD pulses from CV=2, CV=%d Q=%v, want CV=0 Q=true", out["CV"].Int, out["Q"].Bool)
	}
}

func TestTONAccumulatesWhileInAndResetsOnFalse(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "PT", value.Value{Kind: value.KindTime, Ticks: int64(5 * time.Second)})
	setIn(ctx, id, "IN", value.Bool(true))

	ctx.Now = 0
	invokeTimer(ctx, id, nil, timerTON)
	ctx.Now = 3 * time.Second
	out, err := invokeTimer(ctx, id, nil, timerTON)
	if err != nil {
		t.Fatalf("invokeTimer(TON): %v", err)
	}
	if out["Q"].Bool {
		t.Errorf("TON should not assert Q before ET reaches PT")
	}
	if out["ET"].Ticks != int64(3*time.Second) {
		t.Errorf("ET = %d, want %d", out["ET"].Ticks, int64(3*time.Second))
	}

	ctx.Now = 6 * time.Second
	out, _ = invokeTimer(ctx, id, nil, timerTON)
	if !out["Q"].Bool {
		t.Errorf("TON should assert Q once ET >= PT")
	}

	setIn(ctx, id, "IN", value.Bool(false))
	out, _ = invokeTimer(ctx, id, nil, timerTON)
	if out["Q"].Bool || out["ET"].Ticks != 0 {
		t.Errorf("TON should reset ET and drop Q as soon as IN goes FALSE: ET=%d Q=%v", out["ET"].Ticks, out["Q"].Bool)
	}
}

func TestTOFHoldsQAfterFallingEdgeUntilPT(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "PT", value.Value{Kind: value.KindTime, Ticks: int64(5 * time.Second)})
	setIn(ctx, id, "IN", value.Bool(true))
	ctx.Now = 0
	out, err := invokeTimer(ctx, id, nil, timerTOF)
	if err != nil {
		t.Fatalf("invokeTimer(TOF): %v", err)
	}
	if !out["Q"].Bool {
		t.Errorf("TOF should assert Q immediately while IN is TRUE")
	}

	setIn(ctx, id, "IN", value.Bool(false))
	ctx.Now = 2 * time.Second
	out, _ = invokeTimer(ctx, id, nil, timerTOF)
	if !out["Q"].Bool {
		t.Errorf("TOF should keep Q asserted during the off-delay window")
	}

	ctx.Now = 10 * time.Second
	out, _ = invokeTimer(ctx, id, nil, timerTOF)
	if out["Q"].Bool {
		t.Errorf("TOF should drop Q once the off-delay has elapsed")
	}
}

func TestTPPulsesOnceAndIgnoresRetrigger(t *testing.T) {
	ctx, id := newFbCtx()
	setIn(ctx, id, "PT", value.Value{Kind: value.KindTime, Ticks: int64(5 * time.Second)})
	setIn(ctx, id, "IN", value.Bool(true))
	ctx.Now = 0
	out, err := invokeTimer(ctx, id, nil, timerTP)
	if err != nil {
		t.Fatalf("invokeTimer(TP): %v", err)
	}
	if !out["Q"].Bool {
		t.Errorf("TP should start the pulse on the rising edge of IN")
	}

	ctx.Now = 3 * time.Second
	out, _ = invokeTimer(ctx, id, nil, timerTP)
	if !out["Q"].Bool {
		t.Errorf("TP should keep Q asserted for the full pulse duration")
	}

	ctx.Now = 6 * time.Second
	out, _ = invokeTimer(ctx, id, nil, timerTP)
	if out["Q"].Bool {
		t.Errorf("TP should drop Q once ET reaches PT")
	}

	// Retriggering IN while the pulse is already complete and IN was
	// never dropped should not restart it (no new rising edge).
	ctx.Now = 7 * time.Second
	out, _ = invokeTimer(ctx, id, nil, timerTP)
	if out["Q"].Bool {
		t.Errorf("TP should not restart without a fresh rising edge")
	}
}

func TestIsStandardRecognizesOnlyKnownNames(t *testing.T) {
	fbs := StandardFBs{}
	for _, name := range []string{"SR", "rs", "Ton", "CTUD"} {
		if !fbs.IsStandard(name) {
			t.Errorf("IsStandard(%q) = false, want true", name)
		}
	}
	if fbs.IsStandard("MY_CUSTOM_FB") {
		t.Errorf("IsStandard(custom) = true, want false")
	}
}
