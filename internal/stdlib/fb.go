package stdlib

import (
	"strings"

	"github.com/ironrail/stcore/internal/eval"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

// StandardFBs dispatches the IEC 61131-3 standard function blocks:
// latches, edge detectors, counters, and timers. State lives as
// regular instance variables plus reserved "__"-prefixed hidden slots
// (previous clock edge, last-observed time) so a retained instance
// resumes correctly across a warm restart.
type StandardFBs struct{}

var _ eval.StandardFBs = StandardFBs{}

var standardNames = map[string]bool{
	"SR": true, "RS": true, "R_TRIG": true, "F_TRIG": true,
	"CTU": true, "CTD": true, "CTUD": true,
	"TP": true, "TON": true, "TOF": true,
}

func (StandardFBs) IsStandard(typeName string) bool {
	return standardNames[strings.ToUpper(typeName)]
}

func getBool(ctx *eval.EvalContext, id value.InstanceId, name string) bool {
	v, ok, _ := ctx.Storage.GetInstanceVar(id, name)
	return ok && v.Kind == value.KindBool && v.Bool
}

func getInt(ctx *eval.EvalContext, id value.InstanceId, name string) int64 {
	v, ok, _ := ctx.Storage.GetInstanceVar(id, name)
	if !ok {
		return 0
	}
	return v.Int
}

func getTicks(ctx *eval.EvalContext, id value.InstanceId, name string) int64 {
	v, ok, _ := ctx.Storage.GetInstanceVar(id, name)
	if !ok {
		return 0
	}
	return v.Ticks
}

func set(ctx *eval.EvalContext, id value.InstanceId, name string, v value.Value) {
	ctx.Storage.SetInstanceVar(id, name, v)
}

func (StandardFBs) Invoke(ctx *eval.EvalContext, typeName string, id value.InstanceId, inputs map[string]value.Value) (map[string]value.Value, error) {
	switch strings.ToUpper(typeName) {
	case "SR":
		return invokeSR(ctx, id, inputs)
	case "RS":
		return invokeRS(ctx, id, inputs)
	case "R_TRIG":
		return invokeTrig(ctx, id, inputs, true)
	case "F_TRIG":
		return invokeTrig(ctx, id, inputs, false)
	case "CTU":
		return invokeCounter(ctx, id, inputs, true, false)
	case "CTD":
		return invokeCounter(ctx, id, inputs, false, true)
	case "CTUD":
		return invokeCounter(ctx, id, inputs, true, true)
	case "TP":
		return invokeTimer(ctx, id, inputs, timerTP)
	case "TON":
		return invokeTimer(ctx, id, inputs, timerTON)
	case "TOF":
		return invokeTimer(ctx, id, inputs, timerTOF)
	default:
		return nil, vmerr.New(vmerr.UndefinedFunctionBlock, "%q is not a standard function block", typeName)
	}
}

func invokeSR(ctx *eval.EvalContext, id value.InstanceId, in map[string]value.Value) (map[string]value.Value, error) {
	q1 := getBool(ctx, id, "Q1")
	if getBool(ctx, id, "S1") {
		q1 = true
	} else if getBool(ctx, id, "R") {
		q1 = false
	}
	set(ctx, id, "Q1", value.Bool(q1))
	return map[string]value.Value{"Q1": value.Bool(q1)}, nil
}

func invokeRS(ctx *eval.EvalContext, id value.InstanceId, in map[string]value.Value) (map[string]value.Value, error) {
	q1 := getBool(ctx, id, "Q1")
	if getBool(ctx, id, "R1") {
		q1 = false
	} else if getBool(ctx, id, "S") {
		q1 = true
	}
	set(ctx, id, "Q1", value.Bool(q1))
	return map[string]value.Value{"Q1": value.Bool(q1)}, nil
}

func invokeTrig(ctx *eval.EvalContext, id value.InstanceId, in map[string]value.Value, rising bool) (map[string]value.Value, error) {
	clk := getBool(ctx, id, "CLK")
	prev := getBool(ctx, id, "__prev_clk")
	var q bool
	if rising {
		q = clk && !prev
	} else {
		q = !clk && prev
	}
	set(ctx, id, "__prev_clk", value.Bool(clk))
	set(ctx, id, "Q", value.Bool(q))
	return map[string]value.Value{"Q": value.Bool(q)}, nil
}

func satAdd(v, delta, max int64) int64 {
	n := v + delta
	if n > max {
		return max
	}
	if n < 0 {
		return 0
	}
	return n
}

func invokeCounter(ctx *eval.EvalContext, id value.InstanceId, in map[string]value.Value, up, down bool) (map[string]value.Value, error) {
	pv := getInt(ctx, id, "PV")
	cv := getInt(ctx, id, "CV")
	const max = int64(1<<31 - 1)

	if up && down {
		// CTUD
		if getBool(ctx, id, "R") {
			cv = 0
		} else if getBool(ctx, id, "LD") {
			cv = pv
		} else {
			prevCU := getBool(ctx, id, "__prev_cu")
			prevCD := getBool(ctx, id, "__prev_cd")
			cu := getBool(ctx, id, "CU")
			cd := getBool(ctx, id, "CD")
			if cu && !prevCU {
				cv = satAdd(cv, 1, max)
			}
			if cd && !prevCD {
				cv = satAdd(cv, -1, max)
			}
			set(ctx, id, "__prev_cu", value.Bool(cu))
			set(ctx, id, "__prev_cd", value.Bool(cd))
		}
		set(ctx, id, "CV", value.Int(value.KindDInt, cv))
		qu := cv >= pv
		qd := cv <= 0
		set(ctx, id, "QU", value.Bool(qu))
		set(ctx, id, "QD", value.Bool(qd))
		return map[string]value.Value{
			"CV": value.Int(value.KindDInt, cv), "QU": value.Bool(qu), "QD": value.Bool(qd),
		}, nil
	}

	if up {
		if getBool(ctx, id, "R") {
			cv = 0
		} else {
			prevCU := getBool(ctx, id, "__prev_cu")
			cu := getBool(ctx, id, "CU")
			if cu && !prevCU {
				cv = satAdd(cv, 1, max)
			}
			set(ctx, id, "__prev_cu", value.Bool(cu))
		}
		set(ctx, id, "CV", value.Int(value.KindDInt, cv))
		q := cv >= pv
		set(ctx, id, "Q", value.Bool(q))
		return map[string]value.Value{"CV": value.Int(value.KindDInt, cv), "Q": value.Bool(q)}, nil
	}

	// CTD
	if getBool(ctx, id, "LD") {
		cv = pv
	} else {
		prevCD := getBool(ctx, id, "__prev_cd")
		cd := getBool(ctx, id, "CD")
		if cd && !prevCD {
			cv = satAdd(cv, -1, max)
		}
		set(ctx, id, "__prev_cd", value.Bool(cd))
	}
	set(ctx, id, "CV", value.Int(value.KindDInt, cv))
	q := cv <= 0
	set(ctx, id, "Q", value.Bool(q))
	return map[string]value.Value{"CV": value.Int(value.KindDInt, cv), "Q": value.Bool(q)}, nil
}

type timerKind int

const (
	timerTP timerKind = iota
	timerTON
	timerTOF
)

// invokeTimer implements TP/TON/TOF using the task's observed elapsed
// delta (ctx.Now - stored __last_time), not the wall clock, so overruns
// never lose time and two runs driven by identical ManualClock steps
// produce identical ET traces.
func invokeTimer(ctx *eval.EvalContext, id value.InstanceId, in map[string]value.Value, kind timerKind) (map[string]value.Value, error) {
	inVal := getBool(ctx, id, "IN")
	pt := getTicks(ctx, id, "PT")
	if pt < 0 {
		pt = 0
	}

	nowTicks := int64(ctx.Now)
	lastTicks := getTicks(ctx, id, "__last_time")
	delta := nowTicks - lastTicks
	if delta < 0 {
		delta = 0
	}
	set(ctx, id, "__last_time", value.Value{Kind: value.KindLTime, Ticks: nowTicks})

	prevIn := getBool(ctx, id, "__prev_in")
	et := getTicks(ctx, id, "ET")
	active := getBool(ctx, id, "__active")
	var q bool

	switch kind {
	case timerTP:
		if inVal && !prevIn && !active {
			active = true
			et = 0
		}
		if active {
			et += delta
			if et >= pt {
				et = pt
				active = false
			}
		}
		q = active
	case timerTON:
		if inVal {
			et += delta
			if et > pt {
				et = pt
			}
		} else {
			et = 0
		}
		q = inVal && et >= pt
	case timerTOF:
		if inVal {
			et = 0
			q = true
		} else {
			if prevIn {
				et = 0
			}
			et += delta
			if et > pt {
				et = pt
			}
			q = et < pt
		}
	}

	set(ctx, id, "__prev_in", value.Bool(inVal))
	set(ctx, id, "__active", value.Bool(active))
	set(ctx, id, "ET", value.Value{Kind: value.KindLTime, Ticks: et})
	set(ctx, id, "Q", value.Bool(q))
	return map[string]value.Value{
		"Q":  value.Bool(q),
		"ET": value.Value{Kind: value.KindLTime, Ticks: et},
	}, nil
}
