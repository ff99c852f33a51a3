package value

import "time"

// DateTimeProfile pins the epoch and tick resolution used to interpret
// the Ticks field of Date/LDate/Tod/LTod/Dt/Ldt values. A runtime
// instance carries exactly one profile for its lifetime.
type DateTimeProfile struct {
	Epoch      time.Time     // zero point for Date and Dt
	Resolution time.Duration // duration of one tick (default 1ns)
}

// DefaultProfile matches IEC 61131-3's PLC epoch (1970-01-01 UTC) with
// nanosecond ticks, consistent with Time/LTime being specified in ns.
func DefaultProfile() DateTimeProfile {
	return DateTimeProfile{
		Epoch:      time.Unix(0, 0).UTC(),
		Resolution: time.Nanosecond,
	}
}

// EpochTicks returns the tick value representing the profile's epoch
// instant itself (used as the default Date/Dt value): always zero.
func (p DateTimeProfile) EpochTicks() int64 { return 0 }
