package scpi

import (
	"log"
	"math"
)

// SetStatus is the outcome of a setter: every set operation reads the value
// back before returning and reports one of three distinguishable results.
type SetStatus int

const (
	// SetApplied means the value was sent and the readback agreed.
	SetApplied SetStatus = 0

	// SetNotSent means the caller supplied no usable value; nothing was
	// transmitted.
	SetNotSent SetStatus = 1

	// SetMismatch means the value was sent but the readback disagreed.
	// Mismatches are reported, never thrown; the caller decides whether to
	// retry or abort.
	SetMismatch SetStatus = 2
)

func (s SetStatus) String() string {
	switch s {
	case SetApplied:
		return "applied"
	case SetNotSent:
		return "not sent"
	case SetMismatch:
		return "readback mismatch"
	}
	return "unknown"
}

// Verifier compares a just-written setting against its readback.  The
// tolerance constants were chosen empirically against real hardware; treat
// them as configuration, not invariants.
type Verifier struct {
	// RelTol is the relative tolerance for continuous values.  Zero means
	// 0.01 (1%).
	RelTol float64

	// RangeLow and RangeHigh define the asymmetric acceptance band for
	// measurement ranges, which snap to discrete hardware steps: accept iff
	// RangeLow*actual >= requested and actual <= RangeHigh*requested.
	// Zero means 1.05 and 9.6.
	RangeLow, RangeHigh float64

	// Verbosity gates the wanted-vs-actual diagnostic line on mismatch.
	Verbosity Verbosity
}

func (v Verifier) relTol() float64 {
	if v.RelTol == 0 {
		return 0.01
	}
	return v.RelTol
}

func (v Verifier) rangeBand() (float64, float64) {
	lo, hi := v.RangeLow, v.RangeHigh
	if lo == 0 {
		lo = 1.05
	}
	if hi == 0 {
		hi = 9.6
	}
	return lo, hi
}

func (v Verifier) mismatch(spec Spec, wanted, actual interface{}) SetStatus {
	if v.Verbosity >= VerbosityFew {
		log.Printf("scpi: readback mismatch on %s: wanted %v, device reports %v", spec.Name, wanted, actual)
	}
	return SetMismatch
}

// Continuous verifies a continuous numeric setting: pass iff
// |actual-requested| <= tol * |requested|.  NaN readback (comm failure) is
// a mismatch.
func (v Verifier) Continuous(spec Spec, requested, actual float64) SetStatus {
	tol := spec.Tolerance
	if tol == 0 {
		tol = v.relTol()
	}
	if math.IsNaN(actual) {
		return v.mismatch(spec, requested, actual)
	}
	if math.Abs(actual-requested) <= tol*math.Abs(requested) {
		return SetApplied
	}
	return v.mismatch(spec, requested, actual)
}

// Range verifies a measurement-range setting against the asymmetric band
// that models discrete hardware range steps.
func (v Verifier) Range(spec Spec, requested, actual float64) SetStatus {
	if math.IsNaN(actual) {
		return v.mismatch(spec, requested, actual)
	}
	lo, hi := v.rangeBand()
	if lo*actual >= requested && actual <= hi*requested {
		return SetApplied
	}
	return v.mismatch(spec, requested, actual)
}

// Number dispatches to Range or Continuous based on the spec.
func (v Verifier) Number(spec Spec, requested, actual float64) SetStatus {
	if spec.RangeStep {
		return v.Range(spec, requested, actual)
	}
	return v.Continuous(spec, requested, actual)
}

// Bool verifies a boolean setting; exact equality is required.
func (v Verifier) Bool(spec Spec, requested, actual bool) SetStatus {
	if requested == actual {
		return SetApplied
	}
	return v.mismatch(spec, requested, actual)
}

// Token verifies an enumerated setting; the canonicalized readback must
// equal the canonical form of the requested token exactly.
func (v Verifier) Token(spec Spec, requested, actual string) SetStatus {
	if actual == Unexpected {
		return v.mismatch(spec, requested, actual)
	}
	if requested == actual {
		return SetApplied
	}
	return v.mismatch(spec, requested, actual)
}
