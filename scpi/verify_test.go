package scpi_test

import (
	"math"
	"testing"

	"github.com/opticslab/scpikit/scpi"
)

func TestContinuousWithinTolerance(t *testing.T) {
	var v scpi.Verifier
	spec := scpi.Spec{Name: "current"}
	// 1% default relative tolerance
	if st := v.Continuous(spec, 100, 100.9); st != scpi.SetApplied {
		t.Errorf("expected applied within 1%%, got %v", st)
	}
	if st := v.Continuous(spec, 100, 102); st != scpi.SetMismatch {
		t.Errorf("expected mismatch outside 1%%, got %v", st)
	}
}

func TestContinuousPerSpecToleranceOverride(t *testing.T) {
	var v scpi.Verifier
	spec := scpi.Spec{Name: "temperature", Tolerance: 0.05}
	if st := v.Continuous(spec, 20, 20.8); st != scpi.SetApplied {
		t.Errorf("expected the wider per-spec tolerance to apply, got %v", st)
	}
}

func TestContinuousNaNIsMismatch(t *testing.T) {
	var v scpi.Verifier
	spec := scpi.Spec{Name: "current"}
	if st := v.Continuous(spec, 100, math.NaN()); st != scpi.SetMismatch {
		t.Errorf("expected NaN readback to be a mismatch, got %v", st)
	}
}

func TestRangeBand(t *testing.T) {
	var v scpi.Verifier
	spec := scpi.Spec{Name: "range", RangeStep: true}
	// hardware snapped up to the next step: fine as long as not absurdly far
	if st := v.Range(spec, 0.1, 0.105); st != scpi.SetApplied {
		t.Errorf("expected snapped-up range to pass, got %v", st)
	}
	if st := v.Range(spec, 0.1, 0.96); st != scpi.SetApplied {
		t.Errorf("expected 9.6x ceiling to be inclusive, got %v", st)
	}
	if st := v.Range(spec, 0.1, 1.0); st != scpi.SetMismatch {
		t.Errorf("expected 10x actual to fail, got %v", st)
	}
	// actual below requested: accept only within the 5% grace
	if st := v.Range(spec, 0.105, 0.1); st != scpi.SetApplied {
		t.Errorf("expected 5%% grace below requested to pass, got %v", st)
	}
	if st := v.Range(spec, 0.2, 0.1); st != scpi.SetMismatch {
		t.Errorf("expected actual far below requested to fail, got %v", st)
	}
	if st := v.Range(spec, 0.1, math.NaN()); st != scpi.SetMismatch {
		t.Errorf("expected NaN readback to be a mismatch, got %v", st)
	}
}

func TestNumberDispatch(t *testing.T) {
	var v scpi.Verifier
	cont := scpi.Spec{Name: "current"}
	rng := scpi.Spec{Name: "range", RangeStep: true}
	if st := v.Number(cont, 100, 100.5); st != scpi.SetApplied {
		t.Errorf("expected continuous dispatch, got %v", st)
	}
	if st := v.Number(rng, 0.1, 0.5); st != scpi.SetApplied {
		t.Errorf("expected range dispatch, got %v", st)
	}
}

func TestBoolVerify(t *testing.T) {
	var v scpi.Verifier
	spec := scpi.Spec{Name: "output"}
	if st := v.Bool(spec, true, true); st != scpi.SetApplied {
		t.Errorf("expected applied, got %v", st)
	}
	if st := v.Bool(spec, true, false); st != scpi.SetMismatch {
		t.Errorf("expected mismatch, got %v", st)
	}
}

func TestTokenVerify(t *testing.T) {
	var v scpi.Verifier
	spec := scpi.Spec{Name: "mode"}
	if st := v.Token(spec, "CURRENT", "CURRENT"); st != scpi.SetApplied {
		t.Errorf("expected applied, got %v", st)
	}
	if st := v.Token(spec, "CURRENT", "POWER"); st != scpi.SetMismatch {
		t.Errorf("expected mismatch, got %v", st)
	}
	if st := v.Token(spec, "CURRENT", scpi.Unexpected); st != scpi.SetMismatch {
		t.Errorf("expected marker readback to be a mismatch, got %v", st)
	}
}

func TestSetStatusCodes(t *testing.T) {
	// wire values are load-bearing for HTTP consumers
	if int(scpi.SetApplied) != 0 || int(scpi.SetNotSent) != 1 || int(scpi.SetMismatch) != 2 {
		t.Error("status code values changed")
	}
}
