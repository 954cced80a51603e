package scpi_test

import (
	"testing"

	"github.com/opticslab/scpikit/scpi"
)

func laserValidator() *scpi.Validator {
	return scpi.NewValidator(
		scpi.Field{Name: "current", Aliases: []string{"i", "curr"}, Kind: scpi.FieldNumeric},
		scpi.Field{Name: "power", Aliases: []string{"p", "pow"}, Kind: scpi.FieldNumeric},
		scpi.Field{Name: "mode", Aliases: []string{"m"}, Kind: scpi.FieldToken},
		scpi.Field{Name: "output", Aliases: []string{"out", "enable"}, Kind: scpi.FieldToken},
	)
}

func TestAliasesResolveToSameCanonicalName(t *testing.T) {
	v := laserValidator()
	for _, alias := range []string{"i", "I", "curr", "CURR", "current", " Current "} {
		name, ok := v.Canonical(alias)
		if !ok {
			t.Errorf("expected alias %q to resolve", alias)
			continue
		}
		if name != "current" {
			t.Errorf("expected alias %q to resolve to current, got %s", alias, name)
		}
	}
}

func TestNormalizeCoercesValues(t *testing.T) {
	v := laserValidator()
	params, rej := v.Normalize("i", 100.5, "mode", "current", "output", true)
	if len(rej) != 0 {
		t.Fatalf("expected no rejections, got %v", rej)
	}
	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(params))
	}
	// stable field table order, not call order
	expected := []scpi.Param{
		{Name: "current", Value: "100.5"},
		{Name: "mode", Value: "CURRENT"},
		{Name: "output", Value: "1"},
	}
	for i := range expected {
		if params[i] != expected[i] {
			t.Errorf("param %d: expected %+v got %+v", i, expected[i], params[i])
		}
	}
}

func TestNormalizeStableOrderRegardlessOfCallOrder(t *testing.T) {
	v := laserValidator()
	a, _ := v.Normalize("mode", "current", "i", 1)
	b, _ := v.Normalize("i", 1, "mode", "current")
	if len(a) != len(b) {
		t.Fatalf("expected same params, got %v and %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("expected identical output order, got %v and %v", a, b)
		}
	}
}

func TestNormalizeUnknownNameDoesNotAbort(t *testing.T) {
	v := laserValidator()
	params, rej := v.Normalize("wavelength", 1550, "i", 100)
	if len(rej) != 1 {
		t.Fatalf("expected 1 rejection, got %v", rej)
	}
	if rej[0].Name != "wavelength" {
		t.Errorf("expected wavelength to be rejected, got %s", rej[0].Name)
	}
	if len(params) != 1 || params[0].Name != "current" {
		t.Errorf("expected the following pair to still apply, got %v", params)
	}
}

func TestNormalizeDanglingNameDiscarded(t *testing.T) {
	v := laserValidator()
	params, rej := v.Normalize("i", 100, "power")
	if len(params) != 1 || params[0].Name != "current" {
		t.Errorf("expected current to survive, got %v", params)
	}
	if len(rej) != 1 {
		t.Errorf("expected the dangling name to be reported, got %v", rej)
	}
}

func TestNormalizeShapeRejection(t *testing.T) {
	v := laserValidator()
	// an embedded space fails both shapes; it would corrupt the command line
	params, rej := v.Normalize("mode", "curr ent", "i", 50)
	if len(rej) != 1 || rej[0].Name != "mode" {
		t.Fatalf("expected mode to be rejected for shape, got %v", rej)
	}
	if len(params) != 1 || params[0].Name != "current" {
		t.Errorf("expected current to survive, got %v", params)
	}
}

func TestNormalizeNonTextName(t *testing.T) {
	v := laserValidator()
	params, rej := v.Normalize(42, 100, "i", 10)
	if len(rej) != 1 {
		t.Fatalf("expected 1 rejection, got %v", rej)
	}
	if len(params) != 1 || params[0].Name != "current" {
		t.Errorf("expected current to survive, got %v", params)
	}
}

func TestNormalizeVectorValues(t *testing.T) {
	v := scpi.NewValidator(
		scpi.Field{Name: "taps", Kind: scpi.FieldNumeric},
	)
	params, rej := v.Normalize("taps", []int{1, 2, 3})
	if len(rej) != 0 {
		t.Fatalf("expected no rejections, got %v", rej)
	}
	if len(params) != 1 || params[0].Value != "1,2,3" {
		t.Errorf("expected CSV vector, got %v", params)
	}
}

func TestNormalizeRejectsNonScalar(t *testing.T) {
	v := laserValidator()
	_, rej := v.Normalize("i", map[string]int{"a": 1})
	if len(rej) != 1 {
		t.Fatalf("expected 1 rejection, got %v", rej)
	}
}

func TestValidatorPanicsOnDuplicateAlias(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate alias to panic")
		}
	}()
	scpi.NewValidator(
		scpi.Field{Name: "current", Aliases: []string{"i"}},
		scpi.Field{Name: "intensity", Aliases: []string{"i"}},
	)
}
