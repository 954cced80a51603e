package scpi

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec describes one named operation of a device's command set: how to
// render a set command and its matching query, the unit conversion between
// caller units and wire units, and the documented value range.  Specs are
// immutable; device packages define a Table of them at init.
type Spec struct {
	// Name is the canonical parameter name, e.g. "current".
	Name string

	// Header is the SCPI command header, e.g. "SOURce:CURRent".  Sets are
	// "<Header> <value>", queries are "<Header>?" unless Query overrides.
	Header string

	// Query overrides the derived "<Header>?" query when the device uses a
	// separate measurement or status header.
	Query string

	// Scale multiplies the caller's value before transmission, for required
	// unit conversions (1e-3 for mA→A and mW→W).  Zero means 1.
	Scale float64

	// Min and Max are the documented device range in caller units.  Values
	// outside are clipped before transmission, never sent out of bounds.
	// Min == Max == 0 means unbounded.
	Min, Max float64

	// Precision is the number of decimal places to format with.  Zero means
	// 6, enough to avoid round-trip loss for small SI values; limits and
	// temperatures typically use 2 or 3.
	Precision int

	// OnOffWords renders booleans as ON/OFF tokens instead of 1/0, for
	// dialects that want them.
	OnOffWords bool

	// RangeStep marks a measurement-range parameter whose hardware snaps to
	// discrete steps; readback verification uses the asymmetric band.
	RangeStep bool

	// Tolerance overrides the verifier's relative tolerance for this
	// parameter.  Zero means the verifier default.
	Tolerance float64
}

func (s Spec) precision() int {
	if s.Precision == 0 {
		return 6
	}
	return s.Precision
}

// Clip bounds v to the documented range, in caller units.
func (s Spec) Clip(v float64) float64 {
	if s.Min == 0 && s.Max == 0 {
		return v
	}
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

// BuildSet produces the set command for a numeric value given in caller
// units.  Building always succeeds for well-typed input; invalid input is
// rejected upstream by the Validator.
func (s Spec) BuildSet(v float64) string {
	v = s.Clip(v)
	if s.Scale != 0 {
		v = v * s.Scale
	}
	return fmt.Sprintf("%s %s", s.Header, strconv.FormatFloat(v, 'f', s.precision(), 64))
}

// BuildSetBool produces the set command for a boolean value in the device's
// dialect.
func (s Spec) BuildSetBool(b bool) string {
	var tok string
	switch {
	case b && s.OnOffWords:
		tok = "ON"
	case !b && s.OnOffWords:
		tok = "OFF"
	case b:
		tok = "1"
	default:
		tok = "0"
	}
	return fmt.Sprintf("%s %s", s.Header, tok)
}

// BuildSetToken produces the set command for an enumerated token, e.g.
// a mode or terminal selection.  The token is upper-cased.
func (s Spec) BuildSetToken(tok string) string {
	return fmt.Sprintf("%s %s", s.Header, strings.ToUpper(tok))
}

// BuildQuery produces the matching query command.
func (s Spec) BuildQuery() string {
	if s.Query != "" {
		return s.Query
	}
	return s.Header + "?"
}

// Table is an ordered, immutable collection of Specs, looked up by
// canonical name.  Iteration order is insertion order, so downstream
// consumers and display routines are deterministic.
type Table struct {
	order []string
	specs map[string]Spec
}

// NewTable builds a Table.  Duplicate names are a programming error in a
// device package and panic at init.
func NewTable(specs ...Spec) *Table {
	t := &Table{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if _, ok := t.specs[s.Name]; ok {
			panic("scpi: duplicate command spec " + s.Name)
		}
		t.order = append(t.order, s.Name)
		t.specs[s.Name] = s
	}
	return t
}

// Get looks up a spec by canonical name.
func (t *Table) Get(name string) (Spec, bool) {
	s, ok := t.specs[name]
	return s, ok
}

// MustGet is Get for names known at compile time inside a device package.
func (t *Table) MustGet(name string) Spec {
	s, ok := t.specs[name]
	if !ok {
		panic("scpi: no command spec named " + name)
	}
	return s
}

// Names returns the canonical names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
