package scpi

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/opticslab/scpikit/util"
)

// FieldKind selects the shape validation applied to a field's value.
type FieldKind int

const (
	// FieldNumeric accepts number-like text: digits, sign, decimal point,
	// exponent letters.
	FieldNumeric FieldKind = iota

	// FieldToken accepts a single word, for modes and enable flags.
	FieldToken
)

var (
	numericShape = regexp.MustCompile(`^[\w\.\+\-]+$`)
	tokenShape   = regexp.MustCompile(`^\w+$`)
)

// Field declares one canonical parameter a device accepts in
// multi-parameter calls, along with the short aliases callers may use.
type Field struct {
	// Name is the canonical parameter name, e.g. "current".
	Name string

	// Aliases are alternate spellings, matched case-insensitively;
	// Name itself always matches.
	Aliases []string

	// Kind selects shape validation.
	Kind FieldKind
}

// Param is a normalized name/value pair, the value already coerced to its
// wire text.
type Param struct {
	Name  string
	Value string
}

// Rejection records one parameter that was dropped during normalization and
// why.  Rejections are diagnostics; they never abort the remaining pairs.
type Rejection struct {
	Name   string
	Reason string
}

func (r Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Name, r.Reason)
}

// Validator normalizes loosely-typed name/value pairs against a fixed,
// closed set of canonical fields.  The zero value is not usable; build one
// with NewValidator at device init.
type Validator struct {
	fields  []Field
	byAlias map[string]string
	kinds   map[string]FieldKind
}

// NewValidator builds a Validator.  Duplicate aliases are a programming
// error in a device package and panic at init.
func NewValidator(fields ...Field) *Validator {
	v := &Validator{
		fields:  fields,
		byAlias: make(map[string]string),
		kinds:   make(map[string]FieldKind),
	}
	for _, f := range fields {
		v.kinds[f.Name] = f.Kind
		for _, alias := range append([]string{f.Name}, f.Aliases...) {
			key := strings.ToLower(alias)
			if _, ok := v.byAlias[key]; ok {
				panic("scpi: duplicate parameter alias " + alias)
			}
			v.byAlias[key] = f.Name
		}
	}
	return v
}

// Canonical resolves a name or alias to its canonical field name.
func (v *Validator) Canonical(name string) (string, bool) {
	c, ok := v.byAlias[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Normalize accepts alternating name/value tokens and returns the subset of
// canonical fields actually supplied, in the stable order of the field
// table, plus the list of dropped inputs.  Unknown names, malformed values,
// and a dangling trailing name are warned about and skipped; they never
// abort processing of the remaining pairs, so batch callers with a typo'd
// key keep running.
func (v *Validator) Normalize(pairs ...interface{}) ([]Param, []Rejection) {
	var rejections []Rejection
	if len(pairs)%2 != 0 {
		last := pairs[len(pairs)-1]
		rejections = append(rejections, Rejection{
			Name:   fmt.Sprint(last),
			Reason: "dangling name with no value, discarded",
		})
		log.Printf("scpi: odd number of parameter tokens, discarding trailing %v", last)
		pairs = pairs[:len(pairs)-1]
	}
	supplied := make(map[string]string)
	for i := 0; i < len(pairs); i += 2 {
		rawName, ok := pairs[i].(string)
		if !ok {
			rejections = append(rejections, Rejection{
				Name:   fmt.Sprint(pairs[i]),
				Reason: "parameter name is not text",
			})
			log.Printf("scpi: parameter name %v is not text, skipping pair", pairs[i])
			continue
		}
		name, ok := v.Canonical(rawName)
		if !ok {
			rejections = append(rejections, Rejection{
				Name:   rawName,
				Reason: "unknown parameter name",
			})
			log.Printf("scpi: unknown parameter %q ignored", rawName)
			continue
		}
		value, err := coerceValue(pairs[i+1])
		if err != nil {
			rejections = append(rejections, Rejection{Name: rawName, Reason: err.Error()})
			log.Printf("scpi: parameter %q dropped: %v", rawName, err)
			continue
		}
		if !shapeOK(value, v.kinds[name]) {
			rejections = append(rejections, Rejection{
				Name:   rawName,
				Reason: fmt.Sprintf("value %q fails shape check", value),
			})
			log.Printf("scpi: parameter %q value %q fails shape check, dropped", rawName, value)
			continue
		}
		supplied[name] = value
	}
	var out []Param
	for _, f := range v.fields {
		if val, ok := supplied[f.Name]; ok {
			out = append(out, Param{Name: f.Name, Value: val})
		}
	}
	return out, rejections
}

// coerceValue converts a caller-supplied value into canonical wire text.
// Text is upper-cased; booleans become 1/0; numbers are formatted with
// round-trip precision; vectors are comma-joined.  Anything else is
// rejected.
func coerceValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.ToUpper(strings.TrimSpace(val)), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case []int:
		return util.IntSliceToCSV(val), nil
	case []float64:
		strs := make([]string, len(val))
		for i, f := range val {
			strs[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(strs, ","), nil
	case []string:
		strs := make([]string, len(val))
		for i, s := range val {
			strs[i] = strings.ToUpper(strings.TrimSpace(s))
		}
		return strings.Join(strs, ","), nil
	default:
		return "", fmt.Errorf("value of type %T is not a scalar or vector", v)
	}
}

// shapeOK applies the per-kind regex to each comma-separated element.
func shapeOK(value string, kind FieldKind) bool {
	shape := numericShape
	if kind == FieldToken {
		shape = tokenShape
	}
	for _, piece := range strings.Split(value, ",") {
		if !shape.MatchString(piece) {
			return false
		}
	}
	return true
}
