package scpi

import (
	"math"
	"strconv"
	"strings"
)

// Unexpected is the marker returned for protocol surprises: enum tokens and
// error-queue lines the parser does not recognize.  Callers may compare or
// log it, but must not coerce it into a valid value.
const Unexpected = "UNEXPECTED RESPONSE"

// ParseBool converts a response to a boolean with fail-safe semantics:
// "1", "ON" and "CLOSED" (case-insensitive) are true; anything else,
// including a communication failure, is false.  A safety-critical condition
// (interlock closed, over-temp OK) is never assumed satisfied when the
// device cannot be heard.
func ParseBool(resp string, err error) bool {
	if err != nil {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(resp)) {
	case "1", "ON", "CLOSED":
		return true
	}
	return false
}

// ParseFloat converts a response to an IEEE double.  Communication failure
// or a malformed response yields NaN.
func ParseFloat(resp string, err error) float64 {
	if err != nil {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ParseEnum canonicalizes an enumerated response (mode, terminal selection)
// through the given abbreviation map, case-insensitively.  Unrecognized
// tokens and communication failures yield the Unexpected marker.
func ParseEnum(resp string, err error, canon map[string]string) string {
	if err != nil {
		return Unexpected
	}
	tok := strings.ToUpper(strings.TrimSpace(resp))
	if long, ok := canon[tok]; ok {
		return long
	}
	return Unexpected
}
