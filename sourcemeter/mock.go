package sourcemeter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opticslab/scpikit/scpi"
	"github.com/opticslab/scpikit/util"
)

// currentRanges are the discrete range steps the mock snaps to, decades
// like the hardware.
var currentRanges = []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 1}

var voltageRanges = []float64{0.2, 2, 20, 200}

func snapRange(steps []float64, requested float64) float64 {
	for _, s := range steps {
		if s >= requested {
			return s
		}
	}
	return steps[len(steps)-1]
}

// MockSM2400 is an in-memory SM2400 for development without hardware.
// Range sets snap up to the next decade like the real unit, so readback
// verification behaves the same against it.
type MockSM2400 struct {
	sync.Mutex
	function   string
	voltage    float64
	current    float64
	vcomp      float64
	icomp      float64
	vrange     float64
	irange     float64
	vauto      bool
	iauto      bool
	nplc       float64
	terminals  string
	output     bool
	resistance float64
}

// NewMockSM2400 returns a mock sourcing voltage on the front terminals,
// the same signature as NewSM2400.
func NewMockSM2400(addr string, useSerial bool) *MockSM2400 {
	return &MockSM2400{
		function:   FunctionVoltage,
		terminals:  TerminalsFront,
		nplc:       1,
		vrange:     20,
		irange:     1e-3,
		resistance: 1000,
	}
}

func (m *MockSM2400) ID() (string, error) {
	return "OPTICSLAB,SM2400-MOCK,0,0.0", nil
}

func (m *MockSM2400) Reset() error {
	m.Lock()
	defer m.Unlock()
	m.function = FunctionVoltage
	m.terminals = TerminalsFront
	m.voltage, m.current = 0, 0
	m.vcomp, m.icomp = 0, 0
	m.vrange, m.irange = 20, 1e-3
	m.vauto, m.iauto = false, false
	m.nplc = 1
	m.output = false
	m.resistance = 1000
	return nil
}

func (m *MockSM2400) SetFunction(f string) (scpi.SetStatus, error) {
	canon, ok := functionCanon[strings.ToUpper(strings.TrimSpace(f))]
	if !ok {
		return scpi.SetNotSent, fmt.Errorf("sourcemeter: %q is not a valid function", f)
	}
	m.Lock()
	defer m.Unlock()
	m.function = canon
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetFunction() (string, error) {
	m.Lock()
	defer m.Unlock()
	return m.function, nil
}

func (m *MockSM2400) SetVoltage(volts float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.voltage = util.Clamp(volts, -210, 210)
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetVoltage() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.voltage, nil
}

func (m *MockSM2400) SetCurrent(amps float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.current = util.Clamp(amps, -1.05, 1.05)
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetCurrent() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.current, nil
}

func (m *MockSM2400) SetVoltageCompliance(volts float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.vcomp = util.Clamp(volts, 0, 210)
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetVoltageCompliance() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.vcomp, nil
}

func (m *MockSM2400) SetCurrentCompliance(amps float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.icomp = util.Clamp(amps, 0, 1.05)
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetCurrentCompliance() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.icomp, nil
}

func (m *MockSM2400) SetCurrentRange(amps float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.irange = snapRange(currentRanges, amps)
	m.iauto = false
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetCurrentRange() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.irange, nil
}

func (m *MockSM2400) SetVoltageRange(volts float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.vrange = snapRange(voltageRanges, volts)
	m.vauto = false
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetVoltageRange() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.vrange, nil
}

func (m *MockSM2400) SetCurrentAutoRange(on bool) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.iauto = on
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetCurrentAutoRange() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.iauto, nil
}

func (m *MockSM2400) SetVoltageAutoRange(on bool) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.vauto = on
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetVoltageAutoRange() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.vauto, nil
}

func (m *MockSM2400) SetNPLC(cycles float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.nplc = util.Clamp(cycles, 0.01, 10)
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetNPLC() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.nplc, nil
}

func (m *MockSM2400) SetTerminals(t string) (scpi.SetStatus, error) {
	canon, ok := terminalsCanon[strings.ToUpper(strings.TrimSpace(t))]
	if !ok {
		return scpi.SetNotSent, fmt.Errorf("sourcemeter: %q is not a valid terminals", t)
	}
	m.Lock()
	defer m.Unlock()
	m.terminals = canon
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetTerminals() (string, error) {
	m.Lock()
	defer m.Unlock()
	return m.terminals, nil
}

func (m *MockSM2400) SetOutput(on bool) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.output = on
	return scpi.SetApplied, nil
}

func (m *MockSM2400) GetOutput() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.output, nil
}

// Measure plays Ohm's law against the mock's fixed load resistor.  With the
// output off the resistance reads the overflow sentinel, like a real unit
// into an open circuit.
func (m *MockSM2400) Measure() (Measurement, error) {
	m.Lock()
	defer m.Unlock()
	if !m.output {
		return Measurement{R: overflowReading}, nil
	}
	if m.function == FunctionVoltage {
		return Measurement{V: m.voltage, I: m.voltage / m.resistance, R: m.resistance}, nil
	}
	return Measurement{V: m.current * m.resistance, I: m.current, R: m.resistance}, nil
}

func (m *MockSM2400) Beep(freqHz float64, duration time.Duration) error {
	return nil
}

// Configure mirrors the real driver's loose multi-parameter call.
func (m *MockSM2400) Configure(pairs ...interface{}) ([]ApplyResult, []scpi.Rejection) {
	normalized, rejections := params.Normalize(pairs...)
	var results []ApplyResult
	for _, p := range normalized {
		var (
			st  scpi.SetStatus
			err error
		)
		switch p.Name {
		case "function":
			st, err = m.SetFunction(p.Value)
		case "voltage":
			st, err = m.applyNumber(m.SetVoltage, p)
		case "current":
			st, err = m.applyNumber(m.SetCurrent, p)
		case "vcompliance":
			st, err = m.applyNumber(m.SetVoltageCompliance, p)
		case "icompliance":
			st, err = m.applyNumber(m.SetCurrentCompliance, p)
		case "nplc":
			st, err = m.applyNumber(m.SetNPLC, p)
		case "terminals":
			st, err = m.SetTerminals(p.Value)
		case "output":
			st, err = m.SetOutput(p.Value == "1" || p.Value == "ON")
		}
		results = append(results, ApplyResult{Param: p.Name, Status: st, Err: err})
	}
	return results, rejections
}

func (m *MockSM2400) applyNumber(set func(float64) (scpi.SetStatus, error), p scpi.Param) (scpi.SetStatus, error) {
	f, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return scpi.SetNotSent, fmt.Errorf("sourcemeter: %s value %q is not numeric", p.Name, p.Value)
	}
	return set(f)
}

// Raw answers *IDN? and swallows everything else.
func (m *MockSM2400) Raw(cmd string) (string, error) {
	if strings.Contains(cmd, "?") {
		return m.ID()
	}
	return "", nil
}
