package lightwave

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/opticslab/scpikit/scpi"
	"github.com/opticslab/scpikit/util"
)

// MockLDC500 is an in-memory LDC500 for development without hardware.  It
// honors the same clipping, mode canon, and status semantics as the real
// driver.
type MockLDC500 struct {
	sync.Mutex
	current   float64
	limit     float64
	power     float64
	plimit    float64
	temp      float64
	mode      string
	emission  bool
	interlock bool
}

// NewMockLDC500 returns a mock in constant-current mode with the interlock
// closed, the same signature as NewLDC500.
func NewMockLDC500(addr string, useSerial bool) *MockLDC500 {
	return &MockLDC500{mode: ModeCurrent, interlock: true, limit: 500, plimit: 200, temp: 25}
}

func (m *MockLDC500) ID() (string, error) {
	return "OPTICSLAB,LDC500-MOCK,0,0.0", nil
}

func (m *MockLDC500) SetCurrent(mA float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.current = util.Clamp(mA, 0, 500)
	return scpi.SetApplied, nil
}

func (m *MockLDC500) GetCurrent() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.current, nil
}

func (m *MockLDC500) SetCurrentLimit(mA float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.limit = util.Clamp(mA, 0, 500)
	return scpi.SetApplied, nil
}

func (m *MockLDC500) GetCurrentLimit() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.limit, nil
}

func (m *MockLDC500) SetPower(mW float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.power = util.Clamp(mW, 0, 200)
	return scpi.SetApplied, nil
}

func (m *MockLDC500) GetPower() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.power, nil
}

func (m *MockLDC500) SetPowerLimit(mW float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.plimit = util.Clamp(mW, 0, 200)
	return scpi.SetApplied, nil
}

func (m *MockLDC500) GetPowerLimit() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.plimit, nil
}

func (m *MockLDC500) SetTemperature(celsius float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.temp = util.Clamp(celsius, 10, 40)
	return scpi.SetApplied, nil
}

func (m *MockLDC500) GetTemperature() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.temp, nil
}

func (m *MockLDC500) MeasureCurrent() (float64, error) {
	return m.GetCurrent()
}

func (m *MockLDC500) MeasurePower() (float64, error) {
	return m.GetPower()
}

func (m *MockLDC500) MeasureTemperature() (float64, error) {
	return m.GetTemperature()
}

func (m *MockLDC500) SetEmission(on bool) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	if on && !m.interlock {
		// the hardware refuses emission with the interlock open
		return scpi.SetMismatch, nil
	}
	m.emission = on
	return scpi.SetApplied, nil
}

func (m *MockLDC500) GetEmission() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.emission, nil
}

func (m *MockLDC500) GetInterlock() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.interlock, nil
}

func (m *MockLDC500) SetMode(mode string) (scpi.SetStatus, error) {
	canon, ok := modeCanon[strings.ToUpper(strings.TrimSpace(mode))]
	if !ok {
		return scpi.SetNotSent, fmt.Errorf("lightwave: %q is not a mode, want CURRENT or POWER", mode)
	}
	m.Lock()
	defer m.Unlock()
	m.mode = canon
	return scpi.SetApplied, nil
}

func (m *MockLDC500) GetMode() (string, error) {
	m.Lock()
	defer m.Unlock()
	return m.mode, nil
}

// Configure mirrors the real driver's loose multi-parameter call.
func (m *MockLDC500) Configure(pairs ...interface{}) ([]ApplyResult, []scpi.Rejection) {
	normalized, rejections := params.Normalize(pairs...)
	var results []ApplyResult
	for _, p := range normalized {
		var (
			st  scpi.SetStatus
			err error
		)
		switch p.Name {
		case "current":
			st, err = m.applyNumber(m.SetCurrent, p)
		case "limit":
			st, err = m.applyNumber(m.SetCurrentLimit, p)
		case "power":
			st, err = m.applyNumber(m.SetPower, p)
		case "temperature":
			st, err = m.applyNumber(m.SetTemperature, p)
		case "mode":
			st, err = m.SetMode(p.Value)
		case "output":
			st, err = m.SetEmission(p.Value == "1" || p.Value == "ON")
		}
		results = append(results, ApplyResult{Param: p.Name, Status: st, Err: err})
	}
	return results, rejections
}

func (m *MockLDC500) applyNumber(set func(float64) (scpi.SetStatus, error), p scpi.Param) (scpi.SetStatus, error) {
	f, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return scpi.SetNotSent, fmt.Errorf("lightwave: %s value %q is not numeric", p.Name, p.Value)
	}
	return set(f)
}

// Raw answers *IDN? and swallows everything else.
func (m *MockLDC500) Raw(cmd string) (string, error) {
	if strings.Contains(cmd, "?") {
		return m.ID()
	}
	return "", nil
}
