package rotary

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/opticslab/scpikit/scpi"
	"github.com/opticslab/scpikit/util"
)

// MockRP100 is an in-memory RP100 for development without hardware.  Moves
// progress in simulated time at the commanded velocity, so InPosition
// polling loops behave as they would against the real platform.
type MockRP100 struct {
	sync.Mutex
	origin   float64
	target   float64
	started  time.Time
	velocity float64
	enabled  bool
	homed    bool
}

// NewMockRP100 returns a mock with the motor enabled, the same signature
// as NewRP100.
func NewMockRP100(addr string) *MockRP100 {
	return &MockRP100{velocity: 10, enabled: true}
}

func (m *MockRP100) ID() (string, error) {
	return "OPTICSLAB,RP100-MOCK,0,0.0", nil
}

// pos is the position at time t; callers hold the lock.
func (m *MockRP100) pos(t time.Time) float64 {
	travel := math.Abs(m.target - m.origin)
	if travel == 0 || m.velocity == 0 {
		return m.target
	}
	elapsed := t.Sub(m.started).Seconds()
	if done := elapsed * m.velocity; done < travel {
		dir := 1.0
		if m.target < m.origin {
			dir = -1
		}
		return m.origin + dir*done
	}
	return m.target
}

func (m *MockRP100) startMove(target float64) error {
	if !m.enabled {
		return PlatformError{code: 5}
	}
	now := time.Now()
	m.origin = m.pos(now)
	m.target = target
	m.started = now
	return nil
}

func (m *MockRP100) Home() error {
	m.Lock()
	defer m.Unlock()
	err := m.startMove(0)
	if err == nil {
		m.homed = true
	}
	return err
}

func (m *MockRP100) MoveAbs(degrees float64) error {
	m.Lock()
	defer m.Unlock()
	return m.startMove(util.Clamp(degrees, -360, 360))
}

func (m *MockRP100) MoveRel(degrees float64) error {
	m.Lock()
	defer m.Unlock()
	return m.startMove(util.Clamp(m.pos(time.Now())+degrees, -360, 360))
}

func (m *MockRP100) GetPos() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.pos(time.Now()), nil
}

func (m *MockRP100) SetVelocity(degPerSec float64) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.velocity = util.Clamp(degPerSec, 0, 30)
	return scpi.SetApplied, nil
}

func (m *MockRP100) GetVelocity() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.velocity, nil
}

func (m *MockRP100) Stop() error {
	m.Lock()
	defer m.Unlock()
	now := time.Now()
	m.origin = m.pos(now)
	m.target = m.origin
	m.started = now
	return nil
}

func (m *MockRP100) InPosition() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.pos(time.Now()) == m.target, nil
}

func (m *MockRP100) SetEnabled(on bool) (scpi.SetStatus, error) {
	m.Lock()
	defer m.Unlock()
	m.enabled = on
	return scpi.SetApplied, nil
}

func (m *MockRP100) GetEnabled() (bool, error) {
	m.Lock()
	defer m.Unlock()
	return m.enabled, nil
}

func (m *MockRP100) ReadError() error {
	return nil
}

// Raw answers *IDN? and swallows everything else.
func (m *MockRP100) Raw(cmd string) (string, error) {
	if cmd == "*IDN?" {
		return m.ID()
	}
	return "", errors.New("rotary: mock only answers *IDN?")
}
