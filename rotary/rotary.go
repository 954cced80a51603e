// Package rotary contains code for operating RP100 rotary platforms.  The
// platform is RS-232 only at a fixed 115200 8N1, frames with CR/LF, and
// echoes every command line before answering; the transport stack hides the
// echo from the protocol layer.
//
// Moves are fire and forget: MoveAbs and friends return as soon as the
// command is accepted and the caller polls InPosition at whatever cadence
// suits it.  The driver never blocks for motion to complete.
package rotary

import (
	"fmt"
	"time"

	"github.com/tarm/serial"

	"github.com/opticslab/scpikit/comm"
	"github.com/opticslab/scpikit/scpi"
)

const (
	serialBaud = 115200

	// stopSettle is the pause after a stop or clear before the firmware
	// accepts the next command
	stopSettle = 50 * time.Millisecond
)

var (
	// ErrorCodes maps RP100 TE codes to error strings.
	ErrorCodes = map[int]string{
		0:  "NO ERROR DETECTED",
		2:  "COMMAND DOES NOT EXIST",
		3:  "PARAMETER OUT OF RANGE",
		4:  "EMERGENCY STOP ACTIVATED",
		5:  "MOTOR NOT ENABLED",
		6:  "HOME SEQUENCE NOT COMPLETED",
		7:  "MOVE WHILE MOTION IN PROGRESS",
		8:  "LIMIT SWITCH ACTIVATED",
		10: "FOLLOWING ERROR THRESHOLD EXCEEDED",
		11: "MOTOR STALL DETECTED",
		13: "COMMUNICATION BUFFER OVERRUN",
		20: "ENCODER SIGNAL LOST",
		21: "SUPPLY VOLTAGE OUT OF RANGE",
		22: "CONTROLLER OVER TEMPERATURE",
	}

	// hardFaults are the TE codes that halt the platform rather than
	// rejecting a single command.
	hardFaults = map[int]struct{}{
		4:  {},
		8:  {},
		10: {},
		11: {},
		20: {},
		21: {},
		22: {},
	}
)

// PlatformError is a formatible TE error code from the RP100.
type PlatformError struct {
	code int
}

// Error satisfies the stdlib error interface.
func (e PlatformError) Error() string {
	if s, ok := ErrorCodes[e.code]; ok {
		return fmt.Sprintf("%d - %s", e.code, s)
	}
	return fmt.Sprintf("%d - UNKNOWN ERROR CODE", e.code)
}

var commands = scpi.NewTable(
	scpi.Spec{Name: "position", Header: "POSition", Min: -360, Max: 360, Precision: 3},
	scpi.Spec{Name: "relative", Header: "POSition:RELative", Min: -360, Max: 360, Precision: 3},
	scpi.Spec{Name: "velocity", Header: "VELocity", Min: 0, Max: 30, Precision: 3},
	scpi.Spec{Name: "motor", Header: "MOTor"},
	scpi.Spec{Name: "done", Header: "MOTion:DONE", Query: "MOTion:DONE?"},
)

// RP100 represents an RP100 rotary platform.
type RP100 struct {
	*scpi.Client

	verifier scpi.Verifier

	// ELog accumulates drained TE events for this session.
	ELog scpi.ErrorLog
}

// NewRP100 creates a new RP100 on the named serial port.
func NewRP100(addr string) *RP100 {
	maker := comm.SerialConnMaker(&serial.Config{
		Name:        addr,
		Baud:        serialBaud,
		ReadTimeout: 5 * time.Second,
	})
	pool := comm.NewPool(1, time.Hour, maker)
	return &RP100{Client: &scpi.Client{
		Pool:          pool,
		CRLF:          true,
		Echo:          true,
		ErrorQuery:    "TE?",
		DescribeError: describeCode,
		Severity:      classifyCode,
	}}
}

// describeCode maps a bare TE code to its description; TE? lines carry no
// text of their own.
func describeCode(code int) string {
	if s, ok := ErrorCodes[code]; ok {
		return s
	}
	return ""
}

// classifyCode overrides the default severity taxonomy: the RP100 reports
// hard faults as positive codes, which would otherwise log as warnings.
func classifyCode(code int, desc string) scpi.Severity {
	if _, ok := hardFaults[code]; ok {
		return scpi.SeverityError
	}
	return scpi.ClassifySeverity(code, desc)
}

// ID returns the identity string of the platform.
func (rp *RP100) ID() (string, error) {
	return rp.ReadString("*IDN?")
}

// Home begins the homing sequence and returns immediately; poll InPosition
// for completion.
func (rp *RP100) Home() error {
	return rp.Write("HOME")
}

// MoveAbs commands an absolute move in degrees, clipped to one turn either
// way.  It returns as soon as the platform accepts the move.
func (rp *RP100) MoveAbs(degrees float64) error {
	return rp.Write(commands.MustGet("position").BuildSet(degrees))
}

// MoveRel commands a relative move in degrees.  It returns as soon as the
// platform accepts the move.
func (rp *RP100) MoveRel(degrees float64) error {
	return rp.Write(commands.MustGet("relative").BuildSet(degrees))
}

// GetPos returns the current position in degrees.
func (rp *RP100) GetPos() (float64, error) {
	return rp.ReadFloat(commands.MustGet("position").BuildQuery())
}

// SetVelocity sets the angular velocity in degrees per second, with
// readback verification; velocity applies immediately, unlike moves.
func (rp *RP100) SetVelocity(degPerSec float64) (scpi.SetStatus, error) {
	spec := commands.MustGet("velocity")
	clipped := spec.Clip(degPerSec)
	if err := rp.Write(spec.BuildSet(degPerSec)); err != nil {
		return scpi.SetNotSent, err
	}
	actual, err := rp.ReadFloat(spec.BuildQuery())
	return rp.verifier.Number(spec, clipped, actual), err
}

// GetVelocity gets the angular velocity in degrees per second.
func (rp *RP100) GetVelocity() (float64, error) {
	return rp.ReadFloat(commands.MustGet("velocity").BuildQuery())
}

// Stop aborts motion and waits out the short firmware settle time.
func (rp *RP100) Stop() error {
	err := rp.Write("STOP")
	if err != nil {
		return err
	}
	time.Sleep(stopSettle)
	return nil
}

// InPosition returns true when no motion is in progress.  A communication
// failure reads as not in position.
func (rp *RP100) InPosition() (bool, error) {
	return rp.ReadBool(commands.MustGet("done").BuildQuery())
}

// SetEnabled energizes (true) or de-energizes (false) the motor.
func (rp *RP100) SetEnabled(on bool) (scpi.SetStatus, error) {
	spec := commands.MustGet("motor")
	if err := rp.Write(spec.BuildSetBool(on)); err != nil {
		return scpi.SetNotSent, err
	}
	actual, err := rp.GetEnabled()
	return rp.verifier.Bool(spec, on, actual), err
}

// GetEnabled returns true if the motor is energized.
func (rp *RP100) GetEnabled() (bool, error) {
	return rp.ReadBool(commands.MustGet("motor").BuildQuery())
}

// ReadError pops one TE code from the platform, nil if there is none.
func (rp *RP100) ReadError() error {
	code, err := rp.ReadInt("TE?")
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}
	return PlatformError{code: code}
}

// DrainErrors empties the platform's TE queue into the session log and
// returns the newly drained entries.  Bare TE codes pick up descriptions and
// hard fault severities through the client hooks.
func (rp *RP100) DrainErrors() ([]scpi.ErrorLogEntry, error) {
	return rp.Client.DrainErrors(&rp.ELog)
}

// ClearErrors clears the platform's TE queue and, if that succeeds, the
// session log.
func (rp *RP100) ClearErrors() error {
	return rp.Client.ClearErrors(&rp.ELog)
}
