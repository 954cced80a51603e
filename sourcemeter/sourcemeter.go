// Package sourcemeter contains code for operating SM2400 class
// source-measure units.  Source levels and compliance are in volts and
// amps on both sides of the API; the unit quirks live in the command
// table (range snapping, NPLC bounds, enum readback abbreviations).
package sourcemeter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/opticslab/scpikit/comm"
	"github.com/opticslab/scpikit/scpi"
)

const (
	// rstSettle is the pause after *RST before the firmware answers again
	rstSettle = 500 * time.Millisecond

	serialBaud = 115200
)

// Source functions.
const (
	FunctionVoltage = "VOLTAGE"
	FunctionCurrent = "CURRENT"
)

// Terminal selections.
const (
	TerminalsFront = "FRONT"
	TerminalsRear  = "REAR"
)

var functionCanon = map[string]string{
	"VOLT":    FunctionVoltage,
	"VOLTAGE": FunctionVoltage,
	"CURR":    FunctionCurrent,
	"CURRENT": FunctionCurrent,
}

var terminalsCanon = map[string]string{
	"FRON":  TerminalsFront,
	"FRONT": TerminalsFront,
	"REAR":  TerminalsRear,
}

var commands = scpi.NewTable(
	scpi.Spec{Name: "function", Header: "SOURce:FUNCtion"},
	scpi.Spec{Name: "voltage", Header: "SOURce:VOLTage", Min: -210, Max: 210},
	scpi.Spec{Name: "current", Header: "SOURce:CURRent", Min: -1.05, Max: 1.05},
	scpi.Spec{Name: "vcompliance", Header: "SENSe:VOLTage:PROTection", Min: 0, Max: 210},
	scpi.Spec{Name: "icompliance", Header: "SENSe:CURRent:PROTection", Min: 0, Max: 1.05},
	scpi.Spec{Name: "vrange", Header: "SENSe:VOLTage:RANGe", RangeStep: true},
	scpi.Spec{Name: "irange", Header: "SENSe:CURRent:RANGe", RangeStep: true},
	scpi.Spec{Name: "vautorange", Header: "SENSe:VOLTage:RANGe:AUTO"},
	scpi.Spec{Name: "iautorange", Header: "SENSe:CURRent:RANGe:AUTO"},
	scpi.Spec{Name: "nplc", Header: "SENSe:CURRent:NPLCycles", Min: 0.01, Max: 10, Precision: 3},
	scpi.Spec{Name: "terminals", Header: "ROUTe:TERMinals"},
	scpi.Spec{Name: "output", Header: "OUTPut"},
)

var params = scpi.NewValidator(
	scpi.Field{Name: "function", Aliases: []string{"f", "func"}, Kind: scpi.FieldToken},
	scpi.Field{Name: "voltage", Aliases: []string{"v", "volt"}, Kind: scpi.FieldNumeric},
	scpi.Field{Name: "current", Aliases: []string{"i", "curr"}, Kind: scpi.FieldNumeric},
	scpi.Field{Name: "vcompliance", Aliases: []string{"vlim", "ovp"}, Kind: scpi.FieldNumeric},
	scpi.Field{Name: "icompliance", Aliases: []string{"ilim", "ocp"}, Kind: scpi.FieldNumeric},
	scpi.Field{Name: "nplc", Kind: scpi.FieldNumeric},
	scpi.Field{Name: "terminals", Aliases: []string{"term"}, Kind: scpi.FieldToken},
	scpi.Field{Name: "output", Aliases: []string{"out", "enable"}, Kind: scpi.FieldToken},
)

// overflowReading is the sentinel the hardware substitutes for a reading
// it could not take, e.g. resistance into an open circuit.
const overflowReading = 9.91e37

// Measurement is one READ? triple.
type Measurement struct {
	// V is the measured voltage in volts
	V float64 `json:"V"`

	// I is the measured current in amps
	I float64 `json:"I"`

	// R is the measured resistance in ohms
	R float64 `json:"R"`
}

// SM2400 represents an SM2400 source-measure unit.
type SM2400 struct {
	*scpi.Client

	verifier scpi.Verifier

	// ELog accumulates drained error queue entries for this session.
	ELog scpi.ErrorLog
}

// NewSM2400 creates a new SM2400 on TCP (serial == false) or RS-232.
func NewSM2400(addr string, useSerial bool) *SM2400 {
	var maker comm.CreationFunc
	if useSerial {
		maker = comm.SerialConnMaker(&serial.Config{
			Name:        addr,
			Baud:        serialBaud,
			ReadTimeout: 5 * time.Second,
		})
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, time.Second)
	}
	pool := comm.NewPool(1, time.Hour, maker)
	return &SM2400{Client: &scpi.Client{Pool: pool, Handshaking: true}}
}

// ID returns the identity string of the unit.
func (sm *SM2400) ID() (string, error) {
	return sm.ReadString("*IDN?")
}

// Reset issues *RST and waits out the firmware settle time.
func (sm *SM2400) Reset() error {
	err := sm.Write("*RST")
	if err != nil {
		return err
	}
	time.Sleep(rstSettle)
	return nil
}

func (sm *SM2400) setNumber(spec scpi.Spec, v float64) (scpi.SetStatus, error) {
	clipped := spec.Clip(v)
	if err := sm.Write(spec.BuildSet(v)); err != nil {
		return scpi.SetNotSent, err
	}
	actual, err := sm.ReadFloat(spec.BuildQuery())
	return sm.verifier.Number(spec, clipped, actual), err
}

func (sm *SM2400) setToken(spec scpi.Spec, tok string, canon map[string]string) (scpi.SetStatus, error) {
	want, ok := canon[strings.ToUpper(strings.TrimSpace(tok))]
	if !ok {
		return scpi.SetNotSent, fmt.Errorf("sourcemeter: %q is not a valid %s", tok, spec.Name)
	}
	if err := sm.Write(spec.BuildSetToken(want)); err != nil {
		return scpi.SetNotSent, err
	}
	resp, err := sm.ReadString(spec.BuildQuery())
	actual := scpi.ParseEnum(resp, err, canon)
	return sm.verifier.Token(spec, want, actual), err
}

// SetFunction selects the source function, VOLTAGE or CURRENT.
func (sm *SM2400) SetFunction(f string) (scpi.SetStatus, error) {
	return sm.setToken(commands.MustGet("function"), f, functionCanon)
}

// GetFunction returns the canonical source function.
func (sm *SM2400) GetFunction() (string, error) {
	resp, err := sm.ReadString(commands.MustGet("function").BuildQuery())
	return scpi.ParseEnum(resp, err, functionCanon), err
}

// SetVoltage sets the source voltage level in volts.
func (sm *SM2400) SetVoltage(volts float64) (scpi.SetStatus, error) {
	return sm.setNumber(commands.MustGet("voltage"), volts)
}

// GetVoltage gets the source voltage level in volts.
func (sm *SM2400) GetVoltage() (float64, error) {
	return sm.ReadFloat(commands.MustGet("voltage").BuildQuery())
}

// SetCurrent sets the source current level in amps.
func (sm *SM2400) SetCurrent(amps float64) (scpi.SetStatus, error) {
	return sm.setNumber(commands.MustGet("current"), amps)
}

// GetCurrent gets the source current level in amps.
func (sm *SM2400) GetCurrent() (float64, error) {
	return sm.ReadFloat(commands.MustGet("current").BuildQuery())
}

// SetVoltageCompliance sets the voltage compliance limit in volts.
func (sm *SM2400) SetVoltageCompliance(volts float64) (scpi.SetStatus, error) {
	return sm.setNumber(commands.MustGet("vcompliance"), volts)
}

// GetVoltageCompliance gets the voltage compliance limit in volts.
func (sm *SM2400) GetVoltageCompliance() (float64, error) {
	return sm.ReadFloat(commands.MustGet("vcompliance").BuildQuery())
}

// SetCurrentCompliance sets the current compliance limit in amps.
func (sm *SM2400) SetCurrentCompliance(amps float64) (scpi.SetStatus, error) {
	return sm.setNumber(commands.MustGet("icompliance"), amps)
}

// GetCurrentCompliance gets the current compliance limit in amps.
func (sm *SM2400) GetCurrentCompliance() (float64, error) {
	return sm.ReadFloat(commands.MustGet("icompliance").BuildQuery())
}

// SetCurrentRange sets the current measurement range in amps.  The hardware
// snaps to discrete range steps; the readback is accepted within the
// asymmetric band rather than the usual tolerance.
func (sm *SM2400) SetCurrentRange(amps float64) (scpi.SetStatus, error) {
	return sm.setNumber(commands.MustGet("irange"), amps)
}

// GetCurrentRange gets the current measurement range in amps.
func (sm *SM2400) GetCurrentRange() (float64, error) {
	return sm.ReadFloat(commands.MustGet("irange").BuildQuery())
}

// SetVoltageRange sets the voltage measurement range in volts.
func (sm *SM2400) SetVoltageRange(volts float64) (scpi.SetStatus, error) {
	return sm.setNumber(commands.MustGet("vrange"), volts)
}

// GetVoltageRange gets the voltage measurement range in volts.
func (sm *SM2400) GetVoltageRange() (float64, error) {
	return sm.ReadFloat(commands.MustGet("vrange").BuildQuery())
}

func (sm *SM2400) setBool(spec scpi.Spec, b bool) (scpi.SetStatus, error) {
	if err := sm.Write(spec.BuildSetBool(b)); err != nil {
		return scpi.SetNotSent, err
	}
	actual, err := sm.ReadBool(spec.BuildQuery())
	return sm.verifier.Bool(spec, b, actual), err
}

// SetCurrentAutoRange enables or disables current measurement auto-ranging.
func (sm *SM2400) SetCurrentAutoRange(on bool) (scpi.SetStatus, error) {
	return sm.setBool(commands.MustGet("iautorange"), on)
}

// GetCurrentAutoRange returns true if current auto-ranging is on.
func (sm *SM2400) GetCurrentAutoRange() (bool, error) {
	return sm.ReadBool(commands.MustGet("iautorange").BuildQuery())
}

// SetVoltageAutoRange enables or disables voltage measurement auto-ranging.
func (sm *SM2400) SetVoltageAutoRange(on bool) (scpi.SetStatus, error) {
	return sm.setBool(commands.MustGet("vautorange"), on)
}

// GetVoltageAutoRange returns true if voltage auto-ranging is on.
func (sm *SM2400) GetVoltageAutoRange() (bool, error) {
	return sm.ReadBool(commands.MustGet("vautorange").BuildQuery())
}

// SetNPLC sets the integration time in power line cycles, 0.01 to 10.
func (sm *SM2400) SetNPLC(cycles float64) (scpi.SetStatus, error) {
	return sm.setNumber(commands.MustGet("nplc"), cycles)
}

// GetNPLC gets the integration time in power line cycles.
func (sm *SM2400) GetNPLC() (float64, error) {
	return sm.ReadFloat(commands.MustGet("nplc").BuildQuery())
}

// SetTerminals selects the FRONT or REAR terminals.
func (sm *SM2400) SetTerminals(t string) (scpi.SetStatus, error) {
	return sm.setToken(commands.MustGet("terminals"), t, terminalsCanon)
}

// GetTerminals returns the canonical terminal selection.
func (sm *SM2400) GetTerminals() (string, error) {
	resp, err := sm.ReadString(commands.MustGet("terminals").BuildQuery())
	return scpi.ParseEnum(resp, err, terminalsCanon), err
}

// SetOutput turns the source output on or off.
func (sm *SM2400) SetOutput(on bool) (scpi.SetStatus, error) {
	return sm.setBool(commands.MustGet("output"), on)
}

// GetOutput returns true if the source output is on.  A communication
// failure reads as off.
func (sm *SM2400) GetOutput() (bool, error) {
	return sm.ReadBool(commands.MustGet("output").BuildQuery())
}

// Measure triggers a one-shot measurement and returns the
// voltage/current/resistance triple.
func (sm *SM2400) Measure() (Measurement, error) {
	var out Measurement
	resp, err := sm.ReadString("READ?")
	if err != nil {
		return out, err
	}
	pieces := strings.Split(resp, ",")
	if len(pieces) < 3 {
		return out, fmt.Errorf("sourcemeter: READ? returned %d fields, expected at least 3", len(pieces))
	}
	fields := []*float64{&out.V, &out.I, &out.R}
	for i, dst := range fields {
		*dst = scpi.ParseFloat(pieces[i], nil)
	}
	return out, nil
}

// Beep sounds the beeper; fire and forget, no readback.
func (sm *SM2400) Beep(freqHz float64, duration time.Duration) error {
	return sm.Write(fmt.Sprintf("SYSTem:BEEPer %.0f,%.2f", freqHz, duration.Seconds()))
}

// ApplyResult is the outcome of one parameter of a Configure call.
type ApplyResult struct {
	Param  string         `json:"param"`
	Status scpi.SetStatus `json:"status"`
	Err    error          `json:"-"`
}

// Configure applies several settings in one call from loosely typed
// name/value pairs.  Unknown or malformed parameters are reported in the
// rejection list and do not stop the remaining ones from applying.
func (sm *SM2400) Configure(pairs ...interface{}) ([]ApplyResult, []scpi.Rejection) {
	normalized, rejections := params.Normalize(pairs...)
	var results []ApplyResult
	for _, p := range normalized {
		var (
			st  scpi.SetStatus
			err error
		)
		switch p.Name {
		case "function":
			st, err = sm.SetFunction(p.Value)
		case "voltage":
			st, err = sm.applyNumber(sm.SetVoltage, p)
		case "current":
			st, err = sm.applyNumber(sm.SetCurrent, p)
		case "vcompliance":
			st, err = sm.applyNumber(sm.SetVoltageCompliance, p)
		case "icompliance":
			st, err = sm.applyNumber(sm.SetCurrentCompliance, p)
		case "nplc":
			st, err = sm.applyNumber(sm.SetNPLC, p)
		case "terminals":
			st, err = sm.SetTerminals(p.Value)
		case "output":
			st, err = sm.SetOutput(p.Value == "1" || p.Value == "ON")
		}
		results = append(results, ApplyResult{Param: p.Name, Status: st, Err: err})
	}
	return results, rejections
}

func (sm *SM2400) applyNumber(set func(float64) (scpi.SetStatus, error), p scpi.Param) (scpi.SetStatus, error) {
	f, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return scpi.SetNotSent, fmt.Errorf("sourcemeter: %s value %q is not numeric", p.Name, p.Value)
	}
	return set(f)
}

// DrainErrors empties the device error queue into the session log and
// returns the newly drained entries.
func (sm *SM2400) DrainErrors() ([]scpi.ErrorLogEntry, error) {
	return sm.Client.DrainErrors(&sm.ELog)
}

// ClearErrors clears the device error queue and, if that succeeds, the
// session log.
func (sm *SM2400) ClearErrors() error {
	return sm.Client.ClearErrors(&sm.ELog)
}
