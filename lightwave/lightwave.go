// Package lightwave contains code for operating LDC500 series laser diode
// and TEC controllers.  Callers work in bench units (mA, mW, Celsius); the
// wire protocol uses SI base units and the conversion happens at the
// command table.  Every setter reads the value back before returning and
// reports a three-way status instead of throwing on disagreement.
package lightwave

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/opticslab/scpikit/comm"
	"github.com/opticslab/scpikit/scpi"
	"github.com/opticslab/scpikit/usbtmc"
)

const (
	// rstSettle is the pause after *RST before the firmware answers again
	rstSettle = 500 * time.Millisecond

	serialBaud = 115200
)

// ModeCurrent and ModePower are the constant-current and constant-power
// operating modes.
const (
	ModeCurrent = "CURRENT"
	ModePower   = "POWER"
)

var modeCanon = map[string]string{
	"CURR":    ModeCurrent,
	"CURRENT": ModeCurrent,
	"POW":     ModePower,
	"POWER":   ModePower,
}

var commands = scpi.NewTable(
	scpi.Spec{Name: "current", Header: "SOURce:CURRent", Scale: 1e-3, Min: 0, Max: 500},
	scpi.Spec{Name: "limit", Header: "SOURce:CURRent:LIMit", Scale: 1e-3, Min: 0, Max: 500},
	scpi.Spec{Name: "power", Header: "SOURce:POWer", Scale: 1e-3, Min: 0, Max: 200},
	scpi.Spec{Name: "plimit", Header: "SOURce:POWer:LIMit", Scale: 1e-3, Min: 0, Max: 200},
	scpi.Spec{Name: "temperature", Header: "TEC:TEMPerature", Min: 10, Max: 40, Precision: 2},
	scpi.Spec{Name: "mode", Header: "SOURce:FUNCtion:MODE"},
	scpi.Spec{Name: "output", Header: "OUTPut"},
	scpi.Spec{Name: "interlock", Header: "INTerlock", Query: "INTerlock:STATe?"},
	scpi.Spec{Name: "meas-current", Header: "MEASure:CURRent", Scale: 1e-3},
	scpi.Spec{Name: "meas-power", Header: "MEASure:POWer", Scale: 1e-3},
	scpi.Spec{Name: "meas-temperature", Header: "MEASure:TEMPerature"},
)

var params = scpi.NewValidator(
	scpi.Field{Name: "current", Aliases: []string{"i", "curr"}, Kind: scpi.FieldNumeric},
	scpi.Field{Name: "limit", Aliases: []string{"lim", "ilim"}, Kind: scpi.FieldNumeric},
	scpi.Field{Name: "power", Aliases: []string{"p", "pow"}, Kind: scpi.FieldNumeric},
	scpi.Field{Name: "temperature", Aliases: []string{"t", "temp"}, Kind: scpi.FieldNumeric},
	scpi.Field{Name: "mode", Aliases: []string{"m"}, Kind: scpi.FieldToken},
	scpi.Field{Name: "output", Aliases: []string{"out", "enable"}, Kind: scpi.FieldToken},
)

// DeviceStatus is a session-local cache of the last known controller state.
// It is advisory; the device is always the source of truth and the cache
// does not survive a reconnect.
type DeviceStatus struct {
	OutputEnabled bool   `json:"outputEnabled"`
	Mode          string `json:"mode"`
	LastError     string `json:"lastError"`
}

// LDC500 represents an LDC500 laser diode controller.
type LDC500 struct {
	*scpi.Client

	verifier scpi.Verifier

	// ELog accumulates drained error queue entries for this session.
	ELog scpi.ErrorLog

	status DeviceStatus
}

// NewLDC500 creates a new LDC500 on TCP (serial == false) or RS-232.
func NewLDC500(addr string, useSerial bool) *LDC500 {
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
	return &LDC500{Client: &scpi.Client{Pool: pool, Handshaking: true}}
}

// NewLDC500USB creates a new LDC500 over USBTMC bulk transfers.
func NewLDC500USB(vid, pid uint16) *LDC500 {
	maker := func() (io.ReadWriteCloser, error) {
		return usbtmc.NewUSBDevice(vid, pid)
	}
	pool := comm.NewPool(1, time.Hour, maker)
	return &LDC500{Client: &scpi.Client{Pool: pool, Handshaking: true}}
}

// ID returns the identity string of the controller.
func (ldc *LDC500) ID() (string, error) {
	return ldc.ReadString("*IDN?")
}

// Reset issues *RST and waits out the firmware settle time.
func (ldc *LDC500) Reset() error {
	err := ldc.Write("*RST")
	if err != nil {
		return err
	}
	time.Sleep(rstSettle)
	ldc.status = DeviceStatus{}
	return nil
}

// setNumber writes a numeric setting and verifies the readback against the
// clipped request; the device can only have been asked for the clipped
// value, so that is what agreement means.
func (ldc *LDC500) setNumber(spec scpi.Spec, v float64) (scpi.SetStatus, error) {
	clipped := spec.Clip(v)
	if err := ldc.Write(spec.BuildSet(v)); err != nil {
		return scpi.SetNotSent, err
	}
	actual, err := ldc.readNumber(spec)
	return ldc.verifier.Number(spec, clipped, actual), err
}

// readNumber queries a numeric setting and converts it back to bench units.
func (ldc *LDC500) readNumber(spec scpi.Spec) (float64, error) {
	f, err := ldc.ReadFloat(spec.BuildQuery())
	if spec.Scale != 0 {
		f = f / spec.Scale
	}
	return f, err
}

// SetCurrent sets the output current setpoint in mA.
func (ldc *LDC500) SetCurrent(mA float64) (scpi.SetStatus, error) {
	return ldc.setNumber(commands.MustGet("current"), mA)
}

// GetCurrent gets the output current setpoint in mA.
func (ldc *LDC500) GetCurrent() (float64, error) {
	return ldc.readNumber(commands.MustGet("current"))
}

// SetCurrentLimit sets the output current limit in mA.
func (ldc *LDC500) SetCurrentLimit(mA float64) (scpi.SetStatus, error) {
	return ldc.setNumber(commands.MustGet("limit"), mA)
}

// GetCurrentLimit gets the output current limit in mA.
func (ldc *LDC500) GetCurrentLimit() (float64, error) {
	return ldc.readNumber(commands.MustGet("limit"))
}

// SetPower sets the output power setpoint in mW.
func (ldc *LDC500) SetPower(mW float64) (scpi.SetStatus, error) {
	return ldc.setNumber(commands.MustGet("power"), mW)
}

// GetPower gets the output power setpoint in mW.
func (ldc *LDC500) GetPower() (float64, error) {
	return ldc.readNumber(commands.MustGet("power"))
}

// SetPowerLimit sets the output power limit in mW.
func (ldc *LDC500) SetPowerLimit(mW float64) (scpi.SetStatus, error) {
	return ldc.setNumber(commands.MustGet("plimit"), mW)
}

// GetPowerLimit gets the output power limit in mW.
func (ldc *LDC500) GetPowerLimit() (float64, error) {
	return ldc.readNumber(commands.MustGet("plimit"))
}

// SetTemperature sets the TEC temperature setpoint in Celsius.
func (ldc *LDC500) SetTemperature(celsius float64) (scpi.SetStatus, error) {
	return ldc.setNumber(commands.MustGet("temperature"), celsius)
}

// GetTemperature gets the TEC temperature setpoint in Celsius.
func (ldc *LDC500) GetTemperature() (float64, error) {
	return ldc.readNumber(commands.MustGet("temperature"))
}

// MeasureCurrent reads the measured (not commanded) diode current in mA.
func (ldc *LDC500) MeasureCurrent() (float64, error) {
	return ldc.readNumber(commands.MustGet("meas-current"))
}

// MeasurePower reads the measured optical power in mW.
func (ldc *LDC500) MeasurePower() (float64, error) {
	return ldc.readNumber(commands.MustGet("meas-power"))
}

// MeasureTemperature reads the measured TEC temperature in Celsius.
func (ldc *LDC500) MeasureTemperature() (float64, error) {
	return ldc.readNumber(commands.MustGet("meas-temperature"))
}

// SetEmission turns the laser output on or off.
func (ldc *LDC500) SetEmission(on bool) (scpi.SetStatus, error) {
	spec := commands.MustGet("output")
	if err := ldc.Write(spec.BuildSetBool(on)); err != nil {
		return scpi.SetNotSent, err
	}
	actual, err := ldc.GetEmission()
	st := ldc.verifier.Bool(spec, on, actual)
	if st == scpi.SetApplied {
		ldc.status.OutputEnabled = on
	}
	return st, err
}

// GetEmission returns true if the laser output is on.  A communication
// failure reads as off.
func (ldc *LDC500) GetEmission() (bool, error) {
	on, err := ldc.ReadBool(commands.MustGet("output").BuildQuery())
	if err == nil {
		ldc.status.OutputEnabled = on
	}
	return on, err
}

// GetInterlock returns true only if the safety interlock is verifiably
// closed; a communication failure reads as open.
func (ldc *LDC500) GetInterlock() (bool, error) {
	return ldc.ReadBool(commands.MustGet("interlock").BuildQuery())
}

// SetMode selects constant-current or constant-power operation.  Inputs
// that do not canonicalize to a known mode are never transmitted.
func (ldc *LDC500) SetMode(mode string) (scpi.SetStatus, error) {
	spec := commands.MustGet("mode")
	canon, ok := modeCanon[strings.ToUpper(strings.TrimSpace(mode))]
	if !ok {
		return scpi.SetNotSent, fmt.Errorf("lightwave: %q is not a mode, want CURRENT or POWER", mode)
	}
	if err := ldc.Write(spec.BuildSetToken(canon)); err != nil {
		return scpi.SetNotSent, err
	}
	actual, err := ldc.GetMode()
	st := ldc.verifier.Token(spec, canon, actual)
	if st == scpi.SetApplied {
		ldc.status.Mode = canon
	}
	return st, err
}

// GetMode returns the canonical operating mode, or the unexpected-response
// marker if the device answers with something unrecognizable.
func (ldc *LDC500) GetMode() (string, error) {
	resp, err := ldc.ReadString(commands.MustGet("mode").BuildQuery())
	mode := scpi.ParseEnum(resp, err, modeCanon)
	if mode != scpi.Unexpected {
		ldc.status.Mode = mode
	}
	return mode, err
}

// Status returns the session-local state cache.
func (ldc *LDC500) Status() DeviceStatus {
	return ldc.status
}

// ApplyResult is the outcome of one parameter of a Configure call.
type ApplyResult struct {
	Param  string         `json:"param"`
	Status scpi.SetStatus `json:"status"`
	Err    error          `json:"-"`
}

// Configure applies several settings in one call from loosely typed
// name/value pairs, e.g. Configure("i", 100, "mode", "current").  Unknown
// or malformed parameters are reported in the rejection list and do not
// stop the remaining ones from applying.
func (ldc *LDC500) Configure(pairs ...interface{}) ([]ApplyResult, []scpi.Rejection) {
	normalized, rejections := params.Normalize(pairs...)
	var results []ApplyResult
	for _, p := range normalized {
		var (
			st  scpi.SetStatus
			err error
		)
		switch p.Name {
		case "current":
			st, err = ldc.applyNumber(ldc.SetCurrent, p)
		case "limit":
			st, err = ldc.applyNumber(ldc.SetCurrentLimit, p)
		case "power":
			st, err = ldc.applyNumber(ldc.SetPower, p)
		case "temperature":
			st, err = ldc.applyNumber(ldc.SetTemperature, p)
		case "mode":
			st, err = ldc.SetMode(p.Value)
		case "output":
			st, err = ldc.SetEmission(p.Value == "1" || p.Value == "ON")
		}
		results = append(results, ApplyResult{Param: p.Name, Status: st, Err: err})
	}
	return results, rejections
}

func (ldc *LDC500) applyNumber(set func(float64) (scpi.SetStatus, error), p scpi.Param) (scpi.SetStatus, error) {
	f, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return scpi.SetNotSent, fmt.Errorf("lightwave: %s value %q is not numeric", p.Name, p.Value)
	}
	return set(f)
}

// DrainErrors empties the device error queue into the session log and
// returns the newly drained entries.
func (ldc *LDC500) DrainErrors() ([]scpi.ErrorLogEntry, error) {
	entries, err := ldc.Client.DrainErrors(&ldc.ELog)
	if len(entries) > 0 {
		ldc.status.LastError = entries[len(entries)-1].Description
	}
	return entries, err
}

// ClearErrors clears the device error queue and, if that succeeds, the
// session log.
func (ldc *LDC500) ClearErrors() error {
	err := ldc.Client.ClearErrors(&ldc.ELog)
	if err == nil {
		ldc.status.LastError = ""
	}
	return err
}
