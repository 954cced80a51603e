// Package smu exposes control of source measure units over HTTP
package smu

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/opticslab/scpikit/generichttp"
	"github.com/opticslab/scpikit/scpi"
	"github.com/opticslab/scpikit/sourcemeter"
)

// Sourcer is the minimum interface of a source measure unit
type Sourcer interface {
	// SetFunction selects the source function, voltage or current
	SetFunction(string) (scpi.SetStatus, error)

	// GetFunction queries the source function
	GetFunction() (string, error)

	// SetOutput switches the source output on or off
	SetOutput(bool) (scpi.SetStatus, error)

	// GetOutput queries if the source output is on
	GetOutput() (bool, error)
}

// VoltageController is an SMU with a voltage source channel
type VoltageController interface {
	// SetVoltage sets the voltage source level in volts
	SetVoltage(float64) (scpi.SetStatus, error)

	// GetVoltage gets the voltage source level in volts
	GetVoltage() (float64, error)

	// SetVoltageCompliance sets the voltage compliance limit in volts
	SetVoltageCompliance(float64) (scpi.SetStatus, error)

	// GetVoltageCompliance gets the voltage compliance limit in volts
	GetVoltageCompliance() (float64, error)

	// SetVoltageRange sets the voltage measurement range in volts
	SetVoltageRange(float64) (scpi.SetStatus, error)

	// GetVoltageRange gets the voltage measurement range in volts
	GetVoltageRange() (float64, error)

	// SetVoltageAutoRange switches voltage auto ranging on or off
	SetVoltageAutoRange(bool) (scpi.SetStatus, error)

	// GetVoltageAutoRange queries if voltage auto ranging is on
	GetVoltageAutoRange() (bool, error)
}

// CurrentController is an SMU with a current source channel
type CurrentController interface {
	// SetCurrent sets the current source level in amps
	SetCurrent(float64) (scpi.SetStatus, error)

	// GetCurrent gets the current source level in amps
	GetCurrent() (float64, error)

	// SetCurrentCompliance sets the current compliance limit in amps
	SetCurrentCompliance(float64) (scpi.SetStatus, error)

	// GetCurrentCompliance gets the current compliance limit in amps
	GetCurrentCompliance() (float64, error)

	// SetCurrentRange sets the current measurement range in amps
	SetCurrentRange(float64) (scpi.SetStatus, error)

	// GetCurrentRange gets the current measurement range in amps
	GetCurrentRange() (float64, error)

	// SetCurrentAutoRange switches current auto ranging on or off
	SetCurrentAutoRange(bool) (scpi.SetStatus, error)

	// GetCurrentAutoRange queries if current auto ranging is on
	GetCurrentAutoRange() (bool, error)
}

// Integrator is an SMU with a programmable integration time
type Integrator interface {
	// SetNPLC sets the integration time in power line cycles
	SetNPLC(float64) (scpi.SetStatus, error)

	// GetNPLC gets the integration time in power line cycles
	GetNPLC() (float64, error)
}

// TerminalSwitcher is an SMU that routes between terminal banks
type TerminalSwitcher interface {
	// SetTerminals selects the front or rear terminals
	SetTerminals(string) (scpi.SetStatus, error)

	// GetTerminals queries which terminals are active
	GetTerminals() (string, error)
}

// Measurer is an SMU that triggers and reads a measurement
type Measurer interface {
	// Measure triggers a reading and returns volts, amps and ohms
	Measure() (sourcemeter.Measurement, error)
}

// Beeper is an SMU with a panel beeper
type Beeper interface {
	// Beep sounds the beeper at a frequency for a duration
	Beep(float64, time.Duration) error
}

// beepDuration is how long the /beep route sounds the panel beeper
const beepDuration = 300 * time.Millisecond

// Measure returns an HTTP handler func that triggers a reading and
// returns it as json
func Measure(m Measurer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meas, err := m.Measure()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(meas); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Beep returns an HTTP handler func that sounds the panel beeper at the
// frequency in the request body
func Beep(b Beeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := generichttp.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := b.Beep(f.F64, beepDuration); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HTTPSourceMeter wraps a source measure unit in an HTTP route table
type HTTPSourceMeter struct {
	// Src is the underlying source measure unit
	Src Sourcer

	// RouteTable maps method/path pairs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPSourceMeter returns a new HTTP wrapper around an existing source
// measure unit, probing it for optional capabilities
func NewHTTPSourceMeter(src Sourcer) HTTPSourceMeter {
	h := HTTPSourceMeter{Src: src}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/function"}:  generichttp.GetString(src.GetFunction),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/function"}: generichttp.SetStringVerified(src.SetFunction),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/output"}:    generichttp.GetBool(src.GetOutput),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/output"}:   generichttp.SetBoolVerified(src.SetOutput),
	}
	if vctl, ok := interface{}(src).(VoltageController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/voltage"}] = generichttp.GetFloat(vctl.GetVoltage)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/voltage"}] = generichttp.SetFloatVerified(vctl.SetVoltage)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/voltage/compliance"}] = generichttp.GetFloat(vctl.GetVoltageCompliance)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/voltage/compliance"}] = generichttp.SetFloatVerified(vctl.SetVoltageCompliance)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/voltage/range"}] = generichttp.GetFloat(vctl.GetVoltageRange)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/voltage/range"}] = generichttp.SetFloatVerified(vctl.SetVoltageRange)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/voltage/autorange"}] = generichttp.GetBool(vctl.GetVoltageAutoRange)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/voltage/autorange"}] = generichttp.SetBoolVerified(vctl.SetVoltageAutoRange)
	}
	if ictl, ok := interface{}(src).(CurrentController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/current"}] = generichttp.GetFloat(ictl.GetCurrent)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/current"}] = generichttp.SetFloatVerified(ictl.SetCurrent)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/current/compliance"}] = generichttp.GetFloat(ictl.GetCurrentCompliance)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/current/compliance"}] = generichttp.SetFloatVerified(ictl.SetCurrentCompliance)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/current/range"}] = generichttp.GetFloat(ictl.GetCurrentRange)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/current/range"}] = generichttp.SetFloatVerified(ictl.SetCurrentRange)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/current/autorange"}] = generichttp.GetBool(ictl.GetCurrentAutoRange)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/current/autorange"}] = generichttp.SetBoolVerified(ictl.SetCurrentAutoRange)
	}
	if integ, ok := interface{}(src).(Integrator); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/nplc"}] = generichttp.GetFloat(integ.GetNPLC)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/nplc"}] = generichttp.SetFloatVerified(integ.SetNPLC)
	}
	if term, ok := interface{}(src).(TerminalSwitcher); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/terminals"}] = generichttp.GetString(term.GetTerminals)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/terminals"}] = generichttp.SetStringVerified(term.SetTerminals)
	}
	if meas, ok := interface{}(src).(Measurer); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/measurement"}] = Measure(meas)
	}
	if beeper, ok := interface{}(src).(Beeper); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/beep"}] = Beep(beeper)
	}
	h.RouteTable = rt
	generichttp.InjectDeviceRoutes(&h, src)
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPSourceMeter) RT() generichttp.RouteTable {
	return h.RouteTable
}
