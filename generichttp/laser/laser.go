// Package laser exposes control of laser diode controllers over HTTP
package laser

import (
	"net/http"

	"github.com/opticslab/scpikit/generichttp"
	"github.com/opticslab/scpikit/scpi"
)

// Controller is the minimum interface of a laser controller
type Controller interface {
	// SetEmission turns the beam on or off
	SetEmission(bool) (scpi.SetStatus, error)

	// GetEmission queries if the beam is on
	GetEmission() (bool, error)
}

// CurrentController is a laser controller with a drive current setpoint
type CurrentController interface {
	// SetCurrent sets the drive current setpoint in mA
	SetCurrent(float64) (scpi.SetStatus, error)

	// GetCurrent gets the drive current setpoint in mA
	GetCurrent() (float64, error)

	// SetCurrentLimit sets the drive current limit in mA
	SetCurrentLimit(float64) (scpi.SetStatus, error)

	// GetCurrentLimit gets the drive current limit in mA
	GetCurrentLimit() (float64, error)
}

// PowerController is a laser controller with an optical power setpoint
type PowerController interface {
	// SetPower sets the optical power setpoint in mW
	SetPower(float64) (scpi.SetStatus, error)

	// GetPower gets the optical power setpoint in mW
	GetPower() (float64, error)

	// SetPowerLimit sets the optical power limit in mW
	SetPowerLimit(float64) (scpi.SetStatus, error)

	// GetPowerLimit gets the optical power limit in mW
	GetPowerLimit() (float64, error)
}

// ModeController is a laser controller that switches between constant
// current and constant power operation
type ModeController interface {
	// SetMode selects the operating mode
	SetMode(string) (scpi.SetStatus, error)

	// GetMode queries the operating mode
	GetMode() (string, error)
}

// TECController is a laser controller with a thermoelectric cooler
type TECController interface {
	// SetTemperature sets the TEC setpoint in Celsius
	SetTemperature(float64) (scpi.SetStatus, error)

	// GetTemperature gets the TEC setpoint in Celsius
	GetTemperature() (float64, error)
}

// InterlockQuerier is a laser controller with a safety interlock
type InterlockQuerier interface {
	// GetInterlock queries if the interlock circuit is closed
	GetInterlock() (bool, error)
}

// Measurer is a laser controller that reads back live values
type Measurer interface {
	// MeasureCurrent reads the live drive current in mA
	MeasureCurrent() (float64, error)

	// MeasurePower reads the live optical power in mW
	MeasurePower() (float64, error)

	// MeasureTemperature reads the live TEC temperature in Celsius
	MeasureTemperature() (float64, error)
}

// SetEmission returns an HTTP handler func that turns the beam on or off
func SetEmission(c Controller) http.HandlerFunc {
	return generichttp.SetBoolVerified(c.SetEmission)
}

// GetEmission returns an HTTP handler func that queries if the beam is on
func GetEmission(c Controller) http.HandlerFunc {
	return generichttp.GetBool(c.GetEmission)
}

// HTTPLaserController wraps a laser controller in an HTTP route table
type HTTPLaserController struct {
	// Ctl is the underlying laser controller
	Ctl Controller

	// RouteTable maps method/path pairs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPLaserController returns a new HTTP wrapper around an existing
// laser controller, probing it for optional capabilities
func NewHTTPLaserController(ctl Controller) HTTPLaserController {
	h := HTTPLaserController{Ctl: ctl}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/emission"}:  GetEmission(ctl),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/emission"}: SetEmission(ctl),
	}
	if currentctl, ok := interface{}(ctl).(CurrentController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/current"}] = generichttp.GetFloat(currentctl.GetCurrent)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/current"}] = generichttp.SetFloatVerified(currentctl.SetCurrent)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/current/limit"}] = generichttp.GetFloat(currentctl.GetCurrentLimit)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/current/limit"}] = generichttp.SetFloatVerified(currentctl.SetCurrentLimit)
	}
	if powerctl, ok := interface{}(ctl).(PowerController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power"}] = generichttp.GetFloat(powerctl.GetPower)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/power"}] = generichttp.SetFloatVerified(powerctl.SetPower)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power/limit"}] = generichttp.GetFloat(powerctl.GetPowerLimit)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/power/limit"}] = generichttp.SetFloatVerified(powerctl.SetPowerLimit)
	}
	if modectl, ok := interface{}(ctl).(ModeController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/mode"}] = generichttp.GetString(modectl.GetMode)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/mode"}] = generichttp.SetStringVerified(modectl.SetMode)
	}
	if tecctl, ok := interface{}(ctl).(TECController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature"}] = generichttp.GetFloat(tecctl.GetTemperature)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/temperature"}] = generichttp.SetFloatVerified(tecctl.SetTemperature)
	}
	if ilk, ok := interface{}(ctl).(InterlockQuerier); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/interlock"}] = generichttp.GetBool(ilk.GetInterlock)
	}
	if meas, ok := interface{}(ctl).(Measurer); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/measurement/current"}] = generichttp.GetFloat(meas.MeasureCurrent)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/measurement/power"}] = generichttp.GetFloat(meas.MeasurePower)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/measurement/temperature"}] = generichttp.GetFloat(meas.MeasureTemperature)
	}
	h.RouteTable = rt
	generichttp.InjectDeviceRoutes(&h, ctl)
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPLaserController) RT() generichttp.RouteTable {
	return h.RouteTable
}
