// Package motion exposes control of motion platforms over HTTP
package motion

import (
	"encoding/json"
	"net/http"

	"github.com/opticslab/scpikit/generichttp"
	"github.com/opticslab/scpikit/scpi"
)

// Mover is the minimum interface of a motion platform
type Mover interface {
	// MoveAbs commands a move to an absolute position in degrees
	MoveAbs(float64) error

	// MoveRel commands a move by a relative offset in degrees
	MoveRel(float64) error

	// Home homes the platform
	Home() error

	// GetPos reads the current position in degrees
	GetPos() (float64, error)
}

// Speeder is a motion platform with a programmable velocity
type Speeder interface {
	// SetVelocity sets the traversal velocity in degrees per second
	SetVelocity(float64) (scpi.SetStatus, error)

	// GetVelocity gets the traversal velocity in degrees per second
	GetVelocity() (float64, error)
}

// Stopper is a motion platform whose motion can be aborted
type Stopper interface {
	// Stop aborts any in-progress motion
	Stop() error
}

// InPositionQueryer is a motion platform that reports motion completion
type InPositionQueryer interface {
	// InPosition queries if the platform has settled at its target
	InPosition() (bool, error)
}

// Enabler is a motion platform whose motor drive can be switched
type Enabler interface {
	// SetEnabled energizes or de-energizes the motor
	SetEnabled(bool) (scpi.SetStatus, error)

	// GetEnabled queries if the motor is energized
	GetEnabled() (bool, error)
}

// Move returns an HTTP handler func that commands a move.  The move is
// relative if the request carries ?relative=true, absolute otherwise.
func Move(m Mover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := generichttp.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("relative") == "true" {
			err = m.MoveRel(f.F64)
		} else {
			err = m.MoveAbs(f.F64)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Home returns an HTTP handler func that homes the platform
func Home(m Mover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Home(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Stop returns an HTTP handler func that aborts motion
func Stop(s Stopper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Stop(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HTTPMotionController wraps a motion platform in an HTTP route table
type HTTPMotionController struct {
	// Mover is the underlying motion platform
	Mover

	// RouteTable maps method/path pairs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPMotionController returns a new HTTP wrapper around an existing
// motion platform, probing it for optional capabilities
func NewHTTPMotionController(m Mover) HTTPMotionController {
	h := HTTPMotionController{Mover: m}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/pos"}:   generichttp.GetFloat(m.GetPos),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/pos"}:  Move(m),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/home"}: Home(m),
	}
	if speeder, ok := interface{}(m).(Speeder); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/velocity"}] = generichttp.GetFloat(speeder.GetVelocity)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/velocity"}] = generichttp.SetFloatVerified(speeder.SetVelocity)
	}
	if stopper, ok := interface{}(m).(Stopper); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/stop"}] = Stop(stopper)
	}
	if ipq, ok := interface{}(m).(InPositionQueryer); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/inposition"}] = generichttp.GetBool(ipq.InPosition)
	}
	if enabler, ok := interface{}(m).(Enabler); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/enabled"}] = generichttp.GetBool(enabler.GetEnabled)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/enabled"}] = generichttp.SetBoolVerified(enabler.SetEnabled)
	}
	h.RouteTable = rt
	generichttp.InjectDeviceRoutes(&h, m)
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPMotionController) RT() generichttp.RouteTable {
	return h.RouteTable
}
