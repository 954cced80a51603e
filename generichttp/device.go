package generichttp

import (
	"encoding/json"
	"net/http"

	"github.com/opticslab/scpikit/scpi"
)

// Identifier is a device that reports its identity string
type Identifier interface {
	// ID returns the identity of the device
	ID() (string, error)
}

// ErrorDrainer is a device with a drainable error queue
type ErrorDrainer interface {
	// DrainErrors empties the device error queue into the session log
	DrainErrors() ([]scpi.ErrorLogEntry, error)

	// ClearErrors clears the device and session error logs
	ClearErrors() error
}

// DrainErrors returns an HTTP handler func that drains the device error
// queue and returns the new entries as a json list
func DrainErrors(d ErrorDrainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := d.DrainErrors()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []scpi.ErrorLogEntry{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// ClearErrors returns an HTTP handler func that clears the device error
// queue and the session log
func ClearErrors(d ErrorDrainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.ClearErrors(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// InjectDeviceRoutes adds identity and error queue routes to an HTTPer for
// whichever of the capabilities the device supports.
func InjectDeviceRoutes(other HTTPer, dev interface{}) {
	rt := other.RT()
	if id, ok := dev.(Identifier); ok {
		rt[MethodPath{Method: http.MethodGet, Path: "/idn"}] = GetString(id.ID)
	}
	if drainer, ok := dev.(ErrorDrainer); ok {
		rt[MethodPath{Method: http.MethodGet, Path: "/errors"}] = DrainErrors(drainer)
		rt[MethodPath{Method: http.MethodDelete, Path: "/errors"}] = ClearErrors(drainer)
	}
}
