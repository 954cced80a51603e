package motion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/opticslab/scpikit/generichttp"
	"github.com/opticslab/scpikit/util"
)

var errLimited = errors.New("requested position violates software limits, aborted")

// LimitMiddleware imposes a software position limit on a motion platform.
// It inspects POST /pos requests and rejects moves that would land outside
// the limit before they reach the device.
type LimitMiddleware struct {
	// Limit holds the server imposed position bounds
	Limit util.Limiter

	// Mov is a reference to the mover, used to resolve relative moves
	Mov Mover
}

// Check verifies if a motion would violate the limit, and if it does,
// responds with StatusBadRequest.  Otherwise it flows control to the next
// handler.
func (l *LimitMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "pos") {
			next.ServeHTTP(w, r)
			return
		}
		// downstream handlers want the body too, so read it all here and
		// paste it back after decoding
		bodyContent, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyContent))
		f := generichttp.FloatT{}
		if err := json.NewDecoder(bytes.NewReader(bodyContent)).Decode(&f); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd := f.F64
		if r.URL.Query().Get("relative") == "true" {
			// shift the command by the current position
			currPos, err := l.Mov.GetPos()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			cmd += currPos
		}
		if !l.Limit.Check(cmd) {
			http.Error(w, errLimited.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Inject places a /limits route on the table of the HTTPer
func (l LimitMiddleware) Inject(h generichttp.HTTPer) {
	h.RT()[generichttp.MethodPath{Method: http.MethodGet, Path: "/limits"}] = Limits(l)
}

// Limits returns an HTTP handler func that returns the position limits
func Limits(l LimitMiddleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(l.Limit); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
