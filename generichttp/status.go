package generichttp

import (
	"encoding/json"
	"net/http"

	"github.com/opticslab/scpikit/scpi"
)

// StatusT is a wrapper around a readback verification status for json
// {'status': 0|1|2, 'text': "applied"}.
type StatusT struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
}

func respondStatus(w http.ResponseWriter, st scpi.SetStatus, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusT{Status: int(st), Text: st.String()})
}

// SetFloatVerified parses {'f64': value}, calls a readback-verifying setter
// and returns the verification status as json.
func SetFloatVerified(fcn func(float64) (scpi.SetStatus, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		st, err := fcn(f.F64)
		respondStatus(w, st, err)
	}
}

// SetBoolVerified parses {'bool': value}, calls a readback-verifying setter
// and returns the verification status as json.
func SetBoolVerified(fcn func(bool) (scpi.SetStatus, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		st, err := fcn(b.Bool)
		respondStatus(w, st, err)
	}
}

// SetStringVerified parses {'str': value}, calls a readback-verifying
// setter and returns the verification status as json.  Setter rejections
// (status not-sent with an error) come back as 400, not 500; the input was
// at fault, not the device.
func SetStringVerified(fcn func(string) (scpi.SetStatus, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		st, err := fcn(s.Str)
		if err != nil && st == scpi.SetNotSent {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondStatus(w, st, err)
	}
}
