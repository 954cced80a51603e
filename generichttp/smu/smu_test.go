package smu_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/opticslab/scpikit/generichttp"
	"github.com/opticslab/scpikit/generichttp/smu"
	"github.com/opticslab/scpikit/scpi"
	"github.com/opticslab/scpikit/sourcemeter"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := smu.NewHTTPSourceMeter(sourcemeter.NewMockSM2400("", false))
	r := chi.NewRouter()
	h.RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, _ := json.Marshal(payload)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestSourceThenMeasureOverHTTP(t *testing.T) {
	srv := newServer(t)
	resp := post(t, srv.URL+"/voltage", generichttp.FloatT{F64: 1})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set voltage returned %d", resp.StatusCode)
	}
	resp = post(t, srv.URL+"/output", generichttp.BoolT{Bool: true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set output returned %d", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/measurement")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	meas := sourcemeter.Measurement{}
	if err := json.NewDecoder(resp.Body).Decode(&meas); err != nil {
		t.Fatal(err)
	}
	if meas.V != 1 || meas.I != 1e-3 {
		t.Errorf("expected 1 V across the mock load, got %+v", meas)
	}
}

func TestBogusFunctionIs400(t *testing.T) {
	srv := newServer(t)
	resp := post(t, srv.URL+"/function", generichttp.StrT{Str: "resistance"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a bogus source function, got %d", resp.StatusCode)
	}
}

func TestTerminalsRoundTripOverHTTP(t *testing.T) {
	srv := newServer(t)
	resp := post(t, srv.URL+"/terminals", generichttp.StrT{Str: "rear"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set terminals returned %d", resp.StatusCode)
	}
	st := generichttp.StatusT{}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if st.Status != int(scpi.SetApplied) {
		t.Fatalf("expected applied, got %+v", st)
	}

	resp, err := http.Get(srv.URL + "/terminals")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	s := generichttp.StrT{}
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Str != sourcemeter.TerminalsRear {
		t.Errorf("expected rear terminals back, got %q", s.Str)
	}
}

func TestRangeSnapStillAppliedOverHTTP(t *testing.T) {
	srv := newServer(t)
	resp := post(t, srv.URL+"/current/range", generichttp.FloatT{F64: 150e-6})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set range returned %d", resp.StatusCode)
	}
	st := generichttp.StatusT{}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if st.Status != int(scpi.SetApplied) {
		t.Fatalf("expected range snap to count as applied, got %+v", st)
	}

	resp, err := http.Get(srv.URL + "/current/range")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	f := generichttp.FloatT{}
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.F64 != 1e-3 {
		t.Errorf("expected snap up to 1 mA, got %v", f.F64)
	}
}
