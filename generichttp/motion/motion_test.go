package motion_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/opticslab/scpikit/generichttp"
	"github.com/opticslab/scpikit/generichttp/motion"
	"github.com/opticslab/scpikit/scpi"
	"github.com/opticslab/scpikit/util"
)

// fakePlatform records commands so tests can assert on routing without a
// time-based simulation.
type fakePlatform struct {
	pos      float64
	velocity float64
	enabled  bool
	homed    bool
	stopped  bool
	absMoves []float64
	relMoves []float64
}

func (f *fakePlatform) MoveAbs(deg float64) error {
	f.absMoves = append(f.absMoves, deg)
	f.pos = deg
	return nil
}

func (f *fakePlatform) MoveRel(deg float64) error {
	f.relMoves = append(f.relMoves, deg)
	f.pos += deg
	return nil
}

func (f *fakePlatform) Home() error {
	f.homed = true
	f.pos = 0
	return nil
}

func (f *fakePlatform) GetPos() (float64, error) {
	return f.pos, nil
}

func (f *fakePlatform) SetVelocity(v float64) (scpi.SetStatus, error) {
	f.velocity = v
	return scpi.SetApplied, nil
}

func (f *fakePlatform) GetVelocity() (float64, error) {
	return f.velocity, nil
}

func (f *fakePlatform) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakePlatform) InPosition() (bool, error) {
	return true, nil
}

func (f *fakePlatform) SetEnabled(on bool) (scpi.SetStatus, error) {
	f.enabled = on
	return scpi.SetApplied, nil
}

func (f *fakePlatform) GetEnabled() (bool, error) {
	return f.enabled, nil
}

func newServer(t *testing.T, limit *motion.LimitMiddleware) (*httptest.Server, *fakePlatform) {
	t.Helper()
	fake := &fakePlatform{}
	h := motion.NewHTTPMotionController(fake)
	r := chi.NewRouter()
	if limit != nil {
		limit.Mov = fake
		limit.Inject(h)
		r.Use(limit.Check)
	}
	h.RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, fake
}

func postPos(t *testing.T, url string, deg float64) *http.Response {
	t.Helper()
	body, _ := json.Marshal(generichttp.FloatT{F64: deg})
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestAbsoluteAndRelativeMoves(t *testing.T) {
	srv, fake := newServer(t, nil)
	resp := postPos(t, srv.URL+"/pos", 90)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("absolute move returned %d", resp.StatusCode)
	}
	resp = postPos(t, srv.URL+"/pos?relative=true", -15)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("relative move returned %d", resp.StatusCode)
	}
	if len(fake.absMoves) != 1 || fake.absMoves[0] != 90 {
		t.Errorf("expected one absolute move of 90, got %v", fake.absMoves)
	}
	if len(fake.relMoves) != 1 || fake.relMoves[0] != -15 {
		t.Errorf("expected one relative move of -15, got %v", fake.relMoves)
	}
	if fake.pos != 75 {
		t.Errorf("expected resting position 75, got %v", fake.pos)
	}
}

func TestVelocityVerifiedOverHTTP(t *testing.T) {
	srv, fake := newServer(t, nil)
	body, _ := json.Marshal(generichttp.FloatT{F64: 10})
	resp, err := http.Post(srv.URL+"/velocity", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	st := generichttp.StatusT{}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Status != int(scpi.SetApplied) {
		t.Fatalf("expected applied, got %+v", st)
	}
	if fake.velocity != 10 {
		t.Errorf("expected velocity 10, got %v", fake.velocity)
	}
}

func TestLimitRejectsOutOfBandMove(t *testing.T) {
	limit := &motion.LimitMiddleware{Limit: util.Limiter{Min: -90, Max: 90}}
	srv, fake := newServer(t, limit)
	resp := postPos(t, srv.URL+"/pos", 120)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an out of band move, got %d", resp.StatusCode)
	}
	if len(fake.absMoves) != 0 {
		t.Errorf("expected move never to reach the platform, got %v", fake.absMoves)
	}
	resp = postPos(t, srv.URL+"/pos", 45)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected in-band move to pass, got %d", resp.StatusCode)
	}
}

func TestLimitResolvesRelativeMoves(t *testing.T) {
	limit := &motion.LimitMiddleware{Limit: util.Limiter{Min: -90, Max: 90}}
	srv, fake := newServer(t, limit)
	resp := postPos(t, srv.URL+"/pos", 80)
	resp.Body.Close()
	// 80 + 20 would land at 100, past the limit
	resp = postPos(t, srv.URL+"/pos?relative=true", 20)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a relative move past the limit, got %d", resp.StatusCode)
	}
	if fake.pos != 80 {
		t.Errorf("expected platform still at 80, got %v", fake.pos)
	}
}

func TestLimitsRoute(t *testing.T) {
	limit := &motion.LimitMiddleware{Limit: util.Limiter{Min: -90, Max: 90}}
	srv, _ := newServer(t, limit)
	resp, err := http.Get(srv.URL + "/limits")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	lim := util.Limiter{}
	if err := json.NewDecoder(resp.Body).Decode(&lim); err != nil {
		t.Fatal(err)
	}
	if lim.Min != -90 || lim.Max != 90 {
		t.Errorf("expected the configured limits back, got %+v", lim)
	}
}

func TestHomeStopAndEnabledRoutes(t *testing.T) {
	srv, fake := newServer(t, nil)
	resp, err := http.Post(srv.URL+"/home", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !fake.homed {
		t.Error("expected POST /home to home the platform")
	}
	resp, err = http.Post(srv.URL+"/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !fake.stopped {
		t.Error("expected POST /stop to stop the platform")
	}
	body, _ := json.Marshal(generichttp.BoolT{Bool: true})
	resp, err = http.Post(srv.URL+"/enabled", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !fake.enabled {
		t.Error("expected POST /enabled to energize the motor")
	}
}
