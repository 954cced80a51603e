package locker_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/opticslab/scpikit/generichttp"
	"github.com/opticslab/scpikit/server/middleware/locker"
)

type stub struct{ rt generichttp.RouteTable }

func (s stub) RT() generichttp.RouteTable { return s.rt }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := stub{rt: generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/thing"}: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}}
	lock := locker.New()
	locker.Inject(h, lock)
	r := chi.NewRouter()
	r.Use(lock.Check)
	h.RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func setLock(t *testing.T, url string, locked bool) {
	t.Helper()
	body, _ := json.Marshal(generichttp.BoolT{Bool: locked})
	resp, err := http.Post(url+"/lock", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("setting the lock returned %d", resp.StatusCode)
	}
}

func TestLockBouncesProtectedRoutes(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/thing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 before locking, got %d", resp.StatusCode)
	}

	setLock(t, srv.URL, true)
	resp, err = http.Get(srv.URL + "/thing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("expected 423 while locked, got %d", resp.StatusCode)
	}

	setLock(t, srv.URL, false)
	resp, err = http.Get(srv.URL + "/thing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after unlocking, got %d", resp.StatusCode)
	}
}

func TestLockRouteIsNeverProtected(t *testing.T) {
	srv := newServer(t)
	setLock(t, srv.URL, true)

	resp, err := http.Get(srv.URL + "/lock")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected the lock route to stay reachable, got %d", resp.StatusCode)
	}
	b := generichttp.BoolT{}
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	if !b.Bool {
		t.Error("expected the lock to read locked")
	}
}
