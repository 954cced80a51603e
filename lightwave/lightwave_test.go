package lightwave

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/opticslab/scpikit/comm"
	"github.com/opticslab/scpikit/scpi"
)

// emulatedLDC is a line-level LDC500 impostor.  It stores wire-unit values
// keyed by header and answers queries from that store, like the hardware.
type emulatedLDC struct {
	store map[string]string
	out   bytes.Buffer
	fail  bool
	seen  []string
}

func newEmulatedLDC() *emulatedLDC {
	return &emulatedLDC{store: map[string]string{
		"OUTPut":               "0",
		"SOURce:FUNCtion:MODE": "CURR",
		"INTerlock:STATe":      "CLOSED",
	}}
}

func (e *emulatedLDC) Write(p []byte) (int, error) {
	if e.fail {
		return 0, errors.New("emulated transport failure")
	}
	cmd := strings.TrimRight(string(p), "\r\n")
	e.seen = append(e.seen, cmd)
	if strings.HasSuffix(cmd, "?") {
		key := strings.TrimSuffix(cmd, "?")
		val, ok := e.store[key]
		if !ok {
			val = "0.000000"
		}
		e.out.WriteString(val + "\n")
		return len(p), nil
	}
	pieces := strings.SplitN(cmd, " ", 2)
	if len(pieces) == 2 {
		e.store[pieces[0]] = pieces[1]
	}
	return len(p), nil
}

func (e *emulatedLDC) Read(p []byte) (int, error) {
	if e.fail {
		return 0, errors.New("emulated transport failure")
	}
	return e.out.Read(p)
}

func (e *emulatedLDC) Close() error { return nil }

func emulatedLDC500(e *emulatedLDC) *LDC500 {
	pool := comm.NewPool(1, time.Minute, func() (io.ReadWriteCloser, error) {
		return e, nil
	})
	return &LDC500{Client: &scpi.Client{Pool: pool}}
}

func TestSetCurrentRoundTrip(t *testing.T) {
	emu := newEmulatedLDC()
	ldc := emulatedLDC500(emu)
	st, err := ldc.SetCurrent(100)
	if err != nil {
		t.Fatal(err)
	}
	if st != scpi.SetApplied {
		t.Errorf("expected applied, got %v", st)
	}
	if emu.store["SOURce:CURRent"] != "0.100000" {
		t.Errorf("expected amps on the wire, device stored %q", emu.store["SOURce:CURRent"])
	}
	mA, err := ldc.GetCurrent()
	if err != nil {
		t.Fatal(err)
	}
	if mA != 100 {
		t.Errorf("expected 100 mA back, got %g", mA)
	}
}

func TestSetCurrentClipsAndVerifiesAgainstClipped(t *testing.T) {
	emu := newEmulatedLDC()
	ldc := emulatedLDC500(emu)
	// 9 A commanded, 500 mA ceiling: the clipped value is what must verify
	st, err := ldc.SetCurrent(9000)
	if err != nil {
		t.Fatal(err)
	}
	if st != scpi.SetApplied {
		t.Errorf("expected clipped set to verify as applied, got %v", st)
	}
	if emu.store["SOURce:CURRent"] != "0.500000" {
		t.Errorf("expected clipped amps on the wire, got %q", emu.store["SOURce:CURRent"])
	}
}

// stuckLDC accepts sets but its current register never budges
type stuckLDC struct {
	emulatedLDC
}

func (s *stuckLDC) Write(p []byte) (int, error) {
	cmd := strings.TrimRight(string(p), "\r\n")
	if strings.HasPrefix(cmd, "SOURce:CURRent ") {
		s.seen = append(s.seen, cmd)
		return len(p), nil
	}
	return s.emulatedLDC.Write(p)
}

func TestSetCurrentMismatchWhenDeviceDisagrees(t *testing.T) {
	stuck := &stuckLDC{emulatedLDC: *newEmulatedLDC()}
	stuck.store["SOURce:CURRent"] = "0.050000"
	pool := comm.NewPool(1, time.Minute, func() (io.ReadWriteCloser, error) {
		return stuck, nil
	})
	ldc := &LDC500{Client: &scpi.Client{Pool: pool}}
	st, err := ldc.SetCurrent(100)
	if err != nil {
		t.Fatal(err)
	}
	if st != scpi.SetMismatch {
		t.Errorf("expected mismatch when the register does not move, got %v", st)
	}
}

func TestSetModeBogusNeverTransmits(t *testing.T) {
	emu := newEmulatedLDC()
	ldc := emulatedLDC500(emu)
	st, err := ldc.SetMode("bogus")
	if st != scpi.SetNotSent {
		t.Errorf("expected not sent, got %v", st)
	}
	if err == nil {
		t.Error("expected a descriptive error")
	}
	if len(emu.seen) != 0 {
		t.Errorf("expected nothing on the wire, device saw %v", emu.seen)
	}
}

func TestSetModeCanonicalizes(t *testing.T) {
	emu := newEmulatedLDC()
	// the device echoes the short form on readback
	ldc := emulatedLDC500(emu)
	emu.store["SOURce:FUNCtion:MODE"] = "POW"
	st, err := ldc.SetMode("power")
	if err != nil {
		t.Fatal(err)
	}
	// emulator stores the full word, then the driver reads it back
	if st != scpi.SetApplied {
		t.Errorf("expected applied, got %v", st)
	}
	if ldc.Status().Mode != ModePower {
		t.Errorf("expected status cache to track mode, got %q", ldc.Status().Mode)
	}
}

func TestInterlockFailSafe(t *testing.T) {
	emu := newEmulatedLDC()
	ldc := emulatedLDC500(emu)
	closed, err := ldc.GetInterlock()
	if err != nil {
		t.Fatal(err)
	}
	if !closed {
		t.Error("expected CLOSED to read true")
	}
	emu.fail = true
	closed, err = ldc.GetInterlock()
	if err == nil {
		t.Error("expected transport error to surface")
	}
	if closed {
		t.Error("interlock must read open when the device cannot be heard")
	}
}

func TestEmissionTracksStatusCache(t *testing.T) {
	emu := newEmulatedLDC()
	ldc := emulatedLDC500(emu)
	st, err := ldc.SetEmission(true)
	if err != nil {
		t.Fatal(err)
	}
	if st != scpi.SetApplied {
		t.Errorf("expected applied, got %v", st)
	}
	if !ldc.Status().OutputEnabled {
		t.Error("expected status cache to show output enabled")
	}
}

func TestConfigureAppliesKnownSkipsUnknown(t *testing.T) {
	emu := newEmulatedLDC()
	ldc := emulatedLDC500(emu)
	results, rejections := ldc.Configure("i", 50, "wavelength", 1550, "t", 20)
	if len(rejections) != 1 || rejections[0].Name != "wavelength" {
		t.Fatalf("expected wavelength rejected, got %v", rejections)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 applied params, got %v", results)
	}
	for _, res := range results {
		if res.Status != scpi.SetApplied {
			t.Errorf("%s: expected applied, got %v (%v)", res.Param, res.Status, res.Err)
		}
	}
	if emu.store["TEC:TEMPerature"] != "20.00" {
		t.Errorf("expected temperature with 2 decimals, got %q", emu.store["TEC:TEMPerature"])
	}
}

func TestMockHonorsInterlock(t *testing.T) {
	m := NewMockLDC500("", false)
	m.interlock = false
	st, err := m.SetEmission(true)
	if err != nil {
		t.Fatal(err)
	}
	if st != scpi.SetMismatch {
		t.Errorf("expected emission refused with open interlock, got %v", st)
	}
	if on, _ := m.GetEmission(); on {
		t.Error("expected emission off")
	}
}

func TestMockConfigure(t *testing.T) {
	m := NewMockLDC500("", false)
	results, rej := m.Configure("curr", 10.5, "m", "power", "out", true)
	if len(rej) != 0 {
		t.Fatalf("expected no rejections, got %v", rej)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if f, _ := m.GetCurrent(); f != 10.5 {
		t.Errorf("expected 10.5 mA, got %g", f)
	}
	if mode, _ := m.GetMode(); mode != ModePower {
		t.Errorf("expected POWER, got %q", mode)
	}
	if on, _ := m.GetEmission(); !on {
		t.Error("expected emission on")
	}
}

func ExampleMockLDC500_Configure() {
	m := NewMockLDC500("", false)
	results, _ := m.Configure("i", 100, "mode", "current")
	for _, r := range results {
		fmt.Println(r.Param, r.Status)
	}
	// Output:
	// current applied
	// mode applied
}
