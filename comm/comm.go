/*Package comm provides connection pooling and io wrappers for communication
with lab hardware.

Most device drivers in this module follow the same pattern:

	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	pool := comm.NewPool(1, time.Minute, maker)
	...
	conn, err := pool.Get()
	if err != nil { ... }
	defer func() { pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTerminator(conn, '\n', '\n')
	io.WriteString(wrap, "MEAS:VOLT?")
	n, err := wrap.Read(buf)

The wrappers compose; devices that echo their input add NewEchoSuppressor
outside the terminator.
*/
package comm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// ErrTerminatorNotFound is generated when the termination byte is not found
// in a response before the buffer fills.
var ErrTerminatorNotFound = errors.New("termination byte not found")

// TCPSetup opens a new TCP connection and sets a timeout on connect, read,
// and write.
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc which dials addr with an
// exponential backoff.  Some devices (and terminal servers) do not like
// being connection thrashed, so retries start at 25ms and cap at 1s, for at
// most 3s overall.  Connection refused is surfaced immediately.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		wasTimeout := false
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err != nil {
				errS := strings.ToLower(err.Error())
				if strings.Contains(errS, "refused") {
					return err
				}
				wasTimeout = true
				return nil
			}
			wasTimeout = false
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err == nil && !wasTimeout {
			return conn, nil
		}
		if wasTimeout {
			return nil, fmt.Errorf("connection timeout to %s", addr)
		}
		return nil, err
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port
// described by cfg.  Timeouts on serial links are handled by
// cfg.ReadTimeout; the Timeout wrapper is a no-op for them.
func SerialConnMaker(cfg *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(cfg)
	}
}

// Terminator wraps a ReadWriter, appending the Tx terminator on writes and
// stripping the Rx terminator (and a carriage return preceding it, for
// CR/LF devices) on reads.  Reads block until the terminator is seen, so a
// single Read returns exactly one response line.
type Terminator struct {
	rw io.ReadWriter
	rx byte
	tx []byte

	// pending holds bytes past the last terminator when the device sends
	// more than one line in a single underlying read, e.g. an echo and the
	// real response arriving together
	pending []byte
}

// NewTerminator returns a Terminator with single-byte terminators on each
// side.
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, rx: rx, tx: []byte{tx}}
}

// NewTerminatorCRLF returns a Terminator for devices whose firmware frames
// lines with CR/LF in both directions.
func NewTerminatorCRLF(rw io.ReadWriter) *Terminator {
	return &Terminator{rw: rw, rx: '\n', tx: []byte("\r\n")}
}

// Write sends p followed by the Tx terminator.  The reported count excludes
// the terminator, mirroring what the caller handed in.
func (t *Terminator) Write(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+len(t.tx))
	buf = append(buf, p...)
	buf = append(buf, t.tx...)
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read fills p with one response line, without its terminator.  Bytes
// received past the terminator are retained and served by the next Read.
func (t *Terminator) Read(p []byte) (int, error) {
	accum := t.pending
	t.pending = nil
	buf := make([]byte, len(p))
	for {
		if idx := bytes.IndexByte(accum, t.rx); idx != -1 {
			line := bytes.TrimSuffix(accum[:idx], []byte{'\r'})
			if idx+1 < len(accum) {
				t.pending = append([]byte(nil), accum[idx+1:]...)
			}
			return copy(p, line), nil
		}
		if len(accum) >= len(p) {
			copy(p, accum)
			return len(p), ErrTerminatorNotFound
		}
		n, err := t.rw.Read(buf)
		accum = append(accum, buf[:n]...)
		if err != nil {
			if bytes.IndexByte(accum, t.rx) != -1 {
				continue
			}
			copy(p, accum)
			return len(accum), err
		}
	}
}

// Deadliner is a connection which supports read and write deadlines.
// net.Conn satisfies it; serial ports do not.
type Deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Timeout wraps a ReadWriter, refreshing the deadline before each Read or
// Write when the underlying connection supports deadlines.
type Timeout struct {
	rw      io.ReadWriter
	dl      Deadliner
	timeout time.Duration
}

// NewTimeout returns rw wrapped with per-call deadlines, or rw itself if it
// cannot support them.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) io.ReadWriter {
	if dl, ok := rw.(Deadliner); ok {
		return &Timeout{rw: rw, dl: dl, timeout: timeout}
	}
	return rw
}

func (t *Timeout) Read(p []byte) (int, error) {
	t.dl.SetReadDeadline(time.Now().Add(t.timeout))
	return t.rw.Read(p)
}

func (t *Timeout) Write(p []byte) (int, error) {
	t.dl.SetWriteDeadline(time.Now().Add(t.timeout))
	return t.rw.Write(p)
}

// EchoSuppressor wraps a line-oriented ReadWriter (a Terminator) for devices
// which retransmit each command line before acting on it.  The echo is
// consumed immediately after each write, even for commands with no real
// response, so it can never be mistaken for the answer to a later query.
type EchoSuppressor struct {
	rw  io.ReadWriter
	buf []byte
}

// NewEchoSuppressor wraps rw with echo consumption.
func NewEchoSuppressor(rw io.ReadWriter) *EchoSuppressor {
	return &EchoSuppressor{rw: rw, buf: make([]byte, 256)}
}

func (e *EchoSuppressor) Write(p []byte) (int, error) {
	n, err := e.rw.Write(p)
	if err != nil {
		return n, err
	}
	m, err := e.rw.Read(e.buf)
	if err != nil {
		return n, err
	}
	if !bytes.Equal(e.buf[:m], p) {
		return n, fmt.Errorf("comm: expected echo of %q, device sent %q", p, e.buf[:m])
	}
	return n, nil
}

func (e *EchoSuppressor) Read(p []byte) (int, error) {
	return e.rw.Read(p)
}
