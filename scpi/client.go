// Package scpi implements a protocol client for devices with SCPI or
// SCPI-like ASCII command sets: command formatting with unit scaling and
// range clipping, response parsing with fail-safe sentinels, loose
// parameter validation, readback verification, and error queue draining.
package scpi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/opticslab/scpikit/comm"
)

const (
	defaultTimeout = 5 * time.Second

	// one TCP frame; responses from these instruments are always far smaller
	replyBufSize = 1500
)

// Verbosity controls how much human-readable progress and diagnostic text a
// client emits on the process log.  It is a presentation concern and never
// affects protocol behavior.
type Verbosity int

const (
	// VerbosityNone emits nothing
	VerbosityNone Verbosity = iota

	// VerbosityFew emits failures only
	VerbosityFew

	// VerbosityAll narrates every command and response
	VerbosityAll
)

// Client is a type for encapsulating communication with devices speaking
// line-oriented ASCII command/response protocols.
//
// Clients are synchronous and half-duplex; a pool of size 1 serializes
// concurrent callers.  Timeouts are connection-wide, not per call.
type Client struct {
	Pool *comm.Pool

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message to ensure the device
	// accepted the input.
	Handshaking bool

	// CRLF frames commands with CR/LF instead of bare LF.
	CRLF bool

	// Echo indicates the device retransmits each command before its real
	// response; the echoed line is consumed and checked after every write.
	Echo bool

	// Timeout is the connection-wide I/O deadline.  Zero means 5 seconds.
	Timeout time.Duration

	// Limiter, when non-nil, paces round trips for instruments with a
	// documented command-per-second ceiling.
	Limiter *rate.Limiter

	// Verbosity gates diagnostic text on the process log.
	Verbosity Verbosity

	// ErrorQuery is the "next error" query for this device's dialect.
	// Empty means "SYSTem:ERRor?".
	ErrorQuery string

	// MaxErrorReads bounds a single error queue drain against devices that
	// never report empty.  Zero means 20.
	MaxErrorReads int

	// DescribeError, when non-nil, supplies a description for error queue
	// entries whose line carried only a numeric code.  Dialects like the
	// rotary platform's TE? report bare codes.
	DescribeError func(code int) string

	// Severity, when non-nil, overrides the default severity taxonomy for
	// error queue entries.  Dialects that report hard faults as positive
	// codes need this; the default treats positive codes as warnings.
	Severity func(code int, desc string) Severity
}

func (c *Client) timeout() time.Duration {
	if c.Timeout == 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c *Client) logf(min Verbosity, format string, args ...interface{}) {
	if c.Verbosity >= min {
		log.Printf(format, args...)
	}
}

// wrap composes the io wrappers appropriate for this device over a pooled
// connection.
func (c *Client) wrap(conn io.ReadWriter) io.ReadWriter {
	var rw io.ReadWriter
	rw = comm.NewTimeout(conn, c.timeout())
	if c.CRLF {
		rw = comm.NewTerminatorCRLF(rw)
	} else {
		rw = comm.NewTerminator(rw, '\n', '\n')
	}
	if c.Echo {
		rw = comm.NewEchoSuppressor(rw)
	}
	return rw
}

// Write sends a command to the device.  If c.Handshaking is true, it also
// requests an error response and checks that it is OK.  It is assumed this
// is used for set operations and not get.
func (c *Client) Write(cmds ...string) error {
	if c.Limiter != nil {
		c.Limiter.Wait(context.Background())
	}
	conn, err := c.Pool.Get()
	if err != nil {
		return err
	}
	defer func() { c.Pool.ReturnWithError(conn, err) }()
	rw := c.wrap(conn)
	if c.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	str := strings.Join(cmds, " ")
	c.logf(VerbosityAll, "scpi: > %s", str)
	_, err = io.WriteString(rw, str)
	if err != nil {
		c.logf(VerbosityFew, "scpi: write %q failed: %v", str, err)
		return err
	}
	if c.Handshaking {
		buf := make([]byte, replyBufSize)
		var n int
		n, err = rw.Read(buf)
		if err != nil {
			c.logf(VerbosityFew, "scpi: handshake read after %q failed: %v", str, err)
			return err
		}
		resp := string(buf[:n])
		if !strings.HasPrefix(resp, "+0") && !strings.HasPrefix(resp, "0") {
			return fmt.Errorf("scpi: device rejected %q: %s", str, resp)
		}
	}
	return nil
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism.
func (c *Client) WriteRead(cmds ...string) ([]byte, error) {
	var resp []byte
	if c.Limiter != nil {
		c.Limiter.Wait(context.Background())
	}
	conn, err := c.Pool.Get()
	if err != nil {
		return resp, err
	}
	defer func() { c.Pool.ReturnWithError(conn, err) }()
	rw := c.wrap(conn)
	if c.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	str := strings.Join(cmds, " ")
	c.logf(VerbosityAll, "scpi: > %s", str)
	_, err = io.WriteString(rw, str)
	if err != nil {
		c.logf(VerbosityFew, "scpi: write %q failed: %v", str, err)
		return resp, err
	}
	buf := make([]byte, replyBufSize)
	n, err := rw.Read(buf)
	if err != nil {
		c.logf(VerbosityFew, "scpi: read after %q failed: %v", str, err)
		return resp, err
	}
	resp = buf[:n]
	c.logf(VerbosityAll, "scpi: < %s", resp)
	if c.Handshaking {
		pieces := bytes.Split(resp, []byte{';'})
		errS := string(pieces[len(pieces)-1])
		if !strings.HasPrefix(errS, "+0") && !strings.HasPrefix(errS, "0") {
			return resp, fmt.Errorf("scpi: device rejected %q: %s", str, errS)
		}
		return bytes.Join(pieces[:len(pieces)-1], []byte{';'}), nil
	}
	return resp, err
}

// ReadString sends a command to the device, then reads the response and
// returns it as a decoded ASCII or UTF-8 string.
func (c *Client) ReadString(cmds ...string) (string, error) {
	resp, err := c.WriteRead(cmds...)
	if err == nil {
		resp = bytes.TrimRight(resp, "\r\n")
	}
	return string(resp), err
}

// ReadFloat sends a command to the device, then reads the response and
// parses it as a floating point value.  On communication failure or a
// malformed response the value is NaN, never a guess.
func (c *Client) ReadFloat(cmds ...string) (float64, error) {
	resp, err := c.ReadString(cmds...)
	return ParseFloat(resp, err), err
}

// ReadBool sends a command to the device, then reads the response and
// parses it as a boolean with fail-safe semantics; see ParseBool.
func (c *Client) ReadBool(cmds ...string) (bool, error) {
	resp, err := c.ReadString(cmds...)
	return ParseBool(resp, err), err
}

// ReadInt sends a command to the device, then reads the response and parses
// it as an integer.
func (c *Client) ReadInt(cmds ...string) (int, error) {
	resp, err := c.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(resp))
}

// Raw sends a command to the device and returns a response if it was a
// query, else a blank string.
func (c *Client) Raw(str string) (string, error) {
	prev := c.Handshaking
	c.Handshaking = false
	defer func() { c.Handshaking = prev }()
	if strings.Contains(str, "?") {
		return c.ReadString(str)
	}
	return "", c.Write(str)
}
