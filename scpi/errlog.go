package scpi

import (
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxErrorReads = 20

	// device firmware settle time after a clear-type command
	clsSettle = 50 * time.Millisecond
)

// Severity classifies an error queue entry.
type Severity int

const (
	// SeverityError is a device or command error (negative SCPI codes).
	SeverityError Severity = iota

	// SeverityWarning is a device condition that did not reject a command.
	SeverityWarning

	// SeverityInfo is informational chatter some firmwares enqueue.
	SeverityInfo

	// SeverityUnknown marks entries that could not be parsed.
	SeverityUnknown
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return "unknown"
}

// ErrorLogEntry is one drained error queue event.
type ErrorLogEntry struct {
	Time        time.Time `json:"time"`
	Code        int       `json:"code"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
}

// ErrorLog accumulates drained error queue entries for a device session.
// It grows monotonically; only ClearErrors empties it.  Like the device
// sessions that own it, it is not safe for unserialized concurrent use.
type ErrorLog struct {
	entries []ErrorLogEntry
}

// Entries returns a copy of the accumulated log.
func (l *ErrorLog) Entries() []ErrorLogEntry {
	out := make([]ErrorLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of accumulated entries.
func (l *ErrorLog) Len() int {
	return len(l.entries)
}

func (l *ErrorLog) append(e ErrorLogEntry) {
	l.entries = append(l.entries, e)
}

func (l *ErrorLog) clear() {
	l.entries = nil
}

// parseErrorLine splits a `<code>,"<description>"` error queue line.
func parseErrorLine(line string) (int, string, bool) {
	pieces := strings.SplitN(line, ",", 2)
	code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(pieces[0], "+")))
	if err != nil {
		return 0, "", false
	}
	desc := ""
	if len(pieces) == 2 {
		desc = strings.Trim(strings.TrimSpace(pieces[1]), `"`)
	}
	return code, desc, true
}

// ClassifySeverity maps an entry to the default severity taxonomy: negative
// SCPI codes are command/device errors; positive codes are device conditions,
// warnings unless the text says otherwise.  Per-client Severity hooks can
// fall back to it for codes they do not override.
func ClassifySeverity(code int, desc string) Severity {
	lower := strings.ToLower(desc)
	switch {
	case strings.Contains(lower, "info"):
		return SeverityInfo
	case strings.Contains(lower, "warn"):
		return SeverityWarning
	case code < 0:
		return SeverityError
	default:
		return SeverityWarning
	}
}

func (c *Client) classify(code int, desc string) Severity {
	if c.Severity != nil {
		return c.Severity(code, desc)
	}
	return ClassifySeverity(code, desc)
}

func noError(code int, desc string) bool {
	return code == 0 || strings.Contains(strings.ToLower(desc), "no error")
}

func (c *Client) errorQuery() string {
	if c.ErrorQuery == "" {
		return "SYSTem:ERRor?"
	}
	return c.ErrorQuery
}

func (c *Client) maxErrorReads() int {
	if c.MaxErrorReads == 0 {
		return defaultMaxErrorReads
	}
	return c.MaxErrorReads
}

// DrainErrors repeatedly queries the device error queue, appending entries
// to elog, until the device reports no error or the iteration cap is
// reached (a malfunctioning device must not trap the caller in a loop).
// Malformed lines are appended with the Unexpected marker rather than
// dropped, preserving an audit trail of communication problems.  The newly
// appended entries are returned.
func (c *Client) DrainErrors(elog *ErrorLog) ([]ErrorLogEntry, error) {
	// handshaking would prepend *CLS and wipe the queue before we read it
	prev := c.Handshaking
	c.Handshaking = false
	defer func() { c.Handshaking = prev }()
	var drained []ErrorLogEntry
	max := c.maxErrorReads()
	for i := 0; i < max; i++ {
		line, err := c.ReadString(c.errorQuery())
		if err != nil {
			e := ErrorLogEntry{
				Time:        time.Now(),
				Severity:    SeverityUnknown,
				Description: Unexpected,
			}
			elog.append(e)
			drained = append(drained, e)
			c.logf(VerbosityFew, "scpi: error queue read failed: %v", err)
			return drained, err
		}
		code, desc, ok := parseErrorLine(line)
		if !ok {
			e := ErrorLogEntry{
				Time:        time.Now(),
				Severity:    SeverityUnknown,
				Description: Unexpected,
			}
			elog.append(e)
			drained = append(drained, e)
			c.logf(VerbosityFew, "scpi: unparseable error queue line %q", line)
			continue
		}
		if noError(code, desc) {
			return drained, nil
		}
		if desc == "" && c.DescribeError != nil {
			desc = c.DescribeError(code)
		}
		e := ErrorLogEntry{
			Time:        time.Now(),
			Code:        code,
			Severity:    c.classify(code, desc),
			Description: desc,
		}
		elog.append(e)
		drained = append(drained, e)
	}
	c.logf(VerbosityFew, "scpi: error queue drain stopped at iteration cap %d", max)
	return drained, nil
}

// ClearErrors empties the device-side error queue (*CLS) and, only if the
// device accepted it, the local session log; a failed clear leaves both in
// place so nothing is silently swallowed.
func (c *Client) ClearErrors(elog *ErrorLog) error {
	prev := c.Handshaking
	c.Handshaking = false
	err := c.Write("*CLS")
	c.Handshaking = prev
	if err != nil {
		c.logf(VerbosityFew, "scpi: clear errors failed, local log retained: %v", err)
		return err
	}
	time.Sleep(clsSettle)
	elog.clear()
	return nil
}
