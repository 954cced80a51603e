package comm_test

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/opticslab/scpikit/comm"
)

// tcpEchoServer starts a loopback echo server and returns its address.
func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal("could not listen, test aborted:", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }()
		}
	}()
	return ln.Addr().String()
}

func TestPoolGetToCapacity(t *testing.T) {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(3, time.Second, maker)
	for i := 0; i < 3; i++ {
		conn, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		if conn == nil {
			t.Fatal("got nil connection without error")
		}
	}
	if pool.Active() != 3 {
		t.Errorf("expected 3 active connections, got %d", pool.Active())
	}
}

func TestPoolReusesReturnedConns(t *testing.T) {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(3, time.Minute, maker)
	for i := 0; i < 3; i++ {
		conn, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		pool.Put(conn)
	}
	if pool.Size() != 1 {
		t.Errorf("expected pool to recycle a single connection, size %d", pool.Size())
	}
}

func TestPoolReturnWithErrorDestroys(t *testing.T) {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(1, time.Minute, maker)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal("could not get connection:", err)
	}
	pool.ReturnWithError(conn, io.EOF)
	if pool.Size() != 0 {
		t.Errorf("junk connection was not destroyed, size %d", pool.Size())
	}
}

func TestPoolBlocksWhenExhausted(t *testing.T) {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(2, time.Second, maker)
	for i := 0; i < 2; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatal("could not get connection:", err)
		}
	}
	newConn := make(chan io.ReadWriter, 1)
	go func() {
		rw, _ := pool.Get()
		newConn <- rw
	}()
	select {
	case <-newConn:
		t.Fatal("failed to prevent pool overflow")
	case <-time.After(100 * time.Millisecond):
	}
}

// rwBuffer is an in-memory ReadWriter; writes land in out, reads drain in.
type rwBuffer struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (rw *rwBuffer) Read(p []byte) (int, error)  { return rw.in.Read(p) }
func (rw *rwBuffer) Write(p []byte) (int, error) { return rw.out.Write(p) }

func TestTerminatorAppendsAndStrips(t *testing.T) {
	rw := &rwBuffer{}
	rw.in.WriteString("1.234\r\n")
	term := comm.NewTerminator(rw, '\n', '\n')
	n, err := io.WriteString(term, "MEAS:VOLT?")
	if err != nil || n != len("MEAS:VOLT?") {
		t.Fatalf("write failed, n=%d err=%v", n, err)
	}
	if got := rw.out.String(); got != "MEAS:VOLT?\n" {
		t.Errorf("wire content %q, expected terminator appended", got)
	}
	buf := make([]byte, 80)
	n, err = term.Read(buf)
	if err != nil {
		t.Fatal("read failed:", err)
	}
	if got := string(buf[:n]); got != "1.234" {
		t.Errorf("read %q, expected CR/LF stripped 1.234", got)
	}
}

func TestTerminatorRetainsBytesPastFirstLine(t *testing.T) {
	rw := &rwBuffer{}
	rw.in.WriteString("1VA10.000\r\n45.000\r\n")
	term := comm.NewTerminatorCRLF(rw)
	buf := make([]byte, 80)
	n, err := term.Read(buf)
	if err != nil {
		t.Fatal("first read failed:", err)
	}
	if got := string(buf[:n]); got != "1VA10.000" {
		t.Errorf("first read %q, expected first line", got)
	}
	n, err = term.Read(buf)
	if err != nil {
		t.Fatal("second read failed:", err)
	}
	if got := string(buf[:n]); got != "45.000" {
		t.Errorf("second read %q, expected line held over from the first read", got)
	}
}

func TestTerminatorCRLFWrites(t *testing.T) {
	rw := &rwBuffer{}
	term := comm.NewTerminatorCRLF(rw)
	io.WriteString(term, "1PA90.000")
	if got := rw.out.String(); got != "1PA90.000\r\n" {
		t.Errorf("wire content %q, expected CR/LF framing", got)
	}
}

func TestEchoSuppressorDiscardsEchoedLine(t *testing.T) {
	rw := &rwBuffer{}
	rw.in.WriteString("1TP?\r\n45.000\r\n")
	wrap := comm.NewEchoSuppressor(comm.NewTerminator(rw, '\n', '\n'))
	io.WriteString(wrap, "1TP?")
	buf := make([]byte, 80)
	n, err := wrap.Read(buf)
	if err != nil {
		t.Fatal("read failed:", err)
	}
	if got := string(buf[:n]); got != "45.000" {
		t.Errorf("read %q, expected echoed command discarded", got)
	}
}

func TestEchoSuppressorConsumesEchoOfSetCommand(t *testing.T) {
	// a set command has no response beyond the echo; the echo must not
	// linger to poison the next query
	rw := &rwBuffer{}
	rw.in.WriteString("1VA10.000\r\n1TP?\r\n45.000\r\n")
	wrap := comm.NewEchoSuppressor(comm.NewTerminator(rw, '\n', '\n'))
	if _, err := io.WriteString(wrap, "1VA10.000"); err != nil {
		t.Fatal("set write failed:", err)
	}
	if _, err := io.WriteString(wrap, "1TP?"); err != nil {
		t.Fatal("query write failed:", err)
	}
	buf := make([]byte, 80)
	n, err := wrap.Read(buf)
	if err != nil {
		t.Fatal("read failed:", err)
	}
	if got := string(buf[:n]); got != "45.000" {
		t.Errorf("read %q, expected the query's response", got)
	}
}

func TestEchoSuppressorSurfacesNonEcho(t *testing.T) {
	rw := &rwBuffer{}
	rw.in.WriteString("BEEP\r\n")
	wrap := comm.NewEchoSuppressor(comm.NewTerminator(rw, '\n', '\n'))
	if _, err := io.WriteString(wrap, "1TP?"); err == nil {
		t.Error("expected an error when the device does not echo the command")
	}
}
