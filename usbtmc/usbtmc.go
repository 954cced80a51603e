/*Package usbtmc implements bulk transfers for USB Test and Measurement
Class instruments, enough to carry a line-oriented ASCII command protocol
over USB instead of TCP or RS-232.

Only single-packet DEV_DEP_MSG_OUT / REQUEST_DEV_DEP_MSG_IN transfers are
implemented; the message is assumed to fit in the remote's buffer.  Devices
are exposed as io.ReadWriteCloser so the rest of the protocol stack does not
know USB is underneath.
*/
package usbtmc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/gousb"
)

const (
	headerLen = 12

	// one bulk transfer; instrument replies are line-sized
	bufSize = 1500

	msgDevDepOut   = 0x01 // DEV_DEP_MSG_OUT
	msgDevDepInReq = 0x02 // REQUEST_DEV_DEP_MSG_IN

	reserved = 0x00
)

// bTagGen produces the per-transfer bTag sequence the standard requires:
// incrementing, wrapping, never zero.  Safe for concurrent use.
type bTagGen struct {
	sync.Mutex
	value byte
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag is the bitwise inversion carried at header offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encOutHeader builds the DEV_DEP_MSG_OUT header (USBTMC Table 3).
// Offsets 4-7 carry the payload length LSB first; offset 8 bit 0 marks end
// of message, always set here since multi-transfer messages are out of scope.
func encOutHeader(tag byte, datalen int) [headerLen]byte {
	var out [headerLen]byte
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01
	return out
}

// encInHeader builds the REQUEST_DEV_DEP_MSG_IN header (USBTMC Table 4).
// When terminator is non-nil, offset 8 bit 1 asks the device to end the
// transfer on that byte.
func encInHeader(tag byte, bufsize int, terminator *byte) [headerLen]byte {
	var out [headerLen]byte
	out[0] = msgDevDepInReq
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02
		out[9] = *terminator
	}
	return out
}

// USBDevice carries the ASCII protocol over USBTMC bulk endpoints.  It
// satisfies io.ReadWriteCloser, so it pools and wraps like a TCP or serial
// connection.
type USBDevice struct {
	tagger *bTagGen
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	device *gousb.Device
	iface  *gousb.Interface
	closer func()
}

// NewUSBDevice opens a device by its vendor and product ID and claims the
// default interface's bulk endpoints.
func NewUSBDevice(vid, pid uint16) (*USBDevice, error) {
	out := &USBDevice{tagger: &bTagGen{}}
	var err error
	ctx := gousb.NewContext()
	out.device, err = ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, err
	}
	if err = out.device.SetAutoDetach(true); err != nil {
		return nil, err
	}
	out.iface, out.closer, err = out.device.DefaultInterface()
	if err != nil {
		return nil, err
	}
	out.in, err = out.iface.InEndpoint(2)
	if err != nil {
		out.closer()
		return nil, err
	}
	out.out, err = out.iface.OutEndpoint(2)
	if err != nil {
		out.closer()
		return nil, err
	}
	return out, nil
}

// Read requests a device-dependent message and copies its payload into p,
// header stripped.  A trailing newline is guaranteed so the line-oriented
// wrappers above this see the same framing as TCP and serial devices.
func (d *USBDevice) Read(p []byte) (int, error) {
	term := byte('\n')
	hdr := encInHeader(d.tagger.next(), bufSize, &term)
	if err := d.writeFull(hdr[:]); err != nil {
		return 0, err
	}
	buf := make([]byte, bufSize)
	n, err := d.in.Read(buf)
	if err != nil {
		return 0, err
	}
	if n < headerLen {
		return 0, fmt.Errorf("usbtmc: received %d bytes, too short for a %d byte header", n, headerLen)
	}
	data := buf[headerLen:n]
	if !bytes.HasSuffix(data, []byte{'\n'}) {
		data = append(data, '\n')
	}
	if len(data) > len(p) {
		return copy(p, data), io.ErrShortBuffer
	}
	return copy(p, data), nil
}

// Write sends p as a single device-dependent message, padded to the 4 byte
// alignment the standard requires.  The count excludes header and padding.
func (d *USBDevice) Write(p []byte) (int, error) {
	const alignment = 4
	hdr := encOutHeader(d.tagger.next(), len(p))
	msg := append(hdr[:], p...)
	if residual := len(msg) % alignment; residual > 0 {
		msg = append(msg, make([]byte, alignment-residual)...)
	}
	if err := d.writeFull(msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

// writeFull retries a short bulk write once before giving up.
func (d *USBDevice) writeFull(b []byte) error {
	n, err := d.out.Write(b)
	if err != nil {
		return err
	}
	if n < len(b) {
		var m int
		m, err = d.out.Write(b[n:])
		if err != nil {
			return err
		}
		if n+m != len(b) {
			return fmt.Errorf("usbtmc: wrote %d of %d bytes", n+m, len(b))
		}
	}
	return nil
}

// Close releases the interface and the device.
func (d *USBDevice) Close() error {
	d.closer()
	return d.device.Close()
}
