package usbtmc

import (
	"encoding/binary"
	"testing"
)

func TestBTagNeverZero(t *testing.T) {
	g := &bTagGen{value: 254}
	for i := 0; i < 4; i++ {
		if tag := g.next(); tag == 0 {
			t.Fatal("bTag must never be zero")
		}
	}
}

func TestOutHeaderLayout(t *testing.T) {
	hdr := encOutHeader(7, 300)
	if hdr[0] != msgDevDepOut {
		t.Errorf("expected MsgID %#x, got %#x", msgDevDepOut, hdr[0])
	}
	if hdr[1] != 7 || hdr[2] != 7^0xff {
		t.Errorf("expected bTag/inverse pair, got %#x %#x", hdr[1], hdr[2])
	}
	if size := binary.LittleEndian.Uint32(hdr[4:8]); size != 300 {
		t.Errorf("expected transfer size 300, got %d", size)
	}
	if hdr[8] != 0x01 {
		t.Error("expected EOM bit set")
	}
}

func TestInHeaderTerminator(t *testing.T) {
	term := byte('\n')
	hdr := encInHeader(3, 1500, &term)
	if hdr[0] != msgDevDepInReq {
		t.Errorf("expected MsgID %#x, got %#x", msgDevDepInReq, hdr[0])
	}
	if hdr[8] != 0x02 || hdr[9] != '\n' {
		t.Errorf("expected terminator request bytes, got %#x %#x", hdr[8], hdr[9])
	}
	bare := encInHeader(4, 1500, nil)
	if bare[8] != 0x00 || bare[9] != 0x00 {
		t.Errorf("expected no terminator bytes, got %#x %#x", bare[8], bare[9])
	}
}
