// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"reflect"
	"testing"
	"testing/iotest"
	"testing/quick"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

var tcpHeaderCmp = cmp.AllowUnexported(TCPHeader{})

// tcpDecodeBuffer is the TCP part of a SYN-ACK segment.
var tcpDecodeBuffer = []byte{
	0x00, 0x7b, 0x02, 0x37, 0x00, 0x00, 0x12, 0x34, 0x00, 0x00, 0x00, 0x00,
	0x50, 0x12, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
	// "request_payload"
	0x72, 0x65, 0x71, 0x75, 0x65, 0x73, 0x74, 0x5f, 0x70, 0x61, 0x79, 0x6c, 0x6f, 0x61, 0x64,
}

func TestDecodeTCPHeader(t *testing.T) {
	c := qt.New(t)
	h, rest, err := DecodeTCPHeader(tcpDecodeBuffer)
	c.Assert(err, qt.IsNil)
	c.Assert(string(rest), qt.Equals, "request_payload")

	want := NewTCPHeader(123, 567, 0x1234, 0)
	want.SYN = true
	want.ACK = true
	want.Window = 0x0100
	c.Assert(h, qt.CmpEquals(tcpHeaderCmp), want)
	c.Assert(h.DataOffset(), qt.Equals, uint8(5))
	c.Assert(h.Flags(), qt.Equals, uint8(TCPSynAck))
}

// randTCPHeader generates TCP headers with random fields and a random
// but well-formed option list.
type randTCPHeader struct {
	TCPHeader
}

func (randTCPHeader) Generate(r *rand.Rand, size int) reflect.Value {
	h := TCPHeader{
		SrcPort:  uint16(r.Uint32()),
		DstPort:  uint16(r.Uint32()),
		Seq:      r.Uint32(),
		Ack:      r.Uint32(),
		NS:       r.Intn(2) == 0,
		Window:   uint16(r.Uint32()),
		Checksum: uint16(r.Uint32()),
		Urgent:   uint16(r.Uint32()),
	}
	h.SetFlags(uint8(r.Uint32()))
	if err := h.SetOptions(randTCPOptions(r)...); err != nil {
		panic(err)
	}
	return reflect.ValueOf(randTCPHeader{h})
}

// randTCPOptions returns options that fit in a header together with
// their end of list marker.
func randTCPOptions(r *rand.Rand) []TCPOption {
	var opts []TCPOption
	room := MaxTCPOptionsLen - 1
	for range r.Intn(8) {
		var opt TCPOption
		switch r.Intn(6) {
		case 0:
			opt = TCPOptionNOP{}
		case 1:
			opt = TCPOptionMSS(r.Uint32())
		case 2:
			opt = TCPOptionWindowScale(r.Uint32())
		case 3:
			opt = TCPOptionSACKPermitted{}
		case 4:
			blocks := make([]SACKBlock, r.Intn(maxSACKBlocks))
			for i := range blocks {
				blocks[i] = SACKBlock{r.Uint32(), r.Uint32()}
			}
			opt = NewTCPOptionSACK(SACKBlock{r.Uint32(), r.Uint32()}, blocks...)
		case 5:
			opt = TCPOptionTimestamp{r.Uint32(), r.Uint32()}
		}
		if opt.Len() > room {
			break
		}
		room -= opt.Len()
		opts = append(opts, opt)
	}
	return opts
}

func TestTCPHeaderRoundTripQuick(t *testing.T) {
	cfg := &quick.Config{MaxCount: 2000, Rand: rand.New(rand.NewSource(1))}
	err := quick.Check(func(rh randTCPHeader) bool {
		h := rh.TCPHeader
		buf := make([]byte, h.HeaderLen())
		if err := h.Marshal(buf); err != nil {
			t.Logf("Marshal: %v", err)
			return false
		}
		got, rest, err := DecodeTCPHeader(buf)
		if err != nil {
			t.Logf("DecodeTCPHeader(%x): %v", buf, err)
			return false
		}
		if len(rest) != 0 || got != h {
			t.Logf("round trip mismatch (-got +want):\n%s", cmp.Diff(got, h, tcpHeaderCmp))
			return false
		}
		return bytes.Equal(h.AppendTo(nil), buf)
	}, cfg)
	if err != nil {
		t.Fatal(err)
	}
}

func TestTCPHeaderReadWrite(t *testing.T) {
	h := randTCPHeader{}.Generate(rand.New(rand.NewSource(2)), 0).Interface().(randTCPHeader).TCPHeader

	var buf bytes.Buffer
	n, err := h.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(h.HeaderLen()) {
		t.Errorf("WriteTo wrote %d bytes; want %d", n, h.HeaderLen())
	}
	buf.WriteString("payload")

	// One byte at a time exercises partial reads.
	r := iotest.OneByteReader(&buf)
	got, err := ReadTCPHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, h, tcpHeaderCmp); diff != "" {
		t.Errorf("ReadTCPHeader mismatch (-got +want):\n%s", diff)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "payload" {
		t.Errorf("reader left at %q; want payload", rest)
	}
}

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }

func TestTCPHeaderWriteError(t *testing.T) {
	h := NewTCPHeader(1, 2, 3, 4)
	boom := errors.New("boom")
	if _, err := h.WriteTo(errWriter{boom}); err != boom {
		t.Errorf("err = %v; want %v", err, boom)
	}
}

func TestTCPHeaderDataOffsetTooSmall(t *testing.T) {
	for off := range uint8(TCPMinDataOffset) {
		b := bytes.Clone(tcpDecodeBuffer)
		b[12] = off<<4 | b[12]&0x0f

		_, _, err := DecodeTCPHeader(b)
		var doErr *DataOffsetTooSmallError
		if !errors.As(err, &doErr) || doErr.DataOffset != off {
			t.Errorf("DecodeTCPHeader offset %d: err = %v", off, err)
		}
		_, err = ReadTCPHeader(bytes.NewReader(b))
		if !errors.As(err, &doErr) || doErr.DataOffset != off {
			t.Errorf("ReadTCPHeader offset %d: err = %v", off, err)
		}
	}
}

func TestTCPHeaderTruncated(t *testing.T) {
	h := NewTCPHeader(1, 2, 3, 4)
	if err := h.SetOptions(TCPOptionTimestamp{5, 6}, TCPOptionNOP{}, TCPOptionMSS(1200)); err != nil {
		t.Fatal(err)
	}
	full := h.AppendTo(nil)
	for n := range len(full) {
		b := full[:n]
		_, _, err := DecodeTCPHeader(b)
		var sbErr *ShortBufferError
		if !errors.As(err, &sbErr) {
			t.Fatalf("DecodeTCPHeader(%d bytes): err = %v; want ShortBufferError", n, err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("DecodeTCPHeader(%d bytes): err %v does not match io.ErrUnexpectedEOF", n, err)
		}
		if sbErr.Have != n {
			t.Errorf("Have = %d; want %d", sbErr.Have, n)
		}

		_, err = ReadTCPHeader(bytes.NewReader(b))
		want := io.ErrUnexpectedEOF
		if n == 0 {
			want = io.EOF
		}
		if err != want {
			t.Errorf("ReadTCPHeader(%d bytes): err = %v; want %v", n, err, want)
		}
	}
}

func TestReadTCPHeaderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ReadTCPHeader(iotest.ErrReader(boom))
	if err != boom {
		t.Errorf("err = %v; want %v", err, boom)
	}
}

func TestTCPHeaderReservedBits(t *testing.T) {
	c := qt.New(t)
	b := bytes.Clone(tcpDecodeBuffer[:tcpHeaderLength])
	b[12] = 0x5e // offset 5, reserved bits set, NS clear
	h, _, err := DecodeTCPHeader(b)
	c.Assert(err, qt.IsNil)
	c.Assert(h.NS, qt.IsFalse)
	c.Assert(h.AppendTo(nil)[12], qt.Equals, byte(0x50))

	b[12] = 0x51
	h, _, err = DecodeTCPHeader(b)
	c.Assert(err, qt.IsNil)
	c.Assert(h.NS, qt.IsTrue)
}

func TestTCPHeaderFlags(t *testing.T) {
	tests := []struct {
		name string
		set  func(*TCPHeader)
		bit  uint8
	}{
		{"FIN", func(h *TCPHeader) { h.FIN = true }, 0x01},
		{"SYN", func(h *TCPHeader) { h.SYN = true }, 0x02},
		{"RST", func(h *TCPHeader) { h.RST = true }, 0x04},
		{"PSH", func(h *TCPHeader) { h.PSH = true }, 0x08},
		{"ACK", func(h *TCPHeader) { h.ACK = true }, 0x10},
		{"URG", func(h *TCPHeader) { h.URG = true }, 0x20},
		{"ECE", func(h *TCPHeader) { h.ECE = true }, 0x40},
		{"CWR", func(h *TCPHeader) { h.CWR = true }, 0x80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h TCPHeader
			tt.set(&h)
			b := h.AppendTo(nil)
			if b[13] != tt.bit {
				t.Errorf("byte 13 = %#02x; want %#02x", b[13], tt.bit)
			}
			if b[12] != 0x50 {
				t.Errorf("byte 12 = %#02x; want 0x50", b[12])
			}
			s, err := NewTCPHeaderSlice(b)
			if err != nil {
				t.Fatal(err)
			}
			if s.Flags() != tt.bit {
				t.Errorf("slice flags = %#02x; want %#02x", s.Flags(), tt.bit)
			}
		})
	}
}

func TestTCPHeaderString(t *testing.T) {
	h := NewTCPHeader(123, 567, 0x1234, 0)
	h.SYN = true
	h.ACK = true
	h.Window = 256
	if got, want := h.String(), "TCP{123 > 567 seq=4660 ack=0 off=5 flags=ACK|SYN win=256 csum=0x0000 urg=0}"; got != want {
		t.Errorf("got %q; want %q", got, want)
	}

	if err := h.SetOptions(TCPOptionMSS(1460), TCPOptionWindowScale(7)); err != nil {
		t.Fatal(err)
	}
	h.SYN, h.ACK, h.NS = false, false, true
	if got, want := h.String(), "TCP{123 > 567 seq=4660 ack=0 off=7 flags=NS win=256 csum=0x0000 urg=0 opts=[MSS(1460) WS(7)]}"; got != want {
		t.Errorf("got %q; want %q", got, want)
	}

	if err := h.SetOptionsRaw([]byte{0xfe, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if got, want := h.String(), "TCP{123 > 567 seq=4660 ack=0 off=6 flags=NS win=256 csum=0x0000 urg=0 opts=[!unknown tcp option kind 254]}"; got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func TestTCPHeaderAlloc(t *testing.T) {
	h := NewTCPHeader(1, 2, 3, 4)
	if err := h.SetOptions(TCPOptionMSS(1460), TCPOptionSACKPermitted{}); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, h.HeaderLen())

	allocs := testing.AllocsPerRun(1000, func() {
		if err := h.Marshal(buf); err != nil {
			t.Fatal(err)
		}
	})
	if allocs != 0 {
		t.Errorf("Marshal allocs = %v; want 0", allocs)
	}
	allocs = testing.AllocsPerRun(1000, func() {
		if _, _, err := DecodeTCPHeader(buf); err != nil {
			t.Fatal(err)
		}
	})
	if allocs != 0 {
		t.Errorf("DecodeTCPHeader allocs = %v; want 0", allocs)
	}
}

func BenchmarkDecodeTCPHeader(b *testing.B) {
	b.ReportAllocs()
	for range b.N {
		DecodeTCPHeader(tcpDecodeBuffer)
	}
}
