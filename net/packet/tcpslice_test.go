// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestTCPHeaderSlice(t *testing.T) {
	c := qt.New(t)
	s, err := NewTCPHeaderSlice(tcpDecodeBuffer)
	c.Assert(err, qt.IsNil)
	c.Assert(s.SrcPort(), qt.Equals, uint16(123))
	c.Assert(s.DstPort(), qt.Equals, uint16(567))
	c.Assert(s.Seq(), qt.Equals, uint32(0x1234))
	c.Assert(s.Ack(), qt.Equals, uint32(0))
	c.Assert(s.DataOffset(), qt.Equals, uint8(5))
	c.Assert(s.SYN(), qt.IsTrue)
	c.Assert(s.ACK(), qt.IsTrue)
	c.Assert(s.FIN(), qt.IsFalse)
	c.Assert(s.Window(), qt.Equals, uint16(0x0100))
	c.Assert(s.HeaderLen(), qt.Equals, 20)
	c.Assert(s.Options(), qt.HasLen, 0)
	// The view ends at the header.
	c.Assert(s.Bytes(), qt.DeepEquals, tcpDecodeBuffer[:20])
	c.Assert(cap(s.Bytes()), qt.Equals, 20)
}

func TestTCPHeaderSliceMatchesHeader(t *testing.T) {
	c := qt.New(t)
	r := rand.New(rand.NewSource(4))
	for range 500 {
		h := randTCPHeader{}.Generate(r, 0).Interface().(randTCPHeader).TCPHeader
		b := h.AppendTo(nil)
		s, err := NewTCPHeaderSlice(b)
		if err != nil {
			t.Fatal(err)
		}
		got := []any{
			s.SrcPort(), s.DstPort(), s.Seq(), s.Ack(), s.DataOffset(),
			s.NS(), s.CWR(), s.ECE(), s.URG(), s.ACK(), s.PSH(), s.RST(), s.SYN(), s.FIN(),
			s.Window(), s.Checksum(), s.Urgent(), s.Flags(), s.HeaderLen(),
		}
		want := []any{
			h.SrcPort, h.DstPort, h.Seq, h.Ack, h.DataOffset(),
			h.NS, h.CWR, h.ECE, h.URG, h.ACK, h.PSH, h.RST, h.SYN, h.FIN,
			h.Window, h.Checksum, h.Urgent, h.Flags(), h.HeaderLen(),
		}
		c.Assert(got, qt.DeepEquals, want)
		if !bytes.Equal(s.Options(), h.Options()) {
			t.Fatalf("options = %x; want %x", s.Options(), h.Options())
		}
		if s.ToHeader() != h {
			t.Fatalf("ToHeader mismatch for %x", b)
		}
	}
}

func TestTCPHeaderSliceErrors(t *testing.T) {
	c := qt.New(t)

	_, err := NewTCPHeaderSlice(tcpDecodeBuffer[:19])
	c.Assert(err, qt.ErrorIs, io.ErrUnexpectedEOF)
	c.Assert(err, qt.DeepEquals, error(&ShortBufferError{Need: 20, Have: 19}))

	b := bytes.Clone(tcpDecodeBuffer[:20])
	b[12] = 0x60
	_, err = NewTCPHeaderSlice(b)
	c.Assert(err, qt.DeepEquals, error(&ShortBufferError{Need: 24, Have: 20}))

	b[12] = 0x40
	_, err = NewTCPHeaderSlice(b)
	var doErr *DataOffsetTooSmallError
	c.Assert(errors.As(err, &doErr), qt.IsTrue)
	c.Assert(doErr.DataOffset, qt.Equals, uint8(4))
	c.Assert(errors.Is(err, io.ErrUnexpectedEOF), qt.IsFalse)
}

func TestTCPHeaderSliceMarshal(t *testing.T) {
	b := bytes.Clone(tcpDecodeBuffer[:20])
	b[12] |= 0x0e // reserved bits survive a verbatim copy
	s, err := NewTCPHeaderSlice(b)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Generate(s, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out[:20], b) || out[20] != 'x' {
		t.Errorf("got %x; want %x followed by payload", out, b)
	}
	if err := s.Marshal(make([]byte, 19)); err != errSmallBuffer {
		t.Errorf("short Marshal err = %v; want %v", err, errSmallBuffer)
	}
}

func TestTCPHeaderSliceAlloc(t *testing.T) {
	var sink uint32
	allocs := testing.AllocsPerRun(1000, func() {
		s, err := NewTCPHeaderSlice(tcpDecodeBuffer)
		if err != nil {
			t.Fatal(err)
		}
		sink += s.Seq() + uint32(s.Window())
	})
	_ = sink
	if allocs != 0 {
		t.Errorf("allocs = %v; want 0", allocs)
	}
}

func FuzzDecodeTCPHeader(f *testing.F) {
	f.Add(tcpDecodeBuffer)
	f.Add(tcpSynBuffer[ip4HeaderLength:])
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, b []byte) {
		h, rest, err := DecodeTCPHeader(b)
		if err != nil {
			return
		}
		n := h.HeaderLen()
		if n+len(rest) != len(b) {
			t.Fatalf("header %d + rest %d != input %d", n, len(rest), len(b))
		}
		// Re-encoding reproduces the input except for reserved bits.
		want := bytes.Clone(b[:n])
		want[12] &^= 0x0e
		if got := h.AppendTo(nil); !bytes.Equal(got, want) {
			t.Fatalf("re-encoded %x; want %x", got, want)
		}
		// Reading from a stream agrees with decoding from a slice.
		rh, err := ReadTCPHeader(bytes.NewReader(b))
		if err != nil {
			t.Fatalf("ReadTCPHeader: %v", err)
		}
		if rh != h {
			t.Fatalf("ReadTCPHeader = %v; DecodeTCPHeader = %v", &rh, &h)
		}
	})
}
