// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"fmt"
	"io"
)

// ShortBufferError is returned when a buffer ends before the TCP header
// it should hold. It matches io.ErrUnexpectedEOF with errors.Is.
type ShortBufferError struct {
	Need int // bytes required
	Have int // bytes available
}

func (e *ShortBufferError) Error() string {
	return fmt.Sprintf("tcp header needs %d bytes, buffer has %d", e.Need, e.Have)
}

func (e *ShortBufferError) Unwrap() error { return io.ErrUnexpectedEOF }

// TCPHeaderSlice is a read-only view of an encoded TCP header. It is
// validated once by NewTCPHeaderSlice; the accessors decode fields on
// demand without copying.
type TCPHeaderSlice struct {
	b []byte // exactly the header, options included
}

// NewTCPHeaderSlice validates the TCP header at the start of b and
// returns a view of it. Bytes after the header are not part of the view.
func NewTCPHeaderSlice(b []byte) (TCPHeaderSlice, error) {
	if len(b) < tcpHeaderLength {
		return TCPHeaderSlice{}, &ShortBufferError{Need: tcpHeaderLength, Have: len(b)}
	}
	off := b[12] >> 4
	if off < TCPMinDataOffset {
		return TCPHeaderSlice{}, &DataOffsetTooSmallError{DataOffset: off}
	}
	n := int(off) * 4
	if len(b) < n {
		return TCPHeaderSlice{}, &ShortBufferError{Need: n, Have: len(b)}
	}
	return TCPHeaderSlice{b: b[:n:n]}, nil
}

// Bytes returns the viewed header bytes.
func (s TCPHeaderSlice) Bytes() []byte { return s.b }

func (s TCPHeaderSlice) SrcPort() uint16   { return get16(s.b[0:2]) }
func (s TCPHeaderSlice) DstPort() uint16   { return get16(s.b[2:4]) }
func (s TCPHeaderSlice) Seq() uint32       { return get32(s.b[4:8]) }
func (s TCPHeaderSlice) Ack() uint32       { return get32(s.b[8:12]) }
func (s TCPHeaderSlice) DataOffset() uint8 { return s.b[12] >> 4 }
func (s TCPHeaderSlice) NS() bool          { return s.b[12]&0x01 != 0 }
func (s TCPHeaderSlice) Flags() uint8      { return s.b[13] }
func (s TCPHeaderSlice) CWR() bool         { return s.b[13]&TCPCWR != 0 }
func (s TCPHeaderSlice) ECE() bool         { return s.b[13]&TCPECE != 0 }
func (s TCPHeaderSlice) URG() bool         { return s.b[13]&TCPUrg != 0 }
func (s TCPHeaderSlice) ACK() bool         { return s.b[13]&TCPAck != 0 }
func (s TCPHeaderSlice) PSH() bool         { return s.b[13]&TCPPsh != 0 }
func (s TCPHeaderSlice) RST() bool         { return s.b[13]&TCPRst != 0 }
func (s TCPHeaderSlice) SYN() bool         { return s.b[13]&TCPSyn != 0 }
func (s TCPHeaderSlice) FIN() bool         { return s.b[13]&TCPFin != 0 }
func (s TCPHeaderSlice) Window() uint16    { return get16(s.b[14:16]) }
func (s TCPHeaderSlice) Checksum() uint16  { return get16(s.b[16:18]) }
func (s TCPHeaderSlice) Urgent() uint16    { return get16(s.b[18:20]) }

// HeaderLen returns the header length in bytes.
func (s TCPHeaderSlice) HeaderLen() int { return len(s.b) }

// Len implements Header.
func (s TCPHeaderSlice) Len() int { return len(s.b) }

// Marshal implements Header by copying the viewed bytes verbatim,
// reserved bits included.
func (s TCPHeaderSlice) Marshal(buf []byte) error {
	if len(buf) < len(s.b) {
		return errSmallBuffer
	}
	copy(buf, s.b)
	return nil
}

// Options returns the options region of the header.
func (s TCPHeaderSlice) Options() []byte {
	return s.b[tcpHeaderLength:]
}

// OptionsIterator returns an iterator over the header's options.
func (s TCPHeaderSlice) OptionsIterator() *TCPOptionsIterator {
	return NewTCPOptionsIterator(s.Options())
}

// ToHeader decodes the view into an owned TCPHeader. Reserved bits are
// dropped.
func (s TCPHeaderSlice) ToHeader() TCPHeader {
	h := TCPHeader{
		SrcPort:  s.SrcPort(),
		DstPort:  s.DstPort(),
		Seq:      s.Seq(),
		Ack:      s.Ack(),
		NS:       s.NS(),
		Window:   s.Window(),
		Checksum: s.Checksum(),
		Urgent:   s.Urgent(),
	}
	h.SetFlags(s.Flags())
	h.optionsLen = uint8(copy(h.options[:], s.Options()))
	return h
}
