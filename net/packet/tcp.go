// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

const (
	// tcpHeaderLength is the length of a TCP header with no options.
	tcpHeaderLength = 20
	// tcpMaxHeaderLength is the length of a TCP header with a full
	// options region.
	tcpMaxHeaderLength = tcpHeaderLength + MaxTCPOptionsLen
	// tcpChecksumOffset is where the checksum sits within the header.
	tcpChecksumOffset = 16
)

// Data offset bounds, in 32-bit words.
const (
	TCPMinDataOffset = tcpHeaderLength / 4
	TCPMaxDataOffset = tcpMaxHeaderLength / 4
)

// DataOffsetTooSmallError is returned when a header's data offset is
// below TCPMinDataOffset.
type DataOffsetTooSmallError struct {
	DataOffset uint8
}

func (e *DataOffsetTooSmallError) Error() string {
	return fmt.Sprintf("tcp data offset %d is below the minimum of %d", e.DataOffset, TCPMinDataOffset)
}

// TCPHeader is a decoded TCP header, options included. The data offset
// is not stored; it follows from the options length. TCPHeader values
// are comparable with ==.
type TCPHeader struct {
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Ack     uint32

	NS  bool // ECN-nonce concealment protection (RFC 3540)
	CWR bool
	ECE bool
	URG bool
	ACK bool
	PSH bool
	RST bool
	SYN bool
	FIN bool

	Window   uint16
	Checksum uint16
	Urgent   uint16

	options    [MaxTCPOptionsLen]byte
	optionsLen uint8 // always a multiple of 4
}

// NewTCPHeader returns a header with the given ports and sequence
// numbers, no flags set, and no options.
func NewTCPHeader(srcPort, dstPort uint16, seq, ack uint32) TCPHeader {
	return TCPHeader{
		SrcPort: srcPort,
		DstPort: dstPort,
		Seq:     seq,
		Ack:     ack,
	}
}

// DataOffset returns the header length in 32-bit words.
func (h *TCPHeader) DataOffset() uint8 {
	return TCPMinDataOffset + h.optionsLen/4
}

// HeaderLen returns the header length in bytes.
func (h *TCPHeader) HeaderLen() int {
	return tcpHeaderLength + int(h.optionsLen)
}

// Len implements Header.
func (h *TCPHeader) Len() int {
	return h.HeaderLen()
}

// OptionsLen returns the length of the options region in bytes.
func (h *TCPHeader) OptionsLen() int {
	return int(h.optionsLen)
}

// Options returns the options region, padding included. The returned
// slice aliases h.
func (h *TCPHeader) Options() []byte {
	return h.options[:h.optionsLen]
}

// OptionsIterator returns an iterator over the options of h.
func (h *TCPHeader) OptionsIterator() *TCPOptionsIterator {
	return NewTCPOptionsIterator(h.Options())
}

// Flags returns the flag bits as they appear in byte 13 of the header.
// NS is not included.
func (h *TCPHeader) Flags() uint8 {
	var f uint8
	if h.FIN {
		f |= TCPFin
	}
	if h.SYN {
		f |= TCPSyn
	}
	if h.RST {
		f |= TCPRst
	}
	if h.PSH {
		f |= TCPPsh
	}
	if h.ACK {
		f |= TCPAck
	}
	if h.URG {
		f |= TCPUrg
	}
	if h.ECE {
		f |= TCPECE
	}
	if h.CWR {
		f |= TCPCWR
	}
	return f
}

// SetFlags sets the eight flags of byte 13 from f. NS is unchanged.
func (h *TCPHeader) SetFlags(f uint8) {
	h.FIN = f&TCPFin != 0
	h.SYN = f&TCPSyn != 0
	h.RST = f&TCPRst != 0
	h.PSH = f&TCPPsh != 0
	h.ACK = f&TCPAck != 0
	h.URG = f&TCPUrg != 0
	h.ECE = f&TCPECE != 0
	h.CWR = f&TCPCWR != 0
}

// Marshal implements Header. Only the header is written; the checksum
// field is written as stored and bytes past HeaderLen are untouched.
func (h *TCPHeader) Marshal(buf []byte) error {
	n := h.HeaderLen()
	if len(buf) < n {
		return errSmallBuffer
	}
	h.put(buf[:n])
	return nil
}

// AppendTo appends the encoded header to b.
func (h *TCPHeader) AppendTo(b []byte) []byte {
	n := len(b)
	b = slices.Grow(b, h.HeaderLen())[:n+h.HeaderLen()]
	h.put(b[n:])
	return b
}

// WriteTo writes the encoded header to w in a single Write call.
func (h *TCPHeader) WriteTo(w io.Writer) (int64, error) {
	var buf [tcpMaxHeaderLength]byte
	b := buf[:h.HeaderLen()]
	h.put(b)
	n, err := w.Write(b)
	return int64(n), err
}

// put encodes h into b, which must be exactly HeaderLen bytes. The
// reserved bits are always written as zero.
func (h *TCPHeader) put(b []byte) {
	_ = b[tcpHeaderLength-1]
	put16(b[0:2], h.SrcPort)
	put16(b[2:4], h.DstPort)
	put32(b[4:8], h.Seq)
	put32(b[8:12], h.Ack)
	b[12] = h.DataOffset() << 4
	if h.NS {
		b[12] |= 0x01
	}
	b[13] = h.Flags()
	put16(b[14:16], h.Window)
	put16(b[16:18], h.Checksum)
	put16(b[18:20], h.Urgent)
	copy(b[tcpHeaderLength:], h.options[:h.optionsLen])
}

// ReadTCPHeader reads one TCP header from r. It reads the fixed
// 20 bytes first and then exactly as many option bytes as the data
// offset announces, so r is left positioned at the payload.
//
// Errors from r are returned unchanged, except that running out of
// input after the fixed part is reported as io.ErrUnexpectedEOF.
func ReadTCPHeader(r io.Reader) (TCPHeader, error) {
	var buf [tcpMaxHeaderLength]byte
	if _, err := io.ReadFull(r, buf[:tcpHeaderLength]); err != nil {
		return TCPHeader{}, err
	}
	off := buf[12] >> 4
	if off < TCPMinDataOffset {
		return TCPHeader{}, &DataOffsetTooSmallError{DataOffset: off}
	}
	n := int(off) * 4
	if _, err := io.ReadFull(r, buf[tcpHeaderLength:n]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return TCPHeader{}, err
	}
	return TCPHeaderSlice{b: buf[:n]}.ToHeader(), nil
}

// DecodeTCPHeader decodes the TCP header at the start of b and returns
// it along with the bytes that follow it.
func DecodeTCPHeader(b []byte) (TCPHeader, []byte, error) {
	s, err := NewTCPHeaderSlice(b)
	if err != nil {
		return TCPHeader{}, nil, err
	}
	return s.ToHeader(), b[s.HeaderLen():], nil
}

// String returns a one-line description of h.
func (h *TCPHeader) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TCP{%d > %d seq=%d ack=%d off=%d flags=%s win=%d csum=0x%04x urg=%d",
		h.SrcPort, h.DstPort, h.Seq, h.Ack, h.DataOffset(),
		tcpFlagString(h.NS, h.Flags()), h.Window, h.Checksum, h.Urgent)
	if h.optionsLen > 0 {
		sb.WriteString(" opts=[")
		first := true
		for opt, err := range h.OptionsIterator().All() {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			if err != nil {
				fmt.Fprintf(&sb, "!%v", err)
				break
			}
			sb.WriteString(opt.String())
		}
		sb.WriteByte(']')
	}
	sb.WriteByte('}')
	return sb.String()
}

var tcpFlagNames = [...]struct {
	bit  uint8
	name string
}{
	{TCPCWR, "CWR"},
	{TCPECE, "ECE"},
	{TCPUrg, "URG"},
	{TCPAck, "ACK"},
	{TCPPsh, "PSH"},
	{TCPRst, "RST"},
	{TCPSyn, "SYN"},
	{TCPFin, "FIN"},
}

// tcpFlagString renders the set flags joined by '|', most significant
// first, or "none".
func tcpFlagString(ns bool, flags uint8) string {
	var names []string
	if ns {
		names = append(names, "NS")
	}
	for _, f := range tcpFlagNames {
		if flags&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
