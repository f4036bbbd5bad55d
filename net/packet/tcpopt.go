// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// MaxTCPOptionsLen is the largest options region a TCP header can
// carry: a 4-bit data offset of 15 words minus the 5 fixed words.
const MaxTCPOptionsLen = 40

// TCPOptionKind is a TCP option kind number, as registered in
// https://www.iana.org/assignments/tcp-parameters/tcp-parameters.xhtml.
type TCPOptionKind uint8

const (
	TCPOptionKindEnd           TCPOptionKind = 0
	TCPOptionKindNOP           TCPOptionKind = 1
	TCPOptionKindMSS           TCPOptionKind = 2
	TCPOptionKindWindowScale   TCPOptionKind = 3
	TCPOptionKindSACKPermitted TCPOptionKind = 4
	TCPOptionKindSACK          TCPOptionKind = 5
	TCPOptionKindTimestamp     TCPOptionKind = 8
)

func (k TCPOptionKind) String() string {
	switch k {
	case TCPOptionKindEnd:
		return "END"
	case TCPOptionKindNOP:
		return "NOP"
	case TCPOptionKindMSS:
		return "MSS"
	case TCPOptionKindWindowScale:
		return "WS"
	case TCPOptionKindSACKPermitted:
		return "SACK_PERM"
	case TCPOptionKindSACK:
		return "SACK"
	case TCPOptionKindTimestamp:
		return "TS"
	default:
		return "kind-" + strconv.Itoa(int(k))
	}
}

// Total on-wire lengths, including the kind and length bytes.
const (
	tcpOptionLenMSS           = 4
	tcpOptionLenWindowScale   = 3
	tcpOptionLenSACKPermitted = 2
	tcpOptionLenTimestamp     = 10
	tcpOptionLenSACKBase      = 2
	sackBlockLen              = 8
	maxSACKBlocks             = 4
)

// TCPOption is one element of a TCP options region. The set of
// implementations is closed: TCPOptionEnd, TCPOptionNOP, TCPOptionMSS,
// TCPOptionWindowScale, TCPOptionSACKPermitted, TCPOptionSACK and
// TCPOptionTimestamp.
type TCPOption interface {
	fmt.Stringer
	// Kind returns the option kind number written on the wire.
	Kind() TCPOptionKind
	// Len returns the number of bytes the option occupies on the wire.
	Len() int

	appendTo(b []byte) []byte
}

// AppendTCPOption appends the wire encoding of opt to b.
func AppendTCPOption(b []byte, opt TCPOption) []byte {
	return opt.appendTo(b)
}

// TCPOptionEnd marks the end of the option list. Bytes following it
// are padding.
type TCPOptionEnd struct{}

func (TCPOptionEnd) Kind() TCPOptionKind { return TCPOptionKindEnd }
func (TCPOptionEnd) Len() int            { return 1 }
func (TCPOptionEnd) String() string      { return "END" }

func (TCPOptionEnd) appendTo(b []byte) []byte {
	return append(b, byte(TCPOptionKindEnd))
}

// TCPOptionNOP is a single padding byte between options.
type TCPOptionNOP struct{}

func (TCPOptionNOP) Kind() TCPOptionKind { return TCPOptionKindNOP }
func (TCPOptionNOP) Len() int            { return 1 }
func (TCPOptionNOP) String() string      { return "NOP" }

func (TCPOptionNOP) appendTo(b []byte) []byte {
	return append(b, byte(TCPOptionKindNOP))
}

// TCPOptionSACKPermitted announces selective acknowledgement support
// (RFC 2018). It is only meaningful on SYN segments.
type TCPOptionSACKPermitted struct{}

func (TCPOptionSACKPermitted) Kind() TCPOptionKind { return TCPOptionKindSACKPermitted }
func (TCPOptionSACKPermitted) Len() int            { return tcpOptionLenSACKPermitted }
func (TCPOptionSACKPermitted) String() string      { return "SACK_PERM" }

func (TCPOptionSACKPermitted) appendTo(b []byte) []byte {
	return append(b, byte(TCPOptionKindSACKPermitted), tcpOptionLenSACKPermitted)
}

// TCPOptionMSS is the maximum segment size option (RFC 9293).
type TCPOptionMSS uint16

func (TCPOptionMSS) Kind() TCPOptionKind { return TCPOptionKindMSS }
func (TCPOptionMSS) Len() int            { return tcpOptionLenMSS }
func (o TCPOptionMSS) String() string    { return "MSS(" + strconv.Itoa(int(o)) + ")" }

func (o TCPOptionMSS) appendTo(b []byte) []byte {
	b = append(b, byte(TCPOptionKindMSS), tcpOptionLenMSS)
	return binary.BigEndian.AppendUint16(b, uint16(o))
}

// TCPOptionWindowScale is the window scale shift count (RFC 7323).
type TCPOptionWindowScale uint8

func (TCPOptionWindowScale) Kind() TCPOptionKind { return TCPOptionKindWindowScale }
func (TCPOptionWindowScale) Len() int            { return tcpOptionLenWindowScale }
func (o TCPOptionWindowScale) String() string    { return "WS(" + strconv.Itoa(int(o)) + ")" }

func (o TCPOptionWindowScale) appendTo(b []byte) []byte {
	return append(b, byte(TCPOptionKindWindowScale), tcpOptionLenWindowScale, byte(o))
}

// TCPOptionTimestamp is the timestamps option (RFC 7323).
type TCPOptionTimestamp struct {
	Value uint32 // TSval
	Echo  uint32 // TSecr
}

func (TCPOptionTimestamp) Kind() TCPOptionKind { return TCPOptionKindTimestamp }
func (TCPOptionTimestamp) Len() int            { return tcpOptionLenTimestamp }

func (o TCPOptionTimestamp) String() string {
	return fmt.Sprintf("TS(val=%d,ecr=%d)", o.Value, o.Echo)
}

func (o TCPOptionTimestamp) appendTo(b []byte) []byte {
	b = append(b, byte(TCPOptionKindTimestamp), tcpOptionLenTimestamp)
	b = binary.BigEndian.AppendUint32(b, o.Value)
	return binary.BigEndian.AppendUint32(b, o.Echo)
}

// SACKBlock is one range of received sequence space. Start is the first
// sequence number of the block and End the one immediately following it.
type SACKBlock struct {
	Start uint32
	End   uint32
}

// TCPOptionSACK is the selective acknowledgement option (RFC 2018). It
// always carries at least one block and at most four. The zero value
// holds a single {0, 0} block.
type TCPOptionSACK struct {
	blocks [maxSACKBlocks]SACKBlock
	extra  uint8 // blocks in use beyond the first
}

// NewTCPOptionSACK returns a SACK option holding first followed by more.
// It panics if more than three additional blocks are given.
func NewTCPOptionSACK(first SACKBlock, more ...SACKBlock) TCPOptionSACK {
	if len(more) > maxSACKBlocks-1 {
		panic("packet: too many SACK blocks")
	}
	o := TCPOptionSACK{extra: uint8(len(more))}
	o.blocks[0] = first
	copy(o.blocks[1:], more)
	return o
}

// Blocks returns the blocks carried by o, in wire order.
func (o TCPOptionSACK) Blocks() []SACKBlock {
	return o.blocks[:1+o.extra]
}

func (TCPOptionSACK) Kind() TCPOptionKind { return TCPOptionKindSACK }

func (o TCPOptionSACK) Len() int {
	return tcpOptionLenSACKBase + sackBlockLen*(1+int(o.extra))
}

func (o TCPOptionSACK) String() string {
	var sb strings.Builder
	sb.WriteString("SACK[")
	for i, blk := range o.Blocks() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d-%d", blk.Start, blk.End)
	}
	sb.WriteByte(']')
	return sb.String()
}

func (o TCPOptionSACK) appendTo(b []byte) []byte {
	b = append(b, byte(TCPOptionKindSACK), byte(o.Len()))
	for _, blk := range o.Blocks() {
		b = binary.BigEndian.AppendUint32(b, blk.Start)
		b = binary.BigEndian.AppendUint32(b, blk.End)
	}
	return b
}

// NotEnoughSpaceError is returned when options do not fit in the
// 40 byte options region of a TCP header.
type NotEnoughSpaceError struct {
	// Required is the number of bytes the options would have needed,
	// including the end of list marker.
	Required int
}

func (e *NotEnoughSpaceError) Error() string {
	return fmt.Sprintf("tcp options need %d bytes, at most %d fit", e.Required, MaxTCPOptionsLen)
}

// SetOptions replaces the options of h with opts, in order. The list is
// terminated by an end of list marker and zero padded to a 32-bit
// boundary. The marker is not added if opts is empty or already ends
// with TCPOptionEnd.
//
// If the encoded options exceed MaxTCPOptionsLen, SetOptions returns a
// *NotEnoughSpaceError and h is left unmodified.
func (h *TCPHeader) SetOptions(opts ...TCPOption) error {
	required := 0
	for _, opt := range opts {
		required += opt.Len()
	}
	if len(opts) > 0 {
		if _, ok := opts[len(opts)-1].(TCPOptionEnd); !ok {
			required++
		}
	}
	if required > MaxTCPOptionsLen {
		return &NotEnoughSpaceError{Required: required}
	}

	var region [MaxTCPOptionsLen]byte
	b := region[:0]
	for _, opt := range opts {
		b = opt.appendTo(b)
	}
	if len(b) < required {
		b = append(b, byte(TCPOptionKindEnd))
	}
	h.options = region
	h.optionsLen = uint8(wordAlign(len(b)))
	return nil
}

// SetOptionsRaw replaces the options of h with a copy of b, zero
// padded to a 32-bit boundary. The bytes are not validated.
//
// If b is longer than MaxTCPOptionsLen, SetOptionsRaw returns a
// *NotEnoughSpaceError and h is left unmodified.
func (h *TCPHeader) SetOptionsRaw(b []byte) error {
	if len(b) > MaxTCPOptionsLen {
		return &NotEnoughSpaceError{Required: len(b)}
	}
	h.options = [MaxTCPOptionsLen]byte{}
	copy(h.options[:], b)
	h.optionsLen = uint8(wordAlign(len(b)))
	return nil
}

// wordAlign rounds n up to the next multiple of 4.
func wordAlign(n int) int {
	return (n + 3) &^ 3
}
