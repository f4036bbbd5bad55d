// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"fmt"
	"math"

	"github.com/pkthdr/pkthdr/types/ipproto"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// LengthTooLargeError is returned when a TCP segment is too long for
// the length field of the pseudo-header it is checksummed with.
type LengthTooLargeError struct {
	Length uint64
}

func (e *LengthTooLargeError) Error() string {
	return fmt.Sprintf("tcp segment length %d does not fit the pseudo-header", e.Length)
}

// tcpSegmentChecksum finishes the TCP checksum given the folded
// pseudo-header sum. The checksum field of hdr is skipped, so whatever
// it holds does not affect the result.
func tcpSegmentChecksum(pseudo uint16, hdr, payload []byte) uint16 {
	sum := checksum.Checksum(hdr[:tcpChecksumOffset], pseudo)
	sum = checksum.Checksum(hdr[tcpChecksumOffset+2:], sum)
	sum = checksum.Checksum(payload, sum)
	return ^sum
}

// ChecksumIPv4 returns the TCP checksum of the header followed by
// payload, carried in ip. The pseudo-header always uses protocol TCP,
// whatever ip.IPProto holds.
func (s TCPHeaderSlice) ChecksumIPv4(ip IP4Header, payload []byte) (uint16, error) {
	if !ip.Src.Is4() || !ip.Dst.Is4() {
		return 0, errAddrFamily
	}
	return s.ChecksumIPv4Raw(ip.Src.As4(), ip.Dst.As4(), payload)
}

// ChecksumIPv4Raw is like ChecksumIPv4 but takes the addresses
// directly.
func (s TCPHeaderSlice) ChecksumIPv4Raw(src, dst [4]byte, payload []byte) (uint16, error) {
	length := uint64(len(s.b)) + uint64(len(payload))
	if length > math.MaxUint16 {
		return 0, &LengthTooLargeError{Length: length}
	}
	pseudo := ip4PseudoHeaderSum(src, dst, ipproto.TCP, uint16(length))
	return tcpSegmentChecksum(pseudo, s.b, payload), nil
}

// ChecksumIPv6 returns the TCP checksum of the header followed by
// payload, carried in ip. The pseudo-header always uses next header
// TCP, whatever ip.IPProto holds.
func (s TCPHeaderSlice) ChecksumIPv6(ip IP6Header, payload []byte) (uint16, error) {
	if !ip.Src.Is6() || !ip.Dst.Is6() {
		return 0, errAddrFamily
	}
	return s.ChecksumIPv6Raw(ip.Src.As16(), ip.Dst.As16(), payload)
}

// ChecksumIPv6Raw is like ChecksumIPv6 but takes the addresses
// directly.
func (s TCPHeaderSlice) ChecksumIPv6Raw(src, dst [16]byte, payload []byte) (uint16, error) {
	length := uint64(len(s.b)) + uint64(len(payload))
	if length > math.MaxUint32 {
		return 0, &LengthTooLargeError{Length: length}
	}
	pseudo := ip6PseudoHeaderSum(src, dst, ipproto.TCP, uint32(length))
	return tcpSegmentChecksum(pseudo, s.b, payload), nil
}

// fieldsSum adds the words of h as it would be encoded to sum, with
// the checksum field left out.
func (h *TCPHeader) fieldsSum(sum uint16) uint16 {
	word12 := uint16(h.DataOffset())<<12 | uint16(h.Flags())
	if h.NS {
		word12 |= 0x0100
	}
	for _, w := range [...]uint16{
		h.SrcPort, h.DstPort,
		uint16(h.Seq >> 16), uint16(h.Seq),
		uint16(h.Ack >> 16), uint16(h.Ack),
		word12, h.Window, h.Urgent,
	} {
		sum = checksum.Combine(sum, w)
	}
	return sumWords(sum, h.options[:h.optionsLen])
}

// segmentLen returns the length of h followed by payload as a
// pseudo-header would carry it.
func (h *TCPHeader) segmentLen(payload []byte) uint64 {
	return uint64(h.HeaderLen()) + uint64(len(payload))
}

// ChecksumIPv4 returns the checksum h should carry when sent with
// payload in ip. The stored Checksum field is ignored.
func (h *TCPHeader) ChecksumIPv4(ip IP4Header, payload []byte) (uint16, error) {
	if !ip.Src.Is4() || !ip.Dst.Is4() {
		return 0, errAddrFamily
	}
	return h.ChecksumIPv4Raw(ip.Src.As4(), ip.Dst.As4(), payload)
}

// ChecksumIPv4Raw is like ChecksumIPv4 but takes the addresses
// directly.
func (h *TCPHeader) ChecksumIPv4Raw(src, dst [4]byte, payload []byte) (uint16, error) {
	length := h.segmentLen(payload)
	if length > math.MaxUint16 {
		return 0, &LengthTooLargeError{Length: length}
	}
	sum := h.fieldsSum(ip4PseudoHeaderSum(src, dst, ipproto.TCP, uint16(length)))
	return ^checksum.Checksum(payload, sum), nil
}

// ChecksumIPv6 returns the checksum h should carry when sent with
// payload in ip. The stored Checksum field is ignored.
func (h *TCPHeader) ChecksumIPv6(ip IP6Header, payload []byte) (uint16, error) {
	if !ip.Src.Is6() || !ip.Dst.Is6() {
		return 0, errAddrFamily
	}
	return h.ChecksumIPv6Raw(ip.Src.As16(), ip.Dst.As16(), payload)
}

// ChecksumIPv6Raw is like ChecksumIPv6 but takes the addresses
// directly.
func (h *TCPHeader) ChecksumIPv6Raw(src, dst [16]byte, payload []byte) (uint16, error) {
	length := h.segmentLen(payload)
	if length > math.MaxUint32 {
		return 0, &LengthTooLargeError{Length: length}
	}
	sum := h.fieldsSum(ip6PseudoHeaderSum(src, dst, ipproto.TCP, uint32(length)))
	return ^checksum.Checksum(payload, sum), nil
}
