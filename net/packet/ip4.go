// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"net/netip"

	"github.com/pkthdr/pkthdr/types/ipproto"
	"go4.org/netipx"
	"golang.org/x/net/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// ip4HeaderLength is the length of an IPv4 header with no IP options.
const ip4HeaderLength = 20

// IP4Header represents an IPv4 packet header.
type IP4Header struct {
	IPProto ipproto.Proto
	IPID    uint16
	Src     netip.Addr
	Dst     netip.Addr
}

// IP4HeaderFromX converts a header parsed by golang.org/x/net/ipv4 into
// an IP4Header. Only the fields needed to build pseudo-headers and to
// re-marshal the header are carried over.
func IP4HeaderFromX(h *ipv4.Header) (IP4Header, error) {
	src, ok := netipx.FromStdIP(h.Src)
	if !ok || !src.Is4() {
		return IP4Header{}, errAddrFamily
	}
	dst, ok := netipx.FromStdIP(h.Dst)
	if !ok || !dst.Is4() {
		return IP4Header{}, errAddrFamily
	}
	return IP4Header{
		IPProto: ipproto.Proto(h.Protocol),
		IPID:    uint16(h.ID),
		Src:     src,
		Dst:     dst,
	}, nil
}

// Len implements Header.
func (h IP4Header) Len() int {
	return ip4HeaderLength
}

// Marshal implements Header.
func (h IP4Header) Marshal(buf []byte) error {
	if len(buf) < h.Len() {
		return errSmallBuffer
	}
	if len(buf) > maxPacketLength {
		return errLargePacket
	}
	if !h.Src.Is4() || !h.Dst.Is4() {
		return errAddrFamily
	}

	buf[0] = 0x40 | (byte(h.Len() >> 2)) // IPv4 + IHL
	buf[1] = 0x00                        // DSCP + ECN
	put16(buf[2:4], uint16(len(buf)))    // Total length
	put16(buf[4:6], h.IPID)              // ID
	put16(buf[6:8], 0)                   // Flags + fragment offset
	buf[8] = 64                          // TTL
	buf[9] = uint8(h.IPProto)            // Inner protocol
	// Blank checksum. This is necessary even though we overwrite
	// it later, because the checksum computation runs over these
	// bytes and expects them to be zero.
	put16(buf[10:12], 0)
	src, dst := h.Src.As4(), h.Dst.As4()
	copy(buf[12:16], src[:])
	copy(buf[16:20], dst[:])

	put16(buf[10:12], ^checksum.Checksum(buf[0:20], 0))

	return nil
}

// ToResponse swaps the endpoints of h so it addresses the sender of
// the original packet.
func (h *IP4Header) ToResponse() {
	h.Src, h.Dst = h.Dst, h.Src
	// Flip the bits in the IPID. If incoming IPIDs are distinct, so are these.
	h.IPID = ^h.IPID
}

// ip4PseudoHeaderSum returns the folded one's complement sum of the IPv4
// pseudo-header for a transport segment of the given protocol and
// length:
//
//	+--------+--------+--------+--------+
//	|           Source Address          |
//	+--------+--------+--------+--------+
//	|         Destination Address       |
//	+--------+--------+--------+--------+
//	|  zero  |  PTCL  |  Segment Length |
//	+--------+--------+--------+--------+
func ip4PseudoHeaderSum(src, dst [4]byte, proto ipproto.Proto, length uint16) uint16 {
	sum := sumWords(0, src[:])
	sum = sumWords(sum, dst[:])
	sum = checksum.Combine(sum, uint16(proto))
	return checksum.Combine(sum, length)
}
