// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"net/netip"

	"github.com/pkthdr/pkthdr/types/ipproto"
	"go4.org/netipx"
	"golang.org/x/net/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// ip6HeaderLength is the length of an IPv6 header with no IP options.
const ip6HeaderLength = 40

// IP6Header represents an IPv6 packet header.
type IP6Header struct {
	IPProto ipproto.Proto
	IPID    uint32 // only lower 20 bits used
	Src     netip.Addr
	Dst     netip.Addr
}

// IP6HeaderFromX converts a header parsed by golang.org/x/net/ipv6 into
// an IP6Header. The flow label is carried in IPID.
func IP6HeaderFromX(h *ipv6.Header) (IP6Header, error) {
	src, ok := netipx.FromStdIPRaw(h.Src)
	if !ok || !src.Is6() {
		return IP6Header{}, errAddrFamily
	}
	dst, ok := netipx.FromStdIPRaw(h.Dst)
	if !ok || !dst.Is6() {
		return IP6Header{}, errAddrFamily
	}
	return IP6Header{
		IPProto: ipproto.Proto(h.NextHeader),
		IPID:    uint32(h.FlowLabel) & 0x000FFFFF,
		Src:     src,
		Dst:     dst,
	}, nil
}

// Len implements Header.
func (h IP6Header) Len() int {
	return ip6HeaderLength
}

// Marshal implements Header.
func (h IP6Header) Marshal(buf []byte) error {
	if len(buf) < h.Len() {
		return errSmallBuffer
	}
	if len(buf) > maxPacketLength+ip6HeaderLength {
		return errLargePacket
	}
	if !h.Src.Is6() || !h.Dst.Is6() {
		return errAddrFamily
	}

	put32(buf[:4], h.IPID&0x000FFFFF)
	buf[0] = 0x60
	put16(buf[4:6], uint16(len(buf)-ip6HeaderLength)) // Payload length
	buf[6] = uint8(h.IPProto)                         // Inner protocol
	buf[7] = 64                                       // Hop limit
	src, dst := h.Src.As16(), h.Dst.As16()
	copy(buf[8:24], src[:])
	copy(buf[24:40], dst[:])

	return nil
}

// ToResponse swaps the endpoints of h so it addresses the sender of
// the original packet.
func (h *IP6Header) ToResponse() {
	h.Src, h.Dst = h.Dst, h.Src
	// Flip the bits in the IPID. If incoming IPIDs are distinct, so are these.
	h.IPID = (^h.IPID) & 0x000FFFFF
}

// ip6PseudoHeaderSum returns the folded one's complement sum of the
// IPv6 pseudo-header. Unlike IPv4 the upper-layer length is 32 bits
// wide and the next header value sits in the last byte.
func ip6PseudoHeaderSum(src, dst [16]byte, proto ipproto.Proto, length uint32) uint16 {
	sum := sumWords(0, src[:])
	sum = sumWords(sum, dst[:])
	sum = checksum.Combine(sum, uint16(length>>16))
	sum = checksum.Combine(sum, uint16(length))
	return checksum.Combine(sum, uint16(proto))
}
