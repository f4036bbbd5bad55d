// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"github.com/pkthdr/pkthdr/types/ipproto"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// UDP6Header is an IPv6+UDP header.
type UDP6Header struct {
	IP6Header
	SrcPort uint16
	DstPort uint16
}

// Len implements Header.
func (h UDP6Header) Len() int {
	return h.IP6Header.Len() + udpHeaderLength
}

// Marshal implements Header.
func (h UDP6Header) Marshal(buf []byte) error {
	if len(buf) < h.Len() {
		return errSmallBuffer
	}
	if len(buf)-ip6HeaderLength > maxPacketLength {
		return errLargePacket
	}
	if !h.Src.Is6() || !h.Dst.Is6() {
		return errAddrFamily
	}
	// The caller does not need to set this.
	h.IPProto = ipproto.UDP

	seg := buf[ip6HeaderLength:]
	put16(seg[0:2], h.SrcPort)
	put16(seg[2:4], h.DstPort)
	put16(seg[4:6], uint16(len(seg)))
	put16(seg[6:8], 0) // blank checksum

	// UDP checksum with IP pseudo header.
	sum := ip6PseudoHeaderSum(h.Src.As16(), h.Dst.As16(), ipproto.UDP, uint32(len(seg)))
	put16(seg[6:8], udpChecksum(checksum.Checksum(seg, sum)))

	return h.IP6Header.Marshal(buf)
}

// ToResponse swaps the endpoints of h so it addresses the sender of
// the original packet.
func (h *UDP6Header) ToResponse() {
	h.SrcPort, h.DstPort = h.DstPort, h.SrcPort
	h.IP6Header.ToResponse()
}
