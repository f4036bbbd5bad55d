// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"github.com/pkthdr/pkthdr/types/ipproto"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// UDP4Header is an IPv4+UDP header.
type UDP4Header struct {
	IP4Header
	SrcPort uint16
	DstPort uint16
}

const (
	udpHeaderLength = 8
	// udpTotalHeaderLength is the length of all headers in a UDP packet.
	udpTotalHeaderLength = ip4HeaderLength + udpHeaderLength
)

// Len implements Header.
func (UDP4Header) Len() int {
	return udpTotalHeaderLength
}

// Marshal implements Header.
func (h UDP4Header) Marshal(buf []byte) error {
	if len(buf) < udpTotalHeaderLength {
		return errSmallBuffer
	}
	if len(buf) > maxPacketLength {
		return errLargePacket
	}
	if !h.Src.Is4() || !h.Dst.Is4() {
		return errAddrFamily
	}
	// The caller does not need to set this.
	h.IPProto = ipproto.UDP

	seg := buf[ip4HeaderLength:]
	put16(seg[0:2], h.SrcPort)
	put16(seg[2:4], h.DstPort)
	put16(seg[4:6], uint16(len(seg)))
	put16(seg[6:8], 0) // blank checksum

	// UDP checksum with IP pseudo header.
	sum := ip4PseudoHeaderSum(h.Src.As4(), h.Dst.As4(), ipproto.UDP, uint16(len(seg)))
	put16(seg[6:8], udpChecksum(checksum.Checksum(seg, sum)))

	return h.IP4Header.Marshal(buf)
}

// ToResponse swaps the endpoints of h so it addresses the sender of
// the original packet.
func (h *UDP4Header) ToResponse() {
	h.SrcPort, h.DstPort = h.DstPort, h.SrcPort
	h.IP4Header.ToResponse()
}

// udpChecksum finalizes a UDP checksum. A computed zero is transmitted
// as all ones because zero means "no checksum" (RFC 768).
func udpChecksum(sum uint16) uint16 {
	if xsum := ^sum; xsum != 0 {
		return xsum
	}
	return 0xffff
}
