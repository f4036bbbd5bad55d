// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import "github.com/pkthdr/pkthdr/types/ipproto"

// TCP6Header is an IPv6+TCP header. Marshal fills in the TCP checksum,
// so TCP.Checksum is ignored.
type TCP6Header struct {
	IP6Header
	TCP TCPHeader
}

// Len implements Header.
func (h TCP6Header) Len() int {
	return ip6HeaderLength + h.TCP.HeaderLen()
}

// Marshal implements Header.
func (h TCP6Header) Marshal(buf []byte) error {
	if len(buf) < h.Len() {
		return errSmallBuffer
	}
	if len(buf) > maxPacketLength+ip6HeaderLength {
		return errLargePacket
	}
	// The caller does not need to set this.
	h.IPProto = ipproto.TCP

	seg := buf[ip6HeaderLength:]
	s := TCPHeaderSlice{b: seg[:h.TCP.HeaderLen()]}
	h.TCP.put(s.b)
	sum, err := s.ChecksumIPv6(h.IP6Header, seg[len(s.b):])
	if err != nil {
		return err
	}
	put16(s.b[tcpChecksumOffset:], sum)

	return h.IP6Header.Marshal(buf)
}

// ToResponse swaps the endpoints of h so it addresses the sender of
// the original packet. Sequence numbers are left alone.
func (h *TCP6Header) ToResponse() {
	h.TCP.SrcPort, h.TCP.DstPort = h.TCP.DstPort, h.TCP.SrcPort
	h.IP6Header.ToResponse()
}
