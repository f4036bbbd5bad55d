// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import "github.com/pkthdr/pkthdr/types/ipproto"

// TCP4Header is an IPv4+TCP header. Marshal fills in the TCP checksum,
// so TCP.Checksum is ignored.
type TCP4Header struct {
	IP4Header
	TCP TCPHeader
}

// Len implements Header.
func (h TCP4Header) Len() int {
	return ip4HeaderLength + h.TCP.HeaderLen()
}

// Marshal implements Header.
func (h TCP4Header) Marshal(buf []byte) error {
	if len(buf) < h.Len() {
		return errSmallBuffer
	}
	if len(buf) > maxPacketLength {
		return errLargePacket
	}
	// The caller does not need to set this.
	h.IPProto = ipproto.TCP

	seg := buf[ip4HeaderLength:]
	s := TCPHeaderSlice{b: seg[:h.TCP.HeaderLen()]}
	h.TCP.put(s.b)
	sum, err := s.ChecksumIPv4(h.IP4Header, seg[len(s.b):])
	if err != nil {
		return err
	}
	put16(s.b[tcpChecksumOffset:], sum)

	return h.IP4Header.Marshal(buf)
}

// ToResponse swaps the endpoints of h so it addresses the sender of
// the original packet. Sequence numbers are left alone.
func (h *TCP4Header) ToResponse() {
	h.TCP.SrcPort, h.TCP.DstPort = h.TCP.DstPort, h.TCP.SrcPort
	h.IP4Header.ToResponse()
}
