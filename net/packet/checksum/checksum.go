// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package checksum rewrites addresses and ports in raw IP packets,
// updating the IPv4 header checksum and the TCP or UDP checksum in place.
package checksum

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"github.com/pkthdr/pkthdr/types/ipproto"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

var (
	errShortPacket = errors.New("packet too short")
	errVersion     = errors.New("not an IPv4 or IPv6 packet")
	errAddrFamily  = errors.New("address family mismatch")
	errNoPorts     = errors.New("transport protocol has no ports")
)

// layout locates the parts of a packet that carry checksummed fields.
type layout struct {
	version   int
	proto     ipproto.Proto
	transport []byte
}

func parseLayout(pkt []byte) (layout, error) {
	if len(pkt) < 1 {
		return layout{}, errShortPacket
	}
	switch pkt[0] >> 4 {
	case 4:
		ihl := int(pkt[0]&0x0f) * 4
		if ihl < header.IPv4MinimumSize || len(pkt) < ihl {
			return layout{}, errShortPacket
		}
		return layout{version: 4, proto: ipproto.Proto(pkt[9]), transport: pkt[ihl:]}, nil
	case 6:
		// Extension headers are not walked.
		if len(pkt) < header.IPv6MinimumSize {
			return layout{}, errShortPacket
		}
		return layout{version: 6, proto: ipproto.Proto(pkt[6]), transport: pkt[header.IPv6MinimumSize:]}, nil
	default:
		return layout{}, errVersion
	}
}

// UpdateSrcAddr replaces the source address of pkt with src (e.g. during
// SNAT) and updates the checksums that cover it. Only TCP and UDP
// transport checksums are updated. It returns an error if src is of a
// different family than pkt.
func UpdateSrcAddr(pkt []byte, src netip.Addr) error {
	return updateAddr(pkt, src, true)
}

// UpdateDstAddr replaces the destination address of pkt with dst (e.g.
// during DNAT) and updates the checksums that cover it. Only TCP and
// UDP transport checksums are updated. It returns an error if dst is of
// a different family than pkt.
func UpdateDstAddr(pkt []byte, dst netip.Addr) error {
	return updateAddr(pkt, dst, false)
}

func updateAddr(pkt []byte, addr netip.Addr, isSrc bool) error {
	l, err := parseLayout(pkt)
	if err != nil {
		return err
	}
	var field, new []byte
	switch l.version {
	case 4:
		if !addr.Is4() {
			return errAddrFamily
		}
		a := addr.As4()
		field, new = pkt[12:16], a[:]
		if !isSrc {
			field = pkt[16:20]
		}
		updateChecksum(pkt[10:12], field, new)
	case 6:
		if !addr.Is6() || addr.Is4In6() {
			return errAddrFamily
		}
		a := addr.As16()
		field, new = pkt[8:24], a[:]
		if !isSrc {
			field = pkt[24:40]
		}
	}
	updateTransportChecksum(l, field, new)
	copy(field, new)
	return nil
}

// UpdateSrcPort replaces the TCP or UDP source port of pkt and updates
// the transport checksum.
func UpdateSrcPort(pkt []byte, port uint16) error {
	return updatePort(pkt, port, 0)
}

// UpdateDstPort replaces the TCP or UDP destination port of pkt and
// updates the transport checksum.
func UpdateDstPort(pkt []byte, port uint16) error {
	return updatePort(pkt, port, 2)
}

func updatePort(pkt []byte, port uint16, off int) error {
	l, err := parseLayout(pkt)
	if err != nil {
		return err
	}
	minLen := header.TCPMinimumSize
	switch l.proto {
	case ipproto.TCP:
	case ipproto.UDP:
		minLen = header.UDPMinimumSize
	default:
		return errNoPorts
	}
	if len(l.transport) < minLen {
		return errShortPacket
	}
	var new [2]byte
	binary.BigEndian.PutUint16(new[:], port)
	field := l.transport[off : off+2]
	updateTransportChecksum(l, field, new[:])
	copy(field, new[:])
	return nil
}

// updateTransportChecksum folds the change from old to new into the TCP
// or UDP checksum of l, if it has one.
func updateTransportChecksum(l layout, old, new []byte) {
	tr := l.transport
	switch l.proto {
	case ipproto.UDP:
		if len(tr) < header.UDPMinimumSize {
			// Not enough space for a UDP header.
			return
		}
		if l.version == 4 && binary.BigEndian.Uint16(tr[6:8]) == 0 {
			// Checksum disabled.
			return
		}
		updateChecksum(tr[6:8], old, new)
	case ipproto.TCP:
		if len(tr) < header.TCPMinimumSize {
			// Not enough space for a TCP header.
			return
		}
		updateChecksum(tr[16:18], old, new)
	}
}

// updateChecksum calculates and updates the checksum in the packet buffer for
// a change between old and new. The oldSum must point to the 16-bit checksum
// field in the packet buffer that holds the old checksum value, it will be
// updated in place.
//
// The old and new must be the same length, and must be an even number of bytes.
func updateChecksum(oldSum, old, new []byte) {
	if len(old) != len(new) {
		panic("old and new must be the same length")
	}
	if len(old)%2 != 0 {
		panic("old and new must be of even length")
	}
	/*
		RFC 1624
		    HC' = ~(~HC + ~m + m')
		where HC is the old checksum, m the old value of a 16-bit
		field and m' its new value.
	*/
	cPrime := uint32(^binary.BigEndian.Uint16(oldSum))
	for len(new) > 0 {
		mNot := uint32(^binary.BigEndian.Uint16(old[:2]))
		mPrime := uint32(binary.BigEndian.Uint16(new[:2]))
		cPrime += mPrime + mNot
		new, old = new[2:], old[2:]
	}

	// Account for overflows by adding the carry bits back into the sum.
	for (cPrime >> 16) > 0 {
		cPrime = cPrime&0xFFFF + cPrime>>16
	}
	binary.BigEndian.PutUint16(oldSum, ^uint16(cPrime))
}
