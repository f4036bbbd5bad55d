// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package packet contains encoders and decoders for TCP headers, their
// options, and the IP and UDP headers they travel with.
package packet

import (
	"encoding/binary"
	"fmt"
	"strings"

	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// TCP flag bits as they appear in byte 13 of a TCP header. NS lives
// in the low bit of byte 12 and is reported separately.
const (
	TCPFin    = 0x01
	TCPSyn    = 0x02
	TCPRst    = 0x04
	TCPPsh    = 0x08
	TCPAck    = 0x10
	TCPUrg    = 0x20
	TCPECE    = 0x40
	TCPCWR    = 0x80
	TCPSynAck = TCPSyn | TCPAck
)

var (
	get16 = binary.BigEndian.Uint16
	get32 = binary.BigEndian.Uint32

	put16 = binary.BigEndian.PutUint16
	put32 = binary.BigEndian.PutUint32
)

// sumWords adds the big-endian 16-bit words of b to sum in one's
// complement arithmetic. An odd trailing byte is padded with zero.
//
// Unlike checksum.Checksum it does not retain b, so b may point into a
// stack array without moving it to the heap.
func sumWords(sum uint16, b []byte) uint16 {
	for ; len(b) >= 2; b = b[2:] {
		sum = checksum.Combine(sum, get16(b))
	}
	if len(b) == 1 {
		sum = checksum.Combine(sum, uint16(b[0])<<8)
	}
	return sum
}

// Hexdump returns a canonical hex+ASCII dump of b, 16 bytes per line.
func Hexdump(b []byte) string {
	out := new(strings.Builder)
	for i := 0; i < len(b); i += 16 {
		if i > 0 {
			fmt.Fprintf(out, "\n")
		}
		fmt.Fprintf(out, "  %04x  ", i)
		j := 0
		for ; j < 16 && i+j < len(b); j++ {
			if j == 8 {
				fmt.Fprintf(out, " ")
			}
			fmt.Fprintf(out, "%02x ", b[i+j])
		}
		for ; j < 16; j++ {
			if j == 8 {
				fmt.Fprintf(out, " ")
			}
			fmt.Fprintf(out, "   ")
		}
		fmt.Fprintf(out, " ")
		for j = 0; j < 16 && i+j < len(b); j++ {
			if b[i+j] >= 32 && b[i+j] < 128 {
				fmt.Fprintf(out, "%c", b[i+j])
			} else {
				fmt.Fprintf(out, ".")
			}
		}
	}
	return out.String()
}
