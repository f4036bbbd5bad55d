// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package ipproto contains IP Protocol constants.
package ipproto

import (
	"fmt"
	"strconv"
	"strings"
)

// Version describes the IP address version.
type Version uint8

// Valid Version values.
const (
	Version4 = 4
	Version6 = 6
)

// Proto is an IP subprotocol as defined by the IANA protocol
// numbers list
// (https://www.iana.org/assignments/protocol-numbers/protocol-numbers.xhtml),
// or the special values Unknown or Fragment.
type Proto uint8

const (
	// Unknown represents an unknown or unsupported protocol; it's
	// deliberately the zero value. Strictly speaking the zero
	// value is IPv6 hop-by-hop extensions, but we don't support
	// those, so this is still technically correct.
	Unknown Proto = 0x00

	ICMPv4 Proto = 0x01
	IGMP   Proto = 0x02
	ICMPv6 Proto = 0x3a
	TCP    Proto = 0x06
	UDP    Proto = 0x11
	GRE    Proto = 0x2f
	SCTP   Proto = 0x84

	// Fragment represents any non-first IP fragment, for which we
	// don't have the sub-protocol header (and therefore can't
	// figure out what the sub-protocol is).
	//
	// 0xFF is reserved in the IANA registry, so we steal it for
	// internal use.
	Fragment Proto = 0xFF
)

var protoNames = map[Proto]string{
	Unknown:  "Unknown",
	ICMPv4:   "ICMPv4",
	IGMP:     "IGMP",
	ICMPv6:   "ICMPv6",
	TCP:      "TCP",
	UDP:      "UDP",
	GRE:      "GRE",
	SCTP:     "SCTP",
	Fragment: "Fragment",
}

func (p Proto) String() string {
	if s, ok := protoNames[p]; ok {
		return s
	}
	return "IPProto-" + strconv.Itoa(int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Proto) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts both
// the names returned by String and decimal protocol numbers.
func (p *Proto) UnmarshalText(b []byte) error {
	s := string(b)
	for proto, name := range protoNames {
		if name == s {
			*p = proto
			return nil
		}
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "IPProto-"), 10, 8)
	if err != nil {
		return fmt.Errorf("unknown IP protocol %q", s)
	}
	*p = Proto(n)
	return nil
}
