// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"net"
	"net/netip"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkthdr/pkthdr/types/ipproto"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func TestIP4HeaderFromX(t *testing.T) {
	c := qt.New(t)
	xh, err := ipv4.ParseHeader(tcpRequestBuffer)
	c.Assert(err, qt.IsNil)
	h, err := IP4HeaderFromX(xh)
	c.Assert(err, qt.IsNil)
	c.Assert(h, qt.Equals, IP4Header{
		IPProto: ipproto.TCP,
		IPID:    0xdead,
		Src:     testSrc4,
		Dst:     testDst4,
	})

	// The adapted header reproduces the original IP header.
	buf := make([]byte, len(tcpRequestBuffer))
	copy(buf[ip4HeaderLength:], tcpRequestBuffer[ip4HeaderLength:])
	c.Assert(h.Marshal(buf), qt.IsNil)
	c.Assert(buf[:ip4HeaderLength], qt.DeepEquals, tcpRequestBuffer[:ip4HeaderLength])

	_, err = IP4HeaderFromX(&ipv4.Header{Src: net.ParseIP("::1"), Dst: net.ParseIP("1.2.3.4")})
	c.Assert(err, qt.Equals, errAddrFamily)
}

func TestIP6HeaderFromX(t *testing.T) {
	c := qt.New(t)
	want := IP6Header{
		IPProto: ipproto.TCP,
		IPID:    0xabcde,
		Src:     netip.MustParseAddr("2001:db8::1"),
		Dst:     netip.MustParseAddr("2001:db8::2"),
	}
	b, err := Generate(TCP6Header{IP6Header: want, TCP: NewTCPHeader(1, 2, 3, 4)}, nil)
	c.Assert(err, qt.IsNil)

	xh, err := ipv6.ParseHeader(b)
	c.Assert(err, qt.IsNil)
	c.Assert(xh.PayloadLen, qt.Equals, tcpHeaderLength)
	got, err := IP6HeaderFromX(xh)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, want)

	_, err = IP6HeaderFromX(&ipv6.Header{Src: net.IP{1, 2, 3, 4}, Dst: net.ParseIP("::2")})
	c.Assert(err, qt.Equals, errAddrFamily)
}

func TestIPToResponse(t *testing.T) {
	c := qt.New(t)
	h4 := IP4Header{IPID: 0xdead, Src: testSrc4, Dst: testDst4}
	h4.ToResponse()
	c.Assert(h4, qt.Equals, IP4Header{IPID: 0x2152, Src: testDst4, Dst: testSrc4})

	a, b := netip.MustParseAddr("fe80::1"), netip.MustParseAddr("fe80::2")
	h6 := IP6Header{IPID: 0x00001, Src: a, Dst: b}
	h6.ToResponse()
	c.Assert(h6, qt.Equals, IP6Header{IPID: 0xffffe, Src: b, Dst: a})
}
