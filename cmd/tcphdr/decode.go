// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/pkthdr/pkthdr/net/packet"
	"github.com/pkthdr/pkthdr/types/ipproto"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

type decodeArgs struct {
	root   *rootArgs
	ip     bool
	verify bool
	pcap   bool
}

func newDecodeCmd(root *rootArgs) *ffcli.Command {
	args := &decodeArgs{root: root}
	fs := newFlagSet("decode")
	fs.BoolVar(&args.ip, "ip", false, "input starts with an IPv4 or IPv6 header")
	fs.BoolVar(&args.verify, "verify", false, "check the TCP checksum against the IP pseudo-header (requires -ip)")
	fs.BoolVar(&args.pcap, "pcap", false, "argument is a raw IP pcapng file to decode packet by packet (implies -ip)")
	return &ffcli.Command{
		Name:       "decode",
		ShortUsage: "tcphdr decode [-ip] [-verify] [-pcap] <hex|file|->",
		ShortHelp:  "Decode a TCP header and its options",
		LongHelp: strings.TrimSpace(`
Decode prints the header fields on one line, then each option on its
own line, then the payload length. Decoding of options stops at the
first malformed option, which is reported.
`),
		FlagSet: fs,
		Options: envOptions,
		Exec:    args.run,
	}
}

var errChecksumMismatch = errors.New("checksum mismatch")

func (a *decodeArgs) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one hex argument, got %d", len(args))
	}
	if a.pcap {
		return a.runPcap(args[0])
	}
	if a.verify && !a.ip {
		return errors.New("-verify requires -ip")
	}
	b, err := readHex(args[0])
	if err != nil {
		return err
	}
	return a.decode(b, a.ip)
}

func (a *decodeArgs) runPcap(path string) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return readPcap(r, func(i int, pkt []byte) error {
		printf("packet %d: %d bytes\n", i, len(pkt))
		if err := a.decode(pkt, true); err != nil {
			return fmt.Errorf("packet %d: %w", i, err)
		}
		return nil
	})
}

// decode prints the TCP header in b and, if withIP is set, the IP
// header in front of it is parsed first.
func (a *decodeArgs) decode(b []byte, withIP bool) error {
	a.root.logf("input: %d bytes\n%s", len(b), packet.Hexdump(b))

	var (
		ip4 *packet.IP4Header
		ip6 *packet.IP6Header
		err error
	)
	if withIP {
		var seg []byte
		ip4, ip6, seg, err = a.decodeIP(b)
		if err != nil {
			return err
		}
		b = seg
	}

	s, err := packet.NewTCPHeaderSlice(b)
	if err != nil {
		return fmt.Errorf("decoding TCP header: %w", err)
	}
	h := s.ToHeader()
	payload := b[s.HeaderLen():]
	outln(h.String())

	var optErr error
	for opt, err := range s.OptionsIterator().All() {
		if err != nil {
			optErr = err
			break
		}
		printf("  option %v\n", opt)
	}
	if optErr != nil {
		printf("  option error: %v\n", optErr)
	}
	printf("payload %d bytes\n", len(payload))

	if !a.verify {
		return nil
	}
	var want uint16
	switch {
	case ip4 != nil:
		want, err = s.ChecksumIPv4(*ip4, payload)
	case ip6 != nil:
		want, err = s.ChecksumIPv6(*ip6, payload)
	}
	if err != nil {
		return err
	}
	if have := s.Checksum(); have != want {
		printf("checksum 0x%04x, want 0x%04x\n", have, want)
		return errChecksumMismatch
	}
	printf("checksum 0x%04x ok\n", want)
	return nil
}

// decodeIP parses the IP header at the start of b and returns the TCP
// segment it carries, truncated to the length the header announces.
func (a *decodeArgs) decodeIP(b []byte) (*packet.IP4Header, *packet.IP6Header, []byte, error) {
	if len(b) == 0 {
		return nil, nil, nil, errors.New("empty input")
	}
	switch b[0] >> 4 {
	case 4:
		xh, err := ipv4.ParseHeader(b)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("decoding IPv4 header: %w", err)
		}
		a.root.logf("ipv4: %v", xh)
		h, err := packet.IP4HeaderFromX(xh)
		if err != nil {
			return nil, nil, nil, err
		}
		if h.IPProto != ipproto.TCP {
			return nil, nil, nil, fmt.Errorf("IP protocol is %v, not TCP", h.IPProto)
		}
		end := min(len(b), xh.TotalLen)
		if end < xh.Len {
			return nil, nil, nil, fmt.Errorf("IPv4 total length %d is shorter than its header", xh.TotalLen)
		}
		return &h, nil, b[xh.Len:end], nil
	case 6:
		xh, err := ipv6.ParseHeader(b)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("decoding IPv6 header: %w", err)
		}
		a.root.logf("ipv6: %v", xh)
		h, err := packet.IP6HeaderFromX(xh)
		if err != nil {
			return nil, nil, nil, err
		}
		if h.IPProto != ipproto.TCP {
			return nil, nil, nil, fmt.Errorf("IPv6 next header is %v, not TCP", h.IPProto)
		}
		end := min(len(b), ipv6.HeaderLen+xh.PayloadLen)
		return nil, &h, b[ipv6.HeaderLen:end], nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown IP version %d", b[0]>>4)
	}
}
