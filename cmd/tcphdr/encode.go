// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/pkthdr/pkthdr/net/packet"
)

type encodeArgs struct {
	root     *rootArgs
	srcPort  uint
	dstPort  uint
	seq      uint64
	ack      uint64
	flags    string
	window   uint
	urgent   uint
	mss      uint
	wscale   int
	sackPerm bool
	ts       string
	sack     string
	src      netip.Addr
	dst      netip.Addr
	payload  string
	pcap     string
}

func newEncodeCmd(root *rootArgs) *ffcli.Command {
	args := &encodeArgs{root: root}
	fs := newFlagSet("encode")
	fs.UintVar(&args.srcPort, "sport", 0, "source port")
	fs.UintVar(&args.dstPort, "dport", 0, "destination port")
	fs.Uint64Var(&args.seq, "seq", 0, "sequence number")
	fs.Uint64Var(&args.ack, "ack", 0, "acknowledgment number")
	fs.StringVar(&args.flags, "flags", "", `comma-separated flag names, e.g. "SYN,ACK"`)
	fs.UintVar(&args.window, "window", math.MaxUint16, "window size")
	fs.UintVar(&args.urgent, "urgent", 0, "urgent pointer")
	fs.UintVar(&args.mss, "mss", 0, "maximum segment size option (0 to omit)")
	fs.IntVar(&args.wscale, "wscale", -1, "window scale option (-1 to omit)")
	fs.BoolVar(&args.sackPerm, "sack-perm", false, "add the SACK permitted option")
	fs.StringVar(&args.ts, "ts", "", `timestamps option as "value:echo"`)
	fs.StringVar(&args.sack, "sack", "", `SACK blocks as "start-end,start-end"`)
	fs.TextVar(&args.src, "src", netip.Addr{}, "source IP; with -dst, emit a full IP packet with the TCP checksum set")
	fs.TextVar(&args.dst, "dst", netip.Addr{}, "destination IP")
	fs.StringVar(&args.payload, "payload", "", "payload text")
	fs.StringVar(&args.pcap, "pcap", "", "also write the packet to this pcapng file (requires -src and -dst)")
	return &ffcli.Command{
		Name:       "encode",
		ShortUsage: "tcphdr encode [flags]",
		ShortHelp:  "Encode a TCP header from flags and print it as hex",
		LongHelp: strings.TrimSpace(`
Options are written in the order MSS, SACK permitted, timestamps, NOP,
window scale, SACK, followed by an end of list marker and padding.
Without -src and -dst only the TCP header and payload are printed and
the checksum is left zero.
`),
		FlagSet: fs,
		Options: envOptions,
		Exec:    args.run,
	}
}

func (a *encodeArgs) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}
	h, err := a.header()
	if err != nil {
		return err
	}
	a.root.logf("%v", &h)

	var ph packet.Header = &h
	switch {
	case a.src.IsValid() != a.dst.IsValid():
		return errors.New("-src and -dst must be given together")
	case a.src.Is4() && a.dst.Is4():
		ph = packet.TCP4Header{IP4Header: packet.IP4Header{Src: a.src, Dst: a.dst}, TCP: h}
	case a.src.Is6() && a.dst.Is6():
		ph = packet.TCP6Header{IP6Header: packet.IP6Header{Src: a.src, Dst: a.dst}, TCP: h}
	case a.src.IsValid():
		return errors.New("-src and -dst must be the same address family")
	}
	if a.pcap != "" && !a.src.IsValid() {
		return errors.New("-pcap requires -src and -dst")
	}
	b, err := packet.Generate(ph, []byte(a.payload))
	if err != nil {
		return err
	}
	outln(hex.EncodeToString(b))
	if a.pcap != "" {
		if err := writePcap(a.pcap, time.Now(), b); err != nil {
			return err
		}
		a.root.logf("wrote %d bytes to %s", len(b), a.pcap)
	}
	return nil
}

func (a *encodeArgs) header() (packet.TCPHeader, error) {
	for _, f := range []struct {
		name string
		v    uint64
		max  uint64
	}{
		{"sport", uint64(a.srcPort), math.MaxUint16},
		{"dport", uint64(a.dstPort), math.MaxUint16},
		{"seq", a.seq, math.MaxUint32},
		{"ack", a.ack, math.MaxUint32},
		{"window", uint64(a.window), math.MaxUint16},
		{"urgent", uint64(a.urgent), math.MaxUint16},
		{"mss", uint64(a.mss), math.MaxUint16},
	} {
		if f.v > f.max {
			return packet.TCPHeader{}, fmt.Errorf("-%s %d out of range", f.name, f.v)
		}
	}

	h := packet.NewTCPHeader(uint16(a.srcPort), uint16(a.dstPort), uint32(a.seq), uint32(a.ack))
	h.Window = uint16(a.window)
	h.Urgent = uint16(a.urgent)
	if err := setFlagNames(&h, a.flags); err != nil {
		return packet.TCPHeader{}, err
	}

	opts, err := a.options()
	if err != nil {
		return packet.TCPHeader{}, err
	}
	if err := h.SetOptions(opts...); err != nil {
		return packet.TCPHeader{}, err
	}
	return h, nil
}

func (a *encodeArgs) options() ([]packet.TCPOption, error) {
	var opts []packet.TCPOption
	if a.mss != 0 {
		opts = append(opts, packet.TCPOptionMSS(a.mss))
	}
	if a.sackPerm {
		opts = append(opts, packet.TCPOptionSACKPermitted{})
	}
	if a.ts != "" {
		val, ecr, ok := strings.Cut(a.ts, ":")
		if !ok {
			return nil, fmt.Errorf("-ts %q: want value:echo", a.ts)
		}
		v, err := strconv.ParseUint(val, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("-ts value: %w", err)
		}
		e, err := strconv.ParseUint(ecr, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("-ts echo: %w", err)
		}
		opts = append(opts, packet.TCPOptionTimestamp{Value: uint32(v), Echo: uint32(e)})
	}
	if a.wscale >= 0 {
		if a.wscale > math.MaxUint8 {
			return nil, fmt.Errorf("-wscale %d out of range", a.wscale)
		}
		opts = append(opts, packet.TCPOptionNOP{}, packet.TCPOptionWindowScale(a.wscale))
	}
	if a.sack != "" {
		blocks, err := parseSACKBlocks(a.sack)
		if err != nil {
			return nil, err
		}
		opts = append(opts, packet.NewTCPOptionSACK(blocks[0], blocks[1:]...))
	}
	return opts, nil
}

func parseSACKBlocks(s string) ([]packet.SACKBlock, error) {
	var blocks []packet.SACKBlock
	for _, f := range strings.Split(s, ",") {
		start, end, ok := strings.Cut(f, "-")
		if !ok {
			return nil, fmt.Errorf("-sack block %q: want start-end", f)
		}
		st, err := strconv.ParseUint(start, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("-sack block %q: %w", f, err)
		}
		en, err := strconv.ParseUint(end, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("-sack block %q: %w", f, err)
		}
		blocks = append(blocks, packet.SACKBlock{Start: uint32(st), End: uint32(en)})
	}
	if len(blocks) > 4 {
		return nil, fmt.Errorf("-sack has %d blocks, at most 4 fit", len(blocks))
	}
	return blocks, nil
}

// setFlagNames sets the flags named in the comma-separated list s.
func setFlagNames(h *packet.TCPHeader, s string) error {
	if s == "" {
		return nil
	}
	for _, name := range strings.Split(s, ",") {
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "NS":
			h.NS = true
		case "CWR":
			h.CWR = true
		case "ECE":
			h.ECE = true
		case "URG":
			h.URG = true
		case "ACK":
			h.ACK = true
		case "PSH":
			h.PSH = true
		case "RST":
			h.RST = true
		case "SYN":
			h.SYN = true
		case "FIN":
			h.FIN = true
		default:
			return fmt.Errorf("unknown TCP flag %q", name)
		}
	}
	return nil
}
