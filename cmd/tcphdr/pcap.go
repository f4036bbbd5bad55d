// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// writePcap writes pkts to a new pcapng file at path. Each packet must
// start with an IPv4 or IPv6 header.
func writePcap(path string, now time.Time, pkts ...[]byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeRaw)
	if err != nil {
		f.Close()
		return err
	}
	for _, pkt := range pkts {
		ci := gopacket.CaptureInfo{
			Timestamp:     now,
			CaptureLength: len(pkt),
			Length:        len(pkt),
		}
		if err := w.WritePacket(ci, pkt); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readPcap calls fn with each packet of the pcapng stream r, in order,
// and stops at the first error fn returns.
func readPcap(r io.Reader, fn func(i int, pkt []byte) error) error {
	pr, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return fmt.Errorf("reading pcapng: %w", err)
	}
	if lt := pr.LinkType(); lt != layers.LinkTypeRaw {
		return fmt.Errorf("pcapng link type is %v, want raw IP", lt)
	}
	for i := 0; ; i++ {
		data, _, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading packet %d: %w", i, err)
		}
		if err := fn(i, data); err != nil {
			return err
		}
	}
}
