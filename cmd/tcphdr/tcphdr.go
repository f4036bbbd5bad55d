// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// The tcphdr command decodes and encodes TCP headers given as hex.
//
// Every flag can also be set through the environment with a TCPHDR_
// prefix, for example TCPHDR_VERBOSE=true.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func printf(format string, a ...any) {
	fmt.Fprintf(stdout, format, a...)
}

func outln(a ...any) {
	fmt.Fprintln(stdout, a...)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// envOptions lets each command's flags be set from TCPHDR_ variables.
var envOptions = []ff.Option{ff.WithEnvVarPrefix("TCPHDR")}

type rootArgs struct {
	verbose bool
}

// logf logs to stderr when -verbose is set.
func (a *rootArgs) logf(format string, args ...any) {
	if a.verbose {
		log.Printf(format, args...)
	}
}

func newRootCmd() *ffcli.Command {
	var args rootArgs
	rootfs := newFlagSet("tcphdr")
	rootfs.BoolVar(&args.verbose, "verbose", false, "log intermediate decoding steps to stderr")

	return &ffcli.Command{
		Name:       "tcphdr",
		ShortUsage: "tcphdr [flags] <subcommand> [command flags]",
		ShortHelp:  "Decode and encode TCP headers.",
		LongHelp: strings.TrimSpace(`
Headers are read and written as hex. Whitespace and colons in input
are ignored, and "-" reads the hex from stdin.
`),
		FlagSet: rootfs,
		Options: envOptions,
		Subcommands: []*ffcli.Command{
			newDecodeCmd(&args),
			newEncodeCmd(&args),
		},
		Exec: func(context.Context, []string) error { return flag.ErrHelp },
	}
}

// run runs the CLI. The args do not include the binary name.
func run(ctx context.Context, args []string) error {
	log.SetOutput(stderr)
	log.SetFlags(0)
	err := newRootCmd().ParseAndRun(ctx, args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

// readHex decodes the hex in arg, or in stdin if arg is "-".
func readHex(arg string) ([]byte, error) {
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		arg = string(b)
	}
	arg = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, arg)
	b, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return b, nil
}

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
