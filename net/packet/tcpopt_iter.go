// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"fmt"
	"io"
	"iter"
)

// UnknownOptionError reports an option kind the decoder does not
// recognize. Unknown options are not skipped.
type UnknownOptionError struct {
	Kind TCPOptionKind
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown tcp option kind %d", uint8(e.Kind))
}

// OptionSizeError reports a recognized option whose length byte does
// not match the length that kind requires.
type OptionSizeError struct {
	Kind TCPOptionKind
	Size uint8
}

func (e *OptionSizeError) Error() string {
	return fmt.Sprintf("tcp option %v has invalid length %d", e.Kind, e.Size)
}

// OptionTruncatedError reports an option that extends past the end of
// the options region.
type OptionTruncatedError struct {
	Kind TCPOptionKind
}

func (e *OptionTruncatedError) Error() string {
	return fmt.Sprintf("tcp option %v truncated", e.Kind)
}

// TCPOptionsIterator decodes TCP options one at a time from a byte
// slice. After it reaches an end of list marker, the end of the slice
// or a malformed option, it is exhausted and stays that way.
//
// The zero value is an exhausted iterator over no bytes.
type TCPOptionsIterator struct {
	rest      []byte
	exhausted bool
}

// NewTCPOptionsIterator returns an iterator over the options encoded in
// b. The iterator retains b.
func NewTCPOptionsIterator(b []byte) *TCPOptionsIterator {
	return &TCPOptionsIterator{rest: b}
}

// Next decodes the next option. It returns io.EOF once the options are
// exhausted. Any other error describes a malformed option; it is
// returned once and every later call returns io.EOF.
func (it *TCPOptionsIterator) Next() (TCPOption, error) {
	if it.exhausted {
		return nil, io.EOF
	}
	opt, n, err := parseTCPOption(it.rest)
	if err != nil || opt == nil {
		it.rest = it.rest[len(it.rest):]
		it.exhausted = true
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	it.rest = it.rest[n:]
	return opt, nil
}

// All returns an iterator over the remaining options. A malformed
// option is yielded as a non-nil error and ends the sequence.
func (it *TCPOptionsIterator) All() iter.Seq2[TCPOption, error] {
	return func(yield func(TCPOption, error) bool) {
		for {
			opt, err := it.Next()
			if err == io.EOF {
				return
			}
			if !yield(opt, err) || err != nil {
				return
			}
		}
	}
}

// Exhausted reports whether the iterator has stopped, either because
// no bytes remain or because Next already hit the end of the list or a
// malformed option.
func (it *TCPOptionsIterator) Exhausted() bool {
	return it.exhausted || len(it.rest) == 0
}

// Rest returns the bytes not yet consumed. It is empty once the
// iterator has stopped on an error.
func (it *TCPOptionsIterator) Rest() []byte {
	return it.rest
}

// parseTCPOption decodes the option at the start of b and reports how
// many bytes it occupies. It returns a nil option and nil error at the
// end of the list.
func parseTCPOption(b []byte) (TCPOption, int, error) {
	if len(b) == 0 {
		return nil, 0, nil
	}
	kind := TCPOptionKind(b[0])
	switch kind {
	case TCPOptionKindEnd:
		return nil, 0, nil
	case TCPOptionKindNOP:
		return TCPOptionNOP{}, 1, nil
	case TCPOptionKindMSS:
		if err := checkOptionLen(b, kind, tcpOptionLenMSS); err != nil {
			return nil, 0, err
		}
		return TCPOptionMSS(get16(b[2:4])), tcpOptionLenMSS, nil
	case TCPOptionKindWindowScale:
		if err := checkOptionLen(b, kind, tcpOptionLenWindowScale); err != nil {
			return nil, 0, err
		}
		return TCPOptionWindowScale(b[2]), tcpOptionLenWindowScale, nil
	case TCPOptionKindSACKPermitted:
		if err := checkOptionLen(b, kind, tcpOptionLenSACKPermitted); err != nil {
			return nil, 0, err
		}
		return TCPOptionSACKPermitted{}, tcpOptionLenSACKPermitted, nil
	case TCPOptionKindTimestamp:
		if err := checkOptionLen(b, kind, tcpOptionLenTimestamp); err != nil {
			return nil, 0, err
		}
		return TCPOptionTimestamp{
			Value: get32(b[2:6]),
			Echo:  get32(b[6:10]),
		}, tcpOptionLenTimestamp, nil
	case TCPOptionKindSACK:
		if len(b) < tcpOptionLenSACKBase {
			return nil, 0, &OptionTruncatedError{Kind: kind}
		}
		size := int(b[1])
		n := (size - tcpOptionLenSACKBase) / sackBlockLen
		if size < tcpOptionLenSACKBase+sackBlockLen || (size-tcpOptionLenSACKBase)%sackBlockLen != 0 || n > maxSACKBlocks {
			return nil, 0, &OptionSizeError{Kind: kind, Size: b[1]}
		}
		if len(b) < size {
			return nil, 0, &OptionTruncatedError{Kind: kind}
		}
		opt := TCPOptionSACK{extra: uint8(n - 1)}
		for i := range n {
			blk := b[tcpOptionLenSACKBase+i*sackBlockLen:]
			opt.blocks[i] = SACKBlock{Start: get32(blk[0:4]), End: get32(blk[4:8])}
		}
		return opt, size, nil
	default:
		return nil, 0, &UnknownOptionError{Kind: kind}
	}
}

// checkOptionLen validates a fixed-size option of the given total
// length at the start of b. Truncation is checked before the length
// byte.
func checkOptionLen(b []byte, kind TCPOptionKind, want int) error {
	if len(b) < want {
		return &OptionTruncatedError{Kind: kind}
	}
	if int(b[1]) != want {
		return &OptionSizeError{Kind: kind, Size: b[1]}
	}
	return nil
}
