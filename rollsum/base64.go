// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package rollsum

import "github.com/pkg/errors"

// The modified Base64 alphabet jigdo uses for MD5 labels: standard Base64
// with '+' and '/' replaced by '-' and '_', and no '=' padding. This is
// genuinely primitive, domain-specific wire-format logic (a 64-entry
// substitution table plus a bit-shuffle) with no third-party package
// replacement worth pulling in -- see DESIGN.md for the stdlib
// justification entry.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		decodeTable[alphabet[i]] = int8(i)
	}
}

// EncodeMD5 renders a 16-byte MD5 digest as the 22-character modified
// Base64 label used throughout [Parts] entries and MatchedFile
// descriptors' textual form.
func EncodeMD5(sum [16]byte) string {
	return Encode(sum[:])
}

// Encode base64-encodes arbitrary bytes with the modified alphabet and no
// padding, performing no line wrapping.
func Encode(data []byte) string {
	out := make([]byte, 0, (len(data)*8+5)/6)
	var bitBuf uint32
	var bitCount uint
	for _, b := range data {
		bitBuf = (bitBuf << 8) | uint32(b)
		bitCount += 8
		for bitCount >= 6 {
			bitCount -= 6
			out = append(out, alphabet[(bitBuf>>bitCount)&0x3f])
		}
	}
	if bitCount > 0 {
		out = append(out, alphabet[(bitBuf<<(6-bitCount))&0x3f])
	}
	return string(out)
}

// DecodeMD5 parses the 22-character modified Base64 form back into a
// 16-byte digest.
func DecodeMD5(s string) ([16]byte, error) {
	var out [16]byte
	raw := Decode(s)
	if len(raw) != 16 {
		return out, errors.Errorf("decoded MD5 label has wrong length: got %d bytes, want 16", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// Decode decodes the modified Base64 alphabet, tolerating interspersed
// whitespace and silently ignoring any other invalid character -- callers
// that care double-check correctness by re-encoding, per the source's own
// documented tolerance.
func Decode(s string) []byte {
	out := make([]byte, 0, len(s)*6/8+1)
	var bitBuf uint32
	var bitCount uint
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			continue
		}
		v := decodeTable[c]
		if v < 0 {
			continue
		}
		bitBuf = (bitBuf << 6) | uint32(v)
		bitCount += 6
		if bitCount >= 8 {
			bitCount -= 8
			out = append(out, byte(bitBuf>>bitCount))
		}
	}
	return out
}
