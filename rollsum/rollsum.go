// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package rollsum implements the rolling checksum and whole/partial-block
// MD5 primitives that the matcher, encoder and decoder build on.
package rollsum

// mixTable holds 256 pseudo-random 32-bit words, one per byte value, used
// by Sum64 to mix extra entropy into the rolling checksum beyond the
// classic two-half adler-style sum that Sum32 computes alone. It is
// computed once at package init from a fixed seed so that two processes
// (or two passes of the same process) derive byte-identical checksums for
// the same window -- the table must be a constant, not truly random.
var mixTable [256]uint32

func init() {
	// splitmix64, seeded with a fixed constant. Deterministic, well-mixed,
	// and cheap; we only need 256 words once per process lifetime.
	x := uint64(0x9e3779b97f4a7c15)
	for i := range mixTable {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z = z ^ (z >> 31)
		mixTable[i] = uint32(z)
	}
}

// Sum32 is the classic two-half rsync-style rolling checksum: a is the sum
// of the window bytes, b is the sum of a as each byte is appended. Both are
// carried mod 2^16 (via uint32 wraparound truncation at Value time) and
// equal-length windows with byte-identical content produce equal sums.
type Sum32 struct {
	a, b uint32
}

// Reset clears the sum to the value of an empty window.
func (s *Sum32) Reset() { s.a, s.b = 0, 0 }

// AddBack appends one byte to the back of the window.
func (s *Sum32) AddBack(c byte) {
	s.a += uint32(c)
	s.b += s.a
}

// RemoveFront removes one byte from the front of a window that currently
// has the given length (length is needed because b's contribution from a
// byte depends on how many bytes were added after it).
func (s *Sum32) RemoveFront(c byte, length int) {
	s.a -= uint32(c)
	s.b -= uint32(length) * uint32(c)
}

// Rotate removes one byte from the front and adds one at the back of a
// full window of the given length, by making the two calls in sequence.
func (s *Sum32) Rotate(out, in byte, length int) {
	s.RemoveFront(out, length)
	s.AddBack(in)
}

// AddBackRun appends n copies of the same byte using a closed-form
// Gaussian-sum shortcut, so long constant runs (zero padding, repeated
// filler bytes) can be fast-forwarded through in O(1) instead of O(n).
func (s *Sum32) AddBackRun(c byte, n int) {
	if n <= 0 {
		return
	}
	bc := uint32(c)
	nn := uint32(n)
	// sum_{i=1}^{n} (a + i*c) = n*a + c*n*(n+1)/2; the triangular number is
	// formed in 64 bits so the division is exact before truncating.
	tri := uint32(uint64(n) * (uint64(n) + 1) / 2)
	s.b += nn*s.a + bc*tri
	s.a += nn * bc
}

// Value returns the current 32-bit checksum: low 16 bits from a, high 16
// from b, matching the classic rsync layout.
func (s *Sum32) Value() uint32 {
	return (s.a & 0xffff) | ((s.b & 0xffff) << 16)
}

// Sum64 extends Sum32 with a second, table-mixed 32-bit accumulator so the
// combined 64-bit value collides far less often than Sum32 alone. The
// table contribution is a plain running sum over the window (add on push,
// subtract on pop), which keeps the O(1)-per-byte-shift property.
type Sum64 struct {
	Sum32
	mix uint32
}

// Reset clears the sum to the value of an empty window.
func (s *Sum64) Reset() {
	s.Sum32.Reset()
	s.mix = 0
}

// AddBack appends one byte to the back of the window.
func (s *Sum64) AddBack(c byte) {
	s.Sum32.AddBack(c)
	s.mix += mixTable[c]
}

// RemoveFront removes one byte from the front of a window of the given
// length.
func (s *Sum64) RemoveFront(c byte, length int) {
	s.Sum32.RemoveFront(c, length)
	s.mix -= mixTable[c]
}

// Rotate removes one byte from the front and adds one at the back.
func (s *Sum64) Rotate(out, in byte, length int) {
	s.RemoveFront(out, length)
	s.AddBack(in)
}

// AddBackRun appends n copies of the same byte in O(1).
func (s *Sum64) AddBackRun(c byte, n int) {
	s.Sum32.AddBackRun(c, n)
	s.mix += uint32(n) * mixTable[c]
}

// Value returns the 64-bit composite sum: low 32 bits from the classic
// two-half sum, high 32 bits from the table-mixed accumulator.
func (s *Sum64) Value() uint64 {
	return uint64(s.Sum32.Value()) | (uint64(s.mix) << 32)
}

// WindowOf computes the Sum64 of an entire byte slice treated as one
// window, i.e. as if every byte had been pushed via AddBack in order. It
// seeds each candidate file's first-block checksum and the matcher's scan
// window (at the start and after each match); the matcher's hot loop then
// uses Rotate.
func WindowOf(data []byte) Sum64 {
	var s Sum64
	for _, c := range data {
		s.AddBack(c)
	}
	return s
}
