// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package matcher finds complete occurrences of fileset.Pool entries
// within a byte stream using a rolling checksum over a sliding window the
// size of the configured block length, confirming each candidate hit with
// chunked MD5 comparison before accepting it, per spec §4.1/§4.2.
package matcher

import (
	"io"

	"github.com/jigdo-go/jigdo/fileset"
	"github.com/jigdo-go/jigdo/jigdoerr"
	"github.com/jigdo-go/jigdo/rollsum"
)

// MatchExecFunc is invoked once per confirmed match, in ascending image
// order, with the matched entry and the offset in the scanned stream at
// which it begins. The entry's whole size is always the match length --
// jigdo only ever matches a candidate file in its entirety.
type MatchExecFunc func(entry *fileset.Entry, imageOffset int64) error

// LiteralFunc is invoked for every maximal byte range that matched no pool
// entry, in ascending image order, interleaved with MatchExecFunc calls.
type LiteralFunc func(data []byte) error

// candidate is everything the scanner needs to confirm and report a hit
// without re-touching the pool.
type candidate struct {
	entry    *fileset.Entry
	blockMD5 [][16]byte
	size     int64
}

// Matcher indexes a fileset.Pool's entries by the rolling checksum of
// their first blockLen bytes, then scans an arbitrary byte stream for
// occurrences.
type Matcher struct {
	blockLen    int
	md5BlockLen int
	maskBits    uint
	index       map[uint32][]*candidate
}

// New hashes every entry in pool (skipping ignored ones and ones too small
// to ever match) and returns a Matcher ready to Scan against them. blockLen
// is the rolling-checksum window; md5BlockLen is the chunk size used to
// confirm a candidate hit and must be a value the pool's entries were
// indexed with.
func New(pool fileset.Pool, blockLen, md5BlockLen int) (*Matcher, error) {
	files := pool.Files()
	m := &Matcher{
		blockLen:    blockLen,
		md5BlockLen: md5BlockLen,
		maskBits:    maskBitsFor(len(files)),
		index:       make(map[uint32][]*candidate),
	}

	for _, e := range files {
		if e.Ignored() || e.Size < int64(blockLen) {
			continue
		}
		first, blocks, _, err := e.Checksums(func() (io.ReadCloser, error) { return pool.Open(e) }, blockLen, md5BlockLen)
		if err != nil {
			continue // silently excluded, per spec §4.1
		}
		key := m.key(first.Value())
		m.index[key] = append(m.index[key], &candidate{entry: e, blockMD5: blocks, size: e.Size})
	}

	return m, nil
}

// maskBitsFor returns ceil(log2(n))+1 bits, the hash-table key width spec
// §4.2 specifies: wide enough to keep per-bucket chains short without
// growing the table unboundedly for small pools.
func maskBitsFor(n int) uint {
	bits := uint(0)
	for (1 << bits) < n {
		bits++
	}
	return bits + 1
}

func (m *Matcher) key(sum uint64) uint32 {
	high := uint32(sum >> 32)
	mask := uint32(1)<<m.maskBits - 1
	return high & mask
}

// Scan reads r (size bytes long, randomly addressable -- the encoder's
// image source is always a regular, seekable file) and reports every
// confirmed match and the literal ranges between them, in order.
//
// This trades the streaming ring-buffer design a byte-at-a-time scanner
// over an unseekable pipe would need for a simpler ReaderAt-based window,
// since jigdo images are always built from a local file (see DESIGN.md).
func (m *Matcher) Scan(r io.ReaderAt, size int64, onMatch MatchExecFunc, onLiteral LiteralFunc) error {
	if size < int64(m.blockLen) {
		return emitLiteral(r, 0, size, onLiteral)
	}

	window := make([]byte, m.blockLen)
	if err := readAt(r, window, 0); err != nil {
		return err
	}
	sum := rollsum.WindowOf(window)

	literalStart := int64(0)
	pos := int64(0)

	for pos+int64(m.blockLen) <= size {
		if cands, ok := m.index[m.key(sum.Value())]; ok {
			if best, matchLen, ok := m.confirm(r, pos, size, cands); ok {
				if err := emitLiteral(r, literalStart, pos, onLiteral); err != nil {
					return err
				}
				if onMatch != nil {
					if err := onMatch(best, pos); err != nil {
						return err
					}
				}
				pos += matchLen
				literalStart = pos
				if pos+int64(m.blockLen) > size {
					break
				}
				if err := readAt(r, window, pos); err != nil {
					return err
				}
				sum = rollsum.WindowOf(window)
				continue
			}
		}

		var next [1]byte
		if pos+int64(m.blockLen) < size {
			if err := readAt(r, next[:], pos+int64(m.blockLen)); err != nil {
				return err
			}
		}
		out := window[0]
		copy(window, window[1:])
		window[len(window)-1] = next[0]
		sum.Rotate(out, next[0], m.blockLen)
		pos++
	}

	return emitLiteral(r, literalStart, size, onLiteral)
}

// confirm checks every candidate sharing sum's masked key against the
// actual bytes at pos, returning the longest one that fully verifies --
// jigdo always prefers the candidate whose match extends furthest.
func (m *Matcher) confirm(r io.ReaderAt, pos, imageSize int64, cands []*candidate) (*fileset.Entry, int64, bool) {
	var best *candidate
	for _, c := range cands {
		if pos+c.size > imageSize {
			continue
		}
		if m.verify(r, pos, c) && (best == nil || c.size > best.size) {
			best = c
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best.entry, best.size, true
}

// verify re-hashes the image bytes at pos in md5BlockLen chunks and
// compares each against the candidate's precomputed per-block MD5s.
func (m *Matcher) verify(r io.ReaderAt, pos int64, c *candidate) bool {
	off := pos
	remaining := c.size
	buf := make([]byte, m.md5BlockLen)

	for _, want := range c.blockMD5 {
		chunk := int64(m.md5BlockLen)
		if remaining < chunk {
			chunk = remaining
		}
		if chunk <= 0 {
			return false
		}
		if err := readAt(r, buf[:chunk], off); err != nil {
			return false
		}
		if rollsum.SumBytes(buf[:chunk]) != want {
			return false
		}
		off += chunk
		remaining -= chunk
		if remaining == 0 {
			break
		}
	}

	return remaining == 0
}

func emitLiteral(r io.ReaderAt, start, end int64, onLiteral LiteralFunc) error {
	if onLiteral == nil || end <= start {
		return nil
	}
	buf := make([]byte, end-start)
	if err := readAt(r, buf, start); err != nil {
		return err
	}
	return onLiteral(buf)
}

// readAt reads exactly len(buf) bytes at off, tolerating the io.EOF that
// io.ReaderAt returns alongside a final full read.
func readAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return jigdoerr.Wrap(jigdoerr.IO, err, "reading scan window")
}
