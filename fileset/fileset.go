// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fileset models a pool of candidate component files and their
// lazily-computed checksums, per spec §3's "File entry".
package fileset

import (
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jigdo-go/jigdo/rollsum"
)

// Entry is one candidate component file. Its checksums are computed on
// the first call to Checksums (from the matcher, a pool's IndexByMD5 or a
// caller) and kept on the entry; access is guarded by the entry's mutex.
type Entry struct {
	Path  string
	Size  int64
	Mtime time.Time
	Label string

	mut        sync.Mutex
	have       bool
	firstBlock rollsum.Sum64
	blockMD5   [][16]byte
	wholeMD5   [16]byte
	ignored    bool
}

// Ignored reports whether this entry was excluded (I/O error, or zero
// length) and must never be matched.
func (e *Entry) Ignored() bool {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.ignored
}

// MarkIgnored excludes the entry from matching, per spec §4.1's "zero-length
// or unreadable file is silently excluded".
func (e *Entry) MarkIgnored() {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.ignored = true
	e.Size = 0
}

// Checksums returns the populated (firstBlock rolling sum, per-block MD5
// vector, whole-file MD5), computing them from Open() the first time and
// caching thereafter.
func (e *Entry) Checksums(open func() (io.ReadCloser, error), blockLen, md5BlockLen int) (rollsum.Sum64, [][16]byte, [16]byte, error) {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.have {
		return e.firstBlock, e.blockMD5, e.wholeMD5, nil
	}

	f, err := open()
	if err != nil {
		e.ignored = true
		e.Size = 0
		return rollsum.Sum64{}, nil, [16]byte{}, err
	}
	defer f.Close()

	whole := rollsum.NewMD5()
	blockBuf := make([]byte, md5BlockLen)
	var blocks [][16]byte
	var firstBlock rollsum.Sum64
	first := true

	for {
		n, err := io.ReadFull(f, blockBuf)
		if n > 0 {
			whole.Update(blockBuf[:n])
			blockDigest := rollsum.SumBytes(blockBuf[:n])
			blocks = append(blocks, blockDigest)

			if first {
				rl := n
				if rl > blockLen {
					rl = blockLen
				}
				firstBlock = rollsum.WindowOf(blockBuf[:rl])
				first = false
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			e.ignored = true
			e.Size = 0
			return rollsum.Sum64{}, nil, [16]byte{}, err
		}
	}

	e.firstBlock = firstBlock
	e.blockMD5 = blocks
	e.wholeMD5 = whole.Finish()
	e.have = true

	return e.firstBlock, e.blockMD5, e.wholeMD5, nil
}

// OpenFunc opens the file for fresh reading (used both for checksum
// population and for streaming a confirmed match's bytes into the
// template/encoder).
type OpenFunc func(*Entry) (io.ReadCloser, error)

// Pool is the ComponentProvider collaborator interface (spec §6): an
// enumerable, lazily-opened set of candidate files, plus by-MD5 lookup
// for decoder mode.
type Pool interface {
	// Files returns every known entry, in no particular order.
	Files() []*Entry
	// Open returns a fresh reader for e's bytes from the start.
	Open(e *Entry) (io.ReadCloser, error)
	// ByMD5 looks up a component by whole-file MD5 for decoder mode.
	// ok is false if no file with that digest is known to the pool.
	ByMD5(sum [16]byte) (e *Entry, ok bool)
}

// DirProvider is the default Pool: a flat directory of candidate files,
// non-recursive (directory recursion is the driver's job, per spec §1).
type DirProvider struct {
	dir     string
	label   string
	entries []*Entry
	byMD5   map[[16]byte]*Entry
	blockLen, md5BlockLen int
}

// NewDirProvider lists dir (one level, no recursion) and returns a
// DirProvider over the regular files found, labelled label.
func NewDirProvider(dir, label string, blockLen, md5BlockLen int) (*DirProvider, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	p := &DirProvider{
		dir:         dir,
		label:       label,
		byMD5:       make(map[[16]byte]*Entry),
		blockLen:    blockLen,
		md5BlockLen: md5BlockLen,
	}

	for _, de := range des {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if info.Size() < int64(blockLen) {
			// spec §4.1: no file smaller than blockLen is ever matched.
			continue
		}
		p.entries = append(p.entries, &Entry{
			Path:  dir + string(os.PathSeparator) + de.Name(),
			Size:  info.Size(),
			Mtime: info.ModTime(),
			Label: label,
		})
	}

	return p, nil
}

func (p *DirProvider) Files() []*Entry { return p.entries }

func (p *DirProvider) Open(e *Entry) (io.ReadCloser, error) {
	return os.Open(e.Path)
}

// IndexByMD5 populates the pool's whole-file-MD5 index, computing
// checksums for any entry that hasn't been hashed yet. Decoder mode calls
// this once up front; the scanner calls Checksums lazily instead. Hashing
// is fanned out across a bounded worker pool (one hasher per file, capped
// at GOMAXPROCS), mirroring the source's parallel block-hashing pool in
// its directory scanner.
func (p *DirProvider) IndexByMD5() error {
	var mut sync.Mutex
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, e := range p.entries {
		e := e
		g.Go(func() error {
			_, _, whole, err := e.Checksums(func() (io.ReadCloser, error) { return p.Open(e) }, p.blockLen, p.md5BlockLen)
			if err != nil {
				return nil // silently excluded, per spec §4.1 failure semantics
			}
			mut.Lock()
			p.byMD5[whole] = e
			mut.Unlock()
			return nil
		})
	}

	return g.Wait()
}

func (p *DirProvider) ByMD5(sum [16]byte) (*Entry, bool) {
	e, ok := p.byMD5[sum]
	return e, ok
}
