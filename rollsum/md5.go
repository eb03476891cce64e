// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package rollsum

import (
	"crypto/md5"
	"hash"
	"io"

	"github.com/pkg/errors"
)

// ProgressFunc is invoked periodically by UpdateFromStream with the number
// of bytes consumed so far and the total expected (0 if unknown). It may
// return an error to abort the read.
type ProgressFunc func(done, total int64) error

// MD5 is an incremental MD5 accumulator, the shape of which mirrors
// internal/scanner.Blocks' read-hash-reset loop but keeps one running
// digest rather than one per fixed-size block.
type MD5 struct {
	h hash.Hash
}

// NewMD5 returns a fresh, empty MD5 accumulator.
func NewMD5() *MD5 {
	return &MD5{h: md5.New()}
}

// Update feeds more bytes into the digest.
func (m *MD5) Update(p []byte) {
	m.h.Write(p) //nolint:errcheck // hash.Hash.Write never returns an error
}

// Write implements io.Writer so an MD5 accumulator can sit behind
// io.MultiWriter, e.g. to hash a stream as it is written elsewhere.
func (m *MD5) Write(p []byte) (int, error) {
	return m.h.Write(p)
}

// Finish returns the 16-byte digest of everything written so far. The
// accumulator must not be reused afterwards.
func (m *MD5) Finish() [16]byte {
	var out [16]byte
	copy(out[:], m.h.Sum(nil))
	return out
}

// FinishForReuse returns the digest like Finish, but leaves the
// accumulator usable for further Update calls representing a fresh,
// independent digest -- cheaper than allocating a new hash.Hash when the
// caller is about to reset anyway (e.g. one file's running whole-file MD5
// immediately followed by the next file's).
func (m *MD5) FinishForReuse() [16]byte {
	sum := m.Finish()
	m.h.Reset()
	return sum
}

// Reset clears the accumulator to the empty state.
func (m *MD5) Reset() {
	m.h.Reset()
}

// UpdateFromStream reads exactly size bytes from r in bufSize chunks,
// feeding each into the digest and invoking progress (if non-nil) after
// each chunk. It stops early and returns the error if progress does.
func (m *MD5) UpdateFromStream(r io.Reader, size int64, bufSize int, progress ProgressFunc) error {
	if bufSize <= 0 {
		bufSize = 256 * 1024
	}
	buf := make([]byte, bufSize)
	var done int64
	for done < size {
		want := int64(bufSize)
		if remain := size - done; remain < want {
			want = remain
		}
		n, err := io.ReadFull(r, buf[:want])
		if n > 0 {
			m.Update(buf[:n])
			done += int64(n)
		}
		if err != nil {
			return errors.Wrap(err, "reading stream for MD5")
		}
		if progress != nil {
			if err := progress(done, size); err != nil {
				return err
			}
		}
	}
	return nil
}

// SumBytes is a convenience one-shot MD5 over a byte slice.
func SumBytes(p []byte) [16]byte {
	return md5.Sum(p)
}
