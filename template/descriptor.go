// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package template

import (
	"io"

	"github.com/jigdo-go/jigdo/jigdoerr"
)

// Kind tags the descriptor variants named in spec §3. The four active
// variants plus the three legacy ones the source still had to parse map
// onto this single sum type, per the "collapse virtual dispatch to a
// tagged-variant" guidance in spec §9.
type Kind uint8

const (
	KindUnmatchedData Kind = iota
	KindMatchedFile
	KindWrittenFile
	KindImageInfo
)

// wire tag bytes, current and legacy.
const (
	wireImageInfo      = 5
	wireUnmatchedData  = 2
	wireMatchedFile    = 6
	wireWrittenFile    = 7
	wireLegacyUnmatched = 1 // lacks nothing extra; parsed identically
	wireLegacyMatched   = 3 // lacks rsum: size+md5 only
	wireLegacyImageInfo = 4 // lacks blockLen: size+md5 only
)

// Descriptor is a single tagged record from the DESC section: either an
// ImageInfo (always last), an UnmatchedData run, or a MatchedFile /
// WrittenFile reference to a component. Fields not meaningful for a given
// Kind are simply left zero.
type Descriptor struct {
	Kind Kind

	Size uint64 // all kinds

	RSum uint64   // MatchedFile, WrittenFile
	MD5  [16]byte // MatchedFile, WrittenFile, ImageInfo

	BlockLen uint32 // ImageInfo only

	// Legacy records whether this descriptor was read from a legacy wire
	// tag lacking RSum/BlockLen; re-encoding always emits the current
	// format regardless.
	Legacy bool
}

// Encode writes d's current-format wire record (tag byte + payload).
func (d Descriptor) Encode(w io.Writer) error {
	switch d.Kind {
	case KindImageInfo:
		if _, err := w.Write([]byte{wireImageInfo}); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing ImageInfo tag")
		}
		if err := writeUint48(w, d.Size); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing ImageInfo size")
		}
		if _, err := w.Write(d.MD5[:]); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing ImageInfo md5")
		}
		return writeUint32(w, d.BlockLen)

	case KindUnmatchedData:
		if _, err := w.Write([]byte{wireUnmatchedData}); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing UnmatchedData tag")
		}
		return writeUint48(w, d.Size)

	case KindMatchedFile, KindWrittenFile:
		tag := byte(wireMatchedFile)
		if d.Kind == KindWrittenFile {
			tag = wireWrittenFile
		}
		if _, err := w.Write([]byte{tag}); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing MatchedFile/WrittenFile tag")
		}
		if err := writeUint48(w, d.Size); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing size")
		}
		if err := writeUint64(w, d.RSum); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing rsum")
		}
		_, err := w.Write(d.MD5[:])
		if err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing md5")
		}
		return nil

	default:
		return jigdoerr.New(jigdoerr.Format, "unknown descriptor kind")
	}
}

// DecodeDescriptor reads one tagged record, including the three legacy
// tags the source must still accept. io.EOF is returned unwrapped when no
// more records remain (the DESC section's trailer length tells the caller
// when to stop, but EOF is also a valid terminal condition for callers
// that don't track remaining bytes).
func DecodeDescriptor(r io.Reader) (Descriptor, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		if err == io.EOF {
			return Descriptor{}, io.EOF
		}
		return Descriptor{}, jigdoerr.Wrap(jigdoerr.IO, err, "reading descriptor tag")
	}

	switch tagBuf[0] {
	case wireImageInfo:
		size, err := readUint48(r)
		if err != nil {
			return Descriptor{}, err
		}
		var md5 [16]byte
		if _, err := io.ReadFull(r, md5[:]); err != nil {
			return Descriptor{}, jigdoerr.Wrap(jigdoerr.Format, err, "reading ImageInfo md5")
		}
		blockLen, err := readUint32(r)
		if err != nil {
			return Descriptor{}, err
		}
		return Descriptor{Kind: KindImageInfo, Size: size, MD5: md5, BlockLen: blockLen}, nil

	case wireLegacyImageInfo:
		size, err := readUint48(r)
		if err != nil {
			return Descriptor{}, err
		}
		var md5 [16]byte
		if _, err := io.ReadFull(r, md5[:]); err != nil {
			return Descriptor{}, jigdoerr.Wrap(jigdoerr.Format, err, "reading legacy ImageInfo md5")
		}
		return Descriptor{Kind: KindImageInfo, Size: size, MD5: md5, Legacy: true}, nil

	case wireUnmatchedData, wireLegacyUnmatched:
		size, err := readUint48(r)
		if err != nil {
			return Descriptor{}, err
		}
		return Descriptor{Kind: KindUnmatchedData, Size: size, Legacy: tagBuf[0] == wireLegacyUnmatched}, nil

	case wireMatchedFile, wireWrittenFile:
		size, err := readUint48(r)
		if err != nil {
			return Descriptor{}, err
		}
		rsum, err := readUint64(r)
		if err != nil {
			return Descriptor{}, err
		}
		var md5 [16]byte
		if _, err := io.ReadFull(r, md5[:]); err != nil {
			return Descriptor{}, jigdoerr.Wrap(jigdoerr.Format, err, "reading MatchedFile/WrittenFile md5")
		}
		kind := KindMatchedFile
		if tagBuf[0] == wireWrittenFile {
			kind = KindWrittenFile
		}
		return Descriptor{Kind: kind, Size: size, RSum: rsum, MD5: md5}, nil

	case wireLegacyMatched:
		size, err := readUint48(r)
		if err != nil {
			return Descriptor{}, err
		}
		var md5 [16]byte
		if _, err := io.ReadFull(r, md5[:]); err != nil {
			return Descriptor{}, jigdoerr.Wrap(jigdoerr.Format, err, "reading legacy MatchedFile md5")
		}
		return Descriptor{Kind: KindMatchedFile, Size: size, MD5: md5, Legacy: true}, nil

	default:
		return Descriptor{}, jigdoerr.New(jigdoerr.Format, "unknown descriptor tag byte")
	}
}
