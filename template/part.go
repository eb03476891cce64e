// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package template

import (
	"bytes"
	"io"

	"github.com/jigdo-go/jigdo/jigdoerr"
)

// partHeaderLen is the 4-byte tag plus two 6-byte length fields that
// precede every DATA part's compressed payload.
const partHeaderLen = 4 + 6 + 6

// WriteDataPart writes one complete DATA part: tag, total-part-length,
// uncompressed-length, then the already-compressed bytes. The encoder
// splits literal data into parts of at most its configured ZippedBufSz
// uncompressed bytes before calling this; the compressed size of a part is
// not bounded separately.
func WriteDataPart(w io.Writer, uncompressedLen uint64, compressed []byte) error {
	if _, err := w.Write(TagData[:]); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing DATA tag")
	}
	total := uint64(partHeaderLen + len(compressed))
	if err := writeUint48(w, total); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing DATA part length")
	}
	if err := writeUint48(w, uncompressedLen); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing DATA uncompressed length")
	}
	if _, err := w.Write(compressed); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing DATA compressed payload")
	}
	return nil
}

// DataPartHeader is the parsed fixed-size header of a DATA part; Compressed
// is exactly totalLen-partHeaderLen bytes and follows immediately in the
// stream.
type DataPartHeader struct {
	TotalLen        uint64
	UncompressedLen uint64
}

// CompressedLen returns the number of compressed payload bytes following
// the header, i.e. the number of bytes the caller must read next.
func (h DataPartHeader) CompressedLen() uint64 {
	return h.TotalLen - partHeaderLen
}

// ReadDataPartHeader reads and validates a DATA part's header, leaving r
// positioned at the start of the compressed payload. The caller must read
// exactly h.TotalLen-partHeaderLen bytes afterward (e.g. via
// io.LimitReader).
func ReadDataPartHeader(r io.Reader) (DataPartHeader, error) {
	var tag [4]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return DataPartHeader{}, jigdoerr.Wrap(jigdoerr.IO, err, "reading part tag")
	}
	if tag != TagData {
		return DataPartHeader{}, jigdoerr.New(jigdoerr.Format, "expected DATA part tag")
	}
	total, err := readUint48(r)
	if err != nil {
		return DataPartHeader{}, err
	}
	if total < partHeaderLen {
		return DataPartHeader{}, jigdoerr.New(jigdoerr.Format, "DATA part length shorter than its own header")
	}
	uncompressed, err := readUint48(r)
	if err != nil {
		return DataPartHeader{}, err
	}
	return DataPartHeader{TotalLen: total, UncompressedLen: uncompressed}, nil
}

// WriteDescSection writes the whole DESC section: tag, records' byte
// length, the encoded records themselves, then the length repeated as a
// trailer so the section can be located by seeking to EOF-6 and reading
// backward, per spec §3/§6.
func WriteDescSection(w io.Writer, descs []Descriptor) error {
	var buf bytes.Buffer
	for _, d := range descs {
		if err := d.Encode(&buf); err != nil {
			return err
		}
	}

	if _, err := w.Write(TagDesc[:]); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing DESC tag")
	}
	length := uint64(buf.Len())
	if err := writeUint48(w, length); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing DESC length")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing DESC records")
	}
	if err := writeUint48(w, length); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing DESC trailer length")
	}
	return nil
}

// ReadDescSectionFromEnd seeks to EOF-6, reads the trailing length field,
// seeks back to the start of the records, and decodes them, per spec §6's
// TemplateSource.seekFromEnd contract. It returns the offset at which the
// DESC section (its "DESC" tag) begins, useful for a decoder that wants to
// know where DATA parts end.
func ReadDescSectionFromEnd(r io.ReadSeeker) (descs []Descriptor, sectionStart int64, err error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, jigdoerr.Wrap(jigdoerr.IO, err, "seeking to template end")
	}
	if end < 6 {
		return nil, 0, jigdoerr.New(jigdoerr.Format, "template too short to contain a DESC trailer")
	}

	if _, err := r.Seek(-6, io.SeekEnd); err != nil {
		return nil, 0, jigdoerr.Wrap(jigdoerr.IO, err, "seeking to DESC trailer")
	}
	length, err := readUint48(r)
	if err != nil {
		return nil, 0, err
	}

	recordsStart := end - 6 - int64(length)
	headerStart := recordsStart - 10 // 4-byte tag + 6-byte length
	if headerStart < 0 {
		return nil, 0, jigdoerr.New(jigdoerr.Format, "DESC trailer length implies a negative section start")
	}

	if _, err := r.Seek(headerStart, io.SeekStart); err != nil {
		return nil, 0, jigdoerr.Wrap(jigdoerr.IO, err, "seeking to DESC section start")
	}

	var tag [4]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, 0, jigdoerr.Wrap(jigdoerr.IO, err, "reading DESC tag")
	}
	if tag != TagDesc {
		return nil, 0, jigdoerr.New(jigdoerr.Format, "DESC trailer does not point at a DESC tag")
	}
	headerLen, err := readUint48(r)
	if err != nil {
		return nil, 0, err
	}
	if headerLen != length {
		return nil, 0, jigdoerr.New(jigdoerr.Format, "DESC section header/trailer length mismatch")
	}

	lr := io.LimitReader(r, int64(length))
	for {
		d, err := DecodeDescriptor(lr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		descs = append(descs, d)
	}

	return descs, headerStart, nil
}
