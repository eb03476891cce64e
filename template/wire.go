// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package template defines the binary template stream's data model: the
// tagged descriptor variants of spec §3, their on-the-wire encoding, and
// the DATA/DESC part framing that the encoder writes and the decoder
// reads back.
package template

import (
	"encoding/binary"
	"io"

	"github.com/jigdo-go/jigdo/jigdoerr"
)

// putUint48 writes v (which must fit in 48 bits) as 6 little-endian bytes.
func putUint48(b []byte, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	copy(b, buf[:6])
}

func getUint48(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:6], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// writeUint48 writes a 6-byte little-endian length/size field.
func writeUint48(w io.Writer, v uint64) error {
	var b [6]byte
	putUint48(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// readUint48 reads a 6-byte little-endian length/size field.
func readUint48(r io.Reader) (uint64, error) {
	var b [6]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, jigdoerr.Wrap(jigdoerr.IO, err, "reading 6-byte length field")
	}
	return getUint48(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, jigdoerr.Wrap(jigdoerr.IO, err, "reading 8-byte field")
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, jigdoerr.Wrap(jigdoerr.IO, err, "reading 4-byte field")
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// PartTag identifies a DATA or DESC part in the template stream.
type PartTag [4]byte

var (
	TagData PartTag = [4]byte{'D', 'A', 'T', 'A'}
	TagDesc PartTag = [4]byte{'D', 'E', 'S', 'C'}
)
