// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package template

import (
	"bufio"
	"io"

	"github.com/jigdo-go/jigdo/jigdoerr"
)

// HeaderLine and CommentLine are the two fixed ASCII lines that open every
// template stream, per spec §3: "<ASCII header line> \r\n <comment line>
// \r\n \r\n".
const (
	HeaderLine  = "JigdoTemplate format, version 1.0"
	CommentLine = "# Template produced by jigdo-go; see the accompanying .jigdo file"
)

// WriteHeader writes the two header lines and the trailing blank line
// that precede the first DATA/DESC part.
func WriteHeader(w io.Writer) error {
	if _, err := io.WriteString(w, HeaderLine+"\r\n"+CommentLine+"\r\n\r\n"); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "writing template header")
	}
	return nil
}

// ReadHeader reads and validates the two header lines, leaving r
// positioned at the first DATA/DESC part. It does not require the header
// or comment text to match exactly (future writers may legitimately vary
// the comment), only that both lines and the blank line are present.
func ReadHeader(r *bufio.Reader) error {
	header, err := readCRLFLine(r)
	if err != nil {
		return jigdoerr.Wrap(jigdoerr.Format, err, "reading template header line")
	}
	if header == "" {
		return jigdoerr.New(jigdoerr.Format, "template header line is empty")
	}

	if _, err := readCRLFLine(r); err != nil {
		return jigdoerr.Wrap(jigdoerr.Format, err, "reading template comment line")
	}

	blank, err := readCRLFLine(r)
	if err != nil {
		return jigdoerr.Wrap(jigdoerr.Format, err, "reading template blank line")
	}
	if blank != "" {
		return jigdoerr.New(jigdoerr.Format, "expected blank line after template header")
	}

	return nil
}

func readCRLFLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}
