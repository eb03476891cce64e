// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package jigdotext implements the .jigdo text index format: a
// round-trip-preserving line model (spec §3/§4.4) plus the [Servers]
// substitution graph and URL enumerator. The line storage is a plain
// slice of owned records with stable indices rather than the source's
// raw intrusive pointer list, per spec §9.
package jigdotext

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/jigdo-go/jigdo/jigdoerr"
)

// LineKind classifies one line of a .jigdo file.
type LineKind int

const (
	LineEmpty LineKind = iota
	LineComment
	LineSection
	LineEntry
)

// Line is one physical line, kept verbatim enough to reproduce the
// original bytes exactly when no API mutation touches it.
type Line struct {
	Kind LineKind
	Raw  string // exact original text, without the line terminator

	// CRLF records whether Raw was terminated by "\r\n" (true) or "\n"
	// (false) in the source, so serialization reproduces it.
	CRLF bool

	// Populated for LineSection.
	SectionName string

	// Populated for LineEntry.
	Label string
	Value string
}

// forbidden characters may not appear in a label or section name.
const forbidden = "[]=#"

// Document is an ordered sequence of Lines, preserving every byte of
// whitespace, comments and line endings that the parser didn't need to
// interpret.
type Document struct {
	Lines []Line
}

// Parse reads a complete .jigdo file, preserving CR/LF and whitespace
// exactly so that Serialize on an unmodified Document reproduces the
// input byte-for-byte (spec §4.4, invariant 6), provided the input's last
// line is terminated. Whether the last line lacked a terminator is not
// recorded; Serialize writes "\n" after it.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}

	r := bufio.NewReader(bytes.NewReader(data))
	for {
		raw, crlf, err := readLine(r)
		if err == io.EOF && raw == "" {
			break
		}
		line, perr := parseLine(raw)
		if perr != nil {
			return nil, perr
		}
		line.CRLF = crlf
		doc.Lines = append(doc.Lines, line)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, jigdoerr.Wrap(jigdoerr.IO, err, "reading jigdo text")
		}
	}

	return doc, nil
}

// readLine reads one line, stripping and reporting its terminator style.
// It returns io.EOF alongside the final (possibly unterminated) line.
func readLine(r *bufio.Reader) (string, bool, error) {
	raw, err := r.ReadString('\n')
	if err != nil && raw == "" {
		return "", false, io.EOF
	}
	crlf := strings.HasSuffix(raw, "\r\n")
	raw = strings.TrimSuffix(raw, "\n")
	raw = strings.TrimSuffix(raw, "\r")
	if err == io.EOF {
		return raw, crlf, io.EOF
	}
	return raw, crlf, nil
}

func parseLine(raw string) (Line, error) {
	trimmed := strings.TrimSpace(raw)

	switch {
	case trimmed == "":
		return Line{Kind: LineEmpty, Raw: raw}, nil

	case strings.HasPrefix(trimmed, "#"):
		return Line{Kind: LineComment, Raw: raw}, nil

	case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
		name := trimmed[1 : len(trimmed)-1]
		return Line{Kind: LineSection, Raw: raw, SectionName: name}, nil

	default:
		eq := strings.IndexByte(raw, '=')
		if eq < 0 {
			return Line{}, jigdoerr.New(jigdoerr.Configuration, "line is neither empty, comment, section nor Label=Value: "+raw)
		}
		label := strings.TrimSpace(raw[:eq])
		value := raw[eq+1:]
		if strings.ContainsAny(label, forbidden) {
			return Line{}, jigdoerr.New(jigdoerr.Configuration, "label contains forbidden character: "+label)
		}
		return Line{Kind: LineEntry, Raw: raw, Label: label, Value: value}, nil
	}
}

// Serialize reproduces the document's bytes. Lines untouched by any API
// mutation come back byte-identical to the input Parse saw, except that
// every line, including the last, is followed by its "\r\n" or "\n"
// terminator.
func (d *Document) Serialize(w io.Writer) error {
	for _, l := range d.Lines {
		if _, err := io.WriteString(w, l.Raw); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing jigdo text line")
		}
		term := "\n"
		if l.CRLF {
			term = "\r\n"
		}
		if _, err := io.WriteString(w, term); err != nil {
			return jigdoerr.Wrap(jigdoerr.IO, err, "writing jigdo text line terminator")
		}
	}
	return nil
}

// Bytes is a convenience wrapper around Serialize.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	d.Serialize(&buf) //nolint:errcheck // bytes.Buffer never errors
	return buf.Bytes()
}
