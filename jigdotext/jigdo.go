// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package jigdotext

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/jigdo-go/jigdo/jigdoerr"
	"github.com/jigdo-go/jigdo/rollsum"
)

// SupportedMajorVersion is the only [Jigdo] Version major number this
// package understands (spec §4.4's format-version gate). A file declaring
// a newer major version is rejected rather than silently misread.
const SupportedMajorVersion = 1

// JigdoFile is a parsed .jigdo text index: the round-trippable Document
// plus the substitution graph built from its [Servers] and [Parts]
// sections.
type JigdoFile struct {
	Doc     *Document
	Graph   *Graph
	Version string

	TemplateMD5  [16]byte
	HaveTemplate bool
}

// ParseJigdo parses a complete .jigdo file's bytes.
func ParseJigdo(data []byte) (*JigdoFile, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	jf := &JigdoFile{Doc: doc, Graph: NewGraph()}

	cur := NewSectionCursor(doc)
	for cur.NextSection() {
		switch cur.SectionName() {
		case "Jigdo":
			if err := jf.readJigdoSection(cur); err != nil {
				return nil, err
			}
		case "Image":
			if err := jf.readImageSection(cur); err != nil {
				return nil, err
			}
		case "Parts":
			if err := jf.readPartsSection(cur); err != nil {
				return nil, err
			}
		case "Servers":
			if err := jf.readServersSection(cur); err != nil {
				return nil, err
			}
		}
	}

	if jf.Version != "" {
		major, _, err := splitVersion(jf.Version)
		if err != nil {
			return nil, err
		}
		if major != SupportedMajorVersion {
			return nil, jigdoerr.New(jigdoerr.Configuration, "unsupported [Jigdo] Version major number: "+jf.Version)
		}
	}

	return jf, nil
}

func splitVersion(v string) (major, minor int, err error) {
	parts := strings.SplitN(v, ".", 2)
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, jigdoerr.New(jigdoerr.Configuration, "malformed [Jigdo] Version: "+v)
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major, minor, nil
}

func (jf *JigdoFile) readJigdoSection(cur *SectionCursor) error {
	for cur.NextLabel() {
		if cur.Label() == "Version" {
			jf.Version = strings.TrimSpace(cur.Value())
		}
	}
	return nil
}

func (jf *JigdoFile) readImageSection(cur *SectionCursor) error {
	for cur.NextLabel() {
		if cur.Label() == "Template-MD5Sum" {
			raw, err := decodeBase64OrHexMD5(strings.TrimSpace(cur.Value()))
			if err != nil {
				return err
			}
			jf.TemplateMD5 = raw
			jf.HaveTemplate = true
		}
	}
	return nil
}

func (jf *JigdoFile) readPartsSection(cur *SectionCursor) error {
	for cur.NextLabel() {
		md5, err := decodeBase64OrHexMD5(strings.TrimSpace(cur.Label()))
		if err != nil {
			return jigdoerr.Wrap(jigdoerr.Configuration, err, "decoding [Parts] MD5 label")
		}
		label, path := labelOffsets(cur.Value())
		jf.Graph.AddPart(md5, label, path)
	}
	return nil
}

func (jf *JigdoFile) readServersSection(cur *SectionCursor) error {
	for cur.NextLabel() {
		if err := jf.Graph.AddServer(cur.Label(), cur.Value()); err != nil {
			return err
		}
	}
	return nil
}

// labelOffsets splits a [Parts] value of the form "Label:relative/path"
// into its label and path components, honoring escaping rules.
func labelOffsets(value string) (label, path string) {
	fields := SplitValue(value, ':')
	if len(fields) == 1 {
		return "", fields[0]
	}
	return fields[0], joinRest(fields[1:], ':')
}

// decodeBase64OrHexMD5 accepts either the jigdo modified-Base64 MD5
// encoding (22 characters) or plain hex (32 characters), since both appear
// in the wild in hand-edited .jigdo files.
func decodeBase64OrHexMD5(s string) ([16]byte, error) {
	if len(s) == 32 {
		var out [16]byte
		b, err := hex.DecodeString(s)
		if err != nil {
			return out, jigdoerr.Wrap(jigdoerr.Configuration, err, "decoding hex MD5")
		}
		copy(out[:], b)
		return out, nil
	}
	return rollsum.DecodeMD5(s)
}
