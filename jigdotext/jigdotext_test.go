// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package jigdotext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSerializeRoundTrip(t *testing.T) {
	src := "# a comment\r\n[Jigdo]\r\nVersion=1.1\r\n\n[Image]\nFilename=disk.iso\n"

	doc, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, src, string(doc.Bytes()))
}

func TestParseRejectsBareLine(t *testing.T) {
	_, err := Parse([]byte("not a valid line at all\n"))
	require.Error(t, err)
}

func TestSectionCursorWalksSectionsAndLabels(t *testing.T) {
	doc, err := Parse([]byte("[A]\nx=1\ny=2\n[B]\nz=3\n"))
	require.NoError(t, err)

	cur := NewSectionCursor(doc)

	require.True(t, cur.NextSection())
	require.Equal(t, "A", cur.SectionName())
	require.True(t, cur.NextLabel())
	require.Equal(t, "x", cur.Label())
	require.Equal(t, "1", cur.Value())
	require.True(t, cur.NextLabel())
	require.Equal(t, "y", cur.Label())
	require.False(t, cur.NextLabel())

	require.True(t, cur.NextSection())
	require.Equal(t, "B", cur.SectionName())
	require.True(t, cur.NextLabel())
	require.Equal(t, "z", cur.Label())
	require.False(t, cur.NextLabel())
	require.False(t, cur.NextSection())
}

func TestSplitValueHonorsQuotingAndEscaping(t *testing.T) {
	got := SplitValue(`a\:b:"c:d":e`, ':')
	require.Equal(t, []string{"a:b", "c:d", "e"}, got)
}

func TestSplitValueHonorsSingleQuoting(t *testing.T) {
	// Inside single quotes, colons and backslashes are literal: no field
	// split and no escape processing until the matching closing quote.
	got := SplitValue(`'c:\d':e`, ':')
	require.Equal(t, []string{`c:\d`, "e"}, got)
}

func TestGraphSimpleChainExpansion(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddServer("C", "http://h/"))
	require.NoError(t, g.AddServer("B", "C:y"))
	require.NoError(t, g.AddServer("A", "B:x"))

	var md5 [16]byte
	g.AddPart(md5, "A", "file")

	urls := g.URLsForMD5(md5, nil, nil)
	require.Equal(t, []string{"http://h/yxfile"}, urls)
}

func TestGraphRejectsDirectCycle(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddServer("A", "B:"))
	err := g.AddServer("B", "A:")
	require.Error(t, err)
}

func TestGraphRejectsSelfCycle(t *testing.T) {
	g := NewGraph()
	err := g.AddServer("A", "A:")
	require.Error(t, err)
}

func TestGraphMultipleAlternativesAllEnumerated(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddServer("A", "http://mirror1/"))
	require.NoError(t, g.AddServer("A", "http://mirror2/"))

	var md5 [16]byte
	g.AddPart(md5, "A", "file.iso")

	urls := g.URLsForMD5(md5, nil, nil)
	require.Len(t, urls, 2)
	require.Contains(t, urls, "http://mirror1/file.iso")
	require.Contains(t, urls, "http://mirror2/file.iso")
}

func TestGraphTryFirstOrdersPreferredLabelAhead(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddServer("Slow", "http://slow/"))
	require.NoError(t, g.AddServer("Fast", "http://fast/"))

	var md5 [16]byte
	g.AddPart(md5, "Slow", "f")
	g.AddPart(md5, "Fast", "f")

	urls := g.URLsForMD5(md5, []string{"Fast"}, nil)
	require.Equal(t, "http://fast/f", urls[0])
}

func TestURLIteratorExhausts(t *testing.T) {
	next := URLIterator([]string{"a", "b"})
	require.Equal(t, "a", next())
	require.Equal(t, "b", next())
	require.Equal(t, "", next())
	require.Equal(t, "", next())
}

func TestParseJigdoBuildsGraphAndVersion(t *testing.T) {
	src := "[Jigdo]\nVersion=1.1\n\n[Servers]\nMain=http://example.org/dist/\n\n[Parts]\n" +
		"00000000000000000000000000000000=Main:disk1.iso\n"

	jf, err := ParseJigdo([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "1.1", jf.Version)

	var md5 [16]byte
	urls := jf.Graph.URLsForMD5(md5, nil, nil)
	require.Equal(t, []string{"http://example.org/dist/disk1.iso"}, urls)
}

func TestParseJigdoRejectsUnsupportedMajorVersion(t *testing.T) {
	_, err := ParseJigdo([]byte("[Jigdo]\nVersion=9.0\n"))
	require.Error(t, err)
}
