// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package template

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorRoundTrip(t *testing.T) {
	cases := []Descriptor{
		{Kind: KindUnmatchedData, Size: 4},
		{Kind: KindMatchedFile, Size: 8192, RSum: 0xdeadbeefcafef00d, MD5: [16]byte{1, 2, 3}},
		{Kind: KindWrittenFile, Size: 4096, RSum: 42, MD5: [16]byte{9, 9, 9}},
		{Kind: KindImageInfo, Size: 12292, MD5: [16]byte{1, 1, 1}, BlockLen: 1024},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, want.Encode(&buf))

		got, err := DecodeDescriptor(&buf)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDecodeDescriptorLegacyTags(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(wireLegacyUnmatched)
	require.NoError(t, writeUint48(&buf, 99))

	d, err := DecodeDescriptor(&buf)
	require.NoError(t, err)
	require.Equal(t, KindUnmatchedData, d.Kind)
	require.Equal(t, uint64(99), d.Size)
	require.True(t, d.Legacy)
}

func TestDataPartRoundTrip(t *testing.T) {
	payload := []byte("compressed-bytes-stand-in")

	var buf bytes.Buffer
	require.NoError(t, WriteDataPart(&buf, 1000, payload))

	h, err := ReadDataPartHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), h.UncompressedLen)
	require.Equal(t, uint64(partHeaderLen+len(payload)), h.TotalLen)

	got := make([]byte, h.TotalLen-partHeaderLen)
	_, err = io.ReadFull(&buf, got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDescSectionFindableFromEnd(t *testing.T) {
	descs := []Descriptor{
		{Kind: KindMatchedFile, Size: 8192, RSum: 7, MD5: [16]byte{1}},
		{Kind: KindUnmatchedData, Size: 4},
		{Kind: KindMatchedFile, Size: 4096, RSum: 8, MD5: [16]byte{2}},
		{Kind: KindImageInfo, Size: 12292, MD5: [16]byte{3}, BlockLen: 1024},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf))
	require.NoError(t, WriteDataPart(&buf, 4, []byte("zzzz")))
	require.NoError(t, WriteDescSection(&buf, descs))

	r := bytes.NewReader(buf.Bytes())
	got, sectionStart, err := ReadDescSectionFromEnd(r)
	require.NoError(t, err)
	require.Equal(t, descs, got)
	require.Greater(t, sectionStart, int64(0))
}

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf))

	err := ReadHeader(bufio.NewReader(&buf))
	require.NoError(t, err)
}

func TestHeaderRejectsMissingBlankLine(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("header\r\ncomment\r\nnot blank\r\n")

	err := ReadHeader(bufio.NewReader(&buf))
	require.Error(t, err)
}

func TestCompressorRoundTripDeflate(t *testing.T) {
	testCompressorRoundTrip(t, MethodDeflate)
}

func TestCompressorRoundTripBzip2(t *testing.T) {
	testCompressorRoundTrip(t, MethodBzip2)
}

func testCompressorRoundTrip(t *testing.T, method Method) {
	t.Helper()
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)

	var buf bytes.Buffer
	w, err := NewCompressWriter(method, &buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewDecompressReader(method, &buf)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, data, got)
}
