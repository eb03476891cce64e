// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package matcher

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jigdo-go/jigdo/fileset"
)

type memPool struct {
	files []*fileset.Entry
	data  map[*fileset.Entry][]byte
}

func (p *memPool) Files() []*fileset.Entry { return p.files }

func (p *memPool) Open(e *fileset.Entry) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p.data[e])), nil
}

func (p *memPool) ByMD5(sum [16]byte) (*fileset.Entry, bool) { return nil, false }

func newMemPool(contents map[string][]byte) *memPool {
	p := &memPool{data: make(map[*fileset.Entry][]byte)}
	for path, b := range contents {
		e := &fileset.Entry{Path: path, Size: int64(len(b))}
		p.files = append(p.files, e)
		p.data[e] = b
	}
	return p
}

func TestScanFindsTwoEmbeddedFiles(t *testing.T) {
	a := []byte("abcd")
	b := []byte("wxyz1234")
	pool := newMemPool(map[string][]byte{"a": a, "b": b})

	m, err := New(pool, 4, 4)
	require.NoError(t, err)

	var imgBuf bytes.Buffer
	imgBuf.WriteString("XX")
	imgBuf.Write(a)
	imgBuf.WriteString("YY")
	imgBuf.Write(b)
	imgBuf.WriteString("ZZ")
	image := imgBuf.Bytes()

	var literals [][]byte
	type hit struct {
		path   string
		offset int64
	}
	var hits []hit

	err = m.Scan(bytes.NewReader(image), int64(len(image)),
		func(e *fileset.Entry, off int64) error {
			hits = append(hits, hit{e.Path, off})
			return nil
		},
		func(data []byte) error {
			cp := append([]byte{}, data...)
			literals = append(literals, cp)
			return nil
		},
	)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	require.Equal(t, "a", hits[0].path)
	require.Equal(t, int64(2), hits[0].offset)
	require.Equal(t, "b", hits[1].path)
	require.Equal(t, int64(8), hits[1].offset)

	require.Equal(t, [][]byte{[]byte("XX"), []byte("YY"), []byte("ZZ")}, literals)
}

func TestScanAllLiteralWhenNoMatch(t *testing.T) {
	pool := newMemPool(map[string][]byte{"a": []byte("abcdefgh")})
	m, err := New(pool, 4, 4)
	require.NoError(t, err)

	image := []byte("zzzzzzzzzzzz")
	var literal []byte
	err = m.Scan(bytes.NewReader(image), int64(len(image)), nil, func(data []byte) error {
		literal = append(literal, data...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, image, literal)
}

func TestScanImageSmallerThanBlockLenIsAllLiteral(t *testing.T) {
	pool := newMemPool(map[string][]byte{"a": []byte("abcdefgh")})
	m, err := New(pool, 4, 4)
	require.NoError(t, err)

	image := []byte("ab")
	var literal []byte
	err = m.Scan(bytes.NewReader(image), int64(len(image)), nil, func(data []byte) error {
		literal = append(literal, data...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, image, literal)
}
