// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package encoder

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jigdo-go/jigdo/fileset"
	"github.com/jigdo-go/jigdo/template"
)

type memPool struct {
	files []*fileset.Entry
	data  map[*fileset.Entry][]byte
}

func (p *memPool) Files() []*fileset.Entry { return p.files }

func (p *memPool) Open(e *fileset.Entry) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p.data[e])), nil
}

func (p *memPool) ByMD5(sum [16]byte) (*fileset.Entry, bool) {
	for _, e := range p.files {
		_, _, whole, err := e.Checksums(func() (io.ReadCloser, error) { return p.Open(e) }, 4, 4)
		if err == nil && whole == sum {
			return e, true
		}
	}
	return nil, false
}

func TestEncodeProducesValidTemplate(t *testing.T) {
	component := []byte("wxyz1234")
	entry := &fileset.Entry{Path: "comp.bin", Size: int64(len(component))}
	pool := &memPool{files: []*fileset.Entry{entry}, data: map[*fileset.Entry][]byte{entry: component}}

	var img bytes.Buffer
	img.WriteString("XX")
	img.Write(component)
	img.WriteString("YY")
	image := img.Bytes()

	var out bytes.Buffer
	res, err := Encode(&out, pool, bytes.NewReader(image), int64(len(image)), Options{
		BlockLen:    4,
		MD5BlockLen: 4,
		Method:      template.MethodDeflate,
	})
	require.NoError(t, err)
	require.Len(t, res.Matched, 1)
	require.Equal(t, "comp.bin", res.Matched[0].Path)

	r := bytes.NewReader(out.Bytes())
	require.NoError(t, template.ReadHeader(bufio.NewReader(r)))

	descs, _, err := template.ReadDescSectionFromEnd(r)
	require.NoError(t, err)
	require.NotEmpty(t, descs)
	require.Equal(t, template.KindImageInfo, descs[len(descs)-1].Kind)

	var sawMatch bool
	for _, d := range descs {
		if d.Kind == template.KindMatchedFile {
			sawMatch = true
			require.Equal(t, uint64(len(component)), d.Size)
		}
	}
	require.True(t, sawMatch)
}
