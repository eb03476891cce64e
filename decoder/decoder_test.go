// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package decoder

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jigdo-go/jigdo/encoder"
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

func buildTemplate(t *testing.T, pool *memPool, image []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	_, err := encoder.Encode(&out, pool, bytes.NewReader(image), int64(len(image)), encoder.Options{
		BlockLen:    4,
		MD5BlockLen: 4,
		Method:      template.MethodDeflate,
	})
	require.NoError(t, err)
	return out.Bytes()
}

func TestDecodeSinglePassReconstructsImage(t *testing.T) {
	component := []byte("wxyz1234")
	entry := &fileset.Entry{Path: "comp.bin", Size: int64(len(component))}
	pool := &memPool{files: []*fileset.Entry{entry}, data: map[*fileset.Entry][]byte{entry: component}}

	var img bytes.Buffer
	img.WriteString("XX")
	img.Write(component)
	img.WriteString("YY")
	image := img.Bytes()

	tpl := buildTemplate(t, pool, image)

	dest := filepath.Join(t.TempDir(), "out.iso")
	res, err := Decode(bytes.NewReader(tpl), pool, dest, Options{
		Mode:           SinglePass,
		Method:         template.MethodDeflate,
		VerifyImageMD5: true,
	})
	require.NoError(t, err)
	require.True(t, res.ImageVerified)
	require.Equal(t, int64(len(image)), res.BytesWritten)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, image, got)
}

func TestDecodeCreateTmpRenamesIntoPlace(t *testing.T) {
	component := []byte("wxyz1234")
	entry := &fileset.Entry{Path: "comp.bin", Size: int64(len(component))}
	pool := &memPool{files: []*fileset.Entry{entry}, data: map[*fileset.Entry][]byte{entry: component}}

	image := append(append([]byte("AA"), component...), []byte("BB")...)
	tpl := buildTemplate(t, pool, image)

	dest := filepath.Join(t.TempDir(), "out.iso")
	_, err := Decode(bytes.NewReader(tpl), pool, dest, Options{Mode: CreateTmp, Method: template.MethodDeflate})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, image, got)
}

func TestDecodeCreateTmpThenMergeTmpCompletesMissingComponent(t *testing.T) {
	component := []byte("wxyz1234")
	entry := &fileset.Entry{Path: "comp.bin", Size: int64(len(component))}
	fullPool := &memPool{files: []*fileset.Entry{entry}, data: map[*fileset.Entry][]byte{entry: component}}

	image := append(append([]byte("AA"), component...), []byte("BB")...)
	tpl := buildTemplate(t, fullPool, image)

	dest := filepath.Join(t.TempDir(), "out.iso")

	// Pass 1: the component isn't available yet.
	emptyPool := &memPool{data: map[*fileset.Entry][]byte{}}
	res, err := Decode(bytes.NewReader(tpl), emptyPool, dest, Options{Mode: CreateTmp, Method: template.MethodDeflate})
	require.NoError(t, err)
	require.Len(t, res.Incomplete, 1)
	require.Equal(t, template.KindMatchedFile, res.Incomplete[0].Kind)

	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(dest), ".jigdo-out.iso-*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	partial, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, byte(0), partial[2]) // the zero-filled component region

	// Pass 2: the component is now available; MergeTmp resumes the temp
	// file and patches in the missing region.
	res, err = Decode(bytes.NewReader(tpl), fullPool, dest, Options{Mode: MergeTmp, Method: template.MethodDeflate, VerifyImageMD5: true})
	require.NoError(t, err)
	require.Empty(t, res.Incomplete)
	require.True(t, res.ImageVerified)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, image, got)

	matches, err = filepath.Glob(filepath.Join(filepath.Dir(dest), ".jigdo-out.iso-*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestDecodeMissingComponentFails(t *testing.T) {
	component := []byte("wxyz1234")
	entry := &fileset.Entry{Path: "comp.bin", Size: int64(len(component))}
	pool := &memPool{files: []*fileset.Entry{entry}, data: map[*fileset.Entry][]byte{entry: component}}

	image := append(append([]byte("AA"), component...), []byte("BB")...)
	tpl := buildTemplate(t, pool, image)

	emptyPool := &memPool{data: map[*fileset.Entry][]byte{}}
	dest := filepath.Join(t.TempDir(), "out.iso")
	_, err := Decode(bytes.NewReader(tpl), emptyPool, dest, Options{Mode: SinglePass, Method: template.MethodDeflate})
	require.Error(t, err)
}
