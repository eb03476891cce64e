// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package encoder builds a jigdo template stream from an image and a pool
// of candidate component files, per spec §3/§4.2: unmatched bytes are
// compressed and written as DATA parts, matched files become MatchedFile
// descriptors, and the whole thing is closed out with an ImageInfo
// descriptor and a DESC section trailer.
package encoder

import (
	"bytes"
	"io"

	"github.com/jigdo-go/jigdo/fileset"
	"github.com/jigdo-go/jigdo/jigdoerr"
	"github.com/jigdo-go/jigdo/matcher"
	"github.com/jigdo-go/jigdo/reporter"
	"github.com/jigdo-go/jigdo/rollsum"
	"github.com/jigdo-go/jigdo/template"
)

// Options configures one Encode call.
type Options struct {
	BlockLen    int
	MD5BlockLen int
	Method      template.Method

	// ZippedBufSz bounds how much uncompressed literal data accumulates
	// before being flushed as one DATA part; 0 selects a default.
	ZippedBufSz int

	Reporter reporter.Reporter
}

const defaultZippedBufSz = 1 << 20 // 1 MiB

// Result is everything a caller needs to write the matching .jigdo file:
// the template's own MD5 (for [Image] Template-MD5Sum), the image's MD5,
// and the component entries the template referenced (one per match, in
// image order), in case the caller wants to cross-check its [Parts] section.
type Result struct {
	TemplateMD5 [16]byte
	ImageMD5    [16]byte
	Matched     []*fileset.Entry
}

// Encode scans image (imageSize bytes, randomly addressable) against
// pool's candidate files and writes a complete template stream to w.
func Encode(w io.Writer, pool fileset.Pool, image io.ReaderAt, imageSize int64, opt Options) (Result, error) {
	if opt.ZippedBufSz <= 0 {
		opt.ZippedBufSz = defaultZippedBufSz
	}
	rep := opt.Reporter
	if rep == nil {
		rep = reporter.NopReporter{}
	}

	m, err := matcher.New(pool, opt.BlockLen, opt.MD5BlockLen)
	if err != nil {
		return Result{}, err
	}

	hasher := rollsum.NewMD5()
	tee := io.MultiWriter(w, hasher)

	if err := template.WriteHeader(tee); err != nil {
		return Result{}, err
	}

	imageHasher := rollsum.NewMD5()
	if err := imageHasher.UpdateFromStream(io.NewSectionReader(image, 0, imageSize), imageSize, 1<<20, nil); err != nil {
		return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "hashing whole image")
	}

	e := &state{
		tee:    tee,
		opt:    opt,
		rep:    rep,
		litBuf: &bytes.Buffer{},
	}

	err = m.Scan(image, imageSize,
		func(entry *fileset.Entry, offset int64) error { return e.onMatch(entry, offset) },
		func(data []byte) error { return e.onLiteral(data) },
	)
	if err != nil {
		return Result{}, err
	}
	if err := e.flushLiteral(); err != nil {
		return Result{}, err
	}

	e.descs = append(e.descs, template.Descriptor{
		Kind:     template.KindImageInfo,
		Size:     uint64(imageSize),
		MD5:      imageHasher.Finish(),
		BlockLen: uint32(opt.BlockLen),
	})

	if err := template.WriteDescSection(tee, e.descs); err != nil {
		return Result{}, err
	}

	if err := rep.Finished(imageSize); err != nil {
		return Result{}, err
	}

	return Result{
		TemplateMD5: hasher.Finish(),
		ImageMD5:    imageHasher.Finish(),
		Matched:     e.matched,
	}, nil
}

// state accumulates encoder progress across matcher callbacks, which fire
// strictly in image order.
type state struct {
	tee    io.Writer
	opt    Options
	rep    reporter.Reporter
	litBuf *bytes.Buffer

	descs        []template.Descriptor
	matched      []*fileset.Entry
	literalBytes int64
}

func (e *state) onLiteral(data []byte) error {
	e.litBuf.Write(data)
	e.literalBytes += int64(len(data))
	for e.litBuf.Len() >= e.opt.ZippedBufSz {
		if err := e.flushChunk(e.opt.ZippedBufSz); err != nil {
			return err
		}
	}
	return nil
}

func (e *state) flushLiteral() error {
	for e.litBuf.Len() > 0 {
		n := e.litBuf.Len()
		if n > e.opt.ZippedBufSz {
			n = e.opt.ZippedBufSz
		}
		if err := e.flushChunk(n); err != nil {
			return err
		}
	}
	return nil
}

// flushChunk compresses exactly n bytes from the head of litBuf and writes
// them as one DATA part plus its UnmatchedData descriptor.
func (e *state) flushChunk(n int) error {
	chunk := e.litBuf.Next(n)

	var compressed bytes.Buffer
	cw, err := template.NewCompressWriter(e.opt.Method, &compressed)
	if err != nil {
		return err
	}
	if _, err := cw.Write(chunk); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "compressing literal data")
	}
	if err := cw.Close(); err != nil {
		return jigdoerr.Wrap(jigdoerr.IO, err, "closing compressor")
	}

	if err := template.WriteDataPart(e.tee, uint64(len(chunk)), compressed.Bytes()); err != nil {
		return err
	}
	e.descs = append(e.descs, template.Descriptor{Kind: template.KindUnmatchedData, Size: uint64(len(chunk))})
	return nil
}

func (e *state) onMatch(entry *fileset.Entry, offset int64) error {
	if err := e.flushLiteral(); err != nil {
		return err
	}

	first, _, whole, err := entry.Checksums(nil, e.opt.BlockLen, e.opt.MD5BlockLen)
	if err != nil {
		return jigdoerr.Wrap(jigdoerr.Integrity, err, "re-reading matched entry checksums")
	}

	e.descs = append(e.descs, template.Descriptor{
		Kind: template.KindMatchedFile,
		Size: uint64(entry.Size),
		RSum: first.Value(),
		MD5:  whole,
	})
	e.matched = append(e.matched, entry)
	return e.rep.MatchFound(entry.Path, offset)
}
