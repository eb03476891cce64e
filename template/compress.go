// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package template

import (
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// Method identifies which compressor produced (or should decompress) a
// DATA part's payload, per spec §3's "compressed bytes (deflate or
// bzip2)".
type Method uint8

const (
	MethodDeflate Method = iota
	MethodBzip2
)

// NewCompressWriter returns a writer that compresses everything written to
// it with the given method, flushing into w. The caller must Close it to
// flush the final bytes before treating the part as complete.
//
// DEFLATE goes through klauspost/compress/flate (a faster drop-in for the
// standard library's package of the same name); BZIP2 goes through
// dsnet/compress/bzip2, the one bzip2 package in the retrieval pack that
// can actually encode -- the standard library's compress/bzip2 is
// decode-only.
func NewCompressWriter(method Method, w io.Writer) (io.WriteCloser, error) {
	switch method {
	case MethodDeflate:
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			return nil, errors.Wrap(err, "constructing deflate writer")
		}
		return fw, nil
	case MethodBzip2:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, errors.Wrap(err, "constructing bzip2 writer")
		}
		return bw, nil
	default:
		return nil, errors.Errorf("unknown compression method %d", method)
	}
}

// NewDecompressReader returns a reader that decompresses from r using the
// given method.
func NewDecompressReader(method Method, r io.Reader) (io.ReadCloser, error) {
	switch method {
	case MethodDeflate:
		return flate.NewReader(r), nil
	case MethodBzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, errors.Wrap(err, "constructing bzip2 reader")
		}
		return br, nil
	default:
		return nil, errors.Errorf("unknown compression method %d", method)
	}
}
