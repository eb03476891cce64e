// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build blobstore

package fileset

import (
	"context"
	"io"

	"gocloud.dev/blob"

	"github.com/jigdo-go/jigdo/jigdoerr"
)

// BlobProvider is a Pool backed by a gocloud.dev/blob.Bucket, letting
// component files live in S3, GCS, Azure Blob or any other gocloud-
// supported backend instead of a local directory. It is opt-in behind the
// "blobstore" build tag so the default build carries no cloud SDK
// dependency weight.
type BlobProvider struct {
	bucket  *blob.Bucket
	label   string
	entries []*Entry
	byKey   map[*Entry]string
	byMD5   map[[16]byte]*Entry

	blockLen, md5BlockLen int
}

// NewBlobProvider lists every blob under prefix in bucket (non-recursive:
// gocloud's ListOptions.Delimiter keeps it to one "directory" level,
// matching DirProvider's non-recursion contract) and returns a Pool over
// them.
func NewBlobProvider(ctx context.Context, bucket *blob.Bucket, prefix, label string, blockLen, md5BlockLen int) (*BlobProvider, error) {
	p := &BlobProvider{
		bucket:      bucket,
		label:       label,
		byKey:       make(map[*Entry]string),
		byMD5:       make(map[[16]byte]*Entry),
		blockLen:    blockLen,
		md5BlockLen: md5BlockLen,
	}

	iter := bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, jigdoerr.Wrap(jigdoerr.IO, err, "listing blob bucket")
		}
		if obj.IsDir || obj.Size < int64(blockLen) {
			continue
		}
		e := &Entry{Path: obj.Key, Size: obj.Size, Mtime: obj.ModTime, Label: label}
		p.entries = append(p.entries, e)
		p.byKey[e] = obj.Key
	}

	return p, nil
}

func (p *BlobProvider) Files() []*Entry { return p.entries }

func (p *BlobProvider) Open(e *Entry) (io.ReadCloser, error) {
	return p.bucket.NewReader(context.Background(), p.byKey[e], nil)
}

// IndexByMD5 mirrors DirProvider.IndexByMD5 but over blob reads.
func (p *BlobProvider) IndexByMD5() error {
	for _, e := range p.entries {
		_, _, whole, err := e.Checksums(func() (io.ReadCloser, error) { return p.Open(e) }, p.blockLen, p.md5BlockLen)
		if err != nil {
			continue
		}
		p.byMD5[whole] = e
	}
	return nil
}

func (p *BlobProvider) ByMD5(sum [16]byte) (*Entry, bool) {
	e, ok := p.byMD5[sum]
	return e, ok
}
