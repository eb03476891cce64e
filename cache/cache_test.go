// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreThenLookupHits(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "sums.cache"), 0)
	require.NoError(t, err)

	mtime := time.Now().Truncate(time.Second)
	c.Store("file.iso", Entry{
		BlockLen: 1024, MD5BlockLen: 8192, Size: 4096, Mtime: mtime,
		FileMD5: [16]byte{1, 2, 3},
	})

	got, ok := c.Lookup("file.iso", 1024, 8192, 4096, mtime)
	require.True(t, ok)
	require.Equal(t, [16]byte{1, 2, 3}, got.FileMD5)
}

func TestLookupMissesOnSizeChange(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "sums.cache"), 0)
	require.NoError(t, err)

	mtime := time.Now().Truncate(time.Second)
	c.Store("file.iso", Entry{BlockLen: 1024, MD5BlockLen: 8192, Size: 4096, Mtime: mtime})

	_, ok := c.Lookup("file.iso", 1024, 8192, 9999, mtime)
	require.False(t, ok)
}

func TestLookupMissesOnBlockLenChange(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "sums.cache"), 0)
	require.NoError(t, err)

	mtime := time.Now().Truncate(time.Second)
	c.Store("file.iso", Entry{BlockLen: 1024, MD5BlockLen: 8192, Size: 4096, Mtime: mtime})

	_, ok := c.Lookup("file.iso", 2048, 8192, 4096, mtime)
	require.False(t, ok)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sums.cache")
	mtime := time.Now().Truncate(time.Second)

	c1, err := Open(path, 0)
	require.NoError(t, err)
	c1.Store("file.iso", Entry{BlockLen: 1024, MD5BlockLen: 8192, Size: 4096, Mtime: mtime, FileMD5: [16]byte{9}})
	require.NoError(t, c1.Close())

	c2, err := Open(path, 0)
	require.NoError(t, err)
	got, ok := c2.Lookup("file.iso", 1024, 8192, 4096, mtime)
	require.True(t, ok)
	require.Equal(t, [16]byte{9}, got.FileMD5)
}

func TestPurgeRemovesStaleEntries(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "sums.cache"), 0)
	require.NoError(t, err)

	c.Store("old.iso", Entry{BlockLen: 1024, MD5BlockLen: 8192})
	require.Equal(t, 1, c.Len())

	c.Purge(-time.Second) // everything is "older" than a negative duration ago
	require.Equal(t, 0, c.Len())
}

func TestOpenMissingFileIsNotError(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "does-not-exist.cache"), 0)
	require.NoError(t, err)
	require.Equal(t, 0, c.Len())
}
