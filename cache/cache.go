// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cache stores previously-computed per-file checksums keyed by
// leafname, so unchanged files need not be re-hashed on a later run, per
// spec §4.6. The on-disk shape and expiry sweep are grounded directly in
// the teacher's internal/ignore.cache type; an in-memory LRU layer sits in
// front of it for repeated lookups within a single run.
package cache

import (
	"encoding/gob"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// Entry is everything the cache remembers about one file. BlockMD5 holds
// one digest per md5BlockLen-sized chunk, in order.
type Entry struct {
	BlockLen    int
	MD5BlockLen int
	BlockCount  int
	RollingSum  uint64
	FileMD5     [16]byte
	BlockMD5    [][16]byte

	Size  int64
	Mtime time.Time

	LastAccess time.Time // refreshed on every Lookup hit or Store; persisted
}

// Cache is a store of Entry values keyed by leafname; every method holds
// an internal mutex, so it may be shared between goroutines. It combines a golang-lru hot layer
// (hashicorp/golang-lru/v2, wired straight from the teacher's own go.mod)
// with a plain map mirroring internal/ignore.cache's shape, persisted to
// disk as a single gob-encoded file.
type Cache struct {
	mut     sync.Mutex
	path    string
	entries map[string]Entry
	hot     *lru.Cache[string, Entry]
	dirty   bool
}

// Open loads path if it exists (a missing file is not an error -- the
// cache starts empty) and returns a Cache backed by it. hotSize bounds the
// in-memory LRU layer; pass 0 for a sensible default.
func Open(path string, hotSize int) (*Cache, error) {
	if hotSize <= 0 {
		hotSize = 1024
	}
	hot, err := lru.New[string, Entry](hotSize)
	if err != nil {
		return nil, errors.Wrap(err, "constructing in-memory cache layer")
	}

	c := &Cache{
		path:    path,
		entries: make(map[string]Entry),
		hot:     hot,
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, errors.Wrap(err, "opening checksum cache file")
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&c.entries); err != nil {
		// A corrupt cache file is not fatal to the caller: start fresh.
		c.entries = make(map[string]Entry)
	}

	return c, nil
}

// Lookup returns the cached entry for leafname if one exists and its
// blockLen/md5BlockLen/size/mtime all match the live file's; otherwise ok
// is false and the caller must recompute.
func (c *Cache) Lookup(leafname string, blockLen, md5BlockLen int, size int64, mtime time.Time) (Entry, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()

	e, ok := c.hot.Get(leafname)
	if !ok || !matches(e, blockLen, md5BlockLen, size, mtime) {
		e, ok = c.entries[leafname]
		if !ok || !matches(e, blockLen, md5BlockLen, size, mtime) {
			return Entry{}, false
		}
	}

	e.LastAccess = time.Now()
	c.entries[leafname] = e
	c.hot.Add(leafname, e)
	c.dirty = true
	return e, true
}

func matches(e Entry, blockLen, md5BlockLen int, size int64, mtime time.Time) bool {
	return e.BlockLen == blockLen &&
		e.MD5BlockLen == md5BlockLen &&
		e.Size == size &&
		e.Mtime.Equal(mtime)
}

// Store records (or overwrites) the entry for leafname and marks the
// cache dirty so Close will persist it.
func (c *Cache) Store(leafname string, e Entry) {
	e.LastAccess = time.Now()

	c.mut.Lock()
	defer c.mut.Unlock()
	c.entries[leafname] = e
	c.hot.Add(leafname, e)
	c.dirty = true
}

// Purge drops every entry last accessed (stored or looked up) more than
// olderThan ago.
func (c *Cache) Purge(olderThan time.Duration) {
	c.mut.Lock()
	defer c.mut.Unlock()

	cutoff := time.Now().Add(-olderThan)
	for k, e := range c.entries {
		if e.LastAccess.Before(cutoff) {
			delete(c.entries, k)
			c.hot.Remove(k)
			c.dirty = true
		}
	}
}

// Close persists dirty entries to disk. It is a no-op if nothing changed
// since Open/the last Close.
func (c *Cache) Close() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if !c.dirty {
		return nil
	}

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating checksum cache file")
	}
	if err := gob.NewEncoder(f).Encode(c.entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "encoding checksum cache")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing checksum cache file")
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return errors.Wrap(err, "renaming checksum cache file into place")
	}

	c.dirty = false
	return nil
}

// Len reports the number of entries currently held (for tests/metrics).
func (c *Cache) Len() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.entries)
}
