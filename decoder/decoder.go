// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package decoder reconstructs an image from a jigdo template stream and
// a pool of candidate component files, per spec §3/§4.3: DESC records are
// read from the trailer backwards to the start, then replayed in order,
// pulling bytes either from the template's own DATA parts (unmatched
// runs) or from a matched pool entry.
package decoder

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jigdo-go/jigdo/fileset"
	"github.com/jigdo-go/jigdo/jigdoerr"
	"github.com/jigdo-go/jigdo/reporter"
	"github.com/jigdo-go/jigdo/rollsum"
	"github.com/jigdo-go/jigdo/template"
)

// Mode selects how the output file is staged, per spec §4.3.
type Mode int

const (
	// SinglePass writes directly to destPath; every component must be
	// available up front, and a missing one fails the whole operation.
	SinglePass Mode = iota
	// CreateTmp writes to a fresh UUID-suffixed temporary file beside
	// destPath. A missing component no longer aborts the pass: its
	// region is zero-filled and named in a descriptor table appended
	// after the image data, so a later MergeTmp pass can patch it in.
	// The temp file is renamed into place only once every component has
	// resolved.
	CreateTmp
	// MergeTmp resumes an existing partially-written temporary file left
	// behind by an earlier CreateTmp/MergeTmp run: it reads that file's
	// own trailing descriptor table (written the same way a template's
	// own DESC section is), validates it against the supplied template,
	// and re-attempts only the components that table names as still
	// missing.
	MergeTmp
)

// Options configures one Decode call.
type Options struct {
	Mode     Mode
	Method   template.Method
	Reporter reporter.Reporter
	// VerifyImageMD5 re-hashes the reconstructed output and compares it
	// against the ImageInfo descriptor's MD5; off by default since it
	// doubles the I/O for a large image. Only performed when the image is
	// fully resolved.
	VerifyImageMD5 bool
}

// Result reports what Decode actually did.
type Result struct {
	BytesWritten  int64
	ImageMD5      [16]byte
	ImageVerified bool
	// Incomplete lists, in template order, every MatchedFile/WrittenFile
	// descriptor whose component could not be found in pool. Non-empty
	// only for CreateTmp/MergeTmp; SinglePass always fails outright
	// instead. A later MergeTmp call with those components added to pool
	// will resolve them.
	Incomplete []template.Descriptor
}

// Decode reconstructs the image described by templateFile into destPath.
func Decode(templateFile io.ReadSeeker, pool fileset.Pool, destPath string, opt Options) (Result, error) {
	rep := opt.Reporter
	if rep == nil {
		rep = reporter.NopReporter{}
	}

	descs, _, err := template.ReadDescSectionFromEnd(templateFile)
	if err != nil {
		return Result{}, err
	}
	if len(descs) == 0 || descs[len(descs)-1].Kind != template.KindImageInfo {
		return Result{}, jigdoerr.New(jigdoerr.Format, "template DESC section missing trailing ImageInfo record")
	}
	info := descs[len(descs)-1]
	descs = descs[:len(descs)-1]

	if _, err := templateFile.Seek(0, io.SeekStart); err != nil {
		return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "seeking to template start")
	}
	br := bufio.NewReader(templateFile)
	if err := template.ReadHeader(br); err != nil {
		return Result{}, err
	}

	writePath, pending, err := stageOutput(destPath, opt.Mode)
	if err != nil {
		return Result{}, err
	}

	flags := os.O_CREATE | os.O_RDWR
	if pending == nil {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(writePath, flags, 0o644)
	if err != nil {
		return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "opening reconstruction output")
	}
	defer out.Close()

	var cursor int64 // logical offset into the reconstructed image
	var pendingIdx int
	var newPending []template.Descriptor

	for _, d := range descs {
		segEnd := cursor + int64(d.Size)
		isPendingHere := pendingIdx < len(pending) && matchesPending(pending[pendingIdx], d)

		switch d.Kind {
		case template.KindUnmatchedData:
			h, err := template.ReadDataPartHeader(br)
			if err != nil {
				return Result{}, err
			}
			if h.UncompressedLen != d.Size {
				return Result{}, jigdoerr.New(jigdoerr.Format, "DATA part length disagrees with its UnmatchedData descriptor")
			}
			if pending != nil {
				// Literal bytes never depend on the component pool, so a
				// prior pass always wrote them correctly; skip decoding,
				// but still consume the compressed bytes to keep br
				// aligned with the next part's tag.
				if _, err := io.CopyN(io.Discard, br, int64(h.CompressedLen())); err != nil {
					return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "skipping already-written DATA part")
				}
				cursor = segEnd
				continue
			}
			lr := io.LimitReader(br, int64(h.CompressedLen()))
			zr, err := template.NewDecompressReader(opt.Method, lr)
			if err != nil {
				return Result{}, err
			}
			ow := io.NewOffsetWriter(out, cursor)
			n, err := io.CopyN(ow, zr, int64(d.Size))
			zr.Close()
			if err != nil || n != int64(d.Size) {
				return Result{}, jigdoerr.Wrap(jigdoerr.Integrity, err, "decompressing DATA part")
			}
			// Drain any compressed bytes the decompressor left unread (it
			// may buffer ahead) so br's cursor lands exactly on the next
			// part's tag.
			if _, err := io.Copy(io.Discard, lr); err != nil {
				return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "draining DATA part")
			}

		case template.KindMatchedFile, template.KindWrittenFile:
			if pending != nil && !isPendingHere {
				// Already resolved by a prior pass; nothing to patch.
				cursor = segEnd
				continue
			}

			entry, ok := pool.ByMD5(d.MD5)
			if !ok {
				if opt.Mode == SinglePass {
					return Result{}, jigdoerr.New(jigdoerr.Resource, "no component file available for MD5 "+rollsum.EncodeMD5(d.MD5))
				}
				if !isPendingHere {
					ow := io.NewOffsetWriter(out, cursor)
					if err := zeroFill(ow, d.Size); err != nil {
						return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "zero-filling unresolved component")
					}
				}
				newPending = append(newPending, d)
				if isPendingHere {
					pendingIdx++
				}
				cursor = segEnd
				continue
			}

			if err := rep.MatchFound(entry.Path, cursor); err != nil {
				return Result{}, err
			}
			rc, err := pool.Open(entry)
			if err != nil {
				return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "opening component file")
			}
			ow := io.NewOffsetWriter(out, cursor)
			n, err := io.CopyN(ow, rc, int64(d.Size))
			rc.Close()
			if err != nil || n != int64(d.Size) {
				return Result{}, jigdoerr.Wrap(jigdoerr.Integrity, err, "copying component file bytes")
			}
			if isPendingHere {
				pendingIdx++
			}

		default:
			return Result{}, jigdoerr.New(jigdoerr.Format, "unexpected descriptor kind in DESC body")
		}

		cursor = segEnd
	}

	if cursor != int64(info.Size) {
		return Result{}, jigdoerr.New(jigdoerr.Integrity, "reconstructed image size disagrees with ImageInfo")
	}
	if pendingIdx != len(pending) {
		return Result{}, jigdoerr.New(jigdoerr.Format, "temp file's pending table does not match the supplied template")
	}

	if err := out.Truncate(cursor); err != nil {
		return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "truncating reconstruction output to image size")
	}

	if len(newPending) > 0 {
		if _, err := out.Seek(0, io.SeekEnd); err != nil {
			return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "seeking to append pending descriptor table")
		}
		if err := template.WriteDescSection(out, newPending); err != nil {
			return Result{}, err
		}
		if err := out.Close(); err != nil {
			return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "closing reconstruction output")
		}
		return Result{BytesWritten: cursor, Incomplete: newPending}, nil
	}

	result := Result{BytesWritten: cursor}
	if opt.VerifyImageMD5 {
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "seeking to verify reconstruction output")
		}
		hasher := rollsum.NewMD5()
		if _, err := io.Copy(hasher, out); err != nil {
			return Result{}, jigdoerr.Wrap(jigdoerr.IO, err, "re-reading reconstruction output for verification")
		}
		sum := hasher.Finish()
		result.ImageMD5 = sum
		result.ImageVerified = sum == info.MD5
		if !result.ImageVerified {
			return result, jigdoerr.New(jigdoerr.Integrity, "reconstructed image MD5 does not match ImageInfo")
		}
	}

	if err := out.Close(); err != nil {
		return result, jigdoerr.Wrap(jigdoerr.IO, err, "closing reconstruction output")
	}
	if writePath != destPath {
		if err := os.Rename(writePath, destPath); err != nil {
			return result, jigdoerr.Wrap(jigdoerr.IO, err, "renaming reconstruction output into place")
		}
	}

	if err := rep.Finished(cursor); err != nil {
		return result, err
	}
	return result, nil
}

// matchesPending reports whether pending names the same component segment
// as d: same kind, size and content digest. RSum is included as a cheap
// extra check since it's already on hand.
func matchesPending(pending, d template.Descriptor) bool {
	return pending.Kind == d.Kind && pending.Size == d.Size && pending.MD5 == d.MD5 && pending.RSum == d.RSum
}

// zeroFill writes n zero bytes to w, in fixed-size chunks so an
// unresolved multi-gigabyte component doesn't require a matching
// allocation.
func zeroFill(w io.Writer, n uint64) error {
	buf := make([]byte, 32*1024)
	for n > 0 {
		chunk := uint64(len(buf))
		if n < chunk {
			chunk = n
		}
		if _, err := w.Write(buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// tempName derives a UUID-suffixed temporary filename beside path, the
// same shape the source's own temp-file convention uses.
func tempName(path string) string {
	return filepath.Join(filepath.Dir(path), ".jigdo-"+filepath.Base(path)+"-"+uuid.NewString())
}

// stageOutput resolves the path Decode should write to and, for a MergeTmp
// resume, the ordered table of component descriptors an earlier pass
// could not fill in. pending is nil for SinglePass and for a fresh
// CreateTmp/MergeTmp run (no usable existing temp file), signalling that
// every descriptor must be (re)written from scratch.
func stageOutput(destPath string, mode Mode) (writePath string, pending []template.Descriptor, err error) {
	switch mode {
	case SinglePass:
		return destPath, nil, nil

	case CreateTmp:
		return tempName(destPath), nil, nil

	case MergeTmp:
		matches, globErr := filepath.Glob(filepath.Join(filepath.Dir(destPath), ".jigdo-"+filepath.Base(destPath)+"-*"))
		if globErr != nil || len(matches) == 0 {
			return tempName(destPath), nil, nil
		}
		existing := matches[0]

		f, openErr := os.Open(existing)
		if openErr != nil {
			return tempName(destPath), nil, nil
		}
		table, _, descErr := template.ReadDescSectionFromEnd(f)
		f.Close()
		if descErr != nil {
			// No usable trailer (e.g. a stale or truncated temp file):
			// start the pass over in place rather than fail outright.
			return existing, nil, nil
		}
		return existing, table, nil

	default:
		return "", nil, jigdoerr.New(jigdoerr.Configuration, "unknown decoder mode")
	}
}
