// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package jigdoerr defines the typed error kinds surfaced across the
// template, decoder and jigdo text packages, per the source's mix of
// exceptions and status flags being standardised on a single result-typed
// error (spec §9).
package jigdoerr

import stderrors "github.com/pkg/errors"

// Kind classifies an Error so callers can decide how to react (abort the
// whole operation, skip a line, retry with a different component pool)
// without string-matching messages.
type Kind int

const (
	// Format covers malformed template/binary structure: missing header,
	// unknown descriptor tag, invalid DESC length, non-monotonic offsets.
	Format Kind = iota
	// Integrity covers MD5 mismatches: a component, the image, or the
	// template itself failed to verify.
	Integrity
	// IO covers read/write failures against any collaborator stream.
	IO
	// Configuration covers malformed .jigdo lines, recursive label
	// definitions, unsupported format versions.
	Configuration
	// Resource covers allocation failures and platform limits (e.g.
	// large-file support).
	Resource
)

func (k Kind) String() string {
	switch k {
	case Format:
		return "format"
	case Integrity:
		return "integrity"
	case IO:
		return "io"
	case Configuration:
		return "configuration"
	case Resource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error is the single error type every core package returns. It carries a
// Kind for programmatic dispatch; Cause is a github.com/pkg/errors value
// so the full message chain and the stack trace recorded at New/Wrap time
// survive logging.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string { return e.Cause.Error() }

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Cause: stderrors.New(message)}
}

// Wrap constructs an Error of the given kind, annotating cause with
// message via github.com/pkg/errors.Wrap.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Cause: stderrors.Wrap(cause, message)}
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
