// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package rollsum

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestUpdateFromStream(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 5000)
	r := bytes.NewReader(data)

	var calls int
	m := NewMD5()
	err := m.UpdateFromStream(r, int64(len(data)), 777, func(done, total int64) error {
		calls++
		require.LessOrEqual(t, done, total)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, SumBytes(data), m.Finish())
	require.Greater(t, calls, 1)
}

func TestUpdateFromStreamProgressAbort(t *testing.T) {
	data := bytes.Repeat([]byte("y"), 5000)
	r := bytes.NewReader(data)

	sentinel := errors.New("aborted by caller")
	m := NewMD5()
	err := m.UpdateFromStream(r, int64(len(data)), 256, func(done, total int64) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}
