// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package reporter

// Reporter is the progress-callback collaborator interface, per spec
// §5/§6. Of its methods, the encoder and decoder call MatchFound for each
// matched component and Finished at the end of a successful run; no core
// package calls Error, Info, ScanningFile, ScanningImage, ReadingMD5 or
// WritingImage, and no reporting interval is configurable. A callback may
// return a non-nil error to request cancellation; the caller returns that
// error and stops the operation.
type Reporter interface {
	Error(msg string) error
	Info(msg string) error
	ScanningFile(file string, offset int64) error
	ScanningImage(offset int64) error
	ReadingMD5(offset, size int64) error
	WritingImage(written, total, imageOffset, imageSize int64) error
	MatchFound(file string, imageOffset int64) error
	Finished(imageSize int64) error
}

// NopReporter implements Reporter with no-ops, useful for tests and for
// callers that only want the defaults (e.g. they only care about errors
// surfacing through the returned error value, not every callback).
type NopReporter struct{}

func (NopReporter) Error(string) error                            { return nil }
func (NopReporter) Info(string) error                             { return nil }
func (NopReporter) ScanningFile(string, int64) error              { return nil }
func (NopReporter) ScanningImage(int64) error                     { return nil }
func (NopReporter) ReadingMD5(int64, int64) error                  { return nil }
func (NopReporter) WritingImage(int64, int64, int64, int64) error { return nil }
func (NopReporter) MatchFound(string, int64) error                 { return nil }
func (NopReporter) Finished(int64) error                           { return nil }

// LoggingReporter adapts a Logger to the Reporter interface, logging
// Error/Info/MatchFound/Finished and ignoring the progress callbacks
// (ScanningFile/ScanningImage/ReadingMD5/WritingImage), which return nil
// without logging.
type LoggingReporter struct {
	Log *Logger
}

func (r LoggingReporter) Error(msg string) error {
	r.Log.Warnf("error: %s", msg)
	return nil
}

func (r LoggingReporter) Info(msg string) error {
	r.Log.Infoln(msg)
	return nil
}

func (r LoggingReporter) ScanningFile(file string, offset int64) error { return nil }
func (r LoggingReporter) ScanningImage(offset int64) error             { return nil }
func (r LoggingReporter) ReadingMD5(offset, size int64) error          { return nil }
func (r LoggingReporter) WritingImage(written, total, imageOffset, imageSize int64) error {
	return nil
}

func (r LoggingReporter) MatchFound(file string, imageOffset int64) error {
	r.Log.Debugf("matched %s at offset %d", file, imageOffset)
	return nil
}

func (r LoggingReporter) Finished(imageSize int64) error {
	r.Log.Okf("finished, image size %d", imageSize)
	return nil
}
