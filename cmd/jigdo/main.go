// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Command jigdo is a minimal example binary wiring the library's
// make-template and reconstruct operations together. It is deliberately
// thin: argument parsing, mirror selection and download orchestration are
// out of scope (see the module's Non-goals) -- this just demonstrates the
// two entry points a real driver would call.
package main

import (
	"flag"
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/jigdo-go/jigdo/decoder"
	"github.com/jigdo-go/jigdo/encoder"
	"github.com/jigdo-go/jigdo/fileset"
	"github.com/jigdo-go/jigdo/reporter"
	"github.com/jigdo-go/jigdo/template"
)

func main() {
	var (
		mode         = flag.String("mode", "make-template", "make-template | reconstruct")
		image        = flag.String("image", "", "path to the source image (make-template) or template file (reconstruct)")
		componentDir = flag.String("components", "", "directory of candidate component files")
		out          = flag.String("out", "", "output path (template file or reconstructed image)")
		blockLen     = flag.Int("block-len", 16*1024, "rolling-checksum block length")
		md5BlockLen  = flag.Int("md5-block-len", 16*1024, "MD5 confirmation chunk length")
	)
	flag.Parse()

	log := reporter.Default
	log.SetPrefix("jigdo")

	var err error
	switch *mode {
	case "make-template":
		err = makeTemplate(*image, *componentDir, *out, *blockLen, *md5BlockLen)
	case "reconstruct":
		err = reconstruct(*image, *componentDir, *out, *blockLen, *md5BlockLen)
	default:
		err = fmt.Errorf("unknown -mode %q", *mode)
	}
	if err != nil {
		log.Warnf("%s", err)
		os.Exit(1)
	}
}

func makeTemplate(imagePath, componentDir, outPath string, blockLen, md5BlockLen int) error {
	pool, err := fileset.NewDirProvider(componentDir, "Main", blockLen, md5BlockLen)
	if err != nil {
		return err
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	res, err := encoder.Encode(out, pool, f, info.Size(), encoder.Options{
		BlockLen:    blockLen,
		MD5BlockLen: md5BlockLen,
		Method:      template.MethodDeflate,
		Reporter:    reporter.LoggingReporter{Log: reporter.Default},
	})
	if err != nil {
		return err
	}

	fmt.Printf("template MD5: %x\nmatched %d component files\n", res.TemplateMD5, len(res.Matched))
	return nil
}

func reconstruct(templatePath, componentDir, outPath string, blockLen, md5BlockLen int) error {
	pool, err := fileset.NewDirProvider(componentDir, "Main", blockLen, md5BlockLen)
	if err != nil {
		return err
	}
	if err := pool.IndexByMD5(); err != nil {
		return err
	}

	tf, err := os.Open(templatePath)
	if err != nil {
		return err
	}
	defer tf.Close()

	_, err = decoder.Decode(tf, pool, outPath, decoder.Options{
		Mode:           decoder.CreateTmp,
		Method:         template.MethodDeflate,
		VerifyImageMD5: true,
		Reporter:       reporter.LoggingReporter{Log: reporter.Default},
	})
	return err
}
