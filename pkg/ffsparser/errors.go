// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import "errors"

// Parse error codes. Local failures are absorbed into the message log;
// these surface where a whole sub-tree or the whole parse fails.
var (
	ErrInvalidParameter       = errors.New("invalid parameter")
	ErrInvalidCapsule         = errors.New("invalid capsule")
	ErrInvalidFlashDescriptor = errors.New("invalid flash descriptor")
	ErrTruncatedImage         = errors.New("truncated image")
	ErrEmptyRegion            = errors.New("empty region")
	ErrInvalidRegion          = errors.New("invalid region")
	ErrInvalidVolume          = errors.New("invalid volume")
	ErrVolumesNotFound        = errors.New("volumes not found")
	ErrInvalidFile            = errors.New("invalid file")
	ErrInvalidSection         = errors.New("invalid section")
	ErrDepexParseFailed       = errors.New("dependency expression parse failed")
	ErrInvalidFIT             = errors.New("invalid FIT")
	ErrInvalidMicrocode       = errors.New("invalid microcode")
	ErrInvalidACM             = errors.New("invalid ACM")
	ErrInvalidKeyManifest     = errors.New("invalid key manifest")
	ErrInvalidBootPolicy      = errors.New("invalid boot policy")
	ErrUnknownItemType        = errors.New("unknown item type")
)
