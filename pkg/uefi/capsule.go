// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import (
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/guid"
)

// Capsule GUIDs recognized at the start of an update image.
var (
	EFICapsuleGUID           = guid.MustParse("3B6686BD-0D76-4030-B70E-B5519E2FC5A0")
	IntelCapsuleGUID         = guid.MustParse("539182B9-ABB5-4391-B55A-9E9663EA9AA1")
	LenovoCapsuleGUID        = guid.MustParse("25B5FE76-8243-4A5C-A9BD-7EE3246198B5")
	Lenovo2CapsuleGUID       = guid.MustParse("E20BAFD3-9914-4F4F-9537-3129E090EB3C")
	ToshibaCapsuleGUID       = guid.MustParse("3BE07062-1D51-45D2-832B-F093257ED461")
	AptioSignedCapsuleGUID   = guid.MustParse("4A3CA68B-7723-48FB-803D-578CC1FEC44D")
	AptioUnsignedCapsuleGUID = guid.MustParse("14EEBB90-890A-43DB-AED1-5D3C4588A418")
)

// CapsuleHeader is an EFI_CAPSULE_HEADER, also used by the Intel, Lenovo
// and Toshiba capsule flavors. For Toshiba capsules CapsuleImageSize
// holds the full size instead.
type CapsuleHeader struct {
	CapsuleGUID      guid.GUID
	HeaderSize       uint32
	Flags            uint32
	CapsuleImageSize uint32
}

// CapsuleHeaderSize is the size of a plain capsule header.
const CapsuleHeaderSize = 28

// AptioCapsuleHeader is an APTIO_CAPSULE_HEADER: a capsule header
// followed by the offsets of the ROM image and the ROM layout.
type AptioCapsuleHeader struct {
	CapsuleHeader   CapsuleHeader
	RomImageOffset  uint16
	RomLayoutOffset uint16
}

// AptioCapsuleHeaderSize is the size of an Aptio capsule header.
const AptioCapsuleHeaderSize = 32
