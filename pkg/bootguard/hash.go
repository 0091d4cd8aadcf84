// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootguard

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"

	"github.com/tjfoc/gmsm/sm3"
)

// ComputeHash digests data with the algorithm named by a Boot Guard
// hash structure.
func ComputeHash(algorithmID uint16, data []byte) ([]byte, error) {
	switch algorithmID {
	case AlgSHA1:
		digest := sha1.Sum(data)
		return digest[:], nil
	case AlgSHA256:
		digest := sha256.Sum256(data)
		return digest[:], nil
	case AlgSM3:
		return sm3.Sm3Sum(data), nil
	}
	return nil, fmt.Errorf("unsupported hash algorithm %04Xh", algorithmID)
}
