// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
)

// ResolutionSize is the length of the resolution control-point value.
const ResolutionSize = 4

// ErrResolutionSize reports an empty or oversized resolution value.
var ErrResolutionSize = errors.New("imu: resolution value must be 1-4 bytes")

// Resolution holds the full-scale selectors requested by a consumer.
//
// On the wire it is a little-endian word: bits 0-1 select the
// accelerometer range, bits 8-9 the gyroscope range and bits 16-17 the
// magnetometer range.
type Resolution struct {
	Accel uint8 `json:"accel"`
	Gyro  uint8 `json:"gyro"`
	Mag   uint8 `json:"mag"`
}

// ParseResolution decodes a control-point write. Short values are
// zero-extended.
func ParseResolution(b []byte) (Resolution, error) {
	if len(b) == 0 || len(b) > ResolutionSize {
		return Resolution{}, fmt.Errorf("%w: got %d", ErrResolutionSize, len(b))
	}
	var w [ResolutionSize]byte
	copy(w[:], b)
	return Resolution{
		Accel: w[0] & 0x03,
		Gyro:  w[1] & 0x03,
		Mag:   w[2] & 0x03,
	}, nil
}

// Bytes returns the wire form of r.
func (r Resolution) Bytes() []byte {
	return []byte{r.Accel & 0x03, r.Gyro & 0x03, r.Mag & 0x03, 0}
}
