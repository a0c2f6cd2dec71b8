// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SampleSize is the length of the packed wire form of a Sample.
const SampleSize = 28

// ErrSampleSize reports a wire buffer that is not SampleSize bytes long.
var ErrSampleSize = errors.New("imu: sample must be 28 bytes")

// Sample is one timestamped raw IMU reading.
//
// Axis values are raw signed counts in the unit selected by the current
// full-scale range. The magnetometer fields carry placeholders.
type Sample struct {
	DeviceID  uint32 `json:"deviceid"`
	Timestamp uint32 `json:"time_stamp"` // microseconds, wraps

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Mx int16 `json:"mx"` // magnetometer
	My int16 `json:"my"`
	Mz int16 `json:"mz"`

	Temperature int16 `json:"temperature"`
}

// AppendBinary appends the packed little-endian wire form of s to b.
//
// Layout: deviceid u32, time_stamp u32, ax ay az gx gy gz mx my mz
// temperature as int16, no padding.
func (s Sample) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, s.DeviceID)
	b = binary.LittleEndian.AppendUint32(b, s.Timestamp)
	for _, v := range [...]int16{s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.Mx, s.My, s.Mz, s.Temperature} {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s Sample) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, SampleSize)), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Sample) UnmarshalBinary(b []byte) error {
	if len(b) != SampleSize {
		return fmt.Errorf("%w: got %d", ErrSampleSize, len(b))
	}
	s.DeviceID = binary.LittleEndian.Uint32(b[0:])
	s.Timestamp = binary.LittleEndian.Uint32(b[4:])
	fields := [...]*int16{&s.Ax, &s.Ay, &s.Az, &s.Gx, &s.Gy, &s.Gz, &s.Mx, &s.My, &s.Mz, &s.Temperature}
	for i, f := range fields {
		*f = int16(binary.LittleEndian.Uint16(b[8+2*i:]))
	}
	return nil
}
