// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package icm20948

import "fmt"

// AccelFullScale selects the accelerometer range.
type AccelFullScale uint8

const (
	Accel2G AccelFullScale = iota
	Accel4G
	Accel8G
	Accel16G
)

func (f AccelFullScale) String() string {
	switch f {
	case Accel2G:
		return "2g"
	case Accel4G:
		return "4g"
	case Accel8G:
		return "8g"
	case Accel16G:
		return "16g"
	}
	return fmt.Sprintf("AccelFullScale(%d)", uint8(f))
}

// GyroFullScale selects the gyroscope range.
type GyroFullScale uint8

const (
	Gyro250DPS GyroFullScale = iota
	Gyro500DPS
	Gyro1000DPS
	Gyro2000DPS
)

func (f GyroFullScale) String() string {
	switch f {
	case Gyro250DPS:
		return "250dps"
	case Gyro500DPS:
		return "500dps"
	case Gyro1000DPS:
		return "1000dps"
	case Gyro2000DPS:
		return "2000dps"
	}
	return fmt.Sprintf("GyroFullScale(%d)", uint8(f))
}

// MagFullScale is informational only; the magnetometer is not driven.
type MagFullScale uint8

const Mag4900UT MagFullScale = 0

func (f MagFullScale) String() string {
	if f == Mag4900UT {
		return "4900uT"
	}
	return fmt.Sprintf("MagFullScale(%d)", uint8(f))
}

// GyroFilter selects the gyroscope low-pass filter. The value of the
// first seven entries goes into GYRO_DLPFCFG; GyroFilterNone bypasses it.
type GyroFilter uint8

const (
	Gyro197Hz GyroFilter = iota
	Gyro152Hz
	Gyro120Hz
	Gyro51Hz
	Gyro24Hz
	Gyro12Hz
	Gyro6Hz
	Gyro361Hz
	GyroFilterNone // 12106Hz
)

var gyroFilterNames = [...]string{"197Hz", "152Hz", "120Hz", "51Hz", "24Hz", "12Hz", "6Hz", "361Hz", "12106Hz_NOLPF"}

func (f GyroFilter) String() string {
	if int(f) < len(gyroFilterNames) {
		return gyroFilterNames[f]
	}
	return fmt.Sprintf("GyroFilter(%d)", uint8(f))
}

// AccelFilter selects the accelerometer low-pass filter.
type AccelFilter uint8

const (
	Accel246Hz AccelFilter = iota
	Accel246HzAlt
	Accel111Hz
	Accel50Hz
	Accel24Hz
	Accel12Hz
	Accel6Hz
	Accel473Hz
	AccelFilterNone // 1209Hz
)

var accelFilterNames = [...]string{"246Hz", "246Hz", "111Hz", "50Hz", "24Hz", "12Hz", "6Hz", "473Hz", "1209Hz_NOLPF"}

func (f AccelFilter) String() string {
	if int(f) < len(accelFilterNames) {
		return accelFilterNames[f]
	}
	return fmt.Sprintf("AccelFilter(%d)", uint8(f))
}

// Channel names a sensor whose full-scale range can be changed.
type Channel uint8

const (
	ChannelAccel Channel = iota
	ChannelGyro
)

func (c Channel) String() string {
	switch c {
	case ChannelAccel:
		return "accelerometer"
	case ChannelGyro:
		return "gyroscope"
	}
	return fmt.Sprintf("Channel(%d)", uint8(c))
}

// Sample rate bounds in Hz. The output rate is InternalRate/(1+divider).
const (
	InternalRate  = 1100
	MinSampleRate = 5
	MaxSampleRate = 1100
)

// Per-channel FIFO record sizes.
const (
	accelBytes = 6
	gyroBytes  = 6
	tempBytes  = 2
	magBytes   = 6

	maxDatumBytes = accelBytes + gyroBytes + tempBytes + magBytes
)

// Config is the sensor configuration mirrored by the driver.
type Config struct {
	AccelFS AccelFullScale
	GyroFS  GyroFullScale
	MagFS   MagFullScale

	AccelFIFO bool
	GyroFIFO  bool
	TempFIFO  bool
	MagFIFO   bool

	// Enable mirrors the power state: true while the sensor is awake.
	Enable bool

	SampleRate uint16 // Hz

	AccelDLPF AccelFilter
	GyroDLPF  GyroFilter
}

// DefaultConfig streams accelerometer, gyroscope and temperature at 10 Hz.
var DefaultConfig = Config{
	AccelFS:    Accel4G,
	GyroFS:     Gyro2000DPS,
	MagFS:      Mag4900UT,
	AccelFIFO:  true,
	GyroFIFO:   true,
	TempFIFO:   true,
	SampleRate: 10,
	AccelDLPF:  Accel246Hz,
	GyroDLPF:   Gyro197Hz,
}

// BytesPerDatum returns the size of one FIFO record for the enabled channels.
func (c Config) BytesPerDatum() int {
	n := 0
	if c.AccelFIFO {
		n += accelBytes
	}
	if c.GyroFIFO {
		n += gyroBytes
	}
	if c.TempFIFO {
		n += tempBytes
	}
	if c.MagFIFO {
		n += magBytes
	}
	return n
}

// AnyFIFO reports whether at least one channel is routed to the FIFO.
func (c Config) AnyFIFO() bool {
	return c.BytesPerDatum() > 0
}

// Validate checks that every selector is in range.
func (c Config) Validate() error {
	if c.AccelFS > Accel16G {
		return fmt.Errorf("%w: accel full scale %d", ErrInvalidSelector, c.AccelFS)
	}
	if c.GyroFS > Gyro2000DPS {
		return fmt.Errorf("%w: gyro full scale %d", ErrInvalidSelector, c.GyroFS)
	}
	if c.MagFS != Mag4900UT {
		return fmt.Errorf("%w: mag full scale %d", ErrInvalidSelector, c.MagFS)
	}
	if c.AccelDLPF > AccelFilterNone {
		return fmt.Errorf("%w: accel filter %d", ErrInvalidSelector, c.AccelDLPF)
	}
	if c.GyroDLPF > GyroFilterNone {
		return fmt.Errorf("%w: gyro filter %d", ErrInvalidSelector, c.GyroDLPF)
	}
	if _, err := ComputeDivider(c.SampleRate); err != nil {
		return err
	}
	return nil
}

// ComputeDivider returns the sample-rate divider for rate Hz using integer
// division, so the achieved rate may differ slightly from the request.
func ComputeDivider(rate uint16) (byte, error) {
	if rate < MinSampleRate || rate > MaxSampleRate {
		return 0, fmt.Errorf("%w: %d Hz not in [%d, %d]", ErrInvalidRate, rate, MinSampleRate, MaxSampleRate)
	}
	return byte(InternalRate/int(rate) - 1), nil
}
