// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package icm20948 drives an ICM-20948 motion sensor over a register bus.
//
// The driver owns the sensor configuration, the bank-select cache and the
// FIFO accounting. It is not safe for concurrent use: a single goroutine
// must own a Device.
package icm20948

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/stamp"
)

var (
	// ErrIdentityMismatch reports a WHO_AM_I value other than WhoAmIValue.
	ErrIdentityMismatch = errors.New("icm20948: unexpected WHO_AM_I")
	// ErrResetTimeout reports a device reset that never completed.
	ErrResetTimeout = errors.New("icm20948: reset bit did not clear")
	// ErrSleepVerify reports a sleep request the chip did not acknowledge.
	ErrSleepVerify = errors.New("icm20948: sleep bit did not latch")
	// ErrInvalidSelector reports a full-scale or filter selector above 3.
	ErrInvalidSelector = errors.New("icm20948: selector out of range")
	// ErrInvalidRate reports a sample rate the divider cannot produce.
	ErrInvalidRate = errors.New("icm20948: sample rate out of range")
	// ErrNoChannels reports a FIFO drain with no channel routed to it.
	ErrNoChannels = errors.New("icm20948: no channel routed to FIFO")
	// ErrShortBlock reports a buffer smaller than one FIFO record.
	ErrShortBlock = errors.New("icm20948: FIFO block shorter than one datum")
)

const (
	resetPolls        = 1000
	resetPollInterval = 10 * time.Microsecond
	powerUpSettle     = 100 * time.Millisecond
)

// Magnetometer placeholders reported in every sample.
const (
	MagPlaceholderX int16 = 1
	MagPlaceholderY int16 = 2
	MagPlaceholderZ int16 = 3
)

// State is the lifecycle position of a Device.
type State uint8

const (
	StateUninitialized State = iota
	StateResetting
	StateIdentityCheck
	StateConfiguring
	StateSleeping
	StateAwake
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResetting:
		return "resetting"
	case StateIdentityCheck:
		return "identity-check"
	case StateConfiguring:
		return "configuring"
	case StateSleeping:
		return "sleeping"
	case StateAwake:
		return "awake"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Opts holds the construction parameters of a Device.
type Opts struct {
	Addr   uint16
	Config Config
	// Clock stamps drained samples. Defaults to a monotonic clock.
	Clock stamp.Clock
	// Sleep is used for reset polling and settle delays. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// DefaultOpts targets the default address with DefaultConfig.
var DefaultOpts = Opts{Addr: DefaultAddr, Config: DefaultConfig}

// Device is an ICM-20948 handle.
type Device struct {
	regs  *banked
	cfg   Config
	state State
	clock stamp.Clock
	sleep func(time.Duration)
	stats FIFOStats
	buf   [maxDatumBytes]byte
	log   *log.Entry
}

// New returns a Device talking to b. No bus traffic happens until Init or
// Setup is called.
func New(b RegisterBus, opts *Opts) (*Device, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	d := &Device{
		regs:  newBanked(b, addr),
		cfg:   opts.Config,
		clock: opts.Clock,
		sleep: opts.Sleep,
		log:   log.WithFields(log.Fields{"component": "icm20948", "addr": fmt.Sprintf("0x%02X", addr)}),
	}
	d.cfg.Enable = false
	if d.clock == nil {
		d.clock = stamp.NewMonotonic()
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	return d, nil
}

func (d *Device) String() string { return "ICM-20948" }

// Config returns the mirrored sensor configuration.
func (d *Device) Config() Config { return d.cfg }

// State returns the lifecycle state.
func (d *Device) State() State { return d.state }

// Reset issues a device reset and waits for the reset bit to clear.
//
// ErrResetTimeout is returned if the bit is still set after polling; the
// device may still be usable and callers typically proceed to the identity
// check.
func (d *Device) Reset() error {
	d.state = StateResetting
	if err := d.regs.write(RegPwrMgmt1, BitDeviceReset); err != nil {
		return fmt.Errorf("icm20948: reset: %w", err)
	}
	// The chip returns to bank 0 on reset.
	d.regs.invalidate()
	d.cfg.Enable = false

	cleared := false
	for i := 0; i < resetPolls; i++ {
		d.sleep(resetPollInterval)
		v, err := d.regs.read(RegPwrMgmt1)
		if err != nil {
			// Not answering yet.
			continue
		}
		if v&BitDeviceReset == 0 {
			cleared = true
			break
		}
	}
	d.sleep(powerUpSettle)
	if !cleared {
		return ErrResetTimeout
	}
	return nil
}

// DeviceID reads WHO_AM_I.
func (d *Device) DeviceID() (byte, error) {
	return d.regs.read(RegWhoAmI)
}

// CheckIdentity makes a single WHO_AM_I attempt. Retrying is left to the
// caller.
func (d *Device) CheckIdentity() error {
	d.state = StateIdentityCheck
	id, err := d.DeviceID()
	if err != nil {
		return err
	}
	if id != WhoAmIValue {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrIdentityMismatch, id, WhoAmIValue)
	}
	return nil
}

// Configure writes the mirrored configuration to the sensor and leaves it
// asleep.
func (d *Device) Configure() error {
	d.state = StateConfiguring
	steps := []struct {
		name string
		fn   func() error
	}{
		{"wake", func() error { return d.SetSleep(false) }},
		{"gyro filter", func() error { return d.SetGyroDLPF(d.cfg.GyroDLPF) }},
		{"accel filter", func() error { return d.SetAccelDLPF(d.cfg.AccelDLPF) }},
		{"sample rate", func() error { return d.SetSampleRate(d.cfg.SampleRate) }},
		{"clock source", d.setClockSource},
		{"gyro full scale", func() error { return d.SetFullScale(ChannelGyro, byte(d.cfg.GyroFS)) }},
		{"accel full scale", func() error { return d.SetFullScale(ChannelAccel, byte(d.cfg.AccelFS)) }},
		{"sleep", func() error { return d.SetSleep(true) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("icm20948: configure %s: %w", s.name, err)
		}
	}
	d.cfg.Enable = false
	d.state = StateSleeping
	return nil
}

// Init runs reset, the identity check and configuration once.
func (d *Device) Init() error {
	if err := d.Reset(); err != nil {
		if !errors.Is(err, ErrResetTimeout) {
			return err
		}
		d.log.WithError(err).Warn("continuing after reset timeout")
	}
	if err := d.CheckIdentity(); err != nil {
		return err
	}
	return d.Configure()
}

// Setup runs Init and then routes data to the FIFO, or enables the
// raw-data-ready interrupt when no channel is routed. The sensor is left
// asleep until SetPower(true).
func (d *Device) Setup() error {
	if err := d.Init(); err != nil {
		return err
	}
	return d.SetupInterrupts()
}

// SetupInterrupts configures the data path after Configure.
func (d *Device) SetupInterrupts() error {
	if d.cfg.AnyFIFO() {
		return d.ConfigureFIFO()
	}
	if err := d.regs.write(RegIntEnable1, BitRawData0RdyEn); err != nil {
		return fmt.Errorf("icm20948: enable data-ready interrupt: %w", err)
	}
	return nil
}

// SetSleep sets or clears the sleep bit and verifies it by reading back.
func (d *Device) SetSleep(sleep bool) error {
	v, err := d.regs.modify(RegPwrMgmt1, func(v byte) byte {
		if sleep {
			return v | BitSleep
		}
		return v &^ BitSleep
	})
	if err != nil {
		return err
	}
	got, err := d.regs.read(RegPwrMgmt1)
	if err != nil {
		return err
	}
	if got != v {
		return fmt.Errorf("%w: wrote 0x%02X, read 0x%02X", ErrSleepVerify, v, got)
	}
	if d.state == StateSleeping || d.state == StateAwake {
		if sleep {
			d.state = StateSleeping
		} else {
			d.state = StateAwake
		}
	}
	return nil
}

// SetPower wakes or sleeps the sensor. It touches the bus only when the
// requested state differs from the mirrored one.
func (d *Device) SetPower(on bool) error {
	if d.cfg.Enable == on {
		return nil
	}
	if err := d.SetSleep(!on); err != nil {
		return err
	}
	d.cfg.Enable = on
	d.log.WithField("awake", on).Info("power state changed")
	return nil
}

func (d *Device) setClockSource() error {
	_, err := d.regs.modify(RegPwrMgmt1, func(v byte) byte {
		return v&clkselMask | clkselAuto
	})
	return err
}

// SetFullScale changes the range of the accelerometer or gyroscope.
// sel must be 0-3.
func (d *Device) SetFullScale(ch Channel, sel byte) error {
	if sel > 3 {
		return fmt.Errorf("%w: %s full scale %d", ErrInvalidSelector, ch, sel)
	}
	var reg uint16
	switch ch {
	case ChannelAccel:
		reg = RegAccelConfig
	case ChannelGyro:
		reg = RegGyroConfig1
	default:
		return fmt.Errorf("%w: %s", ErrInvalidSelector, ch)
	}
	if _, err := d.regs.modify(reg, func(v byte) byte {
		return v&fsKeepMask | (sel&0x03)<<1
	}); err != nil {
		return err
	}
	if ch == ChannelAccel {
		d.cfg.AccelFS = AccelFullScale(sel)
		d.log.Infof("accelerometer range set to %d (±%s)", sel, d.cfg.AccelFS)
	} else {
		d.cfg.GyroFS = GyroFullScale(sel)
		d.log.Infof("gyroscope range set to %d (±%s)", sel, d.cfg.GyroFS)
	}
	return nil
}

// dlpfValue folds a filter selector into a GYRO_CONFIG_1/ACCEL_CONFIG value.
func dlpfValue(v byte, sel uint8, bypass bool) byte {
	v &= dlpfKeepMask
	if !bypass {
		v |= dlpfEnable | (sel&0x07)<<3
	}
	return v
}

// SetGyroDLPF selects the gyroscope low-pass filter.
func (d *Device) SetGyroDLPF(f GyroFilter) error {
	if f > GyroFilterNone {
		return fmt.Errorf("%w: gyro filter %d", ErrInvalidSelector, f)
	}
	if _, err := d.regs.modify(RegGyroConfig1, func(v byte) byte {
		return dlpfValue(v, uint8(f), f == GyroFilterNone)
	}); err != nil {
		return err
	}
	d.cfg.GyroDLPF = f
	d.log.Debugf("gyroscope filter set to %s", f)
	return nil
}

// SetAccelDLPF selects the accelerometer low-pass filter.
func (d *Device) SetAccelDLPF(f AccelFilter) error {
	if f > AccelFilterNone {
		return fmt.Errorf("%w: accel filter %d", ErrInvalidSelector, f)
	}
	if _, err := d.regs.modify(RegAccelConfig, func(v byte) byte {
		return dlpfValue(v, uint8(f), f == AccelFilterNone)
	}); err != nil {
		return err
	}
	d.cfg.AccelDLPF = f
	d.log.Debugf("accelerometer filter set to %s", f)
	return nil
}

// SetSampleRate programs the gyroscope sample-rate divider.
func (d *Device) SetSampleRate(rate uint16) error {
	div, err := ComputeDivider(rate)
	if err != nil {
		return err
	}
	if err := d.regs.write(RegGyroSmplrtDiv, div); err != nil {
		return err
	}
	d.cfg.SampleRate = rate
	d.log.Infof("sample rate divider set to %d (output rate: %d Hz)", div, InternalRate/(1+int(div)))
	return nil
}

// ReadRegister reads one logical register.
func (d *Device) ReadRegister(reg uint16) (byte, error) {
	return d.regs.read(reg)
}

// WriteRegister writes one logical register. The mirrored configuration
// is not updated.
func (d *Device) WriteRegister(reg uint16, v byte) error {
	return d.regs.write(reg, v)
}

// ReadDirect reads the output registers directly, bypassing the FIFO.
func (d *Device) ReadDirect(s *imu.Sample) error {
	n := accelBytes + gyroBytes + tempBytes
	if err := d.regs.readBlock(RegAccelXOutH, d.buf[:n]); err != nil {
		return err
	}
	s.Timestamp = d.clock.Micros()
	direct := Config{AccelFIFO: true, GyroFIFO: true, TempFIFO: true}
	return Decode(direct, d.buf[:n], s)
}
