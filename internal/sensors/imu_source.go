// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors opens the ICM-20948 on the configured bus, real or
// simulated, and brings it up.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ble_imu/internal/bus"
	"github.com/relabs-tech/ble_imu/internal/config"
	"github.com/relabs-tech/ble_imu/internal/icm20948"
	"github.com/relabs-tech/ble_imu/internal/irq"
	"github.com/relabs-tech/ble_imu/internal/sim"
)

// Source is an opened sensor and the resources behind it.
type Source struct {
	Device *icm20948.Device
	// Sim is set when the sensor is emulated.
	Sim *sim.ICM20948
	// Pin is the data-ready line, nil when the interrupt is polled.
	Pin gpio.PinIn

	adapter *bus.Adapter
	closer  io.Closer
}

// Open returns the sensor described by cfg. It does not touch the sensor;
// call Bringup before streaming.
func Open(cfg *config.Config) (*Source, error) {
	opts := &icm20948.Opts{Addr: cfg.IMUI2CAddr, Config: cfg.ChipConfig()}

	if cfg.Simulate {
		s := sim.New(cfg.IMUI2CAddr)
		a := bus.New(s)
		dev, err := icm20948.New(a, opts)
		if err != nil {
			return nil, fmt.Errorf("IMU: device creation: %w", err)
		}
		log.WithField("bus", s.String()).Info("IMU: using simulated sensor")
		return &Source{Device: dev, Sim: s, adapter: a, closer: s}, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}
	b, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("IMU: I2C bus %q: %w", cfg.I2CBus, err)
	}
	if cfg.I2CSpeedKHz > 0 {
		if err := b.SetSpeed(physic.Frequency(cfg.I2CSpeedKHz) * physic.KiloHertz); err != nil {
			log.WithError(err).Warn("IMU: could not set bus speed, using bus default")
		}
	}

	src := &Source{closer: b}
	if cfg.IMUIntPin != "" {
		p := gpioreg.ByName(cfg.IMUIntPin)
		if p == nil {
			b.Close()
			return nil, fmt.Errorf("IMU: INT pin %q not found", cfg.IMUIntPin)
		}
		src.Pin = p
	}

	src.adapter = bus.New(b)
	src.Device, err = icm20948.New(src.adapter, opts)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}
	log.WithFields(log.Fields{
		"bus":  b.String(),
		"addr": fmt.Sprintf("0x%02X", cfg.IMUI2CAddr),
		"pin":  cfg.IMUIntPin,
	}).Info("IMU: opened")
	return src, nil
}

// SetTrace logs every bus transaction at debug level.
func (s *Source) SetTrace(on bool) { s.adapter.SetTrace(on) }

// Watch raises l whenever the sensor signals data-ready, until ctx is done.
// Without an INT pin the latch is raised every poll interval; the simulator
// raises it each time it queues a record.
func (s *Source) Watch(ctx context.Context, l *irq.Latch, poll time.Duration) error {
	switch {
	case s.Sim != nil:
		go s.Sim.Run(ctx, l.Set)
		return nil
	case s.Pin != nil:
		return irq.WatchPin(ctx, s.Pin, l)
	default:
		irq.Tick(ctx, poll, l)
		return nil
	}
}

// Close releases the bus.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Chip is the part of the driver used during bring-up.
type Chip interface {
	Reset() error
	CheckIdentity() error
	Configure() error
	SetupInterrupts() error
}

// Bringup resets the sensor once, checks WHO_AM_I up to attempts times
// and then configures it. The sensor is left asleep with its data path set
// up. A reset timeout is logged and bring-up continues.
func Bringup(c Chip, attempts int) error {
	if err := c.Reset(); err != nil {
		if !errors.Is(err, icm20948.ErrResetTimeout) {
			return fmt.Errorf("IMU: reset: %w", err)
		}
		log.WithError(err).Warn("IMU: continuing after reset timeout")
	}

	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = c.CheckIdentity(); err == nil {
			break
		}
		log.WithError(err).WithField("attempt", i).Warn("IMU: identity check failed")
	}
	if err != nil {
		return fmt.Errorf("IMU: identity after %d attempts: %w", attempts, err)
	}

	if err := c.Configure(); err != nil {
		return fmt.Errorf("IMU: configure: %w", err)
	}
	if err := c.SetupInterrupts(); err != nil {
		return fmt.Errorf("IMU: data path: %w", err)
	}
	log.Info("IMU: initialized")
	return nil
}
