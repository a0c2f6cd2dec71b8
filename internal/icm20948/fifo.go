// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package icm20948

import (
	"encoding/binary"
	"fmt"

	"github.com/relabs-tech/ble_imu/internal/imu"
)

// FIFOStats counts FIFO events since the Device was created.
type FIFOStats struct {
	Samples         uint64 // complete records drained
	IncompleteReads uint64 // drains with less than one record buffered
	Resyncs         uint64 // FIFO resets after leftover bytes
	DiscardedBytes  uint64 // bytes dropped by those resets
}

// Stats returns the FIFO counters.
func (d *Device) Stats() FIFOStats { return d.stats }

// ConfigureFIFO clears interrupt and FIFO routing, resets the FIFO and then
// routes the enabled channels into it.
func (d *Device) ConfigureFIFO() error {
	if err := d.regs.writeBlock(RegIntEnable, []byte{0, 0, 0, 0}); err != nil {
		return fmt.Errorf("icm20948: clear interrupts: %w", err)
	}
	for _, reg := range []uint16{RegFIFOEn1, RegFIFOEn2, RegUserCtrl} {
		if err := d.regs.write(reg, 0); err != nil {
			return fmt.Errorf("icm20948: clear FIFO routing: %w", err)
		}
	}
	if err := d.ResetFIFO(); err != nil {
		return err
	}
	if d.cfg.AnyFIFO() {
		if err := d.regs.write(RegIntEnable1, BitRawData0RdyEn); err != nil {
			return fmt.Errorf("icm20948: enable data-ready interrupt: %w", err)
		}
	}
	if err := d.regs.write(RegUserCtrl, BitFIFOEnable); err != nil {
		return fmt.Errorf("icm20948: enable FIFO: %w", err)
	}

	var en2 byte
	if d.cfg.AccelFIFO {
		en2 |= BitAccelFIFOEn
	}
	if d.cfg.GyroFIFO {
		en2 |= BitGyroFIFOEn
	}
	if d.cfg.TempFIFO {
		en2 |= BitTempFIFOEn
	}
	if err := d.regs.write(RegFIFOEn2, en2); err != nil {
		return fmt.Errorf("icm20948: route FIFO: %w", err)
	}
	if d.cfg.MagFIFO {
		if err := d.regs.write(RegFIFOEn1, BitSlv0FIFOEn); err != nil {
			return fmt.Errorf("icm20948: route FIFO: %w", err)
		}
	}
	d.log.WithField("bytes_per_datum", d.cfg.BytesPerDatum()).Info("FIFO configured")
	return nil
}

// ResetFIFO pulses FIFO_RST.
func (d *Device) ResetFIFO() error {
	if err := d.regs.write(RegFIFORst, fifoResetAll); err != nil {
		return fmt.Errorf("icm20948: FIFO reset: %w", err)
	}
	if err := d.regs.write(RegFIFORst, 0); err != nil {
		return fmt.Errorf("icm20948: FIFO reset: %w", err)
	}
	return nil
}

// FIFOCount returns the number of bytes buffered in the FIFO.
func (d *Device) FIFOCount() (uint16, error) {
	var b [2]byte
	if err := d.regs.readBlock(RegFIFOCountH, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// DrainOneSample reads at most one record from the FIFO into s.
//
// ok is false when less than one record was buffered; s is then left
// untouched and must not be published. Any bytes left after the read
// (a partial record or a backlog) are discarded by resetting the FIFO so
// that the next read starts on a record boundary.
func (d *Device) DrainOneSample(s *imu.Sample) (ok bool, err error) {
	n := d.cfg.BytesPerDatum()
	if n == 0 {
		return false, ErrNoChannels
	}
	count, err := d.FIFOCount()
	if err != nil {
		return false, err
	}
	if int(count) >= n {
		if err := d.regs.readBlock(RegFIFORW, d.buf[:n]); err != nil {
			return false, err
		}
		s.Timestamp = d.clock.Micros()
		if err := Decode(d.cfg, d.buf[:n], s); err != nil {
			return false, err
		}
		count -= uint16(n)
		d.stats.Samples++
		ok = true
	} else {
		d.stats.IncompleteReads++
	}
	if count > 0 {
		if err := d.ResetFIFO(); err != nil {
			return ok, err
		}
		d.stats.Resyncs++
		d.stats.DiscardedBytes += uint64(count)
		d.log.WithField("discarded", count).Debug("FIFO resynchronized")
	}
	return ok, nil
}

// Decode parses one FIFO record in the order accelerometer, gyroscope,
// temperature, magnetometer, skipping channels that are not enabled.
// Values are big-endian. The magnetometer fields always receive the
// placeholders.
func Decode(cfg Config, block []byte, s *imu.Sample) error {
	if len(block) < cfg.BytesPerDatum() {
		return fmt.Errorf("%w: got %d, want %d", ErrShortBlock, len(block), cfg.BytesPerDatum())
	}
	be := func(i int) int16 { return int16(binary.BigEndian.Uint16(block[i:])) }
	i := 0
	if cfg.AccelFIFO {
		s.Ax, s.Ay, s.Az = be(i), be(i+2), be(i+4)
		i += accelBytes
	}
	if cfg.GyroFIFO {
		s.Gx, s.Gy, s.Gz = be(i), be(i+2), be(i+4)
		i += gyroBytes
	}
	if cfg.TempFIFO {
		s.Temperature = be(i)
		i += tempBytes
	}
	if cfg.MagFIFO {
		i += magBytes
	}
	s.Mx, s.My, s.Mz = MagPlaceholderX, MagPlaceholderY, MagPlaceholderZ
	return nil
}
