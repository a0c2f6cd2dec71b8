// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim emulates an ICM-20948 register file behind an I2C bus.
//
// It implements periph.io i2c.BusCloser so it can stand in for real
// hardware, both in tests and when the peripheral runs without a sensor.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Raw register offsets used by the emulation.
const (
	regWhoAmI     = 0x00
	regUserCtrl   = 0x03
	regPwrMgmt1   = 0x06
	regAccelXOutH = 0x2D
	regFIFOEn1    = 0x66
	regFIFOEn2    = 0x67
	regFIFORst    = 0x68
	regFIFOCountH = 0x70
	regFIFOCountL = 0x71
	regFIFORW     = 0x72
	regBankSel    = 0x7F

	regGyroSmplrtDiv = 0x00 // bank 2
	regGyroConfig1   = 0x01 // bank 2
	regAccelConfig   = 0x14 // bank 2

	bitReset     = 0x80
	bitSleep     = 0x40
	bitFIFOEn    = 0x40
	bitAccelFIFO = 0x10
	bitGyroFIFO  = 0x0E
	bitTempFIFO  = 0x01
	bitSlv0FIFO  = 0x01

	// FIFOSize is the capacity of the emulated FIFO in bytes.
	FIFOSize = 4096
)

// Write records one register write, excluding bank selects.
type Write struct {
	Bank  uint8
	Reg   byte
	Value byte
}

// Reading is one set of sensor outputs in raw counts.
type Reading struct {
	Accel [3]int16
	Gyro  [3]int16
	Temp  int16
	Mag   [3]int16
}

// ICM20948 is an emulated sensor. The exported fields tune its behavior
// and must be set before the device is shared between goroutines.
type ICM20948 struct {
	// WhoAmI is returned by the identity register.
	WhoAmI byte
	// ResetPolls is how many PWR_MGMT_1 reads still report the reset bit
	// after a reset.
	ResetPolls int
	// StuckSleep makes the sleep bit ignore writes.
	StuckSleep bool

	mu          sync.Mutex
	addr        uint16
	regs        [4][256]byte
	bank        uint8
	fifo        []byte
	resetLeft   int
	fail        error
	writes      []Write
	reads       map[uint16]int
	bankSelects int
	resets      int
	fifoResets  int
	start       time.Time
}

// New returns a powered-on, sleeping sensor at addr.
func New(addr uint16) *ICM20948 {
	d := &ICM20948{WhoAmI: 0xEA, addr: addr, reads: map[uint16]int{}, start: time.Now()}
	d.powerOn()
	return d
}

func (d *ICM20948) powerOn() {
	d.regs = [4][256]byte{}
	d.regs[0][regPwrMgmt1] = 0x41
	d.regs[2][regGyroConfig1] = 0x01
	d.regs[2][regAccelConfig] = 0x01
	d.bank = 0
	d.fifo = d.fifo[:0]
}

func (d *ICM20948) String() string { return fmt.Sprintf("sim-icm20948@0x%02X", d.addr) }

// SetSpeed implements i2c.Bus.
func (d *ICM20948) SetSpeed(f physic.Frequency) error { return nil }

// Close implements i2c.BusCloser.
func (d *ICM20948) Close() error { return nil }

// Fail makes every subsequent transaction return err. nil restores normal
// operation.
func (d *ICM20948) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

// Tx implements i2c.Bus.
func (d *ICM20948) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	if addr != d.addr {
		return fmt.Errorf("sim: no device at 0x%02X", addr)
	}
	if len(w) == 0 {
		return errors.New("sim: transaction without register address")
	}
	reg := w[0]
	for i, v := range w[1:] {
		d.writeReg(reg+byte(i), v)
	}
	if len(r) > 0 {
		d.readRegs(reg, r)
	}
	return nil
}

func (d *ICM20948) writeReg(reg, v byte) {
	if reg == regBankSel {
		d.bank = (v >> 4) & 0x03
		d.bankSelects++
		return
	}
	d.writes = append(d.writes, Write{Bank: d.bank, Reg: reg, Value: v})
	if d.bank == 0 {
		switch reg {
		case regWhoAmI, regFIFOCountH, regFIFOCountL:
			return
		case regPwrMgmt1:
			if v&bitReset != 0 {
				d.powerOn()
				d.resetLeft = d.ResetPolls
				d.resets++
				return
			}
			if d.StuckSleep {
				v = v&^bitSleep | d.regs[0][regPwrMgmt1]&bitSleep
			}
		case regFIFORst:
			if v&0x1F != 0 {
				d.fifo = d.fifo[:0]
				d.fifoResets++
			}
		}
	}
	d.regs[d.bank][reg] = v
}

func (d *ICM20948) readRegs(reg byte, r []byte) {
	if d.bank == 0 && reg == regFIFORW {
		d.reads[regFIFORW]++
		n := copy(r, d.fifo)
		d.fifo = d.fifo[n:]
		for i := n; i < len(r); i++ {
			r[i] = 0
		}
		return
	}
	for i := range r {
		r[i] = d.readReg(reg + byte(i))
	}
}

func (d *ICM20948) readReg(reg byte) byte {
	d.reads[uint16(d.bank)<<8|uint16(reg)]++
	if d.bank == 0 {
		switch reg {
		case regWhoAmI:
			return d.WhoAmI
		case regPwrMgmt1:
			if d.resetLeft > 0 {
				d.resetLeft--
				return d.regs[0][reg] | bitReset
			}
		case regFIFOCountH:
			return byte(len(d.fifo) >> 8)
		case regFIFOCountL:
			return byte(len(d.fifo))
		}
	}
	return d.regs[d.bank][reg]
}

// Register returns the stored value of a register.
func (d *ICM20948) Register(bank uint8, reg byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[bank&0x03][reg]
}

// SetRegister stores a register value without side effects.
func (d *ICM20948) SetRegister(bank uint8, reg, v byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[bank&0x03][reg] = v
}

// Writes returns every register write seen so far.
func (d *ICM20948) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

// WritesTo returns the values written to one register, in order.
func (d *ICM20948) WritesTo(bank uint8, reg byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []byte
	for _, w := range d.writes {
		if w.Bank == bank && w.Reg == reg {
			out = append(out, w.Value)
		}
	}
	return out
}

// ClearLog forgets recorded writes, reads and bank selects.
func (d *ICM20948) ClearLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = nil
	d.reads = map[uint16]int{}
	d.bankSelects = 0
}

// Reads returns how many times a register was read.
func (d *ICM20948) Reads(bank uint8, reg byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads[uint16(bank)<<8|uint16(reg)]
}

// BankSelects returns the number of REG_BANK_SEL writes.
func (d *ICM20948) BankSelects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bankSelects
}

// Resets returns the number of device resets.
func (d *ICM20948) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// FIFOResets returns the number of FIFO reset pulses.
func (d *ICM20948) FIFOResets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fifoResets
}

// FIFOLen returns the number of bytes buffered in the FIFO.
func (d *ICM20948) FIFOLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fifo)
}

// Push appends raw bytes to the FIFO.
func (d *ICM20948) Push(b ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.push(b)
}

func (d *ICM20948) push(b []byte) {
	room := FIFOSize - len(d.fifo)
	if len(b) > room {
		b = b[:room]
	}
	d.fifo = append(d.fifo, b...)
}

// Produce latches r into the output registers and, when the sensor is
// awake with the FIFO enabled, appends a record for the routed channels.
// It reports whether a record was appended.
func (d *ICM20948) Produce(r Reading) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out [14]byte
	for i, v := range [...]int16{r.Accel[0], r.Accel[1], r.Accel[2], r.Gyro[0], r.Gyro[1], r.Gyro[2], r.Temp} {
		binary.BigEndian.PutUint16(out[2*i:], uint16(v))
	}
	copy(d.regs[0][regAccelXOutH:], out[:])

	if d.regs[0][regPwrMgmt1]&bitSleep != 0 || d.regs[0][regUserCtrl]&bitFIFOEn == 0 {
		return false
	}
	en1, en2 := d.regs[0][regFIFOEn1], d.regs[0][regFIFOEn2]
	var rec []byte
	if en2&bitAccelFIFO != 0 {
		rec = append(rec, out[0:6]...)
	}
	if en2&bitGyroFIFO != 0 {
		rec = append(rec, out[6:12]...)
	}
	if en2&bitTempFIFO != 0 {
		rec = append(rec, out[12:14]...)
	}
	if en1&bitSlv0FIFO != 0 {
		for _, v := range r.Mag {
			rec = binary.BigEndian.AppendUint16(rec, uint16(v))
		}
	}
	if len(rec) == 0 {
		return false
	}
	d.push(rec)
	return true
}

// Period returns the output data period programmed by the divider.
func (d *ICM20948) Period() time.Duration {
	d.mu.Lock()
	div := d.regs[2][regGyroSmplrtDiv]
	d.mu.Unlock()
	return time.Second * time.Duration(1+int(div)) / 1100
}

// Synthetic returns a slowly rotating reading at elapsed time t.
func Synthetic(t time.Duration) Reading {
	s := t.Seconds()
	return Reading{
		Accel: [3]int16{
			int16(800 * math.Sin(2*math.Pi*0.2*s)),
			int16(800 * math.Cos(2*math.Pi*0.2*s)),
			8192, // 1g at ±4g
		},
		Gyro: [3]int16{
			int16(300 * math.Sin(2*math.Pi*0.5*s)),
			0,
			int16(150 * math.Cos(2*math.Pi*0.1*s)),
		},
		Temp: 1335,
	}
}

// Next returns the synthetic reading for the current instant.
func (d *ICM20948) Next() Reading {
	return Synthetic(time.Since(d.start))
}

// Run produces synthetic readings at the programmed rate until ctx is
// done. notify is called after each record reaches the FIFO.
func (d *ICM20948) Run(ctx context.Context, notify func()) {
	timer := time.NewTimer(d.Period())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if d.Produce(d.Next()) && notify != nil {
				notify()
			}
			timer.Reset(d.Period())
		}
	}
}
