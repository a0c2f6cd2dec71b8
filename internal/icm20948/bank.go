// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package icm20948

import "fmt"

// bankUnknown forces the next access to write REG_BANK_SEL.
const bankUnknown byte = 0xFF

// RegisterBus is the register framing the driver needs from the bus layer.
// *bus.Adapter implements it.
type RegisterBus interface {
	WriteReg(addr uint16, reg, value byte) error
	WriteBlock(addr uint16, reg byte, data []byte) error
	ReadReg(addr uint16, reg byte) (byte, error)
	ReadBlock(addr uint16, reg byte, p []byte) error
}

// banked resolves logical 16-bit registers to bank selects plus 8-bit
// accesses. It writes REG_BANK_SEL only when the bank changes.
type banked struct {
	bus  RegisterBus
	addr uint16
	bank byte
}

func newBanked(b RegisterBus, addr uint16) *banked {
	return &banked{bus: b, addr: addr, bank: bankUnknown}
}

// bankSelect returns the REG_BANK_SEL value for a logical register.
func bankSelect(reg uint16) byte {
	return byte((reg & 0xff00) >> 4)
}

// invalidate forgets the cached bank. Called after a device reset.
func (b *banked) invalidate() {
	b.bank = bankUnknown
}

func (b *banked) selectBank(reg uint16) error {
	sel := bankSelect(reg)
	if sel == b.bank {
		return nil
	}
	if err := b.bus.WriteReg(b.addr, RegBankSel, sel); err != nil {
		return fmt.Errorf("icm20948: select bank %d: %w", reg>>8, err)
	}
	b.bank = sel
	return nil
}

func (b *banked) write(reg uint16, v byte) error {
	if err := b.selectBank(reg); err != nil {
		return err
	}
	if err := b.bus.WriteReg(b.addr, byte(reg), v); err != nil {
		return fmt.Errorf("icm20948: write 0x%04X: %w", reg, err)
	}
	return nil
}

func (b *banked) writeBlock(reg uint16, p []byte) error {
	if err := b.selectBank(reg); err != nil {
		return err
	}
	if err := b.bus.WriteBlock(b.addr, byte(reg), p); err != nil {
		return fmt.Errorf("icm20948: write 0x%04X (%d bytes): %w", reg, len(p), err)
	}
	return nil
}

func (b *banked) read(reg uint16) (byte, error) {
	if err := b.selectBank(reg); err != nil {
		return 0, err
	}
	v, err := b.bus.ReadReg(b.addr, byte(reg))
	if err != nil {
		return 0, fmt.Errorf("icm20948: read 0x%04X: %w", reg, err)
	}
	return v, nil
}

func (b *banked) readBlock(reg uint16, p []byte) error {
	if err := b.selectBank(reg); err != nil {
		return err
	}
	if err := b.bus.ReadBlock(b.addr, byte(reg), p); err != nil {
		return fmt.Errorf("icm20948: read 0x%04X (%d bytes): %w", reg, len(p), err)
	}
	return nil
}

// modify performs a read-modify-write and returns the value written.
func (b *banked) modify(reg uint16, fn func(byte) byte) (byte, error) {
	v, err := b.read(reg)
	if err != nil {
		return 0, err
	}
	v = fn(v)
	if err := b.write(reg, v); err != nil {
		return 0, err
	}
	return v, nil
}
