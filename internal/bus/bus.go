// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bus provides register-level framing over a two-wire addressed bus.
//
// A register write is a single transaction carrying the register address
// followed by the data bytes. A register read writes the register address
// and then reads back the requested number of bytes in the same transaction.
package bus

import (
	"context"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// MaxBlockWrite is the largest payload accepted by WriteBlock.
const MaxBlockWrite = 16

var (
	// ErrTimeout reports that the transaction did not complete in time.
	ErrTimeout = errors.New("bus: timeout")
	// ErrNack reports that the target did not acknowledge the transaction.
	ErrNack = errors.New("bus: not acknowledged")
	// ErrInvalidLength reports an empty or oversized payload.
	ErrInvalidLength = errors.New("bus: invalid length")
)

// Conn is the single transaction primitive of a two-wire bus.
//
// periph.io i2c.Bus and TinyGo machine.I2C both satisfy it.
type Conn interface {
	Tx(addr uint16, w, r []byte) error
}

// Error describes a failed register transaction.
type Error struct {
	Op   string
	Addr uint16
	Reg  byte
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (%s addr 0x%02X reg 0x%02X)", e.Kind, e.Op, e.Addr, e.Reg)
	}
	return fmt.Sprintf("%v (%s addr 0x%02X reg 0x%02X): %v", e.Kind, e.Op, e.Addr, e.Reg, e.Err)
}

// Unwrap exposes both the error kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Adapter frames register reads and writes on top of a Conn.
//
// An Adapter is not safe for concurrent use.
type Adapter struct {
	conn  Conn
	trace bool
	buf   [MaxBlockWrite + 1]byte
	log   *log.Entry
}

// New returns an Adapter using c.
func New(c Conn) *Adapter {
	return &Adapter{conn: c, log: log.WithField("component", "bus")}
}

// SetTrace enables debug logging of every transaction.
func (a *Adapter) SetTrace(on bool) { a.trace = on }

// WriteReg writes a single byte to register reg of device addr.
func (a *Adapter) WriteReg(addr uint16, reg, value byte) error {
	a.buf[0] = reg
	a.buf[1] = value
	return a.tx("write", addr, reg, a.buf[:2], nil)
}

// WriteBlock writes data to consecutive registers starting at reg.
// data must hold between 1 and MaxBlockWrite bytes.
func (a *Adapter) WriteBlock(addr uint16, reg byte, data []byte) error {
	if len(data) == 0 || len(data) > MaxBlockWrite {
		return &Error{Op: "write", Addr: addr, Reg: reg, Kind: ErrInvalidLength,
			Err: fmt.Errorf("%d bytes", len(data))}
	}
	a.buf[0] = reg
	n := copy(a.buf[1:], data)
	return a.tx("write", addr, reg, a.buf[:n+1], nil)
}

// ReadReg reads a single byte from register reg of device addr.
func (a *Adapter) ReadReg(addr uint16, reg byte) (byte, error) {
	var b [1]byte
	if err := a.ReadBlock(addr, reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBlock fills p with consecutive bytes read starting at reg.
func (a *Adapter) ReadBlock(addr uint16, reg byte, p []byte) error {
	if len(p) == 0 {
		return &Error{Op: "read", Addr: addr, Reg: reg, Kind: ErrInvalidLength, Err: errors.New("0 bytes")}
	}
	a.buf[0] = reg
	return a.tx("read", addr, reg, a.buf[:1], p)
}

func (a *Adapter) tx(op string, addr uint16, reg byte, w, r []byte) error {
	err := a.conn.Tx(addr, w, r)
	if a.trace {
		a.log.WithFields(log.Fields{
			"op":   op,
			"addr": fmt.Sprintf("0x%02X", addr),
			"reg":  fmt.Sprintf("0x%02X", reg),
			"w":    fmt.Sprintf("% X", w[1:]),
			"r":    fmt.Sprintf("% X", r),
		}).Debug("tx")
	}
	if err != nil {
		return &Error{Op: op, Addr: addr, Reg: reg, Kind: classify(err), Err: err}
	}
	return nil
}

// classify maps a transport error onto ErrTimeout or ErrNack.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return ErrTimeout
	}
	return ErrNack
}
