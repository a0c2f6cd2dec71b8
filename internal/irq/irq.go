// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package irq turns sensor data-ready signals into a latch polled by the
// foreground loop.
package irq

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// edgePoll bounds how long a pin watcher blocks before rechecking ctx.
const edgePoll = 100 * time.Millisecond

// Latch is a single-bit data-ready flag. Set may be called from any
// goroutine; Take atomically reads and clears it.
type Latch struct {
	ready atomic.Bool
}

// Set raises the flag.
func (l *Latch) Set() { l.ready.Store(true) }

// Take reports whether the flag was raised and clears it.
func (l *Latch) Take() bool { return l.ready.CompareAndSwap(true, false) }

// WatchPin configures pin as a pulled-up input and raises l on every
// rising edge until ctx is done.
func WatchPin(ctx context.Context, pin gpio.PinIn, l *Latch) error {
	if err := pin.In(gpio.PullUp, gpio.RisingEdge); err != nil {
		return fmt.Errorf("irq: configure %s: %w", pin, err)
	}
	log.WithField("pin", pin.Name()).Info("irq: watching data-ready pin")
	go func() {
		for ctx.Err() == nil {
			if pin.WaitForEdge(edgePoll) {
				l.Set()
			}
		}
	}()
	return nil
}

// Tick raises l every interval until ctx is done. It stands in for the
// interrupt line when none is wired.
func Tick(ctx context.Context, interval time.Duration, l *Latch) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Set()
			}
		}
	}()
}
