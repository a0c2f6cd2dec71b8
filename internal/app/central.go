// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	tserial "github.com/tarm/serial"
	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/ble_imu/internal/config"
	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/transport"
	"github.com/relabs-tech/ble_imu/internal/transport/ble"
	"github.com/relabs-tech/ble_imu/internal/transport/serial"
)

// PeripheralLink is the central's connection to one IMU peripheral.
type PeripheralLink interface {
	Subscribe(fn func(imu.Sample)) error
	Unsubscribe() error
	SetResolution(r imu.Resolution) error
}

// Relay copies samples from a peripheral onto a host serial port and
// turns control lines typed on that port into peripheral writes.
type Relay struct {
	link PeripheralLink
	out  io.Writer

	mu         sync.Mutex
	subscribed bool
	relayed    uint64
}

// NewRelay returns a relay between link and the host port rw.
func NewRelay(link PeripheralLink, out io.Writer) *Relay {
	return &Relay{link: link, out: out}
}

func (r *Relay) write(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := io.WriteString(r.out, line); err != nil {
		log.WithError(err).Warn("central: host write failed")
	}
}

func (r *Relay) onSample(s imu.Sample) {
	r.write(serial.FormatSample(s))
	r.mu.Lock()
	r.relayed++
	r.mu.Unlock()
}

// Relayed returns the number of samples written to the host.
func (r *Relay) Relayed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relayed
}

// Subscribe enables notifications if they are off.
func (r *Relay) Subscribe() error {
	r.mu.Lock()
	if r.subscribed {
		r.mu.Unlock()
		return nil
	}
	r.subscribed = true
	r.mu.Unlock()
	if err := r.link.Subscribe(r.onSample); err != nil {
		r.mu.Lock()
		r.subscribed = false
		r.mu.Unlock()
		return err
	}
	log.Info("central: notifications enabled")
	return nil
}

// Unsubscribe disables notifications if they are on.
func (r *Relay) Unsubscribe() error {
	r.mu.Lock()
	if !r.subscribed {
		r.mu.Unlock()
		return nil
	}
	r.subscribed = false
	r.mu.Unlock()
	log.Info("central: notifications disabled")
	return r.link.Unsubscribe()
}

// HandleLine applies one control line from the host.
func (r *Relay) HandleLine(line string) {
	ev, err := serial.ParseControl(line, "usb")
	if err != nil {
		log.WithError(err).WithField("line", line).Warn("central: ignoring host line")
		return
	}
	switch ev.Kind {
	case transport.EventSubscribe:
		err = r.Subscribe()
	case transport.EventUnsubscribe:
		err = r.Unsubscribe()
	case transport.EventResolution:
		err = r.link.SetResolution(ev.Resolution)
		if err == nil {
			r.write(serial.FormatResolution(ev.Resolution))
		}
	}
	if err != nil {
		log.WithError(err).WithField("request", ev.Kind.String()).Warn("central: control write failed")
	}
}

// Serve reads control lines from in until ctx is done or in fails.
func (r *Relay) Serve(ctx context.Context, in io.Reader) error {
	lb := serial.NewLineBuffer(r.HandleLine)
	buf := make([]byte, 64)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			lb.Write(buf[:n])
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}
			return fmt.Errorf("central: read host port: %w", err)
		}
	}
}

// RunCentral connects to the configured peripheral and relays its
// samples to the host serial port until ctx is done.
func RunCentral(ctx context.Context, cfg *config.Config) error {
	port, err := tserial.OpenPort(&tserial.Config{
		Name:        cfg.CentralPort,
		Baud:        cfg.CentralBaudRate,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("central: open %s: %w", cfg.CentralPort, err)
	}
	defer port.Close()
	log.WithFields(log.Fields{"port": cfg.CentralPort, "baud": cfg.CentralBaudRate}).Info("central: host port open")

	timeout := time.Duration(cfg.CentralScanTimeout) * time.Second
	link, err := ble.Dial(bluetooth.DefaultAdapter, cfg.CentralTarget, timeout)
	if err != nil {
		return err
	}
	defer link.Close()

	if id, err := link.DeviceID(); err != nil {
		log.WithError(err).Warn("central: device id unavailable")
	} else {
		log.WithField("device_id", fmt.Sprintf("%08X", id)).Info("central: connected")
	}

	r := NewRelay(link, port)
	if err := r.Subscribe(); err != nil {
		return err
	}
	defer r.Unsubscribe()

	err = r.Serve(ctx, port)
	log.WithField("relayed", r.Relayed()).Info("central: stopped")
	return err
}
