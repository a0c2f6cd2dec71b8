// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/transport"
)

// OpenPort opens a UART with 8N1 framing.
func OpenPort(name string, baud uint) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              name,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}
	log.WithFields(log.Fields{"port": name, "baud": baud}).Info("serial port opened")
	return port, nil
}

// Port is the peripheral side of the serial transport. Samples are only
// written after the host sent $IMCTL,NOTIFY,1.
type Port struct {
	rw         io.ReadWriteCloser
	name       string
	events     chan<- transport.Event
	subscribed atomic.Bool
	log        *log.Entry
}

// NewPort wraps an open port. Control events are sent on events.
func NewPort(rw io.ReadWriteCloser, name string, events chan<- transport.Event) *Port {
	return &Port{
		rw:     rw,
		name:   name,
		events: events,
		log:    log.WithFields(log.Fields{"component": "serial", "port": name}),
	}
}

// Name implements transport.Publisher.
func (p *Port) Name() string { return "serial" }

func (p *Port) source() string { return "serial:" + p.name }

// Publish implements transport.Publisher.
func (p *Port) Publish(s imu.Sample) error {
	if !p.subscribed.Load() {
		return nil
	}
	_, err := io.WriteString(p.rw, FormatSample(s))
	return err
}

// NotifyResolution implements transport.ResolutionNotifier.
func (p *Port) NotifyResolution(r imu.Resolution) error {
	_, err := io.WriteString(p.rw, FormatResolution(r))
	return err
}

// Serve reads control sentences until ctx is done or the port fails.
// Closing the port unblocks it.
func (p *Port) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { p.rw.Close() })
	defer stop()

	lb := NewLineBuffer(func(line string) { p.handleLine(ctx, line) })
	buf := make([]byte, 64)
	for {
		n, err := p.rw.Read(buf)
		if n > 0 {
			lb.Write(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				p.unsubscribe()
				return nil
			}
			return fmt.Errorf("serial: read %s: %w", p.name, err)
		}
	}
}

func (p *Port) handleLine(ctx context.Context, line string) {
	ev, err := ParseControl(line, p.source())
	if err != nil {
		p.log.WithError(err).WithField("line", line).Debug("ignoring line")
		return
	}
	switch ev.Kind {
	case transport.EventSubscribe:
		p.subscribed.Store(true)
	case transport.EventUnsubscribe:
		p.subscribed.Store(false)
	}
	p.send(ctx, ev)
}

// unsubscribe drops a subscription held by a host that went away.
func (p *Port) unsubscribe() {
	if !p.subscribed.Swap(false) {
		return
	}
	select {
	case p.events <- transport.Event{Kind: transport.EventUnsubscribe, Source: p.source()}:
	default:
		p.log.Warn("event queue full, unsubscribe dropped")
	}
}

func (p *Port) send(ctx context.Context, ev transport.Event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}
