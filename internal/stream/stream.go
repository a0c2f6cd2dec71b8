// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stream runs the foreground loop that owns the sensor. Each
// data-ready signal drains one FIFO record, or reads the output registers
// when the FIFO is unused, and publishes it stamped. Consumer control
// requests are applied between cycles.
package stream

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ble_imu/internal/icm20948"
	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/irq"
	"github.com/relabs-tech/ble_imu/internal/stamp"
	"github.com/relabs-tech/ble_imu/internal/transport"
)

// DefaultPollInterval is how often the data-ready latch is checked.
const DefaultPollInterval = time.Millisecond

// Driver is the part of the sensor driver used by the loop.
type Driver interface {
	DrainOneSample(s *imu.Sample) (bool, error)
	ReadDirect(s *imu.Sample) error
	SetPower(on bool) error
	SetFullScale(ch icm20948.Channel, sel byte) error
	Config() icm20948.Config
	Stats() icm20948.FIFOStats
}

// Observer receives loop events, typically to feed metrics.
type Observer interface {
	SamplePublished()
	PublishFailed(transport string)
	DrainFailed()
	FIFOStats(st icm20948.FIFOStats)
	Streaming(on bool)
}

type nopObserver struct{}

func (nopObserver) SamplePublished() {}
func (nopObserver) PublishFailed(string) {}
func (nopObserver) DrainFailed() {}
func (nopObserver) FIFOStats(icm20948.FIFOStats) {}
func (nopObserver) Streaming(bool) {}

// Options configures a Streamer.
type Options struct {
	Stamper   stamp.Stamper
	Publisher transport.Publisher
	Latch     *irq.Latch
	Events    <-chan transport.Event
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	Observer     Observer
}

// Streamer is the single owner of a sensor Driver.
type Streamer struct {
	dev     Driver
	stamper stamp.Stamper
	pub     transport.Publisher
	latch   *irq.Latch
	events  <-chan transport.Event
	poll    time.Duration
	obs     Observer
	subs    map[string]bool
	log     *log.Entry
}

// New returns a Streamer driving dev.
func New(dev Driver, opts Options) *Streamer {
	s := &Streamer{
		dev:     dev,
		stamper: opts.Stamper,
		pub:     opts.Publisher,
		latch:   opts.Latch,
		events:  opts.Events,
		poll:    opts.PollInterval,
		obs:     opts.Observer,
		subs:    map[string]bool{},
		log:     log.WithField("component", "stream"),
	}
	if s.pub == nil {
		s.pub = transport.Multi{}
	}
	if s.latch == nil {
		s.latch = &irq.Latch{}
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	return s
}

// Run services control events and data-ready signals until ctx is done.
// The sensor is put back to sleep on return.
func (s *Streamer) Run(ctx context.Context) error {
	t := time.NewTicker(s.poll)
	defer t.Stop()
	defer s.stop()

	events := s.events
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.Handle(ev)
		case <-t.C:
			s.Poll()
		}
	}
}

func (s *Streamer) stop() {
	if len(s.subs) == 0 {
		return
	}
	s.subs = map[string]bool{}
	if err := s.dev.SetPower(false); err != nil {
		s.log.WithError(err).Warn("sleep on shutdown failed")
	}
	s.obs.Streaming(false)
}

// Subscribers returns the number of subscribed consumers.
func (s *Streamer) Subscribers() int { return len(s.subs) }

// Poll runs one cycle if the data-ready latch was raised. It reports
// whether a cycle ran.
func (s *Streamer) Poll() bool {
	if !s.latch.Take() {
		return false
	}
	s.Cycle()
	return true
}

// Cycle drains one record and publishes it. Nothing is published when the
// FIFO held less than one record. With no channel routed to the FIFO the
// output registers are read directly instead.
func (s *Streamer) Cycle() {
	var smp imu.Sample
	if s.dev.Config().AnyFIFO() {
		ok, err := s.dev.DrainOneSample(&smp)
		s.obs.FIFOStats(s.dev.Stats())
		if err != nil {
			s.obs.DrainFailed()
			s.log.WithError(err).Warn("FIFO drain failed")
			return
		}
		if !ok {
			return
		}
	} else if err := s.dev.ReadDirect(&smp); err != nil {
		s.obs.DrainFailed()
		s.log.WithError(err).Warn("direct read failed")
		return
	}
	s.stamper.Apply(&smp)
	if err := s.pub.Publish(smp); err != nil {
		s.reportPublishError(err)
		return
	}
	s.obs.SamplePublished()
}

func (s *Streamer) reportPublishError(err error) {
	failed := []error{err}
	if _, multi := s.pub.(transport.Multi); multi {
		if j, ok := err.(interface{ Unwrap() []error }); ok {
			failed = j.Unwrap()
		}
	}
	for _, e := range failed {
		name := s.pub.Name()
		var pe *transport.PublishError
		if errors.As(e, &pe) {
			name = pe.Transport
		}
		s.obs.PublishFailed(name)
		s.log.WithError(e).WithField("transport", name).Debug("publish failed")
	}
}

// Handle applies one control event.
func (s *Streamer) Handle(ev transport.Event) {
	l := s.log.WithFields(log.Fields{"event": ev.Kind, "source": ev.Source})
	switch ev.Kind {
	case transport.EventSubscribe:
		first := len(s.subs) == 0
		s.subs[ev.Source] = true
		if first {
			if err := s.dev.SetPower(true); err != nil {
				l.WithError(err).Error("wake failed")
				return
			}
			s.obs.Streaming(true)
		}
		l.WithField("subscribers", len(s.subs)).Info("consumer subscribed")
	case transport.EventUnsubscribe:
		if !s.subs[ev.Source] {
			return
		}
		delete(s.subs, ev.Source)
		if len(s.subs) == 0 {
			if err := s.dev.SetPower(false); err != nil {
				l.WithError(err).Error("sleep failed")
				return
			}
			s.obs.Streaming(false)
		}
		l.WithField("subscribers", len(s.subs)).Info("consumer unsubscribed")
	case transport.EventResolution:
		s.applyResolution(l, ev.Resolution)
	default:
		l.Warn("unknown control event")
	}
}

func (s *Streamer) applyResolution(l *log.Entry, r imu.Resolution) {
	if err := s.dev.SetFullScale(icm20948.ChannelAccel, r.Accel); err != nil {
		l.WithError(err).Error("accelerometer range change failed")
	}
	if err := s.dev.SetFullScale(icm20948.ChannelGyro, r.Gyro); err != nil {
		l.WithError(err).Error("gyroscope range change failed")
	}
	cfg := s.dev.Config()
	applied := imu.Resolution{Accel: uint8(cfg.AccelFS), Gyro: uint8(cfg.GyroFS), Mag: uint8(cfg.MagFS)}
	l.WithFields(log.Fields{"accel": cfg.AccelFS, "gyro": cfg.GyroFS}).Info("resolution applied")
	if n, ok := s.pub.(transport.ResolutionNotifier); ok {
		if err := n.NotifyResolution(applied); err != nil {
			l.WithError(err).Warn("resolution echo failed")
		}
	}
}
