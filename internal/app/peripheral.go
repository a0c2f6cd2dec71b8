// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/ble_imu/internal/config"
	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/irq"
	"github.com/relabs-tech/ble_imu/internal/metrics"
	"github.com/relabs-tech/ble_imu/internal/sensors"
	"github.com/relabs-tech/ble_imu/internal/stamp"
	"github.com/relabs-tech/ble_imu/internal/stream"
	"github.com/relabs-tech/ble_imu/internal/transport"
	"github.com/relabs-tech/ble_imu/internal/transport/ble"
	imumqtt "github.com/relabs-tech/ble_imu/internal/transport/mqtt"
	"github.com/relabs-tech/ble_imu/internal/transport/serial"
)

const eventQueue = 32

// statusObserver remembers the streaming state for /api/status.
type statusObserver struct {
	stream.Observer
	streaming atomic.Bool
}

func (o *statusObserver) Streaming(on bool) {
	o.streaming.Store(on)
	o.Observer.Streaming(on)
}

// RunPeripheral brings the sensor up, starts every enabled transport and
// streams until ctx is done.
func RunPeripheral(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deviceID, err := stamp.DeviceID(cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	log.WithField("device_id", fmt.Sprintf("%08X", deviceID)).Info("peripheral: starting")

	src, err := sensors.Open(cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	src.SetTrace(cfg.LogLevel == "trace")

	if err := sensors.Bringup(src.Device, cfg.IMUIdentityRetries); err != nil {
		return err
	}
	chip := src.Device.Config()
	initial := imu.Resolution{Accel: uint8(chip.AccelFS), Gyro: uint8(chip.GyroFS), Mag: uint8(chip.MagFS)}
	log.WithFields(log.Fields{
		"accel":       chip.AccelFS,
		"gyro":        chip.GyroFS,
		"accel_dlpf":  chip.AccelDLPF,
		"gyro_dlpf":   chip.GyroDLPF,
		"rate_hz":     chip.SampleRate,
		"bytes_datum": chip.BytesPerDatum(),
	}).Info("peripheral: sensor configured")

	events := make(chan transport.Event, eventQueue)
	reg := prometheus.NewRegistry()
	obs := &statusObserver{Observer: metrics.New(reg)}

	var pubs transport.Multi

	if cfg.BLEEnabled {
		p := ble.NewPeripheral(bluetooth.DefaultAdapter, cfg.BLEName, deviceID, events)
		if err := p.Start(initial); err != nil {
			return err
		}
		pubs = append(pubs, p)
	}

	if cfg.MQTTEnabled {
		t := imumqtt.New(imumqtt.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Prefix:   cfg.MQTTTopicPrefix,
			DeviceID: deviceID,
			Binary:   cfg.MQTTBinary,
		}, events)
		if err := t.Connect(); err != nil {
			return err
		}
		defer t.Close()
		if err := t.NotifyResolution(initial); err != nil {
			log.WithError(err).Warn("peripheral: initial resolution publish failed")
		}
		log.WithField("topic", t.Topics().Sample).Info("peripheral: MQTT ready")
		pubs = append(pubs, t)
	}

	if cfg.SerialEnabled {
		rw, err := serial.OpenPort(cfg.SerialPort, uint(cfg.SerialBaudRate))
		if err != nil {
			return err
		}
		port := serial.NewPort(rw, cfg.SerialPort, events)
		go func() {
			if err := port.Serve(ctx); err != nil {
				log.WithError(err).Error("peripheral: serial transport stopped")
			}
		}()
		pubs = append(pubs, port)
	}

	hub := NewSampleHub(events)
	hub.NotifyResolution(initial)
	defer hub.Close()
	pubs = append(pubs, hub)

	if cfg.WebServerPort > 0 {
		names := make([]string, len(pubs))
		for i, p := range pubs {
			names[i] = p.Name()
		}
		status := func() Status {
			st := Status{
				DeviceID:   fmt.Sprintf("%08X", deviceID),
				Streaming:  obs.streaming.Load(),
				WebClients: hub.Clients(),
				Resolution: hub.Resolution(),
				Transports: names,
			}
			if s, ok := hub.Latest(); ok {
				st.Last = &s
			}
			return st
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
			Handler:           NewWebMux(hub, reg, status),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := serveHTTP(ctx, srv); err != nil {
				log.WithError(err).Error("peripheral: web server stopped")
				cancel()
			}
		}()
	}

	if cfg.DisplayEnabled {
		if !cfg.MQTTEnabled {
			log.Warn("peripheral: display reads from MQTT, which is disabled")
		}
		go func() {
			if err := RunDisplay(ctx, cfg); err != nil {
				log.WithError(err).Error("peripheral: display stopped")
			}
		}()
	}

	var latch irq.Latch
	poll := time.Duration(cfg.IMUPollIntervalUS) * time.Microsecond
	if err := src.Watch(ctx, &latch, poll); err != nil {
		return err
	}

	s := stream.New(src.Device, stream.Options{
		Stamper:      stamp.Stamper{ID: deviceID},
		Publisher:    pubs,
		Latch:        &latch,
		Events:       events,
		PollInterval: poll,
		Observer:     obs,
	})
	log.WithField("transports", len(pubs)).Info("peripheral: streaming loop running")
	err = s.Run(ctx)
	log.Info("peripheral: stopped")
	return err
}
