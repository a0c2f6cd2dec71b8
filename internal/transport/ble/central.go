// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ble

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/ble_imu/internal/imu"
)

// ErrNotFound reports that no matching peripheral advertised in time.
var ErrNotFound = errors.New("ble: IMU peripheral not found")

// Matches reports whether an advertisement belongs to an IMU peripheral.
func Matches(localName string, hasService bool, wantName string) bool {
	if hasService {
		return true
	}
	if wantName == "" {
		wantName = DeviceName
	}
	return localName == wantName
}

// Link is a connection from a central to one IMU peripheral.
type Link struct {
	device     bluetooth.Device
	data       bluetooth.DeviceCharacteristic
	deviceid   bluetooth.DeviceCharacteristic
	resolution bluetooth.DeviceCharacteristic
}

// Dial scans for an IMU peripheral and connects to the first match.
func Dial(adapter *bluetooth.Adapter, name string, timeout time.Duration) (*Link, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	found := make(chan bluetooth.ScanResult, 1)
	timer := time.AfterFunc(timeout, func() { adapter.StopScan() })
	defer timer.Stop()
	err := adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if !Matches(r.LocalName(), r.HasServiceUUID(ServiceUUID), name) {
			return
		}
		a.StopScan()
		select {
		case found <- r:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	var result bluetooth.ScanResult
	select {
	case result = <-found:
	default:
		return nil, ErrNotFound
	}
	log.WithFields(log.Fields{"address": result.Address.String(), "rssi": result.RSSI}).Info("ble: found IMU")

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("ble: connect %s: %w", result.Address.String(), err)
	}
	l := &Link{device: device}
	if err := l.discover(); err != nil {
		device.Disconnect()
		return nil, err
	}
	return l, nil
}

func (l *Link) discover() error {
	srvcs, err := l.device.DiscoverServices([]bluetooth.UUID{ServiceUUID})
	if err != nil {
		return fmt.Errorf("ble: discover services: %w", err)
	}
	if len(srvcs) == 0 {
		return fmt.Errorf("ble: IMU service missing")
	}
	chars, err := srvcs[0].DiscoverCharacteristics([]bluetooth.UUID{DataUUID, DeviceIDUUID, ResolutionUUID})
	if err != nil {
		return fmt.Errorf("ble: discover characteristics: %w", err)
	}
	var got int
	for _, c := range chars {
		switch c.UUID() {
		case DataUUID:
			l.data = c
		case DeviceIDUUID:
			l.deviceid = c
		case ResolutionUUID:
			l.resolution = c
		default:
			continue
		}
		got++
	}
	if got != 3 {
		return fmt.Errorf("ble: found %d of 3 IMU characteristics", got)
	}
	return nil
}

// Subscribe enables sample notifications. fn runs on the BLE stack's
// goroutine.
func (l *Link) Subscribe(fn func(imu.Sample)) error {
	return l.data.EnableNotifications(func(buf []byte) {
		var s imu.Sample
		if err := s.UnmarshalBinary(buf); err != nil {
			log.WithError(err).Warn("ble: dropping malformed notification")
			return
		}
		fn(s)
	})
}

// Unsubscribe disables sample notifications.
func (l *Link) Unsubscribe() error {
	return l.data.EnableNotifications(nil)
}

// DeviceID reads the peripheral's device id.
func (l *Link) DeviceID() (uint32, error) {
	buf := make([]byte, 4)
	n, err := l.deviceid.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("ble: read device id: %w", err)
	}
	if n != 4 {
		return 0, fmt.Errorf("ble: device id is %d bytes", n)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// SetResolution writes the resolution control point.
func (l *Link) SetResolution(r imu.Resolution) error {
	_, err := l.resolution.WriteWithoutResponse(r.Bytes())
	return err
}

// Close disconnects from the peripheral.
func (l *Link) Close() error {
	return l.device.Disconnect()
}
