// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ble

import (
	"encoding/binary"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/transport"
)

// Peripheral serves the IMU service. A connected central counts as a
// subscribed consumer.
type Peripheral struct {
	adapter  *bluetooth.Adapter
	name     string
	deviceID uint32
	events   chan<- transport.Event

	data       bluetooth.Characteristic
	deviceid   bluetooth.Characteristic
	resolution bluetooth.Characteristic

	mu      sync.Mutex
	centers map[string]bool
	buf     []byte
	log     *log.Entry
}

// NewPeripheral prepares the service on adapter. Start registers it.
func NewPeripheral(adapter *bluetooth.Adapter, name string, deviceID uint32, events chan<- transport.Event) *Peripheral {
	if name == "" {
		name = DeviceName
	}
	return &Peripheral{
		adapter:  adapter,
		name:     name,
		deviceID: deviceID,
		events:   events,
		centers:  map[string]bool{},
		buf:      make([]byte, 0, imu.SampleSize),
		log:      log.WithField("component", "ble"),
	}
}

// Start enables the adapter, adds the service and begins advertising.
func (p *Peripheral) Start(initial imu.Resolution) error {
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		p.onConnect(device.Address.String(), connected)
	})
	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	id := make([]byte, 4)
	binary.LittleEndian.PutUint32(id, p.deviceID)
	err := p.adapter.AddService(&bluetooth.Service{
		UUID: ServiceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &p.data,
				UUID:   DataUUID,
				Value:  make([]byte, imu.SampleSize),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
			{
				Handle: &p.deviceid,
				UUID:   DeviceIDUUID,
				Value:  id,
				Flags:  bluetooth.CharacteristicReadPermission,
			},
			{
				Handle: &p.resolution,
				UUID:   ResolutionUUID,
				Value:  initial.Bytes(),
				Flags: bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission | bluetooth.CharacteristicNotifyPermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					p.onResolutionWrite(value)
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ble: add service: %w", err)
	}

	adv := p.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.name,
		ServiceUUIDs: []bluetooth.UUID{ServiceUUID},
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}
	p.log.WithFields(log.Fields{"name": p.name, "device_id": fmt.Sprintf("%08X", p.deviceID)}).Info("advertising")
	return nil
}

func (p *Peripheral) onConnect(addr string, connected bool) {
	p.mu.Lock()
	was := p.centers[addr]
	if connected {
		p.centers[addr] = true
	} else {
		delete(p.centers, addr)
	}
	p.mu.Unlock()

	if connected == was {
		return
	}
	ev := transport.Event{Kind: transport.EventUnsubscribe, Source: "ble:" + addr}
	if connected {
		ev.Kind = transport.EventSubscribe
	}
	p.log.WithField("central", addr).Infof("central %s", ev.Kind)
	p.events <- ev
}

func (p *Peripheral) onResolutionWrite(value []byte) {
	r, err := imu.ParseResolution(value)
	if err != nil {
		p.log.WithError(err).Warn("bad resolution write")
		return
	}
	p.events <- transport.Event{Kind: transport.EventResolution, Source: "ble", Resolution: r}
}

func (p *Peripheral) connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.centers) > 0
}

// Name implements transport.Publisher.
func (p *Peripheral) Name() string { return "ble" }

// Publish notifies the data characteristic with the packed sample.
func (p *Peripheral) Publish(s imu.Sample) error {
	if !p.connected() {
		return nil
	}
	p.buf = s.AppendBinary(p.buf[:0])
	_, err := p.data.Write(p.buf)
	return err
}

// NotifyResolution implements transport.ResolutionNotifier.
func (p *Peripheral) NotifyResolution(r imu.Resolution) error {
	if !p.connected() {
		return nil
	}
	_, err := p.resolution.Write(r.Bytes())
	return err
}
