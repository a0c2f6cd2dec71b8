// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ble

import (
	"testing"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/transport"
)

func TestVendorUUIDs(t *testing.T) {
	tests := map[string]string{
		ServiceUUID.String():    "5c1aface-0e70-4a20-a88e-3259e2e8bad9",
		DataUUID.String():       "5c1afade-0e70-4a20-a88e-3259e2e8bad9",
		DeviceIDUUID.String():   "5c1afeed-0e70-4a20-a88e-3259e2e8bad9",
		ResolutionUUID.String(): "5c1abead-0e70-4a20-a88e-3259e2e8bad9",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("UUID = %s, want %s", got, want)
		}
	}
}

func TestMatches(t *testing.T) {
	if !Matches("", true, "") {
		t.Error("service UUID match rejected")
	}
	if !Matches("BLE-IMU", false, "") {
		t.Error("default name rejected")
	}
	if Matches("BLE-IMU", false, "other") || Matches("thermo", false, "") {
		t.Error("foreign advertisement accepted")
	}
}

func TestPeripheralConnectEvents(t *testing.T) {
	events := make(chan transport.Event, 4)
	p := NewPeripheral(nil, "", 1, events)

	p.onConnect("AA:BB", true)
	p.onConnect("AA:BB", true) // duplicate callback
	p.onConnect("AA:BB", false)

	want := []transport.EventKind{transport.EventSubscribe, transport.EventUnsubscribe}
	for _, k := range want {
		ev := <-events
		if ev.Kind != k || ev.Source != "ble:AA:BB" {
			t.Errorf("event = %+v, want %s from ble:AA:BB", ev, k)
		}
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestPeripheralResolutionWrite(t *testing.T) {
	events := make(chan transport.Event, 1)
	p := NewPeripheral(nil, "", 1, events)
	p.onResolutionWrite([]byte{0x03, 0x01, 0x00, 0x00})
	ev := <-events
	if ev.Kind != transport.EventResolution || ev.Resolution != (imu.Resolution{Accel: 3, Gyro: 1}) {
		t.Errorf("event = %+v", ev)
	}
	p.onResolutionWrite(nil)
	if len(events) != 0 {
		t.Error("empty write produced an event")
	}
}

func TestPeripheralDropsWithoutCentral(t *testing.T) {
	p := NewPeripheral(nil, "", 1, make(chan transport.Event, 1))
	if err := p.Publish(imu.Sample{}); err != nil {
		t.Errorf("Publish without central = %v", err)
	}
	if err := p.NotifyResolution(imu.Resolution{}); err != nil {
		t.Errorf("NotifyResolution without central = %v", err)
	}
}
