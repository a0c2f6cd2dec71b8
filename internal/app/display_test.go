// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/relabs-tech/ble_imu/internal/imu"
)

func TestDisplayFollowsLatestDevice(t *testing.T) {
	d := &DisplayData{}
	prefix := "ble_imu"

	s := imu.Sample{DeviceID: 1, Ax: 7}
	js, _ := json.Marshal(s)
	d.onSample(prefix)(nil, fakeMessage{topic: "ble_imu/00000001/sample", payload: js})
	d.onStatus(prefix)(nil, fakeMessage{topic: "ble_imu/00000001/status", payload: []byte("online")})
	d.onResolution(prefix)(nil, fakeMessage{topic: "ble_imu/00000001/resolution", payload: []byte(`{"accel":1,"gyro":3}`)})

	snap := d.snapshot()
	if snap.DeviceID != 1 || !snap.HaveSample || snap.Sample.Ax != 7 || snap.Status != "online" || !snap.HaveRes {
		t.Fatalf("snapshot = %+v", snap)
	}

	bin, _ := imu.Sample{DeviceID: 2}.MarshalBinary()
	d.onSample(prefix)(nil, fakeMessage{topic: "ble_imu/00000002/sample", payload: bin})
	snap = d.snapshot()
	if snap.DeviceID != 2 || snap.Status != "" || snap.HaveRes || snap.Samples != 1 {
		t.Errorf("after switch = %+v", snap)
	}

	d.onStatus(prefix)(nil, fakeMessage{topic: "elsewhere/00000003/status", payload: []byte("online")})
	if d.snapshot().DeviceID != 2 {
		t.Error("followed a topic outside the prefix")
	}
}

func TestRenderStatus(t *testing.T) {
	waiting := renderStatus(displaySnapshot{})
	idle := renderStatus(displaySnapshot{DeviceID: 0x2A, Status: "online", HaveRes: true})
	live := renderStatus(displaySnapshot{
		DeviceID: 0x2A, Status: "online", HaveRes: true,
		HaveSample: true, Sample: imu.Sample{Ax: 123, Gz: -45},
	})

	if b := waiting.Bounds(); b.Dx() != displayWidth || b.Dy() != displayHeight {
		t.Fatalf("bounds = %v", b)
	}
	blank := renderStatus(displaySnapshot{})
	if !bytes.Equal(waiting.Pix, blank.Pix) {
		t.Error("rendering is not deterministic")
	}
	if bytes.Equal(waiting.Pix, idle.Pix) || bytes.Equal(idle.Pix, live.Pix) {
		t.Error("panels do not differ between states")
	}
	var lit int
	for _, p := range live.Pix {
		if p != 0 {
			lit++
		}
	}
	if lit == 0 {
		t.Error("nothing drawn")
	}
}
