// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/ble_imu/internal/config"
	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/sensors"
)

func newDebugServer(t *testing.T, writable string) (*httptest.Server, *sensors.Source) {
	t.Helper()
	cfg := config.Default()
	cfg.Simulate = true
	src, err := sensors.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { src.Close() })
	m := sensors.NewManager(src, 3)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	w, err := config.ParseWritable(writable)
	if err != nil {
		t.Fatal(err)
	}
	d := NewRegisterDebug(m, w)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.HandleWS)
	mux.HandleFunc("/api/imu", d.HandleIMUData)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, src
}

func roundTrip(t *testing.T, conn *websocket.Conn, cmd RegisterCmd) RegisterResponse {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp RegisterResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestRegisterDebugWS(t *testing.T) {
	srv, src := newDebugServer(t, "0x0214")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var first RegisterResponse
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "register_map" || len(first.RegisterMap) != len(sensors.ICM20948RegisterMap()) {
		t.Fatalf("first frame = %s with %d registers", first.Type, len(first.RegisterMap))
	}

	resp := roundTrip(t, conn, RegisterCmd{Action: "read", Address: "0x0000"})
	if resp.Type != "register_data" || resp.Value != "0xEA" || resp.Address != "0x0000" {
		t.Errorf("read WHO_AM_I = %+v", resp)
	}

	resp = roundTrip(t, conn, RegisterCmd{Action: "write", Address: "0x0214", Value: "0x05"})
	if resp.Type != "register_data" || resp.Message != "write successful" {
		t.Errorf("write = %+v", resp)
	}
	if v := src.Sim.Register(2, 0x14); v != 0x05 {
		t.Errorf("ACCEL_CONFIG = 0x%02X", v)
	}

	resp = roundTrip(t, conn, RegisterCmd{Action: "write", Address: "0x0006", Value: "0x80"})
	if resp.Type != "error" {
		t.Errorf("write outside allowed ranges = %+v", resp)
	}

	resp = roundTrip(t, conn, RegisterCmd{Action: "read", Address: "zz"})
	if resp.Type != "error" {
		t.Errorf("bad address = %+v", resp)
	}

	resp = roundTrip(t, conn, RegisterCmd{Action: "read_all"})
	if resp.Registers["0x0000"] != "0xEA" {
		t.Errorf("read_all WHO_AM_I = %q", resp.Registers["0x0000"])
	}

	resp = roundTrip(t, conn, RegisterCmd{Action: "export_config"})
	if resp.Type != "export_config" {
		t.Fatalf("export = %+v", resp)
	}
	var file RegisterConfigFile
	if err := json.Unmarshal([]byte(resp.Config), &file); err != nil {
		t.Fatal(err)
	}
	if file.Version != 1 || file.Registers["0x0214"] != "0x05" {
		t.Errorf("exported file = %+v", file)
	}
	if _, ok := file.Registers["0x0000"]; ok {
		t.Error("read-only WHO_AM_I exported")
	}

	resp = roundTrip(t, conn, RegisterCmd{Action: "init"})
	if resp.Type != "status" || resp.Status != "initialized" {
		t.Errorf("init = %+v", resp)
	}

	resp = roundTrip(t, conn, RegisterCmd{Action: "bogus"})
	if resp.Type != "error" {
		t.Errorf("unknown action = %+v", resp)
	}
}

func TestRegisterDebugIMUData(t *testing.T) {
	srv, _ := newDebugServer(t, "")
	resp, err := http.Get(srv.URL + "/api/imu")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var s imu.Sample
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Az == 0 {
		t.Errorf("sample = %+v, want gravity on z", s)
	}
}
