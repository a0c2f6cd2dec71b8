// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/metrics"
	"github.com/relabs-tech/ble_imu/internal/transport"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func nextEvent(t *testing.T, events <-chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return transport.Event{}
}

func TestSampleHub(t *testing.T) {
	events := make(chan transport.Event, 8)
	hub := NewSampleHub(events)
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	if err != nil {
		t.Fatal(err)
	}

	ev := nextEvent(t, events)
	if ev.Kind != transport.EventSubscribe || !strings.HasPrefix(ev.Source, "ws:") {
		t.Fatalf("event = %+v, want ws subscribe", ev)
	}
	if hub.Clients() != 1 {
		t.Fatalf("clients = %d", hub.Clients())
	}

	want := imu.Sample{DeviceID: 7, Timestamp: 1000, Az: 8192}
	if err := hub.Publish(want); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m HubMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatal(err)
	}
	if m.Type != "sample" || m.Sample == nil || *m.Sample != want {
		t.Errorf("frame = %+v", m)
	}
	if got, ok := hub.Latest(); !ok || got != want {
		t.Errorf("Latest = %+v, %v", got, ok)
	}

	if err := conn.WriteJSON(HubCommand{Action: "resolution", Accel: 2, Gyro: 1}); err != nil {
		t.Fatal(err)
	}
	ev = nextEvent(t, events)
	if ev.Kind != transport.EventResolution || ev.Resolution != (imu.Resolution{Accel: 2, Gyro: 1}) {
		t.Errorf("event = %+v", ev)
	}

	if err := conn.WriteJSON(HubCommand{Action: "resolution", Accel: 9}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatal(err)
	}
	if m.Type != "error" {
		t.Errorf("frame = %+v, want error", m)
	}

	conn.Close()
	ev = nextEvent(t, events)
	if ev.Kind != transport.EventUnsubscribe {
		t.Errorf("event = %+v, want unsubscribe", ev)
	}
}

func TestSampleHubCloseUnblocksConsumers(t *testing.T) {
	events := make(chan transport.Event) // never read
	hub := NewSampleHub(events)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after Close")
	}
}

func TestWebMux(t *testing.T) {
	events := make(chan transport.Event, 8)
	hub := NewSampleHub(events)
	defer hub.Close()
	reg := prometheus.NewRegistry()
	obs := metrics.New(reg)
	obs.Streaming(true)

	status := func() Status {
		return Status{DeviceID: "0000002A", Streaming: true, Resolution: hub.Resolution(), Transports: []string{"web"}}
	}
	srv := httptest.NewServer(NewWebMux(hub, reg, status))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/imu")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/api/imu before data = %d", resp.StatusCode)
	}

	hub.Publish(imu.Sample{DeviceID: 42, Ax: -3})
	hub.NotifyResolution(imu.Resolution{Accel: 3})

	resp, err = http.Get(srv.URL + "/api/imu")
	if err != nil {
		t.Fatal(err)
	}
	var s imu.Sample
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if s.DeviceID != 42 || s.Ax != -3 {
		t.Errorf("/api/imu = %+v", s)
	}

	resp, err = http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if st.DeviceID != "0000002A" || !st.Streaming || st.Resolution.Accel != 3 {
		t.Errorf("/api/status = %+v", st)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "ble_imu_streaming 1") {
		t.Errorf("/metrics missing streaming gauge:\n%s", body)
	}
}
