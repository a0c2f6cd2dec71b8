// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/transport/serial"
)

type fakeLink struct {
	mu     sync.Mutex
	notify func(imu.Sample)
	subs   int
	unsubs int
	res    []imu.Resolution
	subErr error
}

func (l *fakeLink) Subscribe(fn func(imu.Sample)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs++
	if l.subErr != nil {
		return l.subErr
	}
	l.notify = fn
	return nil
}

func (l *fakeLink) Unsubscribe() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsubs++
	l.notify = nil
	return nil
}

func (l *fakeLink) SetResolution(r imu.Resolution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.res = append(l.res, r)
	return nil
}

func (l *fakeLink) send(s imu.Sample) {
	l.mu.Lock()
	fn := l.notify
	l.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func TestRelaySamples(t *testing.T) {
	link := &fakeLink{}
	var out bytes.Buffer
	r := NewRelay(link, &out)
	if err := r.Subscribe(); err != nil {
		t.Fatal(err)
	}
	if err := r.Subscribe(); err != nil {
		t.Fatal(err)
	}
	if link.subs != 1 {
		t.Errorf("link subscribed %d times", link.subs)
	}

	s := imu.Sample{DeviceID: 3, Timestamp: 10, Ax: 100, Mx: 1, My: 2, Mz: 3}
	link.send(s)
	got, err := serial.ParseSample(out.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != s || r.Relayed() != 1 {
		t.Errorf("relayed %+v (%d)", got, r.Relayed())
	}
}

func TestRelayControlLines(t *testing.T) {
	link := &fakeLink{}
	var out bytes.Buffer
	r := NewRelay(link, &out)

	r.HandleLine(strings.TrimSpace(serial.FormatNotify(true)))
	if link.subs != 1 {
		t.Fatalf("subs = %d", link.subs)
	}
	r.HandleLine(strings.TrimSpace(serial.FormatResolution(imu.Resolution{Accel: 3, Gyro: 0})))
	if len(link.res) != 1 || link.res[0] != (imu.Resolution{Accel: 3}) {
		t.Errorf("resolution writes = %+v", link.res)
	}
	if !strings.Contains(out.String(), "$IMCTL,RES,3,0") {
		t.Errorf("resolution not echoed: %q", out.String())
	}
	r.HandleLine("hello")
	r.HandleLine(strings.TrimSpace(serial.FormatNotify(false)))
	r.HandleLine(strings.TrimSpace(serial.FormatNotify(false)))
	if link.unsubs != 1 {
		t.Errorf("unsubs = %d", link.unsubs)
	}
}

func TestRelaySubscribeFailure(t *testing.T) {
	link := &fakeLink{subErr: errors.New("gatt")}
	r := NewRelay(link, io.Discard)
	if err := r.Subscribe(); err == nil {
		t.Fatal("Subscribe succeeded")
	}
	link.subErr = nil
	if err := r.Subscribe(); err != nil {
		t.Fatal(err)
	}
	if link.subs != 2 {
		t.Errorf("subs = %d, want retry", link.subs)
	}
}

func TestRelayServe(t *testing.T) {
	link := &fakeLink{}
	r := NewRelay(link, io.Discard)
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- r.Serve(context.Background(), pr) }()

	// split across writes to exercise line buffering
	line := serial.FormatNotify(true)
	pw.Write([]byte(line[:5]))
	pw.Write([]byte(line[5:]))
	pw.CloseWithError(errors.New("unplugged"))

	if err := <-done; err == nil {
		t.Error("Serve returned nil after port failure")
	}
	if link.subs != 1 {
		t.Errorf("subs = %d", link.subs)
	}
}
