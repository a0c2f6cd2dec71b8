// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relabs-tech/ble_imu/internal/config"
	"github.com/relabs-tech/ble_imu/internal/icm20948"
	"github.com/relabs-tech/ble_imu/internal/irq"
)

type fakeChip struct {
	resetErr   error
	idFailures int
	idCalls    int
	resets     int
	configured bool
	interrupts bool
	configErr  error
}

func (c *fakeChip) Reset() error {
	c.resets++
	return c.resetErr
}

func (c *fakeChip) CheckIdentity() error {
	c.idCalls++
	if c.idCalls <= c.idFailures {
		return icm20948.ErrIdentityMismatch
	}
	return nil
}

func (c *fakeChip) Configure() error {
	c.configured = true
	return c.configErr
}

func (c *fakeChip) SetupInterrupts() error {
	c.interrupts = true
	return nil
}

func TestBringupRetriesIdentity(t *testing.T) {
	c := &fakeChip{idFailures: 3}
	if err := Bringup(c, 10); err != nil {
		t.Fatal(err)
	}
	if c.resets != 1 || c.idCalls != 4 || !c.configured || !c.interrupts {
		t.Errorf("chip = %+v", c)
	}
}

func TestBringupGivesUp(t *testing.T) {
	c := &fakeChip{idFailures: 100}
	err := Bringup(c, 10)
	if !errors.Is(err, icm20948.ErrIdentityMismatch) {
		t.Fatalf("Bringup = %v, want ErrIdentityMismatch", err)
	}
	if c.idCalls != 10 || c.configured {
		t.Errorf("idCalls = %d configured = %v", c.idCalls, c.configured)
	}
}

func TestBringupResetTimeoutIsNotFatal(t *testing.T) {
	c := &fakeChip{resetErr: icm20948.ErrResetTimeout}
	if err := Bringup(c, 1); err != nil {
		t.Fatalf("Bringup = %v", err)
	}

	boom := errors.New("bus gone")
	c = &fakeChip{resetErr: boom}
	if err := Bringup(c, 1); !errors.Is(err, boom) {
		t.Errorf("Bringup = %v, want bus error", err)
	}
	if c.idCalls != 0 {
		t.Error("identity checked after a failed reset")
	}
}

func simConfig() *config.Config {
	cfg := config.Default()
	cfg.Simulate = true
	cfg.IMUSampleRateHz = 200
	return cfg
}

func TestOpenSimulated(t *testing.T) {
	src, err := Open(simConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if src.Sim == nil || src.Pin != nil {
		t.Fatalf("source = %+v", src)
	}
	if err := Bringup(src.Device, 3); err != nil {
		t.Fatal(err)
	}
	if src.Device.State() != icm20948.StateSleeping {
		t.Errorf("state = %v, want sleeping", src.Device.State())
	}
	if err := src.Device.SetPower(true); err != nil {
		t.Fatal(err)
	}

	var l irq.Latch
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := src.Watch(ctx, &l, time.Hour); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !l.Take() {
		if time.Now().After(deadline) {
			t.Fatal("simulator never raised data-ready")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWatchTicksWithoutPin(t *testing.T) {
	src := &Source{}
	var l irq.Latch
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := src.Watch(ctx, &l, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !l.Take() {
		if time.Now().After(deadline) {
			t.Fatal("poll tick never raised data-ready")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestManager(t *testing.T) {
	src, err := Open(simConfig())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(src, 3)
	if _, err := m.ReadRegister(0); !errors.Is(err, ErrNotReady) {
		t.Fatalf("ReadRegister before Init = %v", err)
	}
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if !m.Available() || m.State() != icm20948.StateAwake {
		t.Fatalf("available = %v state = %v", m.Available(), m.State())
	}

	id, err := m.ReadRegister(icm20948.RegWhoAmI)
	if err != nil || id != icm20948.WhoAmIValue {
		t.Errorf("WHO_AM_I = 0x%02X, %v", id, err)
	}
	if err := m.WriteRegister(icm20948.RegAccelConfig, 0x07); err != nil {
		t.Fatal(err)
	}
	if v := src.Sim.Register(2, 0x14); v != 0x07 {
		t.Errorf("ACCEL_CONFIG = 0x%02X after write", v)
	}

	all, err := m.ReadAllRegisters()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(ICM20948RegisterMap()) || all[icm20948.RegWhoAmI] != 0xEA {
		t.Errorf("ReadAllRegisters returned %d registers", len(all))
	}
	exp, err := m.ExportRegisterConfig()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := exp[icm20948.RegWhoAmI]; ok {
		t.Error("read-only register exported")
	}
	if exp[icm20948.RegAccelConfig] != 0x07 {
		t.Errorf("exported ACCEL_CONFIG = 0x%02X", exp[icm20948.RegAccelConfig])
	}

	s, err := m.ReadSample()
	if err != nil {
		t.Fatal(err)
	}
	if s.Az != 8192 || s.Temperature != 1335 {
		t.Errorf("sample = %+v", s)
	}
}

func TestRegisterMap(t *testing.T) {
	seen := map[uint16]string{}
	var prev uint16
	for i, r := range ICM20948RegisterMap() {
		a := r.Addr()
		if FormatAddr(a) != r.Address {
			t.Errorf("%s: address %q is not canonical", r.Name, r.Address)
		}
		if other, ok := seen[a]; ok {
			t.Errorf("%s and %s share address %s", r.Name, other, r.Address)
		}
		seen[a] = r.Name
		if i > 0 && a <= prev {
			t.Errorf("%s out of order", r.Name)
		}
		prev = a
	}
	for _, reg := range []uint16{icm20948.RegPwrMgmt1, icm20948.RegFIFOEn2, icm20948.RegGyroConfig1, icm20948.RegAccelConfig} {
		if _, ok := seen[reg]; !ok {
			t.Errorf("register %s missing from map", FormatAddr(reg))
		}
	}
}
