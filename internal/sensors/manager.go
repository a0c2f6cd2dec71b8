// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"sync"

	"github.com/relabs-tech/ble_imu/internal/icm20948"
	"github.com/relabs-tech/ble_imu/internal/imu"
)

// ErrNotReady is returned by Manager calls before a successful Init.
var ErrNotReady = errors.New("sensors: IMU not initialized")

// Manager serialises register access to one sensor for interactive tools.
// The streaming path owns its Device directly and does not use a Manager.
type Manager struct {
	mu       sync.Mutex
	src      *Source
	attempts int
	ready    bool
}

// NewManager wraps src. attempts bounds the identity retries of Init.
func NewManager(src *Source, attempts int) *Manager {
	return &Manager{src: src, attempts: attempts}
}

// Init brings the sensor up and wakes it so the output registers update.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	if err := Bringup(m.src.Device, m.attempts); err != nil {
		return err
	}
	if err := m.src.Device.SetPower(true); err != nil {
		return err
	}
	m.ready = true
	return nil
}

// Available reports whether Init succeeded.
func (m *Manager) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// ReadRegister reads one banked register.
func (m *Manager) ReadRegister(reg uint16) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return 0, ErrNotReady
	}
	return m.src.Device.ReadRegister(reg)
}

// WriteRegister writes one banked register. Callers enforce write policy.
func (m *Manager) WriteRegister(reg uint16, v byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotReady
	}
	return m.src.Device.WriteRegister(reg, v)
}

// ReadAllRegisters reads every readable register of the map.
func (m *Manager) ReadAllRegisters() (map[uint16]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrNotReady
	}
	out := make(map[uint16]byte)
	for _, r := range ICM20948RegisterMap() {
		if r.Access == "W" {
			continue
		}
		v, err := m.src.Device.ReadRegister(r.Addr())
		if err != nil {
			return nil, err
		}
		out[r.Addr()] = v
	}
	return out, nil
}

// ExportRegisterConfig reads the writable registers, suitable for
// restoring a configuration later.
func (m *Manager) ExportRegisterConfig() (map[uint16]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrNotReady
	}
	out := make(map[uint16]byte)
	for _, r := range ICM20948RegisterMap() {
		if r.Access != "RW" {
			continue
		}
		v, err := m.src.Device.ReadRegister(r.Addr())
		if err != nil {
			return nil, err
		}
		out[r.Addr()] = v
	}
	return out, nil
}

// ReadSample reads the output registers directly.
func (m *Manager) ReadSample() (imu.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s imu.Sample
	if !m.ready {
		return s, ErrNotReady
	}
	if m.src.Sim != nil {
		// The emulator only latches outputs when asked to.
		m.src.Sim.Produce(m.src.Sim.Next())
	}
	err := m.src.Device.ReadDirect(&s)
	return s, err
}

// Config returns the mirrored sensor configuration.
func (m *Manager) Config() icm20948.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src.Device.Config()
}

// State returns the driver lifecycle state.
func (m *Manager) State() icm20948.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src.Device.State()
}
