// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stamp supplies the per-sample timestamp and the device identity
// copied into every published sample.
package stamp

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/ble_imu/internal/imu"
)

// Clock returns a free-running microsecond counter. The value wraps at 2^32.
type Clock interface {
	Micros() uint32
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint32

// Micros implements Clock.
func (f ClockFunc) Micros() uint32 { return f() }

// Monotonic counts microseconds since it was created.
type Monotonic struct {
	start time.Time
}

// NewMonotonic returns a clock starting at zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Micros implements Clock.
func (m *Monotonic) Micros() uint32 {
	return uint32(time.Since(m.start).Microseconds())
}

// machineIDPaths are searched in order for a persistent host identity.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// DeviceID returns the 32-bit identity of this unit.
//
// A non-empty override is parsed as an integer (0x prefix allowed).
// Otherwise the low 32 bits of the host machine id are used.
func DeviceID(override string) (uint32, error) {
	if override != "" {
		v, err := strconv.ParseUint(override, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("stamp: device id %q: %w", override, err)
		}
		return uint32(v), nil
	}
	var lastErr error
	for _, path := range machineIDPaths {
		id, err := readMachineID(path)
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("stamp: no machine id: %w", lastErr)
}

func readMachineID(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%s: empty", path)
	}
	line := strings.TrimSpace(sc.Text())
	if len(line) < 8 {
		return 0, fmt.Errorf("%s: short machine id %q", path, line)
	}
	v, err := strconv.ParseUint(line[len(line)-8:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return uint32(v), nil
}

// Stamper copies the device identity into outgoing samples.
type Stamper struct {
	ID uint32
}

// Apply sets the device identity of s.
func (st Stamper) Apply(s *imu.Sample) {
	s.DeviceID = st.ID
}
