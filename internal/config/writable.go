// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// AddrRange is an inclusive range of banked register addresses
// (bank<<8 | offset).
type AddrRange struct {
	Lo, Hi uint16
}

// Writable is the set of registers the debug tool may write.
type Writable []AddrRange

// ParseWritable parses a list such as "0x0206-0x0207,0x0214". An empty
// string yields an empty set.
func ParseWritable(s string) (Writable, error) {
	var w Writable
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.ParseUint(strings.TrimSpace(lo), 0, 16)
		if err != nil {
			return nil, fmt.Errorf("bad address %q: %w", lo, err)
		}
		b := a
		if isRange {
			b, err = strconv.ParseUint(strings.TrimSpace(hi), 0, 16)
			if err != nil {
				return nil, fmt.Errorf("bad address %q: %w", hi, err)
			}
		}
		if b < a {
			return nil, fmt.Errorf("range %q is reversed", part)
		}
		w = append(w, AddrRange{Lo: uint16(a), Hi: uint16(b)})
	}
	return w, nil
}

// Allows reports whether reg falls in any range.
func (w Writable) Allows(reg uint16) bool {
	for _, r := range w {
		if reg >= r.Lo && reg <= r.Hi {
			return true
		}
	}
	return false
}

// Writable returns the parsed REGISTER_DEBUG_WRITABLE set. The value was
// checked by Load.
func (c *Config) Writable() Writable {
	w, _ := ParseWritable(c.RegisterDebugWritable)
	return w
}
