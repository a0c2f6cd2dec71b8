// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ble exposes the IMU over a custom GATT service, as a peripheral
// on the sensor unit and as a central on the relay.
package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// DeviceName is the advertised local name.
const DeviceName = "BLE-IMU"

// 16-bit aliases inside the vendor base UUID.
const (
	ServiceAlias    uint16 = 0xFACE
	DataAlias       uint16 = 0xFADE
	DeviceIDAlias   uint16 = 0xFEED
	ResolutionAlias uint16 = 0xBEAD
)

// VendorUUID places a 16-bit alias into the vendor base
// 5c1aXXXX-0e70-4a20-a88e-3259e2e8bad9.
func VendorUUID(alias uint16) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(fmt.Sprintf("5c1a%04x-0e70-4a20-a88e-3259e2e8bad9", alias))
	if err != nil {
		panic(err)
	}
	return u
}

var (
	ServiceUUID    = VendorUUID(ServiceAlias)
	DataUUID       = VendorUUID(DataAlias)
	DeviceIDUUID   = VendorUUID(DeviceIDAlias)
	ResolutionUUID = VendorUUID(ResolutionAlias)
)
