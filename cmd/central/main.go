// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/relabs-tech/ble_imu/internal/app"
	"github.com/relabs-tech/ble_imu/internal/cmd"
)

func main() {
	cmd.Execute(cmd.New("central", "relay a BLE IMU peripheral to a USB serial port",
		app.RunCentral,
		cmd.Flag{Name: "target", Key: "CENTRAL_TARGET", Usage: "advertised name of the peripheral"},
		cmd.Flag{Name: "port", Key: "CENTRAL_PORT", Usage: "host serial port"},
	))
}
