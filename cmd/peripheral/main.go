// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/relabs-tech/ble_imu/internal/app"
	"github.com/relabs-tech/ble_imu/internal/cmd"
)

func main() {
	cmd.Execute(cmd.New("peripheral", "stream ICM-20948 samples over BLE, MQTT, serial and websocket",
		app.RunPeripheral,
		cmd.Flag{Name: "simulate", Key: "SIMULATE", Usage: "use the emulated sensor instead of the I2C bus", Bool: true},
		cmd.Flag{Name: "device-id", Key: "DEVICE_ID", Usage: "override the device id (hex)"},
		cmd.Flag{Name: "port", Key: "WEB_SERVER_PORT", Usage: "web server port, 0 disables"},
	))
}
