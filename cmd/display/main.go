// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/relabs-tech/ble_imu/internal/app"
	"github.com/relabs-tech/ble_imu/internal/cmd"
)

func main() {
	cmd.Execute(cmd.New("display", "show the latest IMU on an SSD1306 panel (MQTT subscriber)",
		app.RunDisplay,
	))
}
