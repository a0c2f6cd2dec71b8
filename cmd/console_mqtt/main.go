// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"os"

	"github.com/relabs-tech/ble_imu/internal/app"
	"github.com/relabs-tech/ble_imu/internal/cmd"
	"github.com/relabs-tech/ble_imu/internal/config"
)

func main() {
	run := func(ctx context.Context, cfg *config.Config) error {
		return app.RunConsoleMQTT(ctx, cfg, os.Stdout)
	}
	cmd.Execute(cmd.New("console_mqtt", "print samples of every IMU on the broker",
		run,
		cmd.Flag{Name: "broker", Key: "MQTT_BROKER", Usage: "MQTT broker URL"},
	))
}
