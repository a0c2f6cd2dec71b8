// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/relabs-tech/ble_imu/internal/app"
	"github.com/relabs-tech/ble_imu/internal/cmd"
)

func main() {
	cmd.Execute(cmd.New("register_debug", "ICM-20948 register debug tool (standalone)",
		app.RunRegisterDebug,
		cmd.Flag{Name: "simulate", Key: "SIMULATE", Usage: "use the emulated sensor", Bool: true},
		cmd.Flag{Name: "writable", Key: "REGISTER_DEBUG_WRITABLE", Usage: "registers that may be written, e.g. 0x0214,0x0200-0x0202"},
		cmd.Flag{Name: "port", Key: "WEB_SERVER_PORT", Usage: "listen port"},
	))
}
