// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relabs-tech/ble_imu/internal/config"
)

// The configuration is a process-wide singleton, so a single test
// covers loading, flag binding and print-config.
func TestPrintConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ble_imu_config.txt")
	if err := os.WriteFile(path, []byte("BLE_NAME=Bench\nSIMULATE=false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ran := false
	root := New("test", "test tool", func(context.Context, *config.Config) error {
		ran = true
		return nil
	}, Flag{Name: "simulate", Key: "SIMULATE", Bool: true})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"print-config", "--config", path, "--simulate", "--log-level", "debug"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("print-config ran the tool")
	}
	text := out.String()
	for _, want := range []string{"ble_name: Bench", "simulate: true", "log_level: debug"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}
