// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/ble_imu/internal/icm20948"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ble_imu_config.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `# sensor
I2C_BUS=2
IMU_I2C_ADDR=0x69
IMU_ACCEL_RANGE=3
IMU_GYRO_DLPF=8
IMU_SAMPLE_RATE_HZ=200
IMU_FIFO_TEMP=false
MQTT_ENABLED=true
MQTT_BROKER=tcp://broker:1883
MQTT_TOPIC_PREFIX=lab/
REGISTER_DEBUG_WRITABLE=0x0206-0x0207,0x0214
`)
	cfg, err := Load(path, viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.I2CBus != "2" || cfg.IMUI2CAddr != 0x69 || cfg.IMUAccelRange != 3 || cfg.IMUSampleRateHz != 200 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.IMUFIFOTemp || !cfg.IMUFIFOAccel {
		t.Errorf("FIFO routing = accel %v temp %v", cfg.IMUFIFOAccel, cfg.IMUFIFOTemp)
	}
	if cfg.MQTTTopicPrefix != "lab" {
		t.Errorf("MQTTTopicPrefix = %q", cfg.MQTTTopicPrefix)
	}
	chip := cfg.ChipConfig()
	if chip.AccelFS != icm20948.Accel16G || chip.GyroDLPF != icm20948.GyroFilterNone || chip.Enable {
		t.Errorf("ChipConfig = %+v", chip)
	}
	w := cfg.Writable()
	if !w.Allows(0x0206) || !w.Allows(0x0214) || w.Allows(0x0006) {
		t.Errorf("Writable = %v", w)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("", viper.New())
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
	if cfg.ChipConfig() != icm20948.DefaultConfig {
		t.Errorf("default chip config = %+v", cfg.ChipConfig())
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "BLE_NAME=from-file\n")
	t.Setenv("BLEIMU_BLE_NAME", "from-env")
	t.Setenv("BLEIMU_SIMULATE", "true")
	cfg, err := Load(path, viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BLEName != "from-env" || !cfg.Simulate {
		t.Errorf("BLEName = %q Simulate = %v", cfg.BLEName, cfg.Simulate)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "IMU_LEFT_SPI_DEVICE=/dev/spidev0.0\n", "unknown config key"},
		{"accel range", "IMU_ACCEL_RANGE=4\n", "IMU_ACCEL_RANGE must be 0-3"},
		{"gyro dlpf", "IMU_GYRO_DLPF=9\n", "IMU_GYRO_DLPF must be 0-8"},
		{"rate low", "IMU_SAMPLE_RATE_HZ=4\n", "IMU_SAMPLE_RATE_HZ must be 5-1100"},
		{"rate word", "IMU_SAMPLE_RATE_HZ=fast\n", "invalid IMU_SAMPLE_RATE_HZ"},
		{"bool", "MQTT_ENABLED=maybe\n", "invalid MQTT_ENABLED"},
		{"address", "IMU_I2C_ADDR=zz\n", "invalid IMU_I2C_ADDR"},
		{"writable", "REGISTER_DEBUG_WRITABLE=0x10-0x01\n", "reversed"},
		{"serial", "SERIAL_ENABLED=true\nSERIAL_PORT=\n", "SERIAL_PORT is required"},
		{"mqtt", "MQTT_ENABLED=true\nMQTT_BROKER=\n", "MQTT_BROKER is required"},
		{"retries", "IMU_IDENTITY_RETRIES=0\n", "at least 1"},
		{"log level", "LOG_LEVEL=loud\n", "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), viper.New())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.txt"), nil); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestParseWritable(t *testing.T) {
	w, err := ParseWritable(" 0x0010 , 0x0200-0x0203 ")
	if err != nil {
		t.Fatal(err)
	}
	for reg, want := range map[uint16]bool{0x10: true, 0x11: false, 0x200: true, 0x203: true, 0x204: false} {
		if w.Allows(reg) != want {
			t.Errorf("Allows(0x%04X) = %v, want %v", reg, !want, want)
		}
	}
	empty, err := ParseWritable("")
	if err != nil || empty.Allows(0) {
		t.Errorf("empty set = %v, %v", empty, err)
	}
	if _, err := ParseWritable("0x10000"); err == nil {
		t.Error("out of range address accepted")
	}
}

func TestYAML(t *testing.T) {
	out, err := Default().YAML()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if m["ble_name"] != "BLE-IMU" || m["imu_sample_rate_hz"] != 10 {
		t.Errorf("yaml = %s", out)
	}
}
