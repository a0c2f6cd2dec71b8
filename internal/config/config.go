// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/ble_imu/internal/icm20948"
)

// EnvPrefix is prepended to every key when it is read from the environment,
// e.g. BLEIMU_MQTT_BROKER.
const EnvPrefix = "BLEIMU"

// Config holds all application configuration values.
type Config struct {
	// I2C bus and sensor wiring
	I2CBus      string `yaml:"i2c_bus"`
	I2CSpeedKHz int    `yaml:"i2c_speed_khz"`
	IMUI2CAddr  uint16 `yaml:"imu_i2c_addr"`
	IMUIntPin   string `yaml:"imu_int_pin"` // empty: poll on IMUPollIntervalUS

	IMUPollIntervalUS int `yaml:"imu_poll_interval_us"`

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte `yaml:"imu_accel_range"`
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte `yaml:"imu_gyro_range"`

	// Low pass filters, 0-7 or 8 for bypass
	IMUAccelDLPF byte `yaml:"imu_accel_dlpf"`
	IMUGyroDLPF  byte `yaml:"imu_gyro_dlpf"`

	IMUSampleRateHz uint16 `yaml:"imu_sample_rate_hz"` // 5-1100

	// FIFO channel routing
	IMUFIFOAccel bool `yaml:"imu_fifo_accel"`
	IMUFIFOGyro  bool `yaml:"imu_fifo_gyro"`
	IMUFIFOTemp  bool `yaml:"imu_fifo_temp"`
	IMUFIFOMag   bool `yaml:"imu_fifo_mag"`

	IMUIdentityRetries int `yaml:"imu_identity_retries"`

	// DeviceID overrides the id derived from /etc/machine-id.
	DeviceID string `yaml:"device_id"`
	Simulate bool   `yaml:"simulate"`
	LogLevel string `yaml:"log_level"`

	// BLE
	BLEEnabled bool   `yaml:"ble_enabled"`
	BLEName    string `yaml:"ble_name"`

	// MQTT
	MQTTEnabled         bool   `yaml:"mqtt_enabled"`
	MQTTBroker          string `yaml:"mqtt_broker"`
	MQTTClientID        string `yaml:"mqtt_client_id"`
	MQTTClientIDConsole string `yaml:"mqtt_client_id_console"`
	MQTTClientIDDisplay string `yaml:"mqtt_client_id_display"`
	MQTTTopicPrefix     string `yaml:"mqtt_topic_prefix"`
	MQTTBinary          bool   `yaml:"mqtt_binary"`

	// Serial (peripheral side)
	SerialEnabled  bool   `yaml:"serial_enabled"`
	SerialPort     string `yaml:"serial_port"`
	SerialBaudRate int    `yaml:"serial_baud_rate"`

	// Central relay
	CentralTarget      string `yaml:"central_target"` // advertised name to connect to
	CentralPort        string `yaml:"central_port"`
	CentralBaudRate    int    `yaml:"central_baud_rate"`
	CentralScanTimeout int    `yaml:"central_scan_timeout"` // seconds

	// Web Server
	WebServerPort int `yaml:"web_server_port"`

	// Display
	DisplayEnabled        bool   `yaml:"display_enabled"`
	DisplayI2CAddr        uint16 `yaml:"display_i2c_addr"`
	DisplayUpdateInterval int    `yaml:"display_update_interval"` // milliseconds

	// Register debug tool: comma separated addresses or ranges, e.g.
	// "0x0206-0x0207,0x0214". Empty disables writes.
	RegisterDebugWritable string `yaml:"register_debug_writable"`
}

// Keys lists every recognised configuration key.
var Keys = []string{
	"I2C_BUS", "I2C_SPEED_KHZ", "IMU_I2C_ADDR", "IMU_INT_PIN", "IMU_POLL_INTERVAL_US",
	"IMU_ACCEL_RANGE", "IMU_GYRO_RANGE", "IMU_ACCEL_DLPF", "IMU_GYRO_DLPF", "IMU_SAMPLE_RATE_HZ",
	"IMU_FIFO_ACCEL", "IMU_FIFO_GYRO", "IMU_FIFO_TEMP", "IMU_FIFO_MAG", "IMU_IDENTITY_RETRIES",
	"DEVICE_ID", "SIMULATE", "LOG_LEVEL",
	"BLE_ENABLED", "BLE_NAME",
	"MQTT_ENABLED", "MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_CLIENT_ID_CONSOLE", "MQTT_CLIENT_ID_DISPLAY",
	"MQTT_TOPIC_PREFIX", "MQTT_BINARY",
	"SERIAL_ENABLED", "SERIAL_PORT", "SERIAL_BAUD_RATE",
	"CENTRAL_TARGET", "CENTRAL_PORT", "CENTRAL_BAUD_RATE", "CENTRAL_SCAN_TIMEOUT",
	"WEB_SERVER_PORT",
	"DISPLAY_ENABLED", "DISPLAY_I2C_ADDR", "DISPLAY_UPDATE_INTERVAL",
	"REGISTER_DEBUG_WRITABLE",
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		I2CBus:                "1",
		I2CSpeedKHz:           400,
		IMUI2CAddr:            icm20948.DefaultAddr,
		IMUPollIntervalUS:     1000,
		IMUAccelRange:         byte(icm20948.DefaultConfig.AccelFS),
		IMUGyroRange:          byte(icm20948.DefaultConfig.GyroFS),
		IMUAccelDLPF:          byte(icm20948.DefaultConfig.AccelDLPF),
		IMUGyroDLPF:           byte(icm20948.DefaultConfig.GyroDLPF),
		IMUSampleRateHz:       icm20948.DefaultConfig.SampleRate,
		IMUFIFOAccel:          true,
		IMUFIFOGyro:           true,
		IMUFIFOTemp:           true,
		IMUIdentityRetries:    10,
		LogLevel:              "info",
		BLEEnabled:            true,
		BLEName:               "BLE-IMU",
		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientID:          "ble-imu-peripheral",
		MQTTClientIDConsole:   "ble-imu-console",
		MQTTClientIDDisplay:   "ble-imu-display",
		MQTTTopicPrefix:       "ble_imu",
		SerialPort:            "/dev/ttyGS0",
		SerialBaudRate:        115200,
		CentralTarget:         "BLE-IMU",
		CentralPort:           "/dev/ttyACM0",
		CentralBaudRate:       115200,
		CentralScanTimeout:    30,
		WebServerPort:         8080,
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,
	}
}

// Load reads the configuration file at configPath (KEY=VALUE lines, '#'
// comments) through v and overlays BLEIMU_* environment variables and any
// flags bound to v. An empty configPath uses defaults and environment only.
func Load(configPath string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	for _, k := range v.AllKeys() {
		if !isKey(strings.ToUpper(k)) {
			return nil, fmt.Errorf("unknown config key: %q", strings.ToUpper(k))
		}
	}

	cfg := Default()
	for _, key := range Keys {
		if !v.IsSet(key) {
			continue
		}
		if err := cfg.setValue(key, strings.TrimSpace(v.GetString(key))); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

func parseRange(key, value string, max int, help string) (byte, error) {
	val, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if val < 0 || val > max {
		return 0, fmt.Errorf("%s must be 0-%d%s, got %d", key, max, help, val)
	}
	return byte(val), nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return uint16(addr), nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// I2C
	case "I2C_BUS":
		c.I2CBus = value
	case "I2C_SPEED_KHZ":
		c.I2CSpeedKHz, err = parseInt(key, value)
	case "IMU_I2C_ADDR":
		c.IMUI2CAddr, err = parseAddr(key, value)
	case "IMU_INT_PIN":
		c.IMUIntPin = value
	case "IMU_POLL_INTERVAL_US":
		c.IMUPollIntervalUS, err = parseInt(key, value)

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		c.IMUAccelRange, err = parseRange(key, value, 3, " (0=±2g, 1=±4g, 2=±8g, 3=±16g)")
	case "IMU_GYRO_RANGE":
		c.IMUGyroRange, err = parseRange(key, value, 3, " (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s)")
	case "IMU_ACCEL_DLPF":
		c.IMUAccelDLPF, err = parseRange(key, value, int(icm20948.AccelFilterNone), " (8=bypass)")
	case "IMU_GYRO_DLPF":
		c.IMUGyroDLPF, err = parseRange(key, value, int(icm20948.GyroFilterNone), " (8=bypass)")
	case "IMU_SAMPLE_RATE_HZ":
		rate, perr := parseInt(key, value)
		if perr != nil {
			return perr
		}
		if rate < icm20948.MinSampleRate || rate > icm20948.MaxSampleRate {
			return fmt.Errorf("IMU_SAMPLE_RATE_HZ must be %d-%d, got %d", icm20948.MinSampleRate, icm20948.MaxSampleRate, rate)
		}
		c.IMUSampleRateHz = uint16(rate)

	// FIFO
	case "IMU_FIFO_ACCEL":
		c.IMUFIFOAccel, err = parseBool(key, value)
	case "IMU_FIFO_GYRO":
		c.IMUFIFOGyro, err = parseBool(key, value)
	case "IMU_FIFO_TEMP":
		c.IMUFIFOTemp, err = parseBool(key, value)
	case "IMU_FIFO_MAG":
		c.IMUFIFOMag, err = parseBool(key, value)
	case "IMU_IDENTITY_RETRIES":
		c.IMUIdentityRetries, err = parseInt(key, value)

	case "DEVICE_ID":
		c.DeviceID = value
	case "SIMULATE":
		c.Simulate, err = parseBool(key, value)
	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	// BLE
	case "BLE_ENABLED":
		c.BLEEnabled, err = parseBool(key, value)
	case "BLE_NAME":
		c.BLEName = value

	// MQTT
	case "MQTT_ENABLED":
		c.MQTTEnabled, err = parseBool(key, value)
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = strings.TrimSuffix(value, "/")
	case "MQTT_BINARY":
		c.MQTTBinary, err = parseBool(key, value)

	// Serial
	case "SERIAL_ENABLED":
		c.SerialEnabled, err = parseBool(key, value)
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)

	// Central
	case "CENTRAL_TARGET":
		c.CentralTarget = value
	case "CENTRAL_PORT":
		c.CentralPort = value
	case "CENTRAL_BAUD_RATE":
		c.CentralBaudRate, err = parseInt(key, value)
	case "CENTRAL_SCAN_TIMEOUT":
		c.CentralScanTimeout, err = parseInt(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)
	case "DISPLAY_I2C_ADDR":
		c.DisplayI2CAddr, err = parseAddr(key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	case "REGISTER_DEBUG_WRITABLE":
		if _, perr := ParseWritable(value); perr != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_WRITABLE: %w", perr)
		}
		c.RegisterDebugWritable = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.I2CBus == "" && !c.Simulate {
		return fmt.Errorf("I2C_BUS is required")
	}
	if c.IMUPollIntervalUS <= 0 {
		return fmt.Errorf("IMU_POLL_INTERVAL_US must be positive")
	}
	if c.IMUIdentityRetries < 1 {
		return fmt.Errorf("IMU_IDENTITY_RETRIES must be at least 1")
	}
	if c.MQTTEnabled && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required when MQTT_ENABLED=true")
	}
	if c.SerialEnabled {
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SERIAL_ENABLED=true")
		}
		if c.SerialBaudRate <= 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE must be positive")
		}
	}
	if c.BLEEnabled && c.BLEName == "" {
		return fmt.Errorf("BLE_NAME is required when BLE_ENABLED=true")
	}
	if c.DisplayEnabled && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive")
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.LogLevel)
	}
	return c.ChipConfig().Validate()
}

// ChipConfig returns the sensor configuration described by c. The sensor
// starts asleep; Enable is set when the first consumer subscribes.
func (c *Config) ChipConfig() icm20948.Config {
	return icm20948.Config{
		AccelFS:    icm20948.AccelFullScale(c.IMUAccelRange),
		GyroFS:     icm20948.GyroFullScale(c.IMUGyroRange),
		MagFS:      icm20948.Mag4900UT,
		AccelFIFO:  c.IMUFIFOAccel,
		GyroFIFO:   c.IMUFIFOGyro,
		TempFIFO:   c.IMUFIFOTemp,
		MagFIFO:    c.IMUFIFOMag,
		SampleRate: c.IMUSampleRateHz,
		AccelDLPF:  icm20948.AccelFilter(c.IMUAccelDLPF),
		GyroDLPF:   icm20948.GyroFilter(c.IMUGyroDLPF),
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// InitGlobal initializes the global configuration from file and v.
// Only the first call has any effect.
func InitGlobal(configPath string, v *viper.Viper) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath, v)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
