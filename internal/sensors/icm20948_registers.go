// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strconv"
)

// BitField describes one field inside a register.
type BitField struct {
	Bits        string `json:"bits"` // "7" or "5:3"
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo is register metadata for the debug UI. Address is the banked
// address formatted as 0xBBRR.
type RegisterInfo struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// Addr parses the banked register address.
func (r RegisterInfo) Addr() uint16 {
	v, _ := strconv.ParseUint(r.Address, 0, 16)
	return uint16(v)
}

// FormatAddr renders a banked register address the way the map does.
func FormatAddr(reg uint16) string {
	return fmt.Sprintf("0x%04X", reg)
}

// ICM20948RegisterMap returns metadata for the ICM-20948 registers this
// firmware touches, bank 0 first.
func ICM20948RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		// Bank 0: identity and control
		{Address: "0x0000", Name: "WHO_AM_I", Description: "Device identity", Access: "R", Default: "0xEA"},
		{Address: "0x0003", Name: "USER_CTRL", Description: "User Control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "DMP_EN", Description: "Enable DMP", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "FIFO_EN", Description: "Enable FIFO operation", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "I2C_MST_EN", Description: "Enable I2C master", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4", Name: "I2C_IF_DIS", Description: "Reset and disable I2C slave", Values: "1=SPI only"},
				{Bits: "3", Name: "DMP_RST", Description: "Reset DMP", Values: "1=Reset"},
				{Bits: "2", Name: "SRAM_RST", Description: "Reset SRAM", Values: "1=Reset"},
				{Bits: "1", Name: "I2C_MST_RST", Description: "Reset I2C master", Values: "1=Reset"},
			}},
		{Address: "0x0005", Name: "LP_CONFIG", Description: "Low Power Configuration", Access: "RW", Default: "0x40",
			BitFields: []BitField{
				{Bits: "6", Name: "I2C_MST_CYCLE", Description: "I2C master duty cycled", Values: "0=Off, 1=On"},
				{Bits: "5", Name: "ACCEL_CYCLE", Description: "Accelerometer duty cycled", Values: "0=Off, 1=On"},
				{Bits: "4", Name: "GYRO_CYCLE", Description: "Gyroscope duty cycled", Values: "0=Off, 1=On"},
			}},
		{Address: "0x0006", Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW", Default: "0x41",
			BitFields: []BitField{
				{Bits: "7", Name: "DEVICE_RESET", Description: "Reset internal registers", Values: "1=Reset, self clearing"},
				{Bits: "6", Name: "SLEEP", Description: "Sleep mode", Values: "0=Awake, 1=Sleep"},
				{Bits: "5", Name: "LP_EN", Description: "Low power enable", Values: "0=Off, 1=On"},
				{Bits: "3", Name: "TEMP_DIS", Description: "Disable temperature sensor", Values: "0=Enabled, 1=Disabled"},
				{Bits: "2:0", Name: "CLKSEL", Description: "Clock source", Values: "0=20MHz internal, 1-5=Auto select, 7=Stop"},
			}},
		{Address: "0x0007", Name: "PWR_MGMT_2", Description: "Power Management 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:3", Name: "DISABLE_ACCEL", Description: "Disable accelerometer axes", Values: "7=All off, 0=All on"},
				{Bits: "2:0", Name: "DISABLE_GYRO", Description: "Disable gyroscope axes", Values: "7=All off, 0=All on"},
			}},

		// Bank 0: interrupts
		{Address: "0x000F", Name: "INT_PIN_CFG", Description: "INT Pin / Bypass Enable Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "INT1_ACTL", Description: "INT1 active low", Values: "0=Active high, 1=Active low"},
				{Bits: "6", Name: "INT1_OPEN", Description: "INT1 open drain", Values: "0=Push-pull, 1=Open drain"},
				{Bits: "5", Name: "INT1_LATCH_EN", Description: "Latch INT1", Values: "0=50us pulse, 1=Latch until cleared"},
				{Bits: "4", Name: "INT_ANYRD_2CLEAR", Description: "Clear on any read", Values: "0=Status read only, 1=Any read"},
				{Bits: "1", Name: "BYPASS_EN", Description: "I2C bypass enable", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x0010", Name: "INT_ENABLE", Description: "Interrupt Enable", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "REG_WOF_EN", Description: "Wake on FSYNC", Values: "0=Disabled, 1=Enabled"},
				{Bits: "3", Name: "WOM_INT_EN", Description: "Wake on Motion interrupt", Values: "0=Disabled, 1=Enabled"},
				{Bits: "1", Name: "DMP_INT1_EN", Description: "DMP interrupt", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "I2C_MST_INT_EN", Description: "I2C master interrupt", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x0011", Name: "INT_ENABLE_1", Description: "Interrupt Enable 1", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "0", Name: "RAW_DATA_0_RDY_EN", Description: "Raw data ready interrupt", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x0012", Name: "INT_ENABLE_2", Description: "Interrupt Enable 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:0", Name: "FIFO_OVERFLOW_EN", Description: "FIFO overflow interrupt", Values: "0=Disabled"},
			}},
		{Address: "0x0013", Name: "INT_ENABLE_3", Description: "Interrupt Enable 3", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:0", Name: "FIFO_WM_EN", Description: "FIFO watermark interrupt", Values: "0=Disabled"},
			}},
		{Address: "0x001A", Name: "INT_STATUS_1", Description: "Interrupt Status 1", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "0", Name: "RAW_DATA_0_RDY_INT", Description: "Raw data ready status"},
			}},

		// Bank 0: sensor data (read-only)
		{Address: "0x002D", Name: "ACCEL_XOUT_H", Description: "Accelerometer X-Axis High Byte", Access: "R"},
		{Address: "0x002E", Name: "ACCEL_XOUT_L", Description: "Accelerometer X-Axis Low Byte", Access: "R"},
		{Address: "0x002F", Name: "ACCEL_YOUT_H", Description: "Accelerometer Y-Axis High Byte", Access: "R"},
		{Address: "0x0030", Name: "ACCEL_YOUT_L", Description: "Accelerometer Y-Axis Low Byte", Access: "R"},
		{Address: "0x0031", Name: "ACCEL_ZOUT_H", Description: "Accelerometer Z-Axis High Byte", Access: "R"},
		{Address: "0x0032", Name: "ACCEL_ZOUT_L", Description: "Accelerometer Z-Axis Low Byte", Access: "R"},
		{Address: "0x0033", Name: "GYRO_XOUT_H", Description: "Gyroscope X-Axis High Byte", Access: "R"},
		{Address: "0x0034", Name: "GYRO_XOUT_L", Description: "Gyroscope X-Axis Low Byte", Access: "R"},
		{Address: "0x0035", Name: "GYRO_YOUT_H", Description: "Gyroscope Y-Axis High Byte", Access: "R"},
		{Address: "0x0036", Name: "GYRO_YOUT_L", Description: "Gyroscope Y-Axis Low Byte", Access: "R"},
		{Address: "0x0037", Name: "GYRO_ZOUT_H", Description: "Gyroscope Z-Axis High Byte", Access: "R"},
		{Address: "0x0038", Name: "GYRO_ZOUT_L", Description: "Gyroscope Z-Axis Low Byte", Access: "R"},
		{Address: "0x0039", Name: "TEMP_OUT_H", Description: "Temperature High Byte", Access: "R"},
		{Address: "0x003A", Name: "TEMP_OUT_L", Description: "Temperature Low Byte", Access: "R"},

		// Bank 0: FIFO
		{Address: "0x0066", Name: "FIFO_EN_1", Description: "FIFO Enable 1", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3", Name: "SLV_3_FIFO_EN", Description: "Route slave 3 data to FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "2", Name: "SLV_2_FIFO_EN", Description: "Route slave 2 data to FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "1", Name: "SLV_1_FIFO_EN", Description: "Route slave 1 data to FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "SLV_0_FIFO_EN", Description: "Route slave 0 (magnetometer) data to FIFO", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x0067", Name: "FIFO_EN_2", Description: "FIFO Enable 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4", Name: "ACCEL_FIFO_EN", Description: "Route accelerometer to FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "3", Name: "GYRO_Z_FIFO_EN", Description: "Route gyro Z to FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "2", Name: "GYRO_Y_FIFO_EN", Description: "Route gyro Y to FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "1", Name: "GYRO_X_FIFO_EN", Description: "Route gyro X to FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "TEMP_FIFO_EN", Description: "Route temperature to FIFO", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x0068", Name: "FIFO_RST", Description: "FIFO Reset", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:0", Name: "FIFO_RESET", Description: "Assert then deassert to reset", Values: "0x1F=Assert, 0x00=Release"},
			}},
		{Address: "0x0069", Name: "FIFO_MODE", Description: "FIFO Mode", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:0", Name: "FIFO_MODE", Description: "Behaviour when full", Values: "0=Stream, 1=Snapshot"},
			}},
		{Address: "0x0070", Name: "FIFO_COUNTH", Description: "FIFO Count High Byte", Access: "R"},
		{Address: "0x0071", Name: "FIFO_COUNTL", Description: "FIFO Count Low Byte", Access: "R"},
		{Address: "0x0074", Name: "DATA_RDY_STATUS", Description: "Data Ready Status", Access: "R",
			BitFields: []BitField{
				{Bits: "7", Name: "WOF_STATUS", Description: "Wake on FSYNC status"},
				{Bits: "3:0", Name: "RAW_DATA_RDY", Description: "Sensor registers updated"},
			}},
		{Address: "0x0076", Name: "FIFO_CFG", Description: "FIFO Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "0", Name: "FIFO_CFG", Description: "Interrupt per frame", Values: "0=Single, 1=Multiple"},
			}},

		// Bank 2: sensor configuration
		{Address: "0x0200", Name: "GYRO_SMPLRT_DIV", Description: "Gyroscope Sample Rate Divider", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "GYRO_SMPLRT_DIV", Description: "ODR = 1100 / (1 + GYRO_SMPLRT_DIV)", Values: "0-255"},
			}},
		{Address: "0x0201", Name: "GYRO_CONFIG_1", Description: "Gyroscope Configuration 1", Access: "RW", Default: "0x01",
			BitFields: []BitField{
				{Bits: "5:3", Name: "GYRO_DLPFCFG", Description: "Gyro low pass filter", Values: "0=197Hz, 1=152Hz, 2=120Hz, 3=51Hz, 4=24Hz, 5=12Hz, 6=6Hz, 7=361Hz"},
				{Bits: "2:1", Name: "GYRO_FS_SEL", Description: "Gyro Full Scale Range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
				{Bits: "0", Name: "GYRO_FCHOICE", Description: "Gyro DLPF enable", Values: "0=Bypass, 1=DLPF enabled"},
			}},
		{Address: "0x0202", Name: "GYRO_CONFIG_2", Description: "Gyroscope Configuration 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:3", Name: "XYZGYRO_CTEN", Description: "Gyro self-test", Values: "0=Disabled"},
				{Bits: "2:0", Name: "GYRO_AVGCFG", Description: "Averaging filter in low power mode", Values: "0=1x ... 7=128x"},
			}},
		{Address: "0x0210", Name: "ACCEL_SMPLRT_DIV_1", Description: "Accelerometer Sample Rate Divider MSB", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3:0", Name: "ACCEL_SMPLRT_DIV", Description: "Divider bits 11:8", Values: "0-15"},
			}},
		{Address: "0x0211", Name: "ACCEL_SMPLRT_DIV_2", Description: "Accelerometer Sample Rate Divider LSB", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "ACCEL_SMPLRT_DIV", Description: "Divider bits 7:0", Values: "0-255"},
			}},
		{Address: "0x0214", Name: "ACCEL_CONFIG", Description: "Accelerometer Configuration", Access: "RW", Default: "0x01",
			BitFields: []BitField{
				{Bits: "5:3", Name: "ACCEL_DLPFCFG", Description: "Accel low pass filter", Values: "0=246Hz, 1=246Hz, 2=111Hz, 3=50Hz, 4=24Hz, 5=12Hz, 6=6Hz, 7=473Hz"},
				{Bits: "2:1", Name: "ACCEL_FS_SEL", Description: "Accel Full Scale Range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
				{Bits: "0", Name: "ACCEL_FCHOICE", Description: "Accel DLPF enable", Values: "0=Bypass, 1=DLPF enabled"},
			}},
		{Address: "0x0215", Name: "ACCEL_CONFIG_2", Description: "Accelerometer Configuration 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:2", Name: "AX_ST_EN_REG", Description: "Accel self-test", Values: "0=Disabled"},
				{Bits: "1:0", Name: "DEC3_CFG", Description: "Averaging in low power mode", Values: "0=1-4x, 3=32x"},
			}},
	}
}
