// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package icm20948

// Logical register addresses. The high byte selects the user bank, the low
// byte is the register offset inside that bank.
const (
	// Bank 0
	RegWhoAmI        uint16 = 0x0000
	RegUserCtrl      uint16 = 0x0003
	RegLPConfig      uint16 = 0x0005
	RegPwrMgmt1      uint16 = 0x0006
	RegPwrMgmt2      uint16 = 0x0007
	RegIntPinCfg     uint16 = 0x000F
	RegIntEnable     uint16 = 0x0010
	RegIntEnable1    uint16 = 0x0011
	RegIntEnable2    uint16 = 0x0012
	RegIntEnable3    uint16 = 0x0013
	RegIntStatus1    uint16 = 0x001A
	RegAccelXOutH    uint16 = 0x002D
	RegGyroXOutH     uint16 = 0x0033
	RegTempOutH      uint16 = 0x0039
	RegExtSensData00 uint16 = 0x003B
	RegFIFOEn1       uint16 = 0x0066
	RegFIFOEn2       uint16 = 0x0067
	RegFIFORst       uint16 = 0x0068
	RegFIFOMode      uint16 = 0x0069
	RegFIFOCountH    uint16 = 0x0070
	RegFIFOCountL    uint16 = 0x0071
	RegFIFORW        uint16 = 0x0072
	RegDataRdyStatus uint16 = 0x0074
	RegFIFOCfg       uint16 = 0x0076

	// Bank 2
	RegGyroSmplrtDiv   uint16 = 0x0200
	RegGyroConfig1     uint16 = 0x0201
	RegGyroConfig2     uint16 = 0x0202
	RegAccelSmplrtDiv1 uint16 = 0x0210
	RegAccelSmplrtDiv2 uint16 = 0x0211
	RegAccelConfig     uint16 = 0x0214
	RegAccelConfig2    uint16 = 0x0215

	// Bank select, present at offset 0x7F in every bank.
	RegBankSel byte = 0x7F
)

// Register bits.
const (
	WhoAmIValue byte = 0xEA

	BitDeviceReset byte = 0x80 // PWR_MGMT_1
	BitSleep       byte = 0x40 // PWR_MGMT_1
	clkselMask     byte = 0xF8
	clkselAuto     byte = 0x01

	BitFIFOEnable byte = 0x40 // USER_CTRL

	BitRawData0RdyEn byte = 0x01 // INT_ENABLE_1

	BitSlv0FIFOEn  byte = 0x01 // FIFO_EN_1
	BitTempFIFOEn  byte = 0x01 // FIFO_EN_2
	BitGyroFIFOEn  byte = 0x0E // FIFO_EN_2, X Y Z
	BitAccelFIFOEn byte = 0x10 // FIFO_EN_2

	fifoResetAll byte = 0x1F

	dlpfKeepMask byte = 0xC6 // clears FCHOICE and DLPFCFG
	dlpfEnable   byte = 0x01
	fsKeepMask   byte = 0xF9 // clears FS_SEL
)

// DefaultAddr is the bus address with AD0 low.
const DefaultAddr uint16 = 0x68

// AltAddr is the bus address with AD0 high.
const AltAddr uint16 = 0x69
