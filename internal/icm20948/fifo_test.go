// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package icm20948

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/relabs-tech/ble_imu/internal/bus"
	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/sim"
	"github.com/relabs-tech/ble_imu/internal/stamp"
)

func TestBytesPerDatum(t *testing.T) {
	tests := []struct {
		accel, gyro, temp, mag bool
		want                   int
	}{
		{true, true, true, false, 14},
		{true, true, true, true, 20},
		{false, false, false, false, 0},
		{false, true, true, false, 8},
		{false, false, true, false, 2},
		{false, false, false, true, 6},
	}
	for _, tt := range tests {
		c := Config{AccelFIFO: tt.accel, GyroFIFO: tt.gyro, TempFIFO: tt.temp, MagFIFO: tt.mag}
		if got := c.BytesPerDatum(); got != tt.want {
			t.Errorf("BytesPerDatum(%+v) = %d, want %d", c, got, tt.want)
		}
	}
	if got := DefaultConfig.BytesPerDatum(); got != 14 {
		t.Errorf("default BytesPerDatum = %d, want 14", got)
	}
}

func TestComputeDivider(t *testing.T) {
	tests := map[uint16]byte{10: 109, 200: 4, 5: 219, 1100: 0, 7: 156}
	for rate, want := range tests {
		got, err := ComputeDivider(rate)
		if err != nil {
			t.Errorf("ComputeDivider(%d): %v", rate, err)
			continue
		}
		if got != want {
			t.Errorf("ComputeDivider(%d) = %d, want %d", rate, got, want)
		}
	}
	for _, rate := range []uint16{0, 4, 1101} {
		if _, err := ComputeDivider(rate); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("ComputeDivider(%d) = %v, want ErrInvalidRate", rate, err)
		}
	}
}

func TestDefaultConfigNames(t *testing.T) {
	c := DefaultConfig
	got := []string{c.AccelFS.String(), c.GyroFS.String(), c.MagFS.String(), c.AccelDLPF.String(), c.GyroDLPF.String()}
	want := []string{"4g", "2000dps", "4900uT", "246Hz", "197Hz"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d = %q, want %q", i, got[i], want[i])
		}
	}
	if c.Enable || c.MagFIFO || !c.AccelFIFO || !c.GyroFIFO || !c.TempFIFO || c.SampleRate != 10 {
		t.Errorf("DefaultConfig = %+v", c)
	}
	if GyroFilterNone.String() != "12106Hz_NOLPF" || AccelFilterNone.String() != "1209Hz_NOLPF" {
		t.Error("bypass filter names changed")
	}
}

func TestConfigureFIFO(t *testing.T) {
	d, s := newTestDevice(t, DefaultConfig)
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	checks := []struct {
		reg  byte
		want byte
	}{
		{0x10, 0x00},
		{0x11, BitRawData0RdyEn},
		{0x12, 0x00},
		{0x13, 0x00},
		{0x03, BitFIFOEnable},
		{0x66, 0x00},
		{0x67, BitAccelFIFOEn | BitGyroFIFOEn | BitTempFIFOEn},
	}
	for _, c := range checks {
		if v := s.Register(0, c.reg); v != c.want {
			t.Errorf("reg 0x%02X = 0x%02X, want 0x%02X", c.reg, v, c.want)
		}
	}
	if got := s.WritesTo(0, 0x68); !bytes.Equal(got, []byte{0x1F, 0x00}) {
		t.Errorf("FIFO_RST writes = % X, want 1F 00", got)
	}
}

func TestConfigureFIFOWithMag(t *testing.T) {
	cfg := DefaultConfig
	cfg.MagFIFO = true
	d, s := newTestDevice(t, cfg)
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	if v := s.Register(0, 0x66); v != BitSlv0FIFOEn {
		t.Errorf("FIFO_EN_1 = 0x%02X, want 0x01", v)
	}
}

func TestSetupWithoutFIFO(t *testing.T) {
	cfg := DefaultConfig
	cfg.AccelFIFO, cfg.GyroFIFO, cfg.TempFIFO = false, false, false
	d, s := newTestDevice(t, cfg)
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	if v := s.Register(0, 0x11); v != BitRawData0RdyEn {
		t.Errorf("INT_ENABLE_1 = 0x%02X, want 0x01", v)
	}
	if got := s.WritesTo(0, 0x03); len(got) != 0 {
		t.Errorf("USER_CTRL written without FIFO channels: % X", got)
	}
	var smp imu.Sample
	if _, err := d.DrainOneSample(&smp); !errors.Is(err, ErrNoChannels) {
		t.Errorf("DrainOneSample = %v, want ErrNoChannels", err)
	}
}

func awakeDevice(t *testing.T, cfg Config) (*Device, *sim.ICM20948) {
	t.Helper()
	d, s := newTestDevice(t, cfg)
	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := d.SetPower(true); err != nil {
		t.Fatal(err)
	}
	return d, s
}

func TestDrainOneSample(t *testing.T) {
	d, s := awakeDevice(t, DefaultConfig)
	if !s.Produce(sim.Reading{Accel: [3]int16{100, -200, 8192}, Gyro: [3]int16{-1, 2, -3}, Temp: 1335}) {
		t.Fatal("sim produced no record")
	}

	var got imu.Sample
	ok, err := d.DrainOneSample(&got)
	if err != nil || !ok {
		t.Fatalf("DrainOneSample = %v, %v", ok, err)
	}
	want := imu.Sample{
		Timestamp: 1234,
		Ax:        100, Ay: -200, Az: 8192,
		Gx: -1, Gy: 2, Gz: -3,
		Mx: 1, My: 2, Mz: 3,
		Temperature: 1335,
	}
	if got != want {
		t.Errorf("sample = %+v, want %+v", got, want)
	}
	if s.FIFOLen() != 0 {
		t.Errorf("FIFO holds %d bytes after drain", s.FIFOLen())
	}
	if st := d.Stats(); st.Samples != 1 || st.Resyncs != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDrainIncompleteRecord(t *testing.T) {
	d, s := awakeDevice(t, DefaultConfig)
	s.Push(make([]byte, 10)...)
	resets := s.FIFOResets()

	smp := imu.Sample{Ax: 42}
	ok, err := d.DrainOneSample(&smp)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("DrainOneSample reported a sample from 10 bytes")
	}
	if smp.Ax != 42 || smp.Timestamp != 0 {
		t.Errorf("incomplete drain touched the sample: %+v", smp)
	}
	if s.FIFOResets() != resets+1 || s.FIFOLen() != 0 {
		t.Errorf("FIFO resets = %d len = %d, want one reset and empty", s.FIFOResets()-resets, s.FIFOLen())
	}
	st := d.Stats()
	if st.IncompleteReads != 1 || st.Resyncs != 1 || st.DiscardedBytes != 10 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDrainEmptyFIFO(t *testing.T) {
	d, s := awakeDevice(t, DefaultConfig)
	resets := s.FIFOResets()
	var smp imu.Sample
	ok, err := d.DrainOneSample(&smp)
	if err != nil || ok {
		t.Fatalf("DrainOneSample = %v, %v, want false, nil", ok, err)
	}
	if s.FIFOResets() != resets {
		t.Error("empty FIFO was reset")
	}
}

func TestDrainBacklogResync(t *testing.T) {
	d, s := awakeDevice(t, DefaultConfig)
	s.Produce(sim.Reading{Accel: [3]int16{1, 1, 1}})
	s.Produce(sim.Reading{Accel: [3]int16{2, 2, 2}})
	s.Push(0xAA, 0xBB, 0xCC)

	var smp imu.Sample
	ok, err := d.DrainOneSample(&smp)
	if err != nil || !ok {
		t.Fatalf("DrainOneSample = %v, %v", ok, err)
	}
	if smp.Ax != 1 {
		t.Errorf("Ax = %d, want the oldest record", smp.Ax)
	}
	if s.FIFOLen() != 0 {
		t.Errorf("FIFO holds %d bytes, want reset to empty", s.FIFOLen())
	}
	if st := d.Stats(); st.DiscardedBytes != 17 || st.Resyncs != 1 {
		t.Errorf("stats = %+v, want 17 discarded in 1 resync", st)
	}
}

func TestDecodeChannelOrder(t *testing.T) {
	all := Config{AccelFIFO: true, GyroFIFO: true, TempFIFO: true, MagFIFO: true}
	block := []byte{
		0x00, 0x01, 0x00, 0x02, 0x00, 0x03, // accel
		0xFF, 0xFF, 0xFF, 0xFE, 0xFF, 0xFD, // gyro
		0x05, 0x37, // temp
		0x11, 0x11, 0x22, 0x22, 0x33, 0x33, // mag, not decoded
	}
	var s imu.Sample
	if err := Decode(all, block, &s); err != nil {
		t.Fatal(err)
	}
	if s.Ax != 1 || s.Az != 3 || s.Gx != -1 || s.Gz != -3 || s.Temperature != 0x0537 {
		t.Errorf("Decode = %+v", s)
	}
	if s.Mx != MagPlaceholderX || s.My != MagPlaceholderY || s.Mz != MagPlaceholderZ {
		t.Errorf("mag = %d %d %d, want placeholders", s.Mx, s.My, s.Mz)
	}

	gyroTemp := Config{GyroFIFO: true, TempFIFO: true}
	s = imu.Sample{}
	if err := Decode(gyroTemp, []byte{0x00, 0x07, 0x00, 0x08, 0x00, 0x09, 0x01, 0x00}, &s); err != nil {
		t.Fatal(err)
	}
	if s.Ax != 0 || s.Gx != 7 || s.Gz != 9 || s.Temperature != 256 {
		t.Errorf("Decode gyro+temp = %+v", s)
	}

	if err := Decode(all, block[:19], &s); !errors.Is(err, ErrShortBlock) {
		t.Errorf("Decode(19 bytes) = %v, want ErrShortBlock", err)
	}
}

func TestDrainWireTransactions(t *testing.T) {
	record := []byte{0x00, 0x10, 0x00, 0x20, 0x20, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x05, 0x37}
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x68, W: []byte{0x7F, 0x00}},
		{Addr: 0x68, W: []byte{0x70}, R: []byte{0x00, 0x0E}},
		{Addr: 0x68, W: []byte{0x72}, R: record},
	}}
	d, err := New(bus.New(pb), &Opts{
		Config: DefaultConfig,
		Clock:  stamp.ClockFunc(func() uint32 { return 99 }),
		Sleep:  func(time.Duration) {},
	})
	if err != nil {
		t.Fatal(err)
	}
	var smp imu.Sample
	ok, err := d.DrainOneSample(&smp)
	if err != nil || !ok {
		t.Fatalf("DrainOneSample = %v, %v", ok, err)
	}
	if smp.Ax != 0x10 || smp.Az != 0x2000 || smp.Timestamp != 99 {
		t.Errorf("sample = %+v", smp)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}
