// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ble_imu/internal/config"
	"github.com/relabs-tech/ble_imu/internal/imu"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 12
)

// DisplayData holds the latest device state for the panel.
type DisplayData struct {
	mu sync.RWMutex

	deviceID   uint32
	status     string
	resolution imu.Resolution
	haveRes    bool
	sample     imu.Sample
	haveSample bool
	samples    uint64
}

// displaySnapshot is a lock-free copy of DisplayData for rendering.
type displaySnapshot struct {
	DeviceID   uint32
	Status     string
	Resolution imu.Resolution
	HaveRes    bool
	Sample     imu.Sample
	HaveSample bool
	Samples    uint64
}

func (d *DisplayData) snapshot() displaySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return displaySnapshot{
		DeviceID:   d.deviceID,
		Status:     d.status,
		Resolution: d.resolution,
		HaveRes:    d.haveRes,
		Sample:     d.sample,
		HaveSample: d.haveSample,
		Samples:    d.samples,
	}
}

// follow switches the panel to topic's device when it differs. Returns
// false for topics outside prefix.
func (d *DisplayData) follow(prefix, topic string) bool {
	id, ok := deviceFromTopic(prefix, topic)
	if !ok {
		return false
	}
	if id != d.deviceID {
		d.deviceID = id
		d.status = ""
		d.haveRes = false
		d.haveSample = false
		d.samples = 0
	}
	return true
}

func (d *DisplayData) onSample(prefix string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		s, err := decodeSamplePayload(msg.Payload())
		if err != nil {
			log.WithError(err).Debug("display: sample decode error")
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.follow(prefix, msg.Topic()) {
			d.sample, d.haveSample = s, true
			d.samples++
		}
	}
}

func (d *DisplayData) onResolution(prefix string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var r imu.Resolution
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.WithError(err).Debug("display: resolution decode error")
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.follow(prefix, msg.Topic()) {
			d.resolution, d.haveRes = r, true
		}
	}
}

func (d *DisplayData) onStatus(prefix string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.follow(prefix, msg.Topic()) {
			d.status = string(msg.Payload())
		}
	}
}

// Full-scale labels indexed by selector.
var (
	accelLabels = [4]string{"2g", "4g", "8g", "16g"}
	gyroLabels  = [4]string{"250", "500", "1000", "2000"}
)

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawLines(drawer *font.Drawer, lines ...string) {
	for i, l := range lines {
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawString(l)
	}
}

// renderStatus draws the panel for one snapshot.
func renderStatus(s displaySnapshot) *image1bit.VerticalLSB {
	img, drawer := newCanvas()
	if s.DeviceID == 0 {
		drawLines(drawer, "BLE IMU", "Waiting for", "device...")
		return img
	}

	status := s.Status
	if status == "" {
		status = "?"
	}
	lines := []string{fmt.Sprintf("%08X %s", s.DeviceID, status)}
	if s.HaveRes {
		lines = append(lines, fmt.Sprintf("FS %s %sdps", accelLabels[s.Resolution.Accel&3], gyroLabels[s.Resolution.Gyro&3]))
	} else {
		lines = append(lines, "FS ?")
	}
	if !s.HaveSample {
		lines = append(lines, "Idle")
		drawLines(drawer, lines...)
		return img
	}
	lines = append(lines,
		fmt.Sprintf("A%6d%6d%6d", s.Sample.Ax, s.Sample.Ay, s.Sample.Az),
		fmt.Sprintf("G%6d%6d%6d", s.Sample.Gx, s.Sample.Gy, s.Sample.Gz),
	)
	drawLines(drawer, lines...)
	return img
}

// panelBus steers the driver's fixed 0x3C address to the configured one.
type panelBus struct {
	i2c.Bus
	addr uint16
}

func (b *panelBus) Tx(_ uint16, w, r []byte) error { return b.Bus.Tx(b.addr, w, r) }

func showSplash(dev *ssd1306.Dev) error {
	img, drawer := newCanvas()
	drawer.Dot = fixed.P(35, 26)
	drawer.DrawString("BLE-IMU")
	drawer.Dot = fixed.P(10, 43)
	drawer.DrawString("Relabs Tech")
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// RunDisplay shows the most recently heard device on an SSD1306 panel.
func RunDisplay(ctx context.Context, cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.I2CBus, err)
	}
	defer bus.Close()

	opts := ssd1306.DefaultOpts
	dev, err := ssd1306.NewI2C(&panelBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &opts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Infof("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.WithError(err).Warn("display: error showing splash")
	}

	data := &DisplayData{}

	mo := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)
	client := mqtt.NewClient(mo)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.WithField("broker", cfg.MQTTBroker).Info("display: connected to MQTT broker")

	prefix := cfg.MQTTTopicPrefix
	subs := map[string]mqtt.MessageHandler{
		prefix + "/+/sample":     data.onSample(prefix),
		prefix + "/+/resolution": data.onResolution(prefix),
		prefix + "/+/status":     data.onStatus(prefix),
	}
	for topic, h := range subs {
		token := client.Subscribe(topic, 0, h)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.WithField("topic", topic).Info("display: subscribed")
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Info("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			img := renderStatus(data.snapshot())
			if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
				log.WithError(err).Warn("display: error updating panel")
			}
		}
	}
}
