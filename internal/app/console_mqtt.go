// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ble_imu/internal/config"
	"github.com/relabs-tech/ble_imu/internal/imu"
	imumqtt "github.com/relabs-tech/ble_imu/internal/transport/mqtt"
)

// decodeSamplePayload accepts the JSON or packed binary sample layout.
func decodeSamplePayload(p []byte) (imu.Sample, error) {
	var s imu.Sample
	if len(p) == imu.SampleSize && p[0] != '{' {
		err := s.UnmarshalBinary(p)
		return s, err
	}
	err := json.Unmarshal(p, &s)
	return s, err
}

// deviceFromTopic extracts the device id segment of <prefix>/<id>/...
func deviceFromTopic(prefix, topic string) (uint32, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return 0, false
	}
	seg, _, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseUint(seg, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// FormatSampleLine renders one sample for the console.
func FormatSampleLine(s imu.Sample) string {
	return fmt.Sprintf(
		"[IMU %08X] t=%10d  ax=%6d ay=%6d az=%6d  gx=%6d gy=%6d gz=%6d  mx=%6d my=%6d mz=%6d  temp=%6d\n",
		s.DeviceID, s.Timestamp, s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.Mx, s.My, s.Mz, s.Temperature,
	)
}

// console subscribes to every device announced under a prefix.
type console struct {
	client mqtt.Client
	prefix string
	out    io.Writer

	mu      sync.Mutex
	devices map[uint32]bool
}

func newConsole(c mqtt.Client, prefix string, out io.Writer) *console {
	return &console{client: c, prefix: strings.TrimSuffix(prefix, "/"), out: out, devices: map[uint32]bool{}}
}

func (c *console) subscribe() error {
	subs := map[string]mqtt.MessageHandler{
		c.prefix + "/+/deviceid":   c.onDeviceID,
		c.prefix + "/+/sample":     c.onSample,
		c.prefix + "/+/resolution": c.onResolution,
		c.prefix + "/+/status":     c.onStatus,
	}
	for topic, h := range subs {
		token := c.client.Subscribe(topic, 1, h)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		log.WithField("topic", topic).Info("console: subscribed")
	}
	return nil
}

func (c *console) notify(id uint32, on bool) {
	payload := "0"
	if on {
		payload = "1"
	}
	topic := imumqtt.TopicsFor(c.prefix, id).Notify
	token := c.client.Publish(topic, 1, false, []byte(payload))
	if !token.WaitTimeout(time.Second) || token.Error() != nil {
		log.WithError(token.Error()).WithField("topic", topic).Warn("console: notify request failed")
	}
}

func (c *console) onDeviceID(_ mqtt.Client, msg mqtt.Message) {
	id, err := strconv.ParseUint(strings.TrimSpace(string(msg.Payload())), 16, 32)
	if err != nil {
		log.WithError(err).Warn("console: bad device id")
		return
	}
	c.mu.Lock()
	seen := c.devices[uint32(id)]
	c.devices[uint32(id)] = true
	c.mu.Unlock()
	if seen {
		return
	}
	fmt.Fprintf(c.out, "[DEV %08X] found, requesting samples\n", id)
	c.notify(uint32(id), true)
}

func (c *console) onSample(_ mqtt.Client, msg mqtt.Message) {
	s, err := decodeSamplePayload(msg.Payload())
	if err != nil {
		log.WithError(err).Warn("console: sample decode error")
		return
	}
	fmt.Fprint(c.out, FormatSampleLine(s))
}

func (c *console) onResolution(_ mqtt.Client, msg mqtt.Message) {
	var r imu.Resolution
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		log.WithError(err).Warn("console: resolution decode error")
		return
	}
	id, _ := deviceFromTopic(c.prefix, msg.Topic())
	fmt.Fprintf(c.out, "[RES %08X] accel=%d gyro=%d\n", id, r.Accel, r.Gyro)
}

func (c *console) onStatus(_ mqtt.Client, msg mqtt.Message) {
	id, _ := deviceFromTopic(c.prefix, msg.Topic())
	fmt.Fprintf(c.out, "[DEV %08X] %s\n", id, msg.Payload())
}

// release asks every known device to stop streaming.
func (c *console) release() {
	c.mu.Lock()
	ids := make([]uint32, 0, len(c.devices))
	for id := range c.devices {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.notify(id, false)
	}
}

// RunConsoleMQTT prints samples of every device under the configured
// prefix until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.WithField("broker", cfg.MQTTBroker).Info("console: connected to MQTT broker")

	c := newConsole(client, cfg.MQTTTopicPrefix, out)
	if err := c.subscribe(); err != nil {
		client.Disconnect(250)
		return err
	}

	<-ctx.Done()

	log.Info("console: shutting down")
	c.release()
	client.Disconnect(250)
	return nil
}
