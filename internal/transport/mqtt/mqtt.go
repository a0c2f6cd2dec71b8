// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mqtt publishes samples to an MQTT broker and accepts control
// requests on per-device topics.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/transport"
)

// ErrPublishTimeout reports a publish the broker did not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt: publish timed out")

// Topics are the per-device topic names under a common prefix.
type Topics struct {
	Sample        string // samples, JSON or packed binary
	DeviceID      string // retained device id
	Resolution    string // retained applied resolution
	Status        string // retained online/offline
	Notify        string // consumer writes 1 or 0
	SetResolution string // consumer writes "accel,gyro" or the packed word
}

// TopicsFor returns the topics of device id under prefix.
func TopicsFor(prefix string, id uint32) Topics {
	base := fmt.Sprintf("%s/%08X", strings.TrimSuffix(prefix, "/"), id)
	return Topics{
		Sample:        base + "/sample",
		DeviceID:      base + "/deviceid",
		Resolution:    base + "/resolution",
		Status:        base + "/status",
		Notify:        base + "/control/notify",
		SetResolution: base + "/control/resolution",
	}
}

// Options configures the transport.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string
	DeviceID uint32
	// Binary publishes the packed 28-byte layout instead of JSON.
	Binary         bool
	PublishTimeout time.Duration
}

// Transport is the MQTT side of the device.
type Transport struct {
	client     mqtt.Client
	opts       Options
	topics     Topics
	events     chan<- transport.Event
	subscribed atomic.Bool
	log        *log.Entry
}

// New builds a transport; Connect must be called before use.
func New(opts Options, events chan<- transport.Event) *Transport {
	t := newTransport(nil, opts, events)
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetWill(t.topics.Status, "offline", 1, true).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			t.log.WithError(err).Warn("broker connection lost")
		})
	t.client = mqtt.NewClient(co)
	return t
}

func newTransport(c mqtt.Client, opts Options, events chan<- transport.Event) *Transport {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = time.Second
	}
	if opts.Prefix == "" {
		opts.Prefix = "ble_imu"
	}
	return &Transport{
		client: c,
		opts:   opts,
		topics: TopicsFor(opts.Prefix, opts.DeviceID),
		events: events,
		log:    log.WithFields(log.Fields{"component": "mqtt", "broker": opts.Broker}),
	}
}

// Topics returns the topic names in use.
func (t *Transport) Topics() Topics { return t.topics }

// Connect dials the broker.
func (t *Transport) Connect() error {
	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect %s: %w", t.opts.Broker, token.Error())
	}
	return nil
}

// Close announces offline and disconnects.
func (t *Transport) Close() {
	t.publish(t.topics.Status, true, []byte("offline"))
	t.client.Disconnect(250)
}

// onConnect runs on every (re)connect.
func (t *Transport) onConnect(c mqtt.Client) {
	t.log.Info("connected to broker")
	subs := map[string]mqtt.MessageHandler{
		t.topics.Notify:        t.handleNotify,
		t.topics.SetResolution: t.handleResolution,
	}
	for topic, h := range subs {
		if token := c.Subscribe(topic, 1, h); token.Wait() && token.Error() != nil {
			t.log.WithError(token.Error()).WithField("topic", topic).Error("subscribe failed")
		}
	}
	id := []byte(fmt.Sprintf("%08X", t.opts.DeviceID))
	if err := t.publish(t.topics.DeviceID, true, id); err != nil {
		t.log.WithError(err).Warn("device id publish failed")
	}
	if err := t.publish(t.topics.Status, true, []byte("online")); err != nil {
		t.log.WithError(err).Warn("status publish failed")
	}
}

func (t *Transport) publish(topic string, retained bool, payload []byte) error {
	token := t.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(t.opts.PublishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Name implements transport.Publisher.
func (t *Transport) Name() string { return "mqtt" }

// Publish implements transport.Publisher.
func (t *Transport) Publish(s imu.Sample) error {
	if !t.subscribed.Load() {
		return nil
	}
	var payload []byte
	if t.opts.Binary {
		payload = s.AppendBinary(make([]byte, 0, imu.SampleSize))
	} else {
		var err error
		if payload, err = json.Marshal(s); err != nil {
			return err
		}
	}
	return t.publish(t.topics.Sample, false, payload)
}

// NotifyResolution implements transport.ResolutionNotifier.
func (t *Transport) NotifyResolution(r imu.Resolution) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return t.publish(t.topics.Resolution, true, payload)
}

func (t *Transport) handleNotify(_ mqtt.Client, msg mqtt.Message) {
	on, err := strconv.ParseBool(strings.TrimSpace(string(msg.Payload())))
	if err != nil {
		t.log.WithError(err).WithField("payload", string(msg.Payload())).Warn("bad notify request")
		return
	}
	ev := transport.Event{Kind: transport.EventUnsubscribe, Source: "mqtt"}
	if on {
		ev.Kind = transport.EventSubscribe
	}
	t.subscribed.Store(on)
	t.events <- ev
}

func (t *Transport) handleResolution(_ mqtt.Client, msg mqtt.Message) {
	r, err := ParseResolutionPayload(msg.Payload())
	if err != nil {
		t.log.WithError(err).Warn("bad resolution request")
		return
	}
	t.events <- transport.Event{Kind: transport.EventResolution, Source: "mqtt", Resolution: r}
}

// ParseResolutionPayload accepts either "accel,gyro" text or the packed
// little-endian control word.
func ParseResolutionPayload(p []byte) (imu.Resolution, error) {
	s := strings.TrimSpace(string(p))
	if !strings.Contains(s, ",") {
		return imu.ParseResolution(p)
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return imu.Resolution{}, fmt.Errorf("mqtt: resolution %q: want accel,gyro", s)
	}
	var sel [2]uint8
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil || v > 3 {
			return imu.Resolution{}, fmt.Errorf("mqtt: resolution %q: selector %q not in 0-3", s, part)
		}
		sel[i] = uint8(v)
	}
	return imu.Resolution{Accel: sel[0], Gyro: sel[1]}, nil
}
