// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/metrics"
	"github.com/relabs-tech/ble_imu/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	hubSendQueue  = 64
	hubWriteWait  = time.Second
	shutdownGrace = 2 * time.Second
)

// HubMessage is the JSON frame exchanged with websocket consumers.
type HubMessage struct {
	Type       string          `json:"type"` // "sample", "resolution", "error"
	Sample     *imu.Sample     `json:"sample,omitempty"`
	Resolution *imu.Resolution `json:"resolution,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// HubCommand is what a websocket consumer may send.
type HubCommand struct {
	Action string `json:"action"` // "resolution"
	Accel  uint8  `json:"accel"`
	Gyro   uint8  `json:"gyro"`
}

type hubClient struct {
	conn   *websocket.Conn
	source string
	send   chan HubMessage
}

// SampleHub streams samples to websocket consumers. Each open socket is a
// subscriber; the sensor sleeps again once the last one closes.
type SampleHub struct {
	events chan<- transport.Event
	stop   chan struct{}

	mu       sync.Mutex
	closed   bool
	clients  map[*hubClient]struct{}
	last     imu.Sample
	haveLast bool
	res      imu.Resolution
}

// NewSampleHub returns a hub that reports subscriptions on events.
func NewSampleHub(events chan<- transport.Event) *SampleHub {
	return &SampleHub{events: events, stop: make(chan struct{}), clients: map[*hubClient]struct{}{}}
}

// Close disconnects every consumer. Pending subscription events are
// dropped from then on.
func (h *SampleHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		close(h.stop)
		h.closed = true
	}
	for c := range h.clients {
		c.conn.Close()
	}
}

func (h *SampleHub) emit(ev transport.Event) {
	select {
	case h.events <- ev:
	case <-h.stop:
	}
}

// Name implements transport.Publisher.
func (h *SampleHub) Name() string { return "web" }

// Publish implements transport.Publisher. Slow consumers lose samples
// rather than stalling the stream.
func (h *SampleHub) Publish(s imu.Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last, h.haveLast = s, true
	h.broadcast(HubMessage{Type: "sample", Sample: &s})
	return nil
}

// NotifyResolution implements transport.ResolutionNotifier.
func (h *SampleHub) NotifyResolution(r imu.Resolution) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.res = r
	h.broadcast(HubMessage{Type: "resolution", Resolution: &r})
	return nil
}

// broadcast must be called with h.mu held.
func (h *SampleHub) broadcast(m HubMessage) {
	for c := range h.clients {
		select {
		case c.send <- m:
		default:
		}
	}
}

// Latest returns the most recently published sample.
func (h *SampleHub) Latest() (imu.Sample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.haveLast
}

// Resolution returns the last resolution echoed to consumers.
func (h *SampleHub) Resolution() imu.Resolution {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.res
}

// Clients returns the number of connected consumers.
func (h *SampleHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams until the socket closes.
func (h *SampleHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("web: websocket upgrade error")
		return
	}
	c := &hubClient{conn: conn, source: "ws:" + r.RemoteAddr, send: make(chan HubMessage, hubSendQueue)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.emit(transport.Event{Kind: transport.EventSubscribe, Source: c.source})
	log.WithField("client", c.source).Info("web: consumer connected")

	done := make(chan struct{})
	go h.writeLoop(c, done)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(done)
	conn.Close()
	h.emit(transport.Event{Kind: transport.EventUnsubscribe, Source: c.source})
	log.WithField("client", c.source).Info("web: consumer disconnected")
}

func (h *SampleHub) writeLoop(c *hubClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case m := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteJSON(m); err != nil {
				log.WithError(err).WithField("client", c.source).Debug("web: write failed")
				c.conn.Close()
				return
			}
		}
	}
}

func (h *SampleHub) readLoop(c *hubClient) {
	for {
		var cmd HubCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("web: websocket error")
			}
			return
		}
		switch cmd.Action {
		case "resolution":
			if cmd.Accel > 3 || cmd.Gyro > 3 {
				h.reply(c, HubMessage{Type: "error", Message: "selectors must be 0-3"})
				continue
			}
			h.emit(transport.Event{
				Kind:       transport.EventResolution,
				Source:     c.source,
				Resolution: imu.Resolution{Accel: cmd.Accel, Gyro: cmd.Gyro},
			})
		default:
			h.reply(c, HubMessage{Type: "error", Message: fmt.Sprintf("unknown action: %s", cmd.Action)})
		}
	}
}

func (h *SampleHub) reply(c *hubClient, m HubMessage) {
	select {
	case c.send <- m:
	default:
	}
}

// Status is served on /api/status.
type Status struct {
	DeviceID   string         `json:"deviceid"`
	Streaming  bool           `json:"streaming"`
	WebClients int            `json:"web_clients"`
	Resolution imu.Resolution `json:"resolution"`
	Last       *imu.Sample    `json:"last,omitempty"`
	Transports []string       `json:"transports"`
}

// NewWebMux builds the peripheral's HTTP surface: live samples, the
// latest sample, status and metrics.
func NewWebMux(hub *SampleHub, g prometheus.Gatherer, status func() Status) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws/samples", hub)
	mux.Handle("/metrics", metrics.Handler(g))
	mux.HandleFunc("/api/imu", func(w http.ResponseWriter, r *http.Request) {
		s, ok := hub.Latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, s)
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status())
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("web: json encode error")
	}
}

// serveHTTP runs srv until ctx is done.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.WithField("addr", srv.Addr).Info("web: listening")
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
