// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package metrics exports streaming counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/ble_imu/internal/icm20948"
)

const namespace = "ble_imu"

// Collector implements stream.Observer on top of Prometheus metrics.
//
// FIFO statistics arrive as running totals and are turned into counter
// increments; FIFOStats must therefore be called from a single goroutine.
type Collector struct {
	published       prometheus.Counter
	publishErrors   *prometheus.CounterVec
	drainErrors     prometheus.Counter
	fifoSamples     prometheus.Counter
	incompleteReads prometheus.Counter
	resyncs         prometheus.Counter
	discardedBytes  prometheus.Counter
	streaming       prometheus.Gauge

	prev icm20948.FIFOStats
}

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		published: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_published_total",
			Help: "Samples every transport accepted without error.",
		}),
		publishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_errors_total",
			Help: "Failed sample deliveries by transport.",
		}, []string{"transport"}),
		drainErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "drain_errors_total",
			Help: "Sample reads that failed on the bus.",
		}),
		fifoSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fifo", Name: "records_total",
			Help: "Complete records read from the sensor FIFO.",
		}),
		incompleteReads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fifo", Name: "incomplete_reads_total",
			Help: "Drains that found less than one record buffered.",
		}),
		resyncs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fifo", Name: "resyncs_total",
			Help: "FIFO resets issued to discard leftover bytes.",
		}),
		discardedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fifo", Name: "discarded_bytes_total",
			Help: "Bytes dropped by FIFO resets.",
		}),
		streaming: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "streaming",
			Help: "1 while at least one consumer is subscribed.",
		}),
	}
}

// SamplePublished counts one published sample.
func (c *Collector) SamplePublished() { c.published.Inc() }

// PublishFailed counts a delivery failure on transport.
func (c *Collector) PublishFailed(transport string) {
	c.publishErrors.WithLabelValues(transport).Inc()
}

// DrainFailed counts a failed FIFO drain.
func (c *Collector) DrainFailed() { c.drainErrors.Inc() }

// FIFOStats folds the driver's running totals into the counters.
func (c *Collector) FIFOStats(st icm20948.FIFOStats) {
	add := func(ctr prometheus.Counter, now, before uint64) {
		if now > before {
			ctr.Add(float64(now - before))
		}
	}
	add(c.fifoSamples, st.Samples, c.prev.Samples)
	add(c.incompleteReads, st.IncompleteReads, c.prev.IncompleteReads)
	add(c.resyncs, st.Resyncs, c.prev.Resyncs)
	add(c.discardedBytes, st.DiscardedBytes, c.prev.DiscardedBytes)
	c.prev = st
}

// Streaming records whether samples are flowing.
func (c *Collector) Streaming(on bool) {
	if on {
		c.streaming.Set(1)
	} else {
		c.streaming.Set(0)
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
