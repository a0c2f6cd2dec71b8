// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport defines how samples leave the device and how consumer
// control requests come back in.
package transport

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/ble_imu/internal/imu"
)

// Publisher delivers samples to consumers. Publish is called from the
// foreground loop only and must not block for long; a transport with no
// subscribed consumer drops the sample and returns nil.
type Publisher interface {
	Name() string
	Publish(s imu.Sample) error
}

// ResolutionNotifier is implemented by transports that echo the applied
// full-scale resolution back to consumers.
type ResolutionNotifier interface {
	NotifyResolution(r imu.Resolution) error
}

// EventKind classifies a control event.
type EventKind uint8

const (
	EventSubscribe EventKind = iota + 1
	EventUnsubscribe
	EventResolution
)

func (k EventKind) String() string {
	switch k {
	case EventSubscribe:
		return "subscribe"
	case EventUnsubscribe:
		return "unsubscribe"
	case EventResolution:
		return "resolution"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is a consumer request delivered to the foreground loop.
type Event struct {
	Kind EventKind
	// Source names the transport and, where relevant, the consumer.
	Source     string
	Resolution imu.Resolution
}

// Multi fans a sample out to several transports.
type Multi []Publisher

// Name implements Publisher.
func (m Multi) Name() string { return "multi" }

// Publish sends s to every transport and joins their errors.
func (m Multi) Publish(s imu.Sample) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(s); err != nil {
			errs = append(errs, &PublishError{Transport: p.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// NotifyResolution forwards r to every transport that echoes resolution.
func (m Multi) NotifyResolution(r imu.Resolution) error {
	var errs []error
	for _, p := range m {
		if n, ok := p.(ResolutionNotifier); ok {
			if err := n.NotifyResolution(r); err != nil {
				errs = append(errs, &PublishError{Transport: p.Name(), Err: err})
			}
		}
	}
	return errors.Join(errs...)
}

// PublishError names the transport that failed.
type PublishError struct {
	Transport string
	Err       error
}

func (e *PublishError) Error() string { return e.Transport + ": " + e.Err.Error() }

func (e *PublishError) Unwrap() error { return e.Err }
