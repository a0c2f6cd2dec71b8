// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package serial carries samples and control requests over a byte stream
// as NMEA 0183 style sentences:
//
//	$IMSMP,<deviceid hex>,<time_stamp>,ax,ay,az,gx,gy,gz,mx,my,mz,temperature*CS
//	$IMCTL,NOTIFY,<0|1>*CS
//	$IMCTL,RES,<accel>,<gyro>*CS
package serial

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/ble_imu/internal/imu"
	"github.com/relabs-tech/ble_imu/internal/transport"
)

const (
	talker      = "IM"
	typeSample  = "SMP"
	typeControl = "CTL"

	ctlNotify     = "NOTIFY"
	ctlResolution = "RES"
)

// ErrNotSample is returned by ParseSample for a well-formed sentence of
// another type.
var ErrNotSample = errors.New("serial: not a sample sentence")

// ErrNotControl is returned by ParseControl for a well-formed sentence of
// another type.
var ErrNotControl = errors.New("serial: not a control sentence")

// SampleSentence is a parsed $IMSMP sentence.
type SampleSentence struct {
	nmea.BaseSentence
	Sample imu.Sample
}

// ControlSentence is a parsed $IMCTL sentence.
type ControlSentence struct {
	nmea.BaseSentence
	Command string
	Notify  bool
	Res     imu.Resolution
}

var parser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		typeSample:  parseSample,
		typeControl: parseControl,
	},
}

func parseSample(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(typeSample)
	id, err := strconv.ParseUint(p.String(0, "device id"), 16, 32)
	if err != nil && p.Err() == nil {
		return nil, fmt.Errorf("serial: device id: %w", err)
	}
	out := SampleSentence{BaseSentence: s}
	out.Sample.DeviceID = uint32(id)
	out.Sample.Timestamp = uint32(p.Int64(1, "time stamp"))
	fields := [...]*int16{
		&out.Sample.Ax, &out.Sample.Ay, &out.Sample.Az,
		&out.Sample.Gx, &out.Sample.Gy, &out.Sample.Gz,
		&out.Sample.Mx, &out.Sample.My, &out.Sample.Mz,
		&out.Sample.Temperature,
	}
	for i, f := range fields {
		*f = int16(p.Int64(2+i, "axis"))
	}
	return out, p.Err()
}

func parseControl(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(typeControl)
	out := ControlSentence{BaseSentence: s}
	out.Command = p.EnumString(0, "command", ctlNotify, ctlResolution)
	switch out.Command {
	case ctlNotify:
		out.Notify = p.Int64(1, "notify") != 0
	case ctlResolution:
		out.Res.Accel = uint8(p.Int64(1, "accel resolution")) & 0x03
		out.Res.Gyro = uint8(p.Int64(2, "gyro resolution")) & 0x03
	}
	return out, p.Err()
}

// sentence wraps body with the start delimiter, checksum and line ending.
func sentence(body string) string {
	return "$" + body + "*" + nmea.Checksum(body) + "\r\n"
}

// FormatSample renders s as a $IMSMP sentence.
func FormatSample(s imu.Sample) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s,%08X,%d", talker, typeSample, s.DeviceID, s.Timestamp)
	for _, v := range [...]int16{s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.Mx, s.My, s.Mz, s.Temperature} {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(int(v)))
	}
	return sentence(b.String())
}

// FormatNotify renders a subscription request.
func FormatNotify(on bool) string {
	v := 0
	if on {
		v = 1
	}
	return sentence(fmt.Sprintf("%s%s,%s,%d", talker, typeControl, ctlNotify, v))
}

// FormatResolution renders a resolution request or echo.
func FormatResolution(r imu.Resolution) string {
	return sentence(fmt.Sprintf("%s%s,%s,%d,%d", talker, typeControl, ctlResolution, r.Accel&0x03, r.Gyro&0x03))
}

// ParseSample parses a $IMSMP line.
func ParseSample(line string) (imu.Sample, error) {
	s, err := parser.Parse(strings.TrimSpace(line))
	if err != nil {
		return imu.Sample{}, err
	}
	smp, ok := s.(SampleSentence)
	if !ok {
		return imu.Sample{}, fmt.Errorf("%w: %s", ErrNotSample, s.Prefix())
	}
	return smp.Sample, nil
}

// ParseControl parses a $IMCTL line into a control event.
func ParseControl(line, source string) (transport.Event, error) {
	s, err := parser.Parse(strings.TrimSpace(line))
	if err != nil {
		return transport.Event{}, err
	}
	c, ok := s.(ControlSentence)
	if !ok {
		return transport.Event{}, fmt.Errorf("%w: %s", ErrNotControl, s.Prefix())
	}
	ev := transport.Event{Source: source}
	switch c.Command {
	case ctlNotify:
		ev.Kind = transport.EventUnsubscribe
		if c.Notify {
			ev.Kind = transport.EventSubscribe
		}
	case ctlResolution:
		ev.Kind = transport.EventResolution
		ev.Resolution = c.Res
	}
	return ev, nil
}
