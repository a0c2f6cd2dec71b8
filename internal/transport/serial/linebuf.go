// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serial

// MaxLine is the longest line buffered before a forced flush.
const MaxLine = 244

// LineBuffer splits a byte stream into lines. A line ends at CR, at LF,
// or when MaxLine bytes have accumulated. Empty lines are dropped.
type LineBuffer struct {
	buf  [MaxLine]byte
	n    int
	emit func(line string)
}

// NewLineBuffer returns a LineBuffer calling emit for each line, without
// its terminator.
func NewLineBuffer(emit func(line string)) *LineBuffer {
	return &LineBuffer{emit: emit}
}

// Write implements io.Writer. It never fails.
func (l *LineBuffer) Write(p []byte) (int, error) {
	for _, c := range p {
		if c == '\r' || c == '\n' {
			l.flush()
			continue
		}
		l.buf[l.n] = c
		l.n++
		if l.n == MaxLine {
			l.flush()
		}
	}
	return len(p), nil
}

func (l *LineBuffer) flush() {
	if l.n == 0 {
		return
	}
	line := string(l.buf[:l.n])
	l.n = 0
	l.emit(line)
}
