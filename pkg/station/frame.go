// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"
)

// RecordsIdleDelay is how long Records pauses after a zero-byte read
const RecordsIdleDelay = 10 * time.Millisecond

// ErrFrameTooLong is returned when a line grows past the frame size limit.
// The partial line is discarded and the reader resynchronises on the next
// delimiter.
var ErrFrameTooLong = errors.New("frame too long")

// FrameReader splits a byte stream into newline-delimited records
type FrameReader struct {
	buffer       []byte
	maxFrameSize int
	discarding   bool // Dropping an oversized frame until the next delimiter
}

// NewFrameReader creates a frame reader. maxFrameSize of 0 disables the
// size limit.
func NewFrameReader(maxFrameSize int) *FrameReader {
	capacity := maxFrameSize
	if capacity <= 0 || capacity > DefaultMaxFrameSize {
		capacity = DefaultMaxFrameSize
	}
	return &FrameReader{
		buffer:       make([]byte, 0, capacity),
		maxFrameSize: maxFrameSize,
	}
}

// Reset discards any partially accumulated frame
func (f *FrameReader) Reset() {
	f.buffer = f.buffer[:0]
	f.discarding = false
}

// Buffered returns the number of bytes held since the last delimiter
func (f *FrameReader) Buffered() int {
	return len(f.buffer)
}

// DecodeByte processes a single byte.
// Returns the trimmed record when b completes a non-empty line, or "" when
// no record is complete yet. Empty and whitespace-only lines are never
// returned.
func (f *FrameReader) DecodeByte(b byte) (string, error) {
	if b == LineDelimiter {
		if f.discarding {
			f.Reset()
			return "", nil
		}
		record := strings.TrimSpace(string(f.buffer))
		f.buffer = f.buffer[:0]
		return record, nil
	}

	if f.discarding {
		return "", nil
	}

	if f.maxFrameSize > 0 && len(f.buffer) >= f.maxFrameSize {
		size := len(f.buffer)
		f.buffer = f.buffer[:0]
		f.discarding = true
		return "", fmt.Errorf("%w: %d bytes without delimiter (max %d)", ErrFrameTooLong, size+1, f.maxFrameSize)
	}

	f.buffer = append(f.buffer, b)
	return "", nil
}

// Feed processes a chunk of bytes, calling emit for every completed record.
// Framing errors do not stop processing; the first one is returned after
// the whole chunk has been consumed.
func (f *FrameReader) Feed(data []byte, emit func(record string)) error {
	var firstErr error
	for _, b := range data {
		record, err := f.DecodeByte(b)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if record != "" {
			emit(record)
		}
	}
	return firstErr
}

// Records yields the records read from r until r returns an error.
// Zero-byte reads are treated as "nothing to read yet" and followed by a
// RecordsIdleDelay pause, so polling readers do not spin. io.EOF ends the
// sequence silently; an unterminated trailing segment is not yielded.
// Framing errors are yielded alongside an empty record and reading
// continues. The sequence can only be consumed once.
func (f *FrameReader) Records(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		buf := make([]byte, 128)
		for {
			n, err := r.Read(buf)
			for i := 0; i < n; i++ {
				record, decodeErr := f.DecodeByte(buf[i])
				if decodeErr != nil {
					if !yield("", decodeErr) {
						return
					}
					continue
				}
				if record != "" && !yield(record, nil) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
			if n == 0 {
				time.Sleep(RecordsIdleDelay)
			}
		}
	}
}
