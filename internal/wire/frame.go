// Package wire implements the length-prefixed frame codec shared by the
// CLI-host and proxy-host channels, plus the RPC envelope types and their
// serialization.
//
// Two Frame configurations exist: CLIEndian (big-endian, 4-byte length)
// for the CLI-host wire, and ProxyEndian (little-endian, 4-byte length)
// for the proxy-host wire. Both sides of a given channel must agree on
// which one they speak; that agreement is the caller's responsibility, not
// this package's.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Endian selects the byte order used for a channel's 4-byte length header.
type Endian int

const (
	// CLIEndian is big-endian, used on the CLI↔host wire.
	CLIEndian Endian = iota
	// ProxyEndian is little-endian, used on the proxy↔host wire.
	ProxyEndian
)

func (e Endian) order() binary.ByteOrder {
	if e == ProxyEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// progressThreshold is the announced-length floor above which
// ShouldReportProgress reports true. ReadStream returns Progress results
// for frames of any length.
const progressThreshold = 100_000

// scratchSize is the size of the fixed buffer ReadStream uses for each
// individual non-blocking read attempt.
const scratchSize = 1024

// Status describes the outcome of one ReadStream call.
type Status int

const (
	// WouldBlock: no bytes were read and no frame is pending.
	WouldBlock Status = iota
	// Progress: bytes were read but no full frame is available yet.
	Progress
	// Completed: a full frame's payload is available.
	Completed
)

// Result is what ReadStream returns.
type Result struct {
	Status  Status
	Payload []byte // valid only when Status == Completed

	// BytesRead is how many new bytes were appended to the buffer by this
	// call (0 on WouldBlock).
	BytesRead int
}

// Accumulator reconstructs length-prefixed frames from a byte stream that
// may deliver data in arbitrary chunks, including one byte at a time.
//
// Accumulator is not safe for concurrent use; callers pair one Accumulator
// with one reader goroutine, one per connection.
type Accumulator struct {
	endian Endian
	buf    []byte // raw bytes read so far, header included
	scratch [scratchSize]byte
}

// NewAccumulator returns an Accumulator that decodes frames using the given
// endianness.
func NewAccumulator(endian Endian) *Accumulator {
	return &Accumulator{endian: endian}
}

// Append extends the internal buffer with externally-supplied bytes. Tests
// use this to drive the accumulator without a real stream.
func (a *Accumulator) Append(b []byte) {
	a.buf = append(a.buf, b...)
}

// ExpectedLength peeks the 4-byte header if a full header is buffered.
// The second return value is false if fewer than 4 bytes are buffered.
func (a *Accumulator) ExpectedLength() (uint32, bool) {
	if len(a.buf) < 4 {
		return 0, false
	}
	return a.endian.order().Uint32(a.buf[:4]), true
}

// CurrentLength returns the number of buffered body bytes (excluding the
// 4-byte header), or 0 if the header itself is not yet complete.
func (a *Accumulator) CurrentLength() int {
	if len(a.buf) < 4 {
		return 0
	}
	return len(a.buf) - 4
}

// popFrame removes and returns one complete frame's payload from the front
// of the buffer, if one is available.
func (a *Accumulator) popFrame() ([]byte, bool) {
	n, ok := a.ExpectedLength()
	if !ok {
		return nil, false
	}
	total := 4 + int(n)
	if len(a.buf) < total {
		return nil, false
	}
	payload := make([]byte, n)
	copy(payload, a.buf[4:total])
	a.buf = a.buf[total:]
	return payload, true
}

// PopPending returns a frame already fully buffered by a prior Append or
// ReadStream call, without performing any I/O. Used to drain multiple
// frames that arrived in a single underlying read.
func (a *Accumulator) PopPending() ([]byte, bool) {
	return a.popFrame()
}

// ReadStream first serves a frame already complete in the buffer; otherwise
// it attempts one read into a small scratch buffer, then tries to pop a
// complete frame. It does not switch r to non-blocking mode: the read
// blocks for as long as r's own Read does, and only a timeout error (for
// example after SetReadDeadline on a net.Conn) is reported as WouldBlock.
//
// Any stream error other than would-block is returned as a fatal error to
// the caller.
func (a *Accumulator) ReadStream(r io.Reader) (Result, error) {
	// First, serve a frame already sitting in the buffer without reading.
	if payload, ok := a.popFrame(); ok {
		return Result{Status: Completed, Payload: payload}, nil
	}

	n, err := r.Read(a.scratch[:])
	if n > 0 {
		a.buf = append(a.buf, a.scratch[:n]...)
	}
	if err != nil {
		if isWouldBlock(err) {
			if n == 0 {
				return Result{Status: WouldBlock}, nil
			}
			// Bytes arrived alongside a transient would-block signal; report
			// progress rather than discarding the read.
		} else {
			return Result{}, fmt.Errorf("wire: read: %w", err)
		}
	}

	if n == 0 && err == nil {
		return Result{Status: WouldBlock}, nil
	}

	if payload, ok := a.popFrame(); ok {
		return Result{Status: Completed, Payload: payload, BytesRead: n}, nil
	}
	return Result{Status: Progress, BytesRead: n}, nil
}

// ShouldReportProgress reports whether the currently-known expected length
// warrants a progress line (only above progressThreshold bytes).
func (a *Accumulator) ShouldReportProgress() (announced uint32, yes bool) {
	n, ok := a.ExpectedLength()
	if !ok || n <= progressThreshold {
		return n, false
	}
	return n, true
}

// Encode builds a complete frame (header + payload) for writing.
func Encode(endian Endian, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	endian.order().PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// WriteFrame writes one complete frame to w.
func WriteFrame(w io.Writer, endian Endian, payload []byte) error {
	_, err := w.Write(Encode(endian, payload))
	return err
}

// isWouldBlock reports whether err represents a non-fatal "no data right
// now" condition. Plain net.Conn reads never return EAGAIN in Go's blocking
// model; this hook exists so callers that do set SetReadDeadline/non-blocking
// fds (e.g. via syscall) can route timeout errors through the same
// Progress/WouldBlock state machine.
func isWouldBlock(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	return false
}
