// Package rpcclient implements the RPC correlator and client used by
// cmd/exfiltrate to talk to an embedded server.
//
// A single background receive loop reads every reply off the connection
// and delivers each one to whichever caller registered a waiter for that
// reply id, via a map from reply id to a one-shot channel. Multiple
// requests may be in flight concurrently; an unexpected or stale reply id
// is simply dropped rather than crashing the reader.
package rpcclient

import (
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
	"github.com/drewcrawford/exfiltrate-sub000/internal/wire"
)

// ProgressFunc is called with the current/total byte counts while a request
// is in flight, at most once per 100ms, only once the announced length
// exceeds 100,000 bytes.
type ProgressFunc func(current, total int)

// Client is one correlator instance bound to a single connection, shared by
// one sender and one background receive-loop goroutine.
type Client struct {
	conn    net.Conn
	nextID  atomic.Uint32
	waiters sync.Map // reply id -> chan waitResult

	// OnProgress, if set, is invoked by the receive loop's progress-reporting
	// rule. It is not called concurrently.
	OnProgress ProgressFunc
	// OnIdle, if set, is invoked once if no reply has been seen in 5s and no
	// body length is known yet.
	OnIdle func()

	recvErr atomic.Pointer[error]
	closeCh chan struct{}
}

type waitResult struct {
	rpc  wire.RPC
	err  error
}

// New wraps conn and starts the background receive loop.
func New(conn net.Conn) *Client {
	c := &Client{conn: conn, closeCh: make(chan struct{})}
	go c.receiveLoop()
	return c
}

// NextReplyID allocates a fresh reply id from a monotonically increasing
// 32-bit counter owned by this Client. Ids are unique per Client; separate
// Clients in one process count independently.
func (c *Client) NextReplyID() uint32 {
	return c.nextID.Add(1)
}

// SendCommand serializes and writes a Command envelope. The waiter for
// replyID is registered before the write, so a reply that arrives before
// PopMsg is called is kept for it rather than dropped.
func (c *Client) SendCommand(name string, args []string, replyID uint32) error {
	payload, err := wire.EncodeRPC(wire.RPC{
		Tag:     wire.TagCommand,
		Name:    name,
		Args:    args,
		ReplyID: replyID,
	})
	if err != nil {
		return fmt.Errorf("rpcclient: encode command: %w", err)
	}
	c.waiters.LoadOrStore(replyID, make(chan waitResult, 1))
	if err := wire.WriteFrame(c.conn, wire.CLIEndian, payload); err != nil {
		c.waiters.Delete(replyID)
		return err
	}
	return nil
}

// PopMsg blocks until a CommandResponse with the matching reply id arrives,
// reassembling any declared attachments before returning.
func (c *Client) PopMsg(replyID uint32) (response.Response, error) {
	chAny, _ := c.waiters.LoadOrStore(replyID, make(chan waitResult, 1))
	ch := chAny.(chan waitResult)
	defer c.waiters.Delete(replyID)

	idleTimer := time.AfterFunc(5*time.Second, func() {
		if c.OnIdle != nil {
			if _, hasLen := c.expectedLength(); !hasLen {
				c.OnIdle()
			}
		}
	})
	defer idleTimer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return response.Response{}, res.err
		}
		return decodeResponse(res.rpc)
	case <-c.closeCh:
		if p := c.recvErr.Load(); p != nil {
			return response.Response{}, *p
		}
		return response.Response{}, io.ErrClosedPipe
	}
}

// expectedLength is a hook point for the idle heuristic; the simple
// net.Conn-based client has no visibility into accumulator state from here,
// so it conservatively reports "unknown" (false), the condition under
// which the idle diagnostic should fire.
func (c *Client) expectedLength() (uint32, bool) { return 0, false }

// receiveLoop is the single background reader: it decodes one envelope at a
// time, reassembles declared attachments, and delivers the result to
// whichever PopMsg call registered a waiter for that reply id. An envelope
// whose id has no registered waiter is dropped with a logged warning
// (e.g., the caller already timed out) rather than buffered forever.
func (c *Client) receiveLoop() {
	acc := wire.NewAccumulator(wire.CLIEndian)
	var lastProgress time.Time

	deliver := func(err error) {
		c.recvErr.Store(&err)
		close(c.closeCh)
	}

	for {
		result, err := acc.ReadStream(c.conn)
		if err != nil {
			deliver(err)
			return
		}
		switch result.Status {
		case wire.WouldBlock:
			time.Sleep(10 * time.Millisecond)
		case wire.Progress:
			if n, ok := acc.ShouldReportProgress(); ok && time.Since(lastProgress) >= 100*time.Millisecond {
				lastProgress = time.Now()
				if c.OnProgress != nil {
					c.OnProgress(acc.CurrentLength(), int(n))
				}
			}
		case wire.Completed:
			rpc, err := wire.DecodeRPC(result.Payload)
			if err != nil {
				log.Printf("rpcclient: decode envelope: %v", err)
				continue
			}
			if rpc.Tag != wire.TagCommandResponse {
				continue
			}
			if rpc.NumAttachments > 0 {
				parts := make([][]byte, 0, rpc.NumAttachments)
				for i := 0; i < rpc.NumAttachments; i++ {
					part, ok := readOneFrame(acc, c.conn)
					if !ok {
						deliver(fmt.Errorf("rpcclient: connection closed while reading attachment %d/%d", i+1, rpc.NumAttachments))
						return
					}
					parts = append(parts, part)
				}
				rpc = rpc.WithAttachments(parts)
			}
			if chAny, ok := c.waiters.Load(rpc.ReplyID); ok {
				chAny.(chan waitResult) <- waitResult{rpc: rpc}
			} else {
				log.Printf("rpcclient: dropping response for unknown reply id %d", rpc.ReplyID)
			}
		}
	}
}

// readOneFrame blocks (with the standard backoff) until one more complete
// frame is available from conn via acc.
func readOneFrame(acc *wire.Accumulator, conn net.Conn) ([]byte, bool) {
	for {
		result, err := acc.ReadStream(conn)
		if err != nil {
			return nil, false
		}
		switch result.Status {
		case wire.Completed:
			return result.Payload, true
		case wire.WouldBlock:
			time.Sleep(10 * time.Millisecond)
		case wire.Progress:
			// keep reading
		}
	}
}

func decodeResponse(rpc wire.RPC) (response.Response, error) {
	resp := response.Response{Kind: response.Kind(rpc.ResponseKind)}
	switch resp.Kind {
	case response.KindString:
		resp.Text = rpc.ResponseText
	case response.KindBytes:
		resp.Bytes = rpc.ResponseBytes
	case response.KindFiles:
		var files []response.File
		if err := msgpack.Unmarshal(rpc.ResponseFiles, &files); err != nil {
			return response.Response{}, fmt.Errorf("rpcclient: decode file metadata: %w", err)
		}
		resp.Files = files
	case response.KindImages:
		var images []response.Image
		if err := msgpack.Unmarshal(rpc.ResponseImages, &images); err != nil {
			return response.Response{}, fmt.Errorf("rpcclient: decode image metadata: %w", err)
		}
		resp.Images = images
	default:
		return response.Response{}, fmt.Errorf("rpcclient: unknown response kind %d", rpc.ResponseKind)
	}

	if err := response.Merge(&resp, rpc.Attachments()); err != nil {
		return response.Response{}, err
	}
	if !rpc.Success {
		return resp, fmt.Errorf("%s", firstNonEmpty(resp.Text, "command failed"))
	}
	return resp, nil
}

func firstNonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
