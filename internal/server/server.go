// Package server implements the embedded debugging/tool-invocation server
// that a host application binds inside itself. It accepts client
// connections on a loopback listener, spawns one worker goroutine per
// connection, and dispatches each Command by name against a shared
// registry.Registry.
//
// One listener goroutine runs for the life of the process; each accepted
// connection gets its own worker goroutine, and there is no async runtime
// underneath.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
	"github.com/drewcrawford/exfiltrate-sub000/internal/wire"
)

// Server is the embedded server. New constructs it explicitly; the package
// keeps no lazily created global instance.
type Server struct {
	registry *registry.Registry
}

// New returns a Server dispatching against reg.
func New(reg *registry.Registry) *Server {
	return &Server{registry: reg}
}

// Serve accepts connections on l until it is closed. Each connection is
// handled by its own goroutine; an I/O error on one connection only tears
// down that connection, leaving every other worker and the listener itself
// running.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("server: recovered from panic in connection handler: %v", r)
		}
	}()

	acc := wire.NewAccumulator(wire.CLIEndian)
	for {
		result, err := acc.ReadStream(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("server: read: %v", err)
			}
			return
		}
		switch result.Status {
		case wire.Completed:
			if !s.dispatchFrame(conn, result.Payload) {
				return
			}
		case wire.WouldBlock:
			// net.Conn reads in this package block by default; WouldBlock
			// only occurs if the caller wrapped conn with a read deadline.
			// Nothing to do but retry.
		case wire.Progress:
			// Large request bodies are not expected on this channel, but
			// keep reading regardless.
		}
	}
}

// dispatchFrame decodes one Command envelope, executes it, and writes the
// CommandResponse (plus attachment frames) back to conn. It returns false
// if the connection should be torn down (write failure).
func (s *Server) dispatchFrame(conn net.Conn, payload []byte) bool {
	rpc, err := wire.DecodeRPC(payload)
	if err != nil {
		log.Printf("server: decode: %v", err)
		return s.writeResponse(conn, response.String("malformed request: "+err.Error()), false, 0)
	}
	if rpc.Tag != wire.TagCommand {
		return s.writeResponse(conn, response.String("expected a Command envelope"), false, rpc.ReplyID)
	}

	entry, ok := s.registry.Lookup(rpc.Name)
	if !ok {
		return s.writeResponse(conn, response.String("command not found: "+rpc.Name), false, rpc.ReplyID)
	}

	args := make(registry.Args, len(rpc.Args))
	for i, v := range rpc.Args {
		args[fmt.Sprintf("%d", i)] = v
	}

	resp, err := entry.Handler.Execute(args)
	if err != nil {
		return s.writeResponse(conn, response.String(err.Error()), false, rpc.ReplyID)
	}
	return s.writeResponse(conn, resp, true, rpc.ReplyID)
}

func (s *Server) writeResponse(conn net.Conn, resp response.Response, success bool, replyID uint32) bool {
	parts := response.Split(&resp)

	out := wire.RPC{
		Tag:            wire.TagCommandResponse,
		Success:        success,
		ReplyID:        replyID,
		ResponseKind:   int(resp.Kind),
		ResponseText:   resp.Text,
		ResponseBytes:  resp.Bytes,
		NumAttachments: len(parts),
	}
	if resp.Kind == response.KindFiles {
		out.ResponseFiles = encodeFileMeta(resp.Files)
	}
	if resp.Kind == response.KindImages {
		out.ResponseImages = encodeImageMeta(resp.Images)
	}

	payload, err := wire.EncodeRPC(out)
	if err != nil {
		log.Printf("server: encode response: %v", err)
		return false
	}
	if err := wire.WriteFrame(conn, wire.CLIEndian, payload); err != nil {
		log.Printf("server: write response: %v", err)
		return false
	}
	for _, part := range parts {
		if err := wire.WriteFrame(conn, wire.CLIEndian, part); err != nil {
			log.Printf("server: write attachment: %v", err)
			return false
		}
	}
	return true
}

// encodeFileMeta/encodeImageMeta carry the non-attachment metadata
// (extension/remark, width/height) inline in the envelope; see
// internal/rpcclient for the matching decode side.
func encodeFileMeta(files []response.File) []byte {
	b, _ := msgpack.Marshal(files)
	return b
}

func encodeImageMeta(images []response.Image) []byte {
	b, _ := msgpack.Marshal(images)
	return b
}
