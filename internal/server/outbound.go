package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/drewcrawford/exfiltrate-sub000/internal/mcp"
	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
	"github.com/drewcrawford/exfiltrate-sub000/internal/wire"
)

// reconnectBackoff is the fixed delay between outward connection attempts,
// on the sandboxed/browser deployment shape where this host has no inbound
// listener of its own and instead dials out to a proxy's upstream frame
// link. The same 10s/no-replay policy governs that link here too.
const reconnectBackoff = 10 * time.Second

// ConnectOutbound dials addr and serves reg's tools as the proxy's upstream
// host link, blocking forever. On any connection error it waits
// reconnectBackoff and redials; any request in flight at disconnect is
// lost, since this function never replays a dropped request.
func ConnectOutbound(addr string, reg *registry.Registry) error {
	dispatcher := mcp.New(reg)
	for {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			log.Printf("server: outbound dial %s failed: %v; retrying in %s", addr, err, reconnectBackoff)
			time.Sleep(reconnectBackoff)
			continue
		}
		log.Printf("server: connected outward to proxy at %s", addr)
		runOutboundLink(conn, dispatcher)
		conn.Close()
		log.Printf("server: outbound link to %s dropped; reconnecting in %s", addr, reconnectBackoff)
		time.Sleep(reconnectBackoff)
	}
}

// runOutboundLink drives one connection's request/response loop until the
// peer disconnects or a fatal read error occurs.
func runOutboundLink(conn net.Conn, dispatcher *mcp.Dispatcher) {
	acc := wire.NewAccumulator(wire.ProxyEndian)
	for {
		result, err := acc.ReadStream(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("server: outbound read: %v", err)
			}
			return
		}
		switch result.Status {
		case wire.Completed:
			if !dispatchOutbound(conn, dispatcher, result.Payload) {
				return
			}
		case wire.WouldBlock:
			time.Sleep(10 * time.Millisecond)
		case wire.Progress:
			// Requests on this channel are JSON-RPC text; not expected to
			// warrant progress reporting.
		}
	}
}

func dispatchOutbound(conn net.Conn, dispatcher *mcp.Dispatcher, payload []byte) bool {
	var req mcp.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("server: outbound decode: %v", err)
		return true
	}

	resp := dispatcher.Handle(req)
	if resp == nil {
		return true // notification: no reply expected
	}

	out, err := json.Marshal(resp)
	if err != nil {
		log.Printf("server: outbound encode response: %v", err)
		return true
	}
	if err := wire.WriteFrame(conn, wire.ProxyEndian, out); err != nil {
		log.Printf("server: outbound write: %v", err)
		return false
	}
	return true
}
