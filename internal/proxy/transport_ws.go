package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/drewcrawford/exfiltrate-sub000/internal/mcp"
	"github.com/drewcrawford/exfiltrate-sub000/internal/wsframe"
)

// ServeWebSocket accepts downstream raw-WebSocket connections on l: binary
// frames only, payload is the same JSON-RPC envelope as the HTTP POST body.
func (p *Proxy) ServeWebSocket(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go p.handleWSConn(conn)
	}
}

func (p *Proxy) handleWSConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	key, leftover, err := readHandshake(r)
	if err != nil {
		log.Printf("proxy: websocket handshake: %v", err)
		return
	}
	accept := wsframe.AcceptKey(key)
	fmt.Fprintf(conn, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n", accept)

	acc := wsframe.NewAccumulator()
	acc.Append(leftover) // bytes read past the handshake headers, if any

	sink := func(n mcp.Request) {
		payload, err := json.Marshal(n)
		if err != nil {
			return
		}
		conn.Write(wsframe.BuildFrame(wsframe.OpBinary, payload))
	}
	p.Shared.SetNotificationSink(sink)
	defer p.Shared.ClearNotificationSink(sink)

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			acc.Append(buf[:n])
			for {
				res, perr := acc.Next()
				if perr != nil {
					log.Printf("proxy: websocket frame: %v", perr)
					return
				}
				if res.Status == wsframe.TooShort {
					break
				}
				if res.Status == wsframe.Closed {
					return
				}
				p.dispatchWSMessage(conn, res.Payload)
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Proxy) dispatchWSMessage(conn net.Conn, payload []byte) {
	var req mcp.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	resp := p.Handle(req)
	if resp == nil {
		return
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return
	}
	conn.Write(wsframe.BuildFrame(wsframe.OpBinary, out))
}

// readHandshake parses the HTTP upgrade request line/headers by hand (the
// same minimal style as httpmin, specialized to the GET /... Upgrade:
// websocket shape) and returns the Sec-WebSocket-Key plus any leftover body
// bytes the bufio.Reader had already buffered past the blank line. Those
// leftover bytes must be handed to the frame parser before further reads,
// since a client can pipeline its first WebSocket frame right after the
// handshake.
func readHandshake(r *bufio.Reader) (key string, leftover []byte, err error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] != "GET" {
		return "", nil, fmt.Errorf("expected GET request line, got %q", line)
	}

	headers := map[string]string{}
	for {
		hline, err := r.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		hline = strings.TrimRight(hline, "\r\n")
		if hline == "" {
			break
		}
		idx := strings.IndexByte(hline, ':')
		if idx < 0 {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(hline[:idx]))] = strings.TrimSpace(hline[idx+1:])
	}

	if strings.ToLower(headers["upgrade"]) != "websocket" {
		return "", nil, fmt.Errorf("missing Upgrade: websocket header")
	}
	key = headers["sec-websocket-key"]
	if key == "" {
		return "", nil, fmt.Errorf("missing Sec-WebSocket-Key header")
	}

	if n := r.Buffered(); n > 0 {
		leftover, _ = r.Peek(n)
		r.Discard(n)
	}
	return key, leftover, nil
}
