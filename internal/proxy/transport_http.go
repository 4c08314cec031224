package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/drewcrawford/exfiltrate-sub000/internal/httpmin"
	"github.com/drewcrawford/exfiltrate-sub000/internal/mcp"
)

// ServeHTTP accepts downstream HTTP+SSE connections on l. Each connection
// is parsed with httpmin and handled by exactly one of the two recognized
// dispositions; anything else was already rejected by httpmin.Parse with
// the appropriate status.
func (p *Proxy) ServeHTTP(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go p.handleHTTPConn(conn)
	}
}

func (p *Proxy) handleHTTPConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	req, err := httpmin.Parse(r)
	if err != nil {
		writeHTTPRejection(conn, err)
		return
	}

	switch req.Disposition {
	case httpmin.DispositionPost:
		p.handlePost(conn, req.Body)
	case httpmin.DispositionSSE:
		p.handleSSE(conn)
	}
}

func (p *Proxy) handlePost(conn net.Conn, body []byte) {
	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeHTTPStatus(conn, 400, "application/json", []byte(`{"error":"malformed JSON-RPC body"}`))
		return
	}

	resp := p.Handle(req)
	if resp == nil {
		// Notification: acknowledged with 202 Accepted and an empty body.
		writeHTTPStatus(conn, 202, "", nil)
		return
	}

	out, err := json.Marshal(resp)
	if err != nil {
		writeHTTPStatus(conn, 500, "application/json", []byte(`{"error":"internal"}`))
		return
	}
	writeHTTPStatus(conn, 200, "application/json", out)
}

// handleSSE promotes the connection to a long-lived SSE stream. Outbound
// notifications are framed as one or more `data: <line>` lines terminated
// by a blank line.
func (p *Proxy) handleSSE(conn net.Conn) {
	if _, err := io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nCache-Control: no-cache\r\nConnection: keep-alive\r\n\r\n"); err != nil {
		return
	}

	writeErr := make(chan struct{})
	sink := func(n mcp.Request) {
		payload, err := json.Marshal(n)
		if err != nil {
			return
		}
		if err := writeSSEEvent(conn, payload); err != nil {
			select {
			case writeErr <- struct{}{}:
			default:
			}
		}
	}
	p.Shared.SetNotificationSink(sink)
	defer p.Shared.ClearNotificationSink(sink)

	// Block until the peer goes away (read returns EOF/error) or a write
	// failed. On write error the session is dropped; any notifications
	// buffered afterward remain for the next subscriber.
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				select {
				case writeErr <- struct{}{}:
				default:
				}
				return
			}
		}
	}()
	<-writeErr
}

func writeSSEEvent(w io.Writer, payload []byte) error {
	for _, line := range splitLines(payload) {
		if _, err := fmt.Fprintf(w, "data: %s\r\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, string(b[start:i]))
			start = i + 1
		}
	}
	lines = append(lines, string(b[start:]))
	return lines
}

func writeHTTPRejection(conn net.Conn, err error) {
	if rej, ok := err.(*httpmin.Rejection); ok {
		writeHTTPStatus(conn, rej.Status, "text/plain", []byte(rej.Reason))
		return
	}
	if err != io.EOF {
		log.Printf("proxy: http parse: %v", err)
	}
}

func writeHTTPStatus(conn net.Conn, status int, contentType string, body []byte) {
	reason := "OK"
	switch status {
	case 202:
		reason = "Accepted"
	case 400:
		reason = "Bad Request"
	case 404:
		reason = "Not Found"
	case 500:
		reason = "Internal Server Error"
	}
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\n", status, reason)
	if contentType != "" {
		fmt.Fprintf(conn, "Content-Type: %s\r\n", contentType)
	}
	fmt.Fprintf(conn, "Content-Length: %d\r\n\r\n", len(body))
	conn.Write(body)
}
