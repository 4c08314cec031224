package server

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/drewcrawford/exfiltrate-sub000/internal/mcp"
	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
	"github.com/drewcrawford/exfiltrate-sub000/internal/wire"
)

func TestDispatchOutboundWritesResponse(t *testing.T) {
	reg := registry.New()
	if err := reg.Add(registry.Entry{
		Name:        "ping",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: registry.HandlerFunc(func(registry.Args) (response.Response, error) {
			return response.String("pong"), nil
		}),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	dispatcher := mcp.New(reg)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	params, _ := json.Marshal(map[string]any{"name": "ping", "arguments": map[string]any{}})
	req, _ := json.Marshal(mcp.Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})

	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatchOutbound(server, dispatcher, req)
	}()

	acc := wire.NewAccumulator(wire.ProxyEndian)
	var payload []byte
	for {
		result, err := acc.ReadStream(client)
		if err != nil {
			t.Fatalf("ReadStream: %v", err)
		}
		if result.Status == wire.Completed {
			payload = result.Payload
			break
		}
	}
	<-done

	var resp mcp.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestDispatchOutboundNotificationWritesNothing(t *testing.T) {
	dispatcher := mcp.New(registry.New())
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	req, _ := json.Marshal(mcp.Request{JSONRPC: "2.0", Method: "notifications/initialized"})

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		client.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, err := client.Read(buf)
		readErr <- err
	}()

	if !dispatchOutbound(server, dispatcher, req) {
		t.Fatal("expected dispatchOutbound to report the link as still healthy")
	}

	err := <-readErr
	if err == nil {
		t.Fatal("expected a read timeout since no response should be written for a notification")
	}
}
