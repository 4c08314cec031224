package proxy

import (
	"bufio"
	"encoding/json"
	"net"
	"strings"
	"testing"

	"github.com/drewcrawford/exfiltrate-sub000/internal/mcp"
	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
)

func TestSplitLines(t *testing.T) {
	got := splitLines([]byte("a\nb\nc"))
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSplitLinesNoTrailingNewline(t *testing.T) {
	got := splitLines([]byte("only-line"))
	if len(got) != 1 || got[0] != "only-line" {
		t.Fatalf("got %v, want [only-line]", got)
	}
}

func TestHandlePostRoundTrip(t *testing.T) {
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
	p := New(reg, registry.New())

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	params, _ := json.Marshal(map[string]any{"name": "ping", "arguments": map[string]any{}})
	body, _ := json.Marshal(mcp.Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.handlePost(server, body)
	}()

	r := bufio.NewReader(client)
	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if !strings.Contains(statusLine, "200") {
		t.Fatalf("status line: %q", statusLine)
	}

	// Drain the remaining headers/body so handlePost's later Write calls
	// (which net.Pipe blocks until read) can complete.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	}()

	<-done
	client.Close()
	<-drained
}
