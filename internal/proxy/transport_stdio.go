package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/drewcrawford/exfiltrate-sub000/internal/mcp"
)

// ServeStdio serves a single downstream session over line-delimited JSON on
// in/out: one JSON-RPC message per line in, responses and notifications
// written one per line, flushed after each. Mutually exclusive with the
// listener-based transports since stdio owns the process's stdin/stdout.
func (p *Proxy) ServeStdio(in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	sink := func(n mcp.Request) {
		writeLine(w, n)
	}
	p.Shared.SetNotificationSink(sink)
	defer p.Shared.ClearNotificationSink(sink)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req mcp.Request
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		if resp := p.Handle(req); resp != nil {
			writeLine(w, resp)
		}
	}
	return scanner.Err()
}

func writeLine(w *bufio.Writer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s\n", b)
	w.Flush()
}
