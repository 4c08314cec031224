// Package mcp implements the JSON-RPC/MCP dispatcher: the method table
// mapping initialize, tools/list, tools/call, and notifications onto
// registry.Registry operations.
//
// The envelope shapes here follow plain JSON-RPC 2.0, dispatching against
// this repo's own registry.Registry instead of a private tools map, and
// carrying response.Response content instead of arbitrary
// map[string]interface{}.
package mcp

import (
	"encoding/json"

	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
)

// Request is an incoming JSON-RPC request or notification. ID is nil for a
// notification, which expects no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether req expects no response.
func (r Request) IsNotification() bool { return r.ID == nil }

// Response is an outgoing JSON-RPC response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the JSON-RPC 2.0 error object shape.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes used by this dispatcher.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

const protocolVersion = "2025-06-18"

// ServerInfo names this server in the initialize response. The proxy's
// serverInfo.name is fixed to "exfiltrate"; the embedded-server dispatcher
// reuses the same identity since both speak the same protocol.
var ServerInfo = struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}{Name: "exfiltrate", Version: "0.1.0"}

// toolsCallParams is the shape of tools/call's params object.
type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Dispatcher maps MCP methods onto a registry.Registry.
type Dispatcher struct {
	registry *registry.Registry

	// OnInitialized, if set, is invoked exactly once the first time
	// notifications/initialized is dispatched. Typical use: flushing a
	// buffered notification sink once the client has finished its own
	// handshake.
	OnInitialized func()
	firedInit     bool
}

// New returns a Dispatcher serving reg.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Handle processes one request and returns the response to send, or nil if
// req was a notification (no response expected).
func (d *Dispatcher) Handle(req Request) *Response {
	switch req.Method {
	case "initialize":
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"protocolVersion": protocolVersion,
				"capabilities": map[string]any{
					"tools": map[string]any{"listChanged": true},
				},
				"serverInfo": ServerInfo,
			},
		}
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(req)
	case "notifications/initialized":
		if !d.firedInit {
			d.firedInit = true
			if d.OnInitialized != nil {
				d.OnInitialized()
			}
		}
		return nil
	default:
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (d *Dispatcher) handleToolsList(req Request) *Response {
	entries := d.registry.List()
	tools := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		schema := e.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, map[string]any{
			"name":        e.Name,
			"description": e.FullDescription,
			"inputSchema": schema,
		})
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": tools}}
}

func (d *Dispatcher) handleToolsCall(req Request) *Response {
	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
		}
	}

	entry, ok := d.registry.Lookup(params.Name)
	if !ok {
		return errorResponse(req.ID, CodeInvalidParams, "unknown tool: "+params.Name)
	}

	args := make(registry.Args, len(params.Arguments))
	for k, v := range params.Arguments {
		args[k] = stringify(v)
	}

	resp, err := entry.Handler.Execute(args)
	if err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"isError": true,
				"content": []map[string]any{{"type": "text", "text": err.Error()}},
			},
		}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: toolContent(resp)}
}

// toolContent renders a response.Response as MCP tool-call content.
// Attachment-bearing kinds are summarized as text, since MCP's tools/call
// result is a single JSON document, not a multi-frame wire transfer; the
// attachment-splitting story (response.Split/Merge) applies only to the
// CLI channel's framed wire.
func toolContent(resp response.Response) map[string]any {
	switch resp.Kind {
	case response.KindString:
		return map[string]any{"content": []map[string]any{{"type": "text", "text": resp.Text}}}
	case response.KindBytes:
		return map[string]any{"content": []map[string]any{{"type": "text", "text": jsonBytesSummary(len(resp.Bytes))}}}
	case response.KindFiles:
		items := make([]map[string]any, len(resp.Files))
		for i, f := range resp.Files {
			items[i] = map[string]any{"type": "text", "text": fileSummary(f)}
		}
		return map[string]any{"content": items}
	case response.KindImages:
		items := make([]map[string]any, len(resp.Images))
		for i, img := range resp.Images {
			items[i] = map[string]any{"type": "text", "text": imageSummary(img)}
		}
		return map[string]any{"content": items}
	default:
		return map[string]any{"content": []map[string]any{{"type": "text", "text": ""}}}
	}
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
