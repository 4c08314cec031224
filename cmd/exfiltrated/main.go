// exfiltrated is the embedded debugging/tool-invocation server, run as a
// standalone demo host process.
//
// Usage:
//
//	exfiltrated [--addr 127.0.0.1:1337] [--proxy 127.0.0.1:1985]
//
// A real host application embeds internal/server directly; this binary
// exists so the whole system (CLI/host wire, MCP dispatch, proxy) can be
// exercised end-to-end without writing a throwaway embedder each time.
package main

import (
	"flag"
	"log"
	"net"

	"github.com/drewcrawford/exfiltrate-sub000/internal/debugtools"
	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
	"github.com/drewcrawford/exfiltrate-sub000/internal/server"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:1337", "loopback address to bind (CLI/host default port 1337)")
	proxyAddr := flag.String("proxy", "", "if set, connect outward to an exfiltrate-proxy upstream listener instead of binding addr (sandboxed/browser mode, default port 1985)")
	flag.Parse()

	reg := registry.New()
	if err := registry.RegisterBuiltins(reg, true); err != nil {
		log.Fatalf("register builtins: %v", err)
	}
	if err := reg.Add(debugtools.NewExecEntry()); err != nil {
		log.Fatalf("register exec: %v", err)
	}
	if err := reg.Add(registry.Entry{
		Name:             "hello",
		ShortDescription: "returns a fixed greeting",
		FullDescription:  "hello returns the fixed string \"hello world\", useful as a connectivity smoke test.",
		Handler: registry.HandlerFunc(func(registry.Args) (response.Response, error) {
			return response.String("hello world"), nil
		}),
	}); err != nil {
		log.Fatalf("register hello: %v", err)
	}

	if *proxyAddr != "" {
		log.Printf("exfiltrated: connecting outward to proxy at %s", *proxyAddr)
		log.Fatal(server.ConnectOutbound(*proxyAddr, reg))
	}

	// Security posture: loopback only, no auth. Binding to an address the
	// caller explicitly chose still requires it to be loopback; we do not
	// fall back to 0.0.0.0.
	host, _, err := net.SplitHostPort(*addr)
	if err != nil {
		log.Fatalf("invalid --addr %q: %v", *addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		log.Fatalf("refusing to bind non-loopback address %s", *addr)
	}
	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("exfiltrated: listening on %s", ln.Addr())

	srv := server.New(reg)
	if err := srv.Serve(ln); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
