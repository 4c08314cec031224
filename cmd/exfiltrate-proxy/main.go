// exfiltrate-proxy is the standalone transit proxy.
//
// Usage:
//
//	exfiltrate-proxy [--host-addr 127.0.0.1:1985] [--http-addr 127.0.0.1:1984]
//	                  [--ws-addr 127.0.0.1:1338] [--stdio] [--tools tools.yaml]
//
// --stdio replaces the downstream listeners (--http-addr, --ws-addr): stdio
// owns the process's stdin/stdout and serves as the only downstream
// session. The host listener on --host-addr runs in both modes.
package main

import (
	"flag"
	"log"
	"net"
	"os"

	"github.com/drewcrawford/exfiltrate-sub000/internal/proxy"
	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
)

func main() {
	hostAddr := flag.String("host-addr", "127.0.0.1:1985", "loopback address the embedded host connects to")
	httpAddr := flag.String("http-addr", "127.0.0.1:1984", "loopback address for downstream HTTP+SSE")
	wsAddr := flag.String("ws-addr", "127.0.0.1:1338", "loopback address for downstream WebSocket")
	stdio := flag.Bool("stdio", false, "serve a single downstream session over stdin/stdout instead of the network listeners")
	toolsPath := flag.String("tools", "tools.yaml", "optional proxy-only tool manifest")
	flag.Parse()

	proxyOnly, err := proxy.LoadToolManifest(*toolsPath)
	if err != nil {
		log.Fatalf("load tool manifest: %v", err)
	}
	shared := registry.New() // tools this proxy and a connected host both expose identically; empty by default.

	p := proxy.New(proxyOnly, shared)

	hostLn, err := net.Listen("tcp", *hostAddr)
	if err != nil {
		log.Fatalf("listen (host): %v", err)
	}
	go func() {
		log.Printf("exfiltrate-proxy: awaiting host on %s", hostLn.Addr())
		if err := p.ServeHost(hostLn); err != nil {
			log.Printf("host listener: %v", err)
		}
	}()

	if *stdio {
		if err := p.ServeStdio(os.Stdin, os.Stdout); err != nil {
			log.Fatalf("stdio: %v", err)
		}
		return
	}

	httpLn, err := net.Listen("tcp", *httpAddr)
	if err != nil {
		log.Fatalf("listen (http): %v", err)
	}
	go func() {
		log.Printf("exfiltrate-proxy: HTTP+SSE on %s", httpLn.Addr())
		if err := p.ServeHTTP(httpLn); err != nil {
			log.Printf("http listener: %v", err)
		}
	}()

	wsLn, err := net.Listen("tcp", *wsAddr)
	if err != nil {
		log.Fatalf("listen (ws): %v", err)
	}
	log.Printf("exfiltrate-proxy: WebSocket on %s", wsLn.Addr())
	if err := p.ServeWebSocket(wsLn); err != nil {
		log.Fatalf("ws listener: %v", err)
	}
}
