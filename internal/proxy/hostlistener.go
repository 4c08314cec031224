package proxy

import (
	"log"
	"net"
	"time"

	"github.com/drewcrawford/exfiltrate-sub000/internal/wire"
)

// ServeHost accepts connections from the embedded host on l and drives each
// one as the current authoritative hostLink. Reconnection of a new host is
// permitted; the most recent connection is authoritative. It never returns
// until l is closed or accept fails.
func (p *Proxy) ServeHost(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go p.runHostConn(conn)
	}
}

func (p *Proxy) runHostConn(conn net.Conn) {
	defer conn.Close()

	link := newHostLink(func(payload []byte) error {
		return wire.WriteFrame(conn, wire.ProxyEndian, payload)
	})
	p.Shared.SetHostLink(link)
	defer func() {
		link.close()
		p.Shared.ClearHostLink(link)
	}()

	acc := wire.NewAccumulator(wire.ProxyEndian)
	for {
		result, err := acc.ReadStream(conn)
		if err != nil {
			log.Printf("proxy: host connection read: %v", err)
			return
		}
		switch result.Status {
		case wire.Completed:
			link.deliver(result.Payload, p.Shared)
		case wire.WouldBlock:
			time.Sleep(10 * time.Millisecond)
		case wire.Progress:
			// host→proxy messages are JSON-RPC text, not expected to be
			// large enough to warrant progress reporting; keep reading.
		}
	}
}
