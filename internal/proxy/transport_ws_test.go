package proxy

import (
	"bufio"
	"strings"
	"testing"
)

func TestReadHandshakeExtractsKeyAndLeftover(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n" +
		"leftover-bytes"

	key, leftover, err := readHandshake(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("readHandshake: %v", err)
	}
	if key != "dGhlIHNhbXBsZSBub25jZQ==" {
		t.Fatalf("key: got %q", key)
	}
	if string(leftover) != "leftover-bytes" {
		t.Fatalf("leftover: got %q, want %q", leftover, "leftover-bytes")
	}
}

func TestReadHandshakeRejectsMissingUpgradeHeader(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: localhost\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	if _, _, err := readHandshake(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatal("expected an error for a missing Upgrade header")
	}
}

func TestReadHandshakeRejectsMissingKey(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"
	if _, _, err := readHandshake(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatal("expected an error for a missing Sec-WebSocket-Key")
	}
}

func TestReadHandshakeRejectsNonGET(t *testing.T) {
	raw := "POST / HTTP/1.1\r\n\r\n"
	if _, _, err := readHandshake(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatal("expected an error for a non-GET request line")
	}
}
