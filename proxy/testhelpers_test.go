package proxy_test

import (
	"net"
	"testing"
	"time"

	"github.com/mathe42/comlink2/transport"
)

// reserveTestAddress picks a free loopback port and hands back its address
// with nothing listening on it yet; transport.Listen is expected to bind it
// next. There's an unavoidable small race between releasing the port here
// and rebinding it, acceptable for a test helper.
func reserveTestAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func dialWithRetry(t *testing.T, addr string) *transport.TCPJSONEndpoint {
	t.Helper()
	var last error
	for i := 0; i < 50; i++ {
		ep, err := transport.Dial(addr)
		if err == nil {
			return ep
		}
		last = err
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", addr, last)
	return nil
}
