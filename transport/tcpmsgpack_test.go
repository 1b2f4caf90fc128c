package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTCPMsgpackEndpointRoundTrip(t *testing.T) {
	raw, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := raw.Addr().String()
	raw.Close()

	serverCh := make(chan *TCPMsgpackEndpoint, 1)
	go func() {
		_ = ListenMsgpack(addr, func(ep *TCPMsgpackEndpoint) { serverCh <- ep })
	}()

	var client *TCPMsgpackEndpoint
	for i := 0; i < 50; i++ {
		client, err = DialMsgpack(addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer client.Close()

	var server *TCPMsgpackEndpoint
	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server side to accept")
	}
	defer server.Close()

	received := make(chan interface{}, 1)
	server.Subscribe(func(msg interface{}) { received <- msg })

	require.NoError(t, client.Post(map[string]interface{}{"id": 1, "type": "call"}))

	select {
	case msg := <-received:
		m, ok := msg.(map[string]interface{})
		require.True(t, ok, "expected a decoded map, got %T", msg)
		require.Equal(t, "call", m["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the message to cross the connection")
	}
}
