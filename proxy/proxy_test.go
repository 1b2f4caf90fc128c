package proxy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathe42/comlink2/dispatch"
	"github.com/mathe42/comlink2/proxy"
	"github.com/mathe42/comlink2/transport"
)

type greeter struct{}

func (greeter) Greet(name string) string { return "hello, " + name }

func (greeter) NewSession(owner string) *session { return &session{owner: owner} }

type session struct{ owner string }

func (s *session) Owner() string { return s.owner }

func TestEndToEndOverInmemTransport(t *testing.T) {
	serverEP, clientEP := transport.NewPair()
	defer serverEP.Close()
	defer clientEP.Close()

	stop, err := dispatch.Expose(greeter{}, serverEP)
	require.NoError(t, err)
	defer stop()

	root := proxy.Wrap(clientEP)
	defer root.StopClient()

	greeting, err := root.Get("Greet").Call("gopher")
	require.NoError(t, err)
	assert.Equal(t, "hello, gopher", greeting)

	sessVal, err := root.Get("NewSession").Construct("alice")
	require.NoError(t, err)
	sess, ok := sessVal.(*proxy.Proxy)
	require.True(t, ok, "expected Construct to yield a wrapped proxy")
	defer sess.Release()

	owner, err := sess.Get("Owner").Call()
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
}

func TestEndToEndOverTCPTransport(t *testing.T) {
	addr := reserveTestAddress(t)

	serverReady := make(chan *transport.TCPJSONEndpoint, 1)
	go func() {
		_ = transport.Listen(addr, func(ep *transport.TCPJSONEndpoint) {
			serverReady <- ep
		})
	}()

	client := dialWithRetry(t, addr)
	defer client.Close()

	server := <-serverReady
	defer server.Close()

	stop, err := dispatch.Expose(greeter{}, server)
	require.NoError(t, err)
	defer stop()

	root := proxy.Wrap(client)
	defer root.StopClient()

	greeting, err := root.Get("Greet").Call("tcp")
	require.NoError(t, err)
	assert.Equal(t, "hello, tcp", greeting)
}
