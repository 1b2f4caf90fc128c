package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInmemEndpointDeliversAcrossThePair(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()

	received := make(chan interface{}, 1)
	b.Subscribe(func(msg interface{}) { received <- msg })

	require.NoError(t, a.Post("hello"))
	assert.Equal(t, "hello", <-received)
}

func TestInmemEndpointFansOutToEveryHandler(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()

	var first, second []interface{}
	b.Subscribe(func(msg interface{}) { first = append(first, msg) })
	b.Subscribe(func(msg interface{}) { second = append(second, msg) })

	require.NoError(t, a.Post(1))

	assert.Equal(t, []interface{}{1}, first)
	assert.Equal(t, []interface{}{1}, second)
}

func TestInmemEndpointUnsubscribeStopsDelivery(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()

	var got []interface{}
	unsub := b.Subscribe(func(msg interface{}) { got = append(got, msg) })
	unsub()

	require.NoError(t, a.Post("ignored"))
	assert.Empty(t, got)
}

func TestInmemEndpointPostAfterCloseFails(t *testing.T) {
	a, b := NewPair()
	b.Close()

	err := a.Post("nope")
	assert.ErrorIs(t, err, ErrClosed)
}
