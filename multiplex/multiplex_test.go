package multiplex

import (
	"testing"

	"github.com/mathe42/comlink2/transport"
)

func TestSubChannelFramesAndFilters(t *testing.T) {
	base, peer := transport.NewPair()
	defer base.Close()
	defer peer.Close()

	chanA := New(base, "A")
	chanB := New(base, "B")

	var gotA, gotB []interface{}
	chanA.Subscribe(func(msg interface{}) { gotA = append(gotA, msg) })
	chanB.Subscribe(func(msg interface{}) { gotB = append(gotB, msg) })

	derivedOnPeer := New(peer, "A")
	if err := derivedOnPeer.Post("for-a"); err != nil {
		t.Fatalf("post: %v", err)
	}

	if len(gotA) != 1 || gotA[0] != "for-a" {
		t.Errorf("expected channel A to receive the frame, got %v", gotA)
	}
	if len(gotB) != 0 {
		t.Errorf("expected channel B to see nothing, got %v", gotB)
	}
}

func TestBareStreamMessageInvisibleToSubChannel(t *testing.T) {
	base, peer := transport.NewPair()
	defer base.Close()
	defer peer.Close()

	derived := New(base, "tag-1")
	var got []interface{}
	derived.Subscribe(func(msg interface{}) { got = append(got, msg) })

	if err := peer.Post(map[string]interface{}{"id": 1, "type": "call", "keyChain": []string{}, "args": []interface{}{}}); err != nil {
		t.Fatalf("post: %v", err)
	}

	if len(got) != 0 {
		t.Errorf("expected a bare-stream message to be invisible to a sub-channel, got %v", got)
	}
}

func TestRegistryReusesDerivedEndpoint(t *testing.T) {
	base, _ := transport.NewPair()
	defer base.Close()

	reg := NewRegistry(base)
	a1 := reg.Get("x")
	a2 := reg.Get("x")
	b := reg.Get("y")

	if a1 != a2 {
		t.Errorf("expected repeated Get for the same tag to return the identical endpoint")
	}
	if a1 == b {
		t.Errorf("expected different tags to yield different endpoints")
	}
}
