package wire

import (
	"encoding/json"
	"testing"
)

func TestEncodedValueInline(t *testing.T) {
	ev := Inline(42)
	if ev.IsWrapped() {
		t.Errorf("Inline value reported as wrapped")
	}
	if ev.Type != "any" {
		t.Errorf("expected type %q, got %q", "any", ev.Type)
	}
}

func TestEncodedValueWrapped(t *testing.T) {
	ev := Wrapped("chan-1")
	if !ev.IsWrapped() {
		t.Errorf("Wrapped value not reported as wrapped")
	}
	if ev.Type != "wraped" {
		t.Errorf("expected the on-wire spelling %q, got %q", "wraped", ev.Type)
	}
}

func TestRequestRoundTripsEmptyKeyChainAndArgs(t *testing.T) {
	req := Request{ID: 1, Type: TypeCall, KeyChain: []string{}, Args: []EncodedValue{}}

	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal into envelope: %v", err)
	}

	if env.KeyChain == nil {
		t.Errorf("expected an explicit empty keyChain, got nil (field was likely omitted)")
	}
	if env.Args == nil {
		t.Errorf("expected an explicit empty args array, got nil (field was likely omitted)")
	}
}

func TestEnvelopeHasChannel(t *testing.T) {
	frame := ChannelFrame{Channel: "tag-1", Payload: map[string]interface{}{"type": "any", "data": 1}}
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !env.HasChannel() {
		t.Errorf("expected envelope to report a channel frame")
	}

	var bare Envelope
	if err := json.Unmarshal([]byte(`{"id":1,"type":"call","keyChain":[],"args":[]}`), &bare); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if bare.HasChannel() {
		t.Errorf("bare request message should not be classified as a channel frame")
	}
}
