package rtc

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

type fakeTarget struct {
	chunks [][]byte
	calls  []string
}

func (f *fakeTarget) Audio(pcm []byte) { f.chunks = append(f.chunks, pcm) }
func (f *fakeTarget) Start()           { f.calls = append(f.calls, "start") }
func (f *fakeTarget) Stop()            { f.calls = append(f.calls, "stop") }
func (f *fakeTarget) Generate()        { f.calls = append(f.calls, "generate") }
func (f *fakeTarget) DoneSpeaking()    { f.calls = append(f.calls, "done") }

func TestChunker_EmitsFixedChunksInOrder(t *testing.T) {
	var c chunker
	ft := &fakeTarget{}
	samples := make([]int16, 960)
	for i := range samples {
		samples[i] = int16(i)
	}
	// 960 samples = 1920 bytes; two pushes cross one chunk boundary.
	c.push(samples, ft.Audio)
	if len(ft.chunks) != 0 {
		t.Fatalf("no chunk expected yet, got %d", len(ft.chunks))
	}
	c.push(samples, ft.Audio)
	if len(ft.chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(ft.chunks))
	}
	chunk := ft.chunks[0]
	if len(chunk) != chunkBytes {
		t.Fatalf("chunk len = %d", len(chunk))
	}
	if got := int16(binary.LittleEndian.Uint16(chunk[2*5:])); got != 5 {
		t.Fatalf("sample 5 = %d", got)
	}
	// Sample 960 of the stream is the first sample of the second push.
	if got := int16(binary.LittleEndian.Uint16(chunk[2*960:])); got != 0 {
		t.Fatalf("sample 960 = %d", got)
	}
	if len(c.pending) != 2*1920-chunkBytes {
		t.Fatalf("pending = %d", len(c.pending))
	}

	// Emitted chunks must not alias the pending buffer.
	before := append([]byte(nil), chunk...)
	c.push(samples, ft.Audio)
	c.push(samples, ft.Audio)
	if string(before) != string(ft.chunks[0]) {
		t.Fatalf("first chunk was overwritten")
	}
}

func TestDispatchCommand(t *testing.T) {
	ft := &fakeTarget{}
	for _, cmd := range []string{"start", " STOP ", "generate", "done-speaking", "done_speaking"} {
		if !dispatchCommand(ft, cmd) {
			t.Fatalf("%q should be accepted", cmd)
		}
	}
	if dispatchCommand(ft, "barge-in") {
		t.Fatalf("unknown command accepted")
	}
	want := []string{"start", "stop", "generate", "done", "done"}
	if len(ft.calls) != len(want) {
		t.Fatalf("calls = %v", ft.calls)
	}
	for i := range want {
		if ft.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", ft.calls, want)
		}
	}
}

func TestParseICEServers(t *testing.T) {
	def := parseICEServers("")
	if len(def) != 1 || def[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("default = %+v", def)
	}
	if got := parseICEServers("not json"); len(got) != 1 || got[0].URLs[0] != def[0].URLs[0] {
		t.Fatalf("invalid json should fall back, got %+v", got)
	}
	got := parseICEServers(`[{"urls":["turn:turn.example.com:3478"],"username":"u","credential":"p"}]`)
	if len(got) != 1 || got[0].URLs[0] != "turn:turn.example.com:3478" || got[0].Username != "u" {
		t.Fatalf("parsed = %+v", got)
	}
}

func TestHandleOffer_RejectsInvalidOffer(t *testing.T) {
	h := NewHandler("")
	for _, offer := range []SessionDescription{{Type: "answer", SDP: "v=0"}, {Type: "offer"}} {
		_, err := h.HandleOffer(context.Background(), "u1", offer, &fakeTarget{})
		if !errors.Is(err, ErrInvalidOffer) {
			t.Fatalf("err = %v, want ErrInvalidOffer", err)
		}
	}
}
