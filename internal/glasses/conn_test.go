package glasses

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/hudlink/internal/display"
)

type recordingHandler struct {
	mu     sync.Mutex
	audio  [][]byte
	events []Event
}

func (r *recordingHandler) OnAudio(pcm []byte) {
	r.mu.Lock()
	r.audio = append(r.audio, pcm)
	r.mu.Unlock()
}

func (r *recordingHandler) OnEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingHandler) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.audio), len(r.events)
}

func TestConn_RoundTrip(t *testing.T) {
	h := &recordingHandler{}
	connCh := make(chan *Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		c := New("c1", "u1", ws)
		connCh <- c
		c.Run(context.Background(), h)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	c := <-connCh

	if err := client.WriteMessage(websocket.BinaryMessage, []byte{1, 0, 2, 0}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"button","button":"main","press":"short"}`)); err != nil {
		t.Fatalf("write event: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a, e := h.counts(); a == 1 && e == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if a, e := h.counts(); a != 1 || e != 1 {
		t.Fatalf("expected 1 audio and 1 event, got %d/%d", a, e)
	}
	if h.events[0].Button != "main" || h.events[0].Press != "short" {
		t.Fatalf("unexpected event %+v", h.events[0])
	}

	if c.State() != display.StateOpen {
		t.Fatalf("expected open state, got %v", c.State())
	}
	if err := c.ShowText(context.Background(), "hola"); err != nil {
		t.Fatalf("show text: %v", err)
	}
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	var frame displayFrame
	if err := client.ReadJSON(&frame); err != nil {
		t.Fatalf("read display frame: %v", err)
	}
	if frame.Type != "display" || frame.Text != "hola" {
		t.Fatalf("unexpected frame %+v", frame)
	}

	_ = client.Close()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatalf("conn did not close after client left")
	}
	if c.State() != display.StateClosed {
		t.Fatalf("expected closed state")
	}
	if err := c.ShowText(context.Background(), "late"); err == nil {
		t.Fatalf("expected error writing to closed conn")
	}
}
