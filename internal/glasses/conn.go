// Package glasses bridges one heads-up device websocket: PCM audio and button
// events flow in, display text flows out.
package glasses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/hudlink/internal/display"
)

const (
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 25 * time.Second
)

var errClosed = errors.New("glasses: connection closed")

// Event is a JSON control frame sent by the device.
type Event struct {
	Type     string `json:"type"`
	Button   string `json:"button,omitempty"`
	Press    string `json:"press,omitempty"`
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
	Code     string `json:"code,omitempty"`
}

// Device event types.
const (
	EventButton       = "button"
	EventDoneSpeaking = "done_speaking"
	EventLanguage     = "language"
)

// Handler receives inbound device traffic. Methods are called from the read loop.
type Handler interface {
	OnAudio(pcm []byte)
	OnEvent(ev Event)
}

type displayFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Conn is a display.Transport backed by a device websocket.
type Conn struct {
	id   string
	user string
	ws   *websocket.Conn

	state atomic.Int32

	mu      sync.Mutex
	pending *string
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

var _ display.Transport = (*Conn)(nil)

// New wraps an upgraded websocket. Call Run to start serving it.
func New(id, user string, ws *websocket.Conn) *Conn {
	c := &Conn{
		id:   id,
		user: user,
		ws:   ws,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	c.state.Store(int32(display.StateConnecting))
	return c
}

// State reports the connection health.
func (c *Conn) State() display.ConnState { return display.ConnState(c.state.Load()) }

// ShowText queues text for the device. Only the latest pending text is kept,
// so a slow device never stalls the caller.
func (c *Conn) ShowText(_ context.Context, text string) error {
	if c.State() == display.StateClosed {
		return errClosed
	}
	c.mu.Lock()
	c.pending = &text
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed when the connection has shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close shuts the connection down. It is idempotent.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.state.Store(int32(display.StateClosed))
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Run serves the connection until the device disconnects or ctx ends.
func (c *Conn) Run(ctx context.Context, h Handler) {
	c.state.Store(int32(display.StateOpen))
	go c.writePump(ctx)
	defer func() { _ = c.Close() }()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] glasses %s read error: %v", c.user, c.id, err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		switch mt {
		case websocket.BinaryMessage:
			if len(data) > 0 {
				h.OnAudio(data)
			}
		case websocket.TextMessage:
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Printf("[%s] glasses %s: bad event frame: %v", c.user, c.id, err)
				continue
			}
			h.OnEvent(ev)
		}
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.Close()
			return
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[%s] glasses %s ping failed: %v", c.user, c.id, err)
				_ = c.Close()
				return
			}
		case <-c.wake:
			c.mu.Lock()
			text := c.pending
			c.pending = nil
			c.mu.Unlock()
			if text == nil {
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(displayFrame{Type: "display", Text: *text}); err != nil {
				log.Printf("[%s] glasses %s display write failed: %v", c.user, c.id, err)
				_ = c.Close()
				return
			}
		}
	}
}
