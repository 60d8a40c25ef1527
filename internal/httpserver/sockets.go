package httpserver

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/hudlink/internal/agent"
	"github.com/chadiek/hudlink/internal/glasses"
)

const observeWriteTimeout = 5 * time.Second

// observe pushes the user's entry once on connect and again on every change.
func (s *Server) observe(c echo.Context) error {
	user := c.Param("userId")
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("[%s] observe upgrade failed: %v", user, err)
		return nil
	}
	id := uuid.NewString()[:8]
	defer ws.Close()

	changed, unsubscribe := s.store.Subscribe(user)
	defer unsubscribe()

	// Observers only listen; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := func() bool {
		entry, _ := s.store.Get(user)
		_ = ws.SetWriteDeadline(time.Now().Add(observeWriteTimeout))
		if err := ws.WriteJSON(entry); err != nil {
			log.Printf("[%s] observer %s write failed: %v", user, id, err)
			return false
		}
		return true
	}
	if !push() {
		return nil
	}
	for {
		select {
		case <-changed:
			if !push() {
				return nil
			}
		case <-gone:
			return nil
		case <-s.ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return nil
		}
	}
}

// glasses serves a heads-up device. The device's session lives as long as
// its connection.
func (s *Server) glasses(c echo.Context) error {
	user := c.QueryParam("userId")
	if user == "" {
		return errorJSON(c, http.StatusBadRequest, "userId is required")
	}
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("[%s] glasses upgrade failed: %v", user, err)
		return nil
	}
	conn := glasses.New(uuid.NewString()[:8], user, ws)
	sess := s.sessions.Open(s.ctx, user, conn)
	log.Printf("[%s] glasses connected", user)

	go func() {
		select {
		case <-sess.Done():
			_ = conn.Close()
		case <-conn.Done():
		}
	}()
	conn.Run(s.ctx, deviceHandler{sess: sess})

	if cur, ok := s.sessions.Get(user); ok && cur == sess {
		s.sessions.End(user)
	}
	log.Printf("[%s] glasses disconnected", user)
	return nil
}

// deviceHandler routes device traffic into a session.
type deviceHandler struct {
	sess *agent.Session
}

func (h deviceHandler) OnAudio(pcm []byte) { h.sess.Audio(pcm) }

func (h deviceHandler) OnEvent(ev glasses.Event) {
	switch ev.Type {
	case glasses.EventButton:
		press := ev.Press
		if press == "" {
			press = agent.PressShort
		}
		h.sess.Button(ev.Button, press)
	case glasses.EventDoneSpeaking:
		h.sess.DoneSpeaking()
	case glasses.EventLanguage:
		h.sess.SetLanguage(ev.Language, ev.Code)
	}
}

var _ glasses.Handler = deviceHandler{}
