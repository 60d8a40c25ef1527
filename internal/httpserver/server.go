package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/hudlink/internal/agent"
	hudmw "github.com/chadiek/hudlink/internal/middleware"
	"github.com/chadiek/hudlink/internal/rtc"
	"github.com/chadiek/hudlink/internal/state"
)

// Options configure the HTTP surface.
type Options struct {
	ControlToken   string
	ICEServersJSON string
}

// Server bundles the HTTP router and the collaborators its handlers use.
type Server struct {
	Router http.Handler

	ctx      context.Context
	sessions *agent.Registry
	store    *state.Store
	rtc      *rtc.Handler
	upgrader websocket.Upgrader
}

// New constructs the HTTP server with routes. Sessions opened through it
// live until their device disconnects, they are ended, or ctx is cancelled.
func New(ctx context.Context, opts Options, sessions *agent.Registry, store *state.Store) *Server {
	s := &Server{
		ctx:      ctx,
		sessions: sessions,
		store:    store,
		rtc:      rtc.NewHandler(opts.ICEServersJSON),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	e := newRouter()
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	auth := hudmw.ControlToken(opts.ControlToken)
	api := e.Group("/api/sessions/:userId", auth)
	api.POST("/control", s.control)
	api.GET("/state", s.state)
	api.GET("/observe", s.observe)
	api.POST("/webrtc", s.webrtc)
	e.POST("/android-control", s.androidControl, auth)
	e.GET("/glasses/ws", s.glasses, auth)

	s.Router = e
	return s
}

type controlRequest struct {
	Action    string `json:"action"`
	Text      string `json:"text"`
	Index     int    `json:"index"`
	Direction string `json:"direction"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	Intent    string `json:"intent"`
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

func (s *Server) control(c echo.Context) error {
	user := c.Param("userId")
	var req controlRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))

	var sess *agent.Session
	switch action {
	case "start", "language", "intent":
		sess = s.sessions.Ensure(s.ctx, user)
	default:
		got, ok := s.sessions.Get(user)
		if !ok {
			return errorJSON(c, http.StatusNotFound, "no active session")
		}
		sess = got
	}

	switch action {
	case "start":
		sess.Start()
	case "stop":
		sess.Stop()
	case "generate":
		sess.Generate()
	case "select":
		sess.Select(req.Text)
	case "select_index":
		sess.SelectIndex(req.Index)
	case "cycle":
		sess.Cycle(req.Direction)
	case "done_speaking":
		sess.DoneSpeaking()
	case "language":
		if strings.TrimSpace(req.Code) == "" {
			return errorJSON(c, http.StatusBadRequest, "code is required")
		}
		sess.SetLanguage(req.Language, req.Code)
	case "intent":
		sess.SetIntent(req.Intent)
	default:
		return errorJSON(c, http.StatusBadRequest, "unknown action")
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "ok"})
}

type androidRequest struct {
	UserID    string `json:"userId"`
	Action    string `json:"action"`
	Direction string `json:"direction"`
}

// androidControl serves the companion app's volume-button bridge.
func (s *Server) androidControl(c echo.Context) error {
	var req androidRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return errorJSON(c, http.StatusBadRequest, "userId is required")
	}
	sess, ok := s.sessions.Get(req.UserID)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "no active session")
	}
	switch req.Action {
	case "select":
		sess.Select("")
	case "cycle":
		if req.Direction != "up" && req.Direction != "down" {
			return errorJSON(c, http.StatusBadRequest, "direction must be up or down")
		}
		sess.Cycle(req.Direction)
	default:
		return errorJSON(c, http.StatusBadRequest, "unknown action")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) state(c echo.Context) error {
	entry, ok := s.store.Get(c.Param("userId"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "no state")
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) webrtc(c echo.Context) error {
	user := c.Param("userId")
	var offer rtc.SessionDescription
	if err := c.Bind(&offer); err != nil {
		log.Printf("[%s] invalid offer: %v", user, err)
		return errorJSON(c, http.StatusBadRequest, "invalid offer")
	}
	if offer.Type != "offer" || strings.TrimSpace(offer.SDP) == "" {
		return errorJSON(c, http.StatusBadRequest, rtc.ErrInvalidOffer.Error())
	}
	sess := s.sessions.Ensure(s.ctx, user)

	// The peer outlives the request; it is torn down with the session.
	ctx, cancel := context.WithCancel(s.ctx)
	go func() {
		select {
		case <-sess.Done():
		case <-ctx.Done():
		}
		cancel()
	}()
	answer, err := s.rtc.HandleOffer(ctx, user, offer, sess)
	if err != nil {
		cancel()
		if errors.Is(err, rtc.ErrInvalidOffer) {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
		log.Printf("[%s] webrtc handle offer failed: %v", user, err)
		return errorJSON(c, http.StatusInternalServerError, "webrtc negotiation failed")
	}
	return c.JSON(http.StatusOK, answer)
}
