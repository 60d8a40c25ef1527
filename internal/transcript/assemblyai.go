// Package transcript streams PCM audio to AssemblyAI's v3 realtime API and
// surfaces partial and final transcript events.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultBaseURL is the AssemblyAI streaming host.
const DefaultBaseURL = "https://streaming.assemblyai.com"

// ErrNotConnected is returned when audio arrives for a connection that is idle,
// failed or closed.
var ErrNotConnected = errors.New("transcript: not connected")

// State is the connection state of a Service.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Event is one transcript result.
type Event struct {
	Text    string
	Final   bool
	Speaker string
}

// Options configures a Service.
type Options struct {
	APIKey        string
	TokenTTL      time.Duration
	BaseURL       string
	SpeakerLabels bool
	HTTPClient    *http.Client
}

// AssemblyAI message types
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type          string `json:"type"`
	Transcript    string `json:"transcript"`
	EndOfTurn     bool   `json:"end_of_turn"`
	TurnFormatted bool   `json:"turn_is_formatted"`
	SpeakerLabel  string `json:"speaker_label,omitempty"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Service is one realtime transcription connection. It is single-use:
// after Close or a provider error a new Service is needed.
type Service struct {
	opts   Options
	user   string
	events chan Event
	state  atomic.Int32

	mu     sync.Mutex
	wmu    sync.Mutex
	conn   *websocket.Conn
	queue   [][]byte
	backlog chan [][]byte
	audio   chan []byte
	stopCh chan struct{}
	once   sync.Once
}

// NewService creates an idle service for one user session.
func NewService(user string, opts Options) *Service {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 60 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{
		opts:   opts,
		user:   user,
		events: make(chan Event, 64),
		audio:   make(chan []byte, 1000),
		backlog: make(chan [][]byte, 1),
		stopCh:  make(chan struct{}),
	}
}

// Events delivers transcript events until the connection ends.
func (s *Service) Events() <-chan Event { return s.events }

// State reports the current connection state.
func (s *Service) State() State { return State(s.state.Load()) }

// Connect fetches a temporary token and opens the streaming socket. Audio
// sent before the provider's Begin message is queued and flushed in order.
func (s *Service) Connect(ctx context.Context, languageCode string) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		if s.State() == StateConnecting || s.State() == StateReady {
			return nil
		}
		return ErrNotConnected
	}
	if s.opts.APIKey == "" {
		s.fail()
		return fmt.Errorf("transcript: AssemblyAI API key is empty")
	}

	token, err := s.fetchToken(ctx)
	if err != nil {
		s.fail()
		return err
	}

	wsURL := s.streamURL(token, languageCode)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			log.Printf("[%s] AssemblyAI connection failed with status: %d", s.user, resp.StatusCode)
		}
		s.fail()
		return fmt.Errorf("transcript: connect to AssemblyAI: %w", err)
	}

	s.mu.Lock()
	if s.State() != StateConnecting {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn)
	go s.writeLoop(conn)
	log.Printf("[%s] connected to AssemblyAI (language=%s)", s.user, languageCode)
	return nil
}

func (s *Service) fetchToken(ctx context.Context) (string, error) {
	ttl := int(s.opts.TokenTTL / time.Second)
	u := strings.TrimRight(s.opts.BaseURL, "/") + "/v3/token?expires_in_seconds=" + strconv.Itoa(ttl)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("transcript: token request: %w", err)
	}
	req.Header.Set("Authorization", s.opts.APIKey)
	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcript: token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcript: token request status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("transcript: decode token: %w", err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("transcript: empty token")
	}
	return tr.Token, nil
}

func (s *Service) streamURL(token, languageCode string) string {
	base := strings.TrimRight(s.opts.BaseURL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)

	params := url.Values{}
	params.Set("token", token)
	params.Set("sample_rate", "16000")
	params.Set("encoding", "pcm_s16le")
	params.Set("format_turns", "true")
	params.Set("speech_model", speechModel(languageCode))
	if languageCode != "" {
		params.Set("language", languageCode)
	}
	if s.opts.SpeakerLabels {
		params.Set("speaker_labels", "true")
	}
	return base + "/v3/ws?" + params.Encode()
}

func speechModel(languageCode string) string {
	if languageCode == "" || strings.HasPrefix(strings.ToLower(languageCode), "en") {
		return "universal-streaming-english"
	}
	return "universal-streaming-multilingual"
}

// SendPCM16KLE forwards 16 kHz PCM16LE mono audio.
func (s *Service) SendPCM16KLE(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.State() {
	case StateConnecting:
		s.queue = append(s.queue, pcm)
		return nil
	case StateReady:
		select {
		case s.audio <- pcm:
		default:
			log.Printf("[%s] audio buffer full, dropping packet", s.user)
		}
		return nil
	}
	return ErrNotConnected
}

// Close sends Terminate and closes the socket. It is idempotent.
func (s *Service) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		prev := State(s.state.Swap(int32(StateClosed)))
		conn := s.conn
		s.queue = nil
		close(s.stopCh)
		s.mu.Unlock()
		if conn != nil {
			if prev == StateReady {
				s.wmu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
				_ = conn.WriteJSON(map[string]string{"type": "Terminate"})
				s.wmu.Unlock()
			}
			_ = conn.Close()
		}
		log.Printf("[%s] AssemblyAI connection closed", s.user)
	})
	return nil
}

func (s *Service) fail() {
	s.mu.Lock()
	if s.State() != StateClosed {
		s.state.Store(int32(StateFailed))
	}
	s.queue = nil
	s.mu.Unlock()
}

// markReady flips Connecting to Ready and hands the whole queue to the
// writer, which sends it ahead of any chunk sent afterwards.
func (s *Service) markReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateConnecting {
		return
	}
	s.state.Store(int32(StateReady))
	s.backlog <- s.queue
	s.queue = nil
}

func (s *Service) readLoop(conn *websocket.Conn) {
	defer close(s.events)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.State() != StateClosed {
				log.Printf("[%s] AssemblyAI read error: %v", s.user, err)
				s.fail()
			}
			return
		}
		if !s.processMessage(message) {
			return
		}
	}
}

// processMessage handles one provider message. It returns false when the
// stream is over.
func (s *Service) processMessage(message []byte) bool {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("[%s] AssemblyAI: bad message: %v", s.user, err)
		return true
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("[%s] AssemblyAI: bad Begin message: %v", s.user, err)
			return true
		}
		log.Printf("[%s] AssemblyAI session began: ID=%s, ExpiresAt=%s", s.user, msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
		s.markReady()
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("[%s] AssemblyAI: bad Turn message: %v", s.user, err)
			return true
		}
		text := strings.TrimSpace(msg.Transcript)
		if text == "" {
			return true
		}
		// With format_turns the provider repeats the final turn formatted;
		// the unformatted end-of-turn copy is treated as a partial.
		ev := Event{Text: text, Final: msg.EndOfTurn && msg.TurnFormatted, Speaker: msg.SpeakerLabel}
		select {
		case s.events <- ev:
		case <-s.stopCh:
			return false
		}
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("[%s] AssemblyAI session terminated: AudioDuration=%.2fs, SessionDuration=%.2fs", s.user, msg.AudioDurationSeconds, msg.SessionDurationSeconds)
		}
		return false
	case "Error":
		var msg errorMessage
		_ = json.Unmarshal(message, &msg)
		log.Printf("[%s] AssemblyAI error: %s", s.user, msg.Error)
		s.fail()
		return false
	default:
		log.Printf("[%s] AssemblyAI: unknown message type: %s", s.user, base.Type)
	}
	return true
}

func (s *Service) writeLoop(conn *websocket.Conn) {
	select {
	case <-s.stopCh:
		return
	case queued := <-s.backlog:
		for _, pcm := range queued {
			if !s.write(conn, pcm) {
				return
			}
		}
	}
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audio:
			if !s.write(conn, pcm) {
				return
			}
		}
	}
}

func (s *Service) write(conn *websocket.Conn, pcm []byte) bool {
	if s.State() != StateReady {
		return false
	}
	s.wmu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := conn.WriteMessage(websocket.BinaryMessage, pcm)
	s.wmu.Unlock()
	if err != nil {
		log.Printf("[%s] error sending audio data: %v", s.user, err)
		s.fail()
		return false
	}
	return true
}
