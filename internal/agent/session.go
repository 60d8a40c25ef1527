// Package agent runs one live session per user: audio in, transcription,
// translation onto the heads-up display, and reply generation on demand.
//
// All session state is owned by a single goroutine that consumes a typed
// inbox. Provider calls and timers run elsewhere and report back by posting
// messages, so no two mutations of session state ever interleave.
package agent

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chadiek/hudlink/internal/display"
	"github.com/chadiek/hudlink/internal/llm"
	"github.com/chadiek/hudlink/internal/reply"
	"github.com/chadiek/hudlink/internal/translate"
)

const (
	inboxSize       = 512
	maxAudioQueue   = 1000
	providerTimeout = 20 * time.Second
)

// Session is one user's live session.
type Session struct {
	user string
	deps Deps
	now  func() time.Time

	inbox   chan message
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool

	// Everything below is owned by the loop goroutine.
	closed     bool
	recording  bool
	speaking   bool
	generating bool

	stt        Transcriber
	sttConn    int
	sttReady   bool
	audioQueue [][]byte

	compositor *display.Compositor
	tracker    *translate.Tracker
	policy     translate.Policy

	// attempt invalidates streamed output from superseded translations.
	attempt       atomic.Int64
	interimToken  int64
	finalToken    int64
	pendingFinals []pendingFinal

	history     []llm.Message
	persistent  string
	lastSpeaker string

	candidates []reply.Candidate
	selected   int
	genID      int
	expiry     *time.Timer

	speakSeq   int
	speakTimer *time.Timer
	intent     string
	language   string
	langCode   string
}

type pendingFinal struct {
	text    string
	speaker string
}

func newSession(parent context.Context, user string, transport display.Transport, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	t := deps.Timing
	policy := translate.Policy{
		MinWords:    t.InterimMinWords,
		Cooldown:    t.InterimCooldown,
		GrowthChars: t.StreamGrowthChars,
		Cadence:     t.StreamCadence,
	}
	s := &Session{
		user:       user,
		deps:       deps,
		now:        time.Now,
		inbox:      make(chan message, inboxSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		compositor: display.NewCompositor(user, transport, deps.Store, t.DisplayMaxChars, t.DisplayCooldown),
		tracker:    translate.NewTracker(policy),
		policy:     policy,
		language:   deps.Language,
		langCode:   deps.LanguageCode,
	}
	if deps.Store != nil {
		deps.Store.SetLanguage(user, s.language, s.langCode)
	}
	return s
}

// User returns the session's user id.
func (s *Session) User() string { return s.user }

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case m := <-s.inbox:
			s.handle(m)
			if s.closed {
				return
			}
		}
	}
}

// post queues m for the loop. It reports false once the session is gone.
func (s *Session) post(m message) bool {
	if s.stopped.Load() {
		return false
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Audio feeds one PCM16LE 16 kHz chunk.
func (s *Session) Audio(pcm []byte) { s.post(audioChunk{pcm: pcm}) }

// Start begins recording. Starting an active session is a no-op.
func (s *Session) Start() { s.post(start{}) }

// Stop ends recording. Stopping an idle session is a no-op.
func (s *Session) Stop() { s.post(stop{}) }

// Generate asks for reply candidates to the latest fresh text.
func (s *Session) Generate() { s.post(generate{}) }

// Select picks a reply. Empty text picks the highlighted candidate.
func (s *Session) Select(text string) { s.post(selectText{text: text}) }

// SelectIndex picks the candidate at a 0-based index.
func (s *Session) SelectIndex(i int) { s.post(selectIndex{index: i}) }

// Cycle moves the highlight "up" or "down".
func (s *Session) Cycle(direction string) { s.post(cycle{direction: direction}) }

// Button handles a hardware button press.
func (s *Session) Button(button, press string) { s.post(buttonPress{button: button, press: press}) }

// DoneSpeaking reports that playback of the selected reply finished.
func (s *Session) DoneSpeaking() { s.post(doneSpeaking{}) }

// SetLanguage switches the target language and restarts transcription.
func (s *Session) SetLanguage(name, code string) { s.post(languageChanged{name: name, code: code}) }

// SetIntent steers the next generation.
func (s *Session) SetIntent(text string) { s.post(setIntent{text: text}) }

// End tears the session down. It is safe to call more than once.
func (s *Session) End() {
	if !s.post(end{}) {
		return
	}
	s.stopped.Store(true)
}

func (s *Session) handle(m message) {
	if s.closed {
		return
	}
	switch m := m.(type) {
	case audioChunk:
		s.onAudio(m.pcm)
	case start:
		s.onStart()
	case stop:
		s.onStop()
	case sttConnected:
		s.onSTTConnected(m)
	case sttEnded:
		s.onSTTEnded(m)
	case transcriptEvent:
		s.onTranscript(m)
	case translationDelta:
		s.onTranslationDelta(m)
	case translationDone:
		s.onTranslationDone(m)
	case generate:
		s.onGenerate()
	case generationDone:
		s.onGenerationDone(m)
	case candidatesExpired:
		s.onCandidatesExpired(m)
	case selectText:
		s.onSelectText(m.text)
	case selectIndex:
		s.onSelectIndex(m.index)
	case cycle:
		s.onCycle(m.direction)
	case buttonPress:
		s.onButton(m)
	case doneSpeaking:
		s.onDoneSpeaking()
	case speakingTimeout:
		s.onSpeakingTimeout(m)
	case languageChanged:
		s.onLanguageChanged(m)
	case setIntent:
		s.intent = strings.TrimSpace(m.text)
	case end:
		s.shutdown()
	}
}

// shutdown is the terminal transition.
func (s *Session) shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	s.stopped.Store(true)
	s.stopSTT()
	s.recording = false
	stopTimer(s.expiry)
	stopTimer(s.speakTimer)
	s.attempt.Add(1)
	if s.deps.Store != nil {
		s.deps.Store.Delete(s.user)
	}
	s.cancel()
	log.Printf("[%s] session ended", s.user)
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// displayed runs a compositor write and ends the session if the display is gone.
func (s *Session) displayed(_ bool, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, display.ErrTransportClosed) {
		log.Printf("[%s] display transport closed, ending session", s.user)
		s.shutdown()
		return
	}
	log.Printf("[%s] display write failed: %v", s.user, err)
}

func (s *Session) clearDisplay() {
	s.displayed(false, s.compositor.Clear(s.ctx))
}

// appendHistory adds a turn and evicts the oldest beyond the cap.
func (s *Session) appendHistory(role, content string) {
	s.history = append(s.history, llm.Message{Role: role, Content: content})
	if max := s.deps.Timing.HistoryMax; max > 0 && len(s.history) > max {
		s.history = append([]llm.Message(nil), s.history[len(s.history)-max:]...)
	}
}

func (s *Session) historySnapshot() []llm.Message {
	return append([]llm.Message(nil), s.history...)
}
