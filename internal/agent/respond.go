package agent

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/chadiek/hudlink/internal/companion"
	"github.com/chadiek/hudlink/internal/llm"
	"github.com/chadiek/hudlink/internal/reply"
)

func (s *Session) onGenerate() {
	if s.generating {
		return
	}
	if s.deps.Store == nil || s.deps.Replies == nil {
		return
	}
	input := s.deps.Store.FreshText(s.user)
	if input == "" {
		log.Printf("[%s] generate ignored: no fresh text", s.user)
		return
	}
	s.generating = true

	// The utterance must not be fed back into the next request.
	s.deps.Store.ClearText(s.user)
	s.attempt.Add(1)
	s.persistent = ""
	s.clearDisplay()
	if s.closed {
		return
	}

	history := s.historySnapshot()
	if n := len(history); n > 0 && strings.Contains(input, history[n-1].Content) {
		history = history[:n-1]
	}
	intent, language := s.intent, s.language
	s.intent = ""
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, providerTimeout)
		defer cancel()
		res, err := s.deps.Replies.Generate(ctx, history, input, intent, language)
		s.post(generationDone{input: input, res: res, err: err})
	}()
}

func (s *Session) onGenerationDone(m generationDone) {
	s.generating = false
	if m.err != nil {
		if errors.Is(m.err, reply.ErrMalformed) {
			log.Printf("[%s] generation returned malformed output: %v", s.user, m.err)
		} else {
			log.Printf("[%s] generation failed: %v", s.user, m.err)
		}
		return
	}
	if m.res.Filler != "" {
		s.playback(companion.ActionFiller, m.res.Filler)
	}
	cands := m.res.Candidates
	if len(cands) > reply.MaxCandidates {
		cands = cands[:reply.MaxCandidates]
	}
	if len(cands) == 0 {
		return
	}
	s.candidates = append([]reply.Candidate(nil), cands...)
	s.selected = 0
	s.genID++
	s.deps.Store.SetCandidates(s.user, s.candidates)
	s.renderCandidates()
	if s.closed {
		return
	}

	stopTimer(s.expiry)
	gen := s.genID
	s.expiry = time.AfterFunc(s.deps.Timing.CandidateExpiry, func() {
		s.post(candidatesExpired{gen: gen})
	})
	log.Printf("[%s] %d candidates ready", s.user, len(s.candidates))
}

// renderCandidates shows the list. The rendered list is not conversation
// text, so it is not left in the shared text for a later generation.
func (s *Session) renderCandidates() {
	s.displayed(s.compositor.ShowRaw(s.ctx, reply.Render(s.candidates, s.selected), true))
	if !s.closed {
		s.deps.Store.ClearText(s.user)
	}
}

func (s *Session) onCandidatesExpired(m candidatesExpired) {
	if m.gen != s.genID || len(s.candidates) == 0 {
		return
	}
	log.Printf("[%s] candidates expired", s.user)
	s.dropCandidates()
	s.clearDisplay()
}

func (s *Session) dropCandidates() {
	stopTimer(s.expiry)
	s.expiry = nil
	s.candidates = nil
	s.selected = 0
	if s.deps.Store != nil {
		s.deps.Store.SetCandidates(s.user, nil)
	}
}

func (s *Session) onSelectText(text string) {
	if len(s.candidates) == 0 {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.choose(s.candidates[s.selected].Text)
		return
	}
	for _, c := range s.candidates {
		if strings.EqualFold(c.Text, text) {
			s.choose(c.Text)
			return
		}
	}
	s.choose(text)
}

func (s *Session) onSelectIndex(i int) {
	if i < 0 || i >= len(s.candidates) {
		return
	}
	s.choose(s.candidates[i].Text)
}

func (s *Session) onCycle(direction string) {
	n := len(s.candidates)
	if n == 0 {
		return
	}
	switch strings.ToLower(direction) {
	case "up":
		s.selected = (s.selected - 1 + n) % n
	case "down":
		s.selected = (s.selected + 1) % n
	default:
		return
	}
	s.renderCandidates()
}

// choose commits a reply: it joins the history, is played back, and mutes
// the microphone until playback ends or the safety timer fires.
func (s *Session) choose(text string) {
	s.dropCandidates()
	s.appendHistory(llm.RoleAssistant, text)
	s.speaking = true
	s.playback(companion.ActionSpeak, text)
	s.displayed(s.compositor.ShowRaw(s.ctx, text, true))
	if s.closed {
		return
	}
	s.deps.Store.ClearText(s.user)

	stopTimer(s.speakTimer)
	s.speakSeq++
	seq := s.speakSeq
	s.speakTimer = time.AfterFunc(s.deps.Timing.SpeakingSafety, func() {
		s.post(speakingTimeout{seq: seq})
	})
	log.Printf("[%s] selected: %s", s.user, text)
}

func (s *Session) onDoneSpeaking() {
	if !s.speaking {
		return
	}
	s.speaking = false
	stopTimer(s.speakTimer)
	s.speakTimer = nil
}

func (s *Session) onSpeakingTimeout(m speakingTimeout) {
	if m.seq != s.speakSeq || !s.speaking {
		return
	}
	log.Printf("[%s] no done-speaking signal, resuming audio", s.user)
	s.speaking = false
	s.speakTimer = nil
}

// Hardware buttons.
const (
	ButtonMain = "main"
	ButtonUp   = "up"
	ButtonDown = "down"
	PressShort = "short"
	PressLong  = "long"
)

func (s *Session) onButton(m buttonPress) {
	switch m.button {
	case ButtonMain:
		if m.press == PressLong {
			if s.recording {
				s.onStop()
			} else {
				s.onStart()
			}
			return
		}
		if len(s.candidates) == 0 {
			s.onGenerate()
			return
		}
		s.choose(s.candidates[s.selected].Text)
	case ButtonUp, ButtonDown:
		s.onCycle(m.button)
	}
}

func (s *Session) playback(action, text string) {
	if s.deps.Playback == nil {
		return
	}
	s.deps.Playback.Dispatch(companion.Action{Action: action, Text: text, UserID: s.user})
}
