package agent

import (
	"context"
	"log"
	"strings"

	"github.com/chadiek/hudlink/internal/llm"
	"github.com/chadiek/hudlink/internal/translate"
)

func (s *Session) onStart() {
	if s.recording {
		return
	}
	s.recording = true
	s.startSTT()
	log.Printf("[%s] recording started (language=%s)", s.user, s.langCode)
}

func (s *Session) onStop() {
	if !s.recording {
		return
	}
	s.recording = false
	s.stopSTT()
	s.tracker.Reset()
	log.Printf("[%s] recording stopped", s.user)
}

// startSTT opens a fresh transcriber. Events from older connections are
// dropped by comparing connection numbers.
func (s *Session) startSTT() {
	if s.deps.NewTranscriber == nil {
		log.Printf("[%s] no transcriber configured", s.user)
		s.recording = false
		return
	}
	s.sttConn++
	conn := s.sttConn
	t := s.deps.NewTranscriber(s.user)
	s.stt = t
	s.sttReady = false
	code := s.langCode
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, providerTimeout)
		defer cancel()
		s.post(sttConnected{conn: conn, err: t.Connect(ctx, code)})
	}()
}

func (s *Session) stopSTT() {
	s.sttConn++
	if s.stt != nil {
		_ = s.stt.Close()
	}
	s.stt = nil
	s.sttReady = false
	s.audioQueue = nil
}

func (s *Session) onSTTConnected(m sttConnected) {
	if m.conn != s.sttConn || s.stt == nil {
		return
	}
	if m.err != nil {
		log.Printf("[%s] transcription connect failed: %v", s.user, m.err)
		s.recording = false
		s.stopSTT()
		return
	}
	s.sttReady = true
	for _, pcm := range s.audioQueue {
		if err := s.stt.SendPCM16KLE(pcm); err != nil {
			log.Printf("[%s] flushing queued audio: %v", s.user, err)
			break
		}
	}
	s.audioQueue = nil

	events := s.stt.Events()
	conn := m.conn
	go func() {
		for ev := range events {
			if !s.post(transcriptEvent{conn: conn, ev: ev}) {
				return
			}
		}
		s.post(sttEnded{conn: conn})
	}()
}

func (s *Session) onSTTEnded(m sttEnded) {
	if m.conn != s.sttConn {
		return
	}
	log.Printf("[%s] transcription stream ended", s.user)
	s.recording = false
	s.stopSTT()
}

func (s *Session) onAudio(pcm []byte) {
	if !s.recording || len(pcm) == 0 {
		return
	}
	if s.speaking {
		return
	}
	if s.stt == nil || !s.sttReady {
		if len(s.audioQueue) >= maxAudioQueue {
			log.Printf("[%s] audio queue full, dropping chunk", s.user)
			return
		}
		s.audioQueue = append(s.audioQueue, pcm)
		return
	}
	if err := s.stt.SendPCM16KLE(pcm); err != nil {
		log.Printf("[%s] send audio: %v", s.user, err)
	}
}

func (s *Session) sameLanguage() bool {
	return translate.SameLanguage(s.langCode, s.deps.DisplayLanguageCode)
}

func (s *Session) onTranscript(m transcriptEvent) {
	if m.conn != s.sttConn {
		return
	}
	text := strings.TrimSpace(m.ev.Text)
	if text == "" {
		return
	}
	if m.ev.Final {
		if s.finalToken != 0 {
			s.pendingFinals = append(s.pendingFinals, pendingFinal{text: text, speaker: m.ev.Speaker})
			return
		}
		s.startFinal(text, m.ev.Speaker)
		return
	}

	if s.sameLanguage() {
		if len(s.candidates) == 0 {
			s.displayed(s.compositor.Show(s.ctx, s.persistent, text, false))
		}
		return
	}
	busy := s.interimToken != 0 || s.finalToken != 0
	if !s.tracker.Admit(text, false, busy, s.now()) {
		return
	}
	token := s.attempt.Add(1)
	s.interimToken = token
	go s.translate(token, translate.Messages(s.language, s.historySnapshot(), text), false, "")
}

// startFinal begins the translation a final transcript always gets. It
// supersedes any interim still streaming.
func (s *Session) startFinal(text, speaker string) {
	token := s.attempt.Add(1)
	if s.sameLanguage() {
		s.commit(token, text, speaker)
		s.nextFinal()
		return
	}
	s.finalToken = token
	go s.translate(token, translate.Messages(s.language, s.historySnapshot(), text), true, speaker)
}

func (s *Session) nextFinal() {
	if len(s.pendingFinals) == 0 || s.closed {
		return
	}
	next := s.pendingFinals[0]
	s.pendingFinals = s.pendingFinals[1:]
	s.startFinal(next.text, next.speaker)
}

// translate streams one attempt. Partial output is forwarded only while the
// attempt is current; finals always run to completion so they can be committed.
func (s *Session) translate(token int64, msgs []llm.Message, final bool, speaker string) {
	ctx, cancel := context.WithTimeout(s.ctx, providerTimeout)
	defer cancel()
	done := translationDone{token: token, final: final, speaker: speaker}

	if s.deps.Model == nil {
		done.err = llm.ErrMissingKey
		s.post(done)
		return
	}
	stream, err := s.deps.Model.Stream(ctx, msgs)
	if err != nil {
		done.err = err
		s.post(done)
		return
	}
	defer stream.Close()

	gate := translate.NewGate(s.policy, s.now())
	var sb strings.Builder
	for chunk := range stream.Chunks() {
		sb.WriteString(chunk)
		if s.attempt.Load() != token {
			if !final {
				stream.Close()
				break
			}
			continue
		}
		text := strings.TrimSpace(sb.String())
		if gate.Worthy(text, s.now()) {
			if !s.post(translationDelta{token: token, text: text}) {
				return
			}
		}
	}
	done.text = strings.TrimSpace(sb.String())
	done.err = stream.Err()
	s.post(done)
}

func (s *Session) onTranslationDelta(m translationDelta) {
	if m.token != s.attempt.Load() || len(s.candidates) > 0 {
		return
	}
	s.displayed(s.compositor.Show(s.ctx, s.persistent, m.text, false))
}

func (s *Session) onTranslationDone(m translationDone) {
	if !m.final {
		if m.token != s.interimToken {
			return
		}
		s.interimToken = 0
		if m.err != nil {
			log.Printf("[%s] interim translation failed: %v", s.user, m.err)
			return
		}
		if m.token == s.attempt.Load() && m.text != "" && len(s.candidates) == 0 {
			s.displayed(s.compositor.Show(s.ctx, s.persistent, m.text, false))
		}
		return
	}

	if m.token != s.finalToken {
		return
	}
	s.finalToken = 0
	if m.err != nil || m.text == "" {
		log.Printf("[%s] final translation failed: %v", s.user, m.err)
	} else {
		s.commit(m.token, m.text, m.speaker)
	}
	s.nextFinal()
}

// commit records a finished utterance in history and, while it is still the
// current attempt, in the persistent display content.
func (s *Session) commit(token int64, text, speaker string) {
	if speaker != "" && speaker != s.lastSpeaker {
		text = speaker + ": " + text
		s.lastSpeaker = speaker
	}
	s.appendHistory(llm.RoleUser, text)
	if token != s.attempt.Load() {
		return
	}
	s.persistent = translate.AppendPersistent(s.persistent, text, s.deps.Timing.PersistentMaxChars)
	if len(s.candidates) > 0 {
		return
	}
	s.displayed(s.compositor.Show(s.ctx, s.persistent, "", true))
}

func (s *Session) onLanguageChanged(m languageChanged) {
	name, code := strings.TrimSpace(m.name), strings.TrimSpace(m.code)
	if code == "" {
		return
	}
	if name == "" {
		name = code
	}
	s.language, s.langCode = name, code
	if s.deps.Store != nil {
		s.deps.Store.SetLanguage(s.user, name, code)
	}

	s.attempt.Add(1)
	s.interimToken, s.finalToken = 0, 0
	s.pendingFinals = nil
	s.persistent = ""
	s.lastSpeaker = ""
	s.tracker.Reset()
	s.dropCandidates()
	s.compositor.Reset()
	s.clearDisplay()
	if s.closed {
		return
	}

	log.Printf("[%s] language changed to %s (%s)", s.user, name, code)
	if s.recording {
		s.stopSTT()
		s.startSTT()
	}
}
