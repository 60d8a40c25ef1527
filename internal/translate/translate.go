// Package translate decides when transcript text is worth a streamed
// translation call and how partial output reaches the display.
package translate

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chadiek/hudlink/internal/llm"
)

// contextTurns is how many recent history entries accompany a translation.
const contextTurns = 6

// Policy holds the interim-translation and partial-forwarding thresholds.
type Policy struct {
	MinWords    int
	Cooldown    time.Duration
	GrowthChars int
	Cadence     time.Duration
}

// Tracker admits transcript events for translation. Finals always pass;
// interims need enough words, no interim in flight and the cooldown elapsed.
type Tracker struct {
	policy      Policy
	lastInterim time.Time
}

// NewTracker returns a tracker for p.
func NewTracker(p Policy) *Tracker { return &Tracker{policy: p} }

// Admit reports whether to start a translation now. busy says an interim
// attempt is still streaming.
func (t *Tracker) Admit(text string, final bool, busy bool, now time.Time) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if final {
		return true
	}
	if busy {
		return false
	}
	if len(strings.Fields(text)) < t.policy.MinWords {
		return false
	}
	if !t.lastInterim.IsZero() && now.Sub(t.lastInterim) < t.policy.Cooldown {
		return false
	}
	t.lastInterim = now
	return true
}

// Reset forgets the interim cooldown.
func (t *Tracker) Reset() { t.lastInterim = time.Time{} }

// Gate throttles forwarding of one attempt's accumulated partial output.
type Gate struct {
	policy  Policy
	lastLen int
	lastAt  time.Time
}

// NewGate starts a gate for an attempt beginning at now.
func NewGate(p Policy, now time.Time) *Gate { return &Gate{policy: p, lastAt: now} }

// Worthy reports whether accumulated should be forwarded: it grew by more
// than GrowthChars, ends a sentence, or Cadence has passed since the last
// forward. Unchanged text is never worthy.
func (g *Gate) Worthy(accumulated string, now time.Time) bool {
	n := utf8.RuneCountInString(accumulated)
	if n <= g.lastLen {
		return false
	}
	if n-g.lastLen > g.policy.GrowthChars || endsSentence(accumulated) || now.Sub(g.lastAt) >= g.policy.Cadence {
		g.lastLen = n
		g.lastAt = now
		return true
	}
	return false
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, " \t\n\"'»”)")
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	switch r {
	case '.', '!', '?', '。', '！', '？', '…':
		return true
	}
	return false
}

// Messages builds the translation call: instruction, recent history for
// context, then the text to translate.
func Messages(languageName string, history []llm.Message, text string) []llm.Message {
	out := make([]llm.Message, 0, contextTurns+2)
	out = append(out, llm.Message{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf("Translate the user's latest utterance into %s. "+
			"Reply with the translation only, no quotes or commentary. "+
			"Earlier turns are context and must not be translated again.", languageName),
	})
	if len(history) > contextTurns {
		history = history[len(history)-contextTurns:]
	}
	out = append(out, history...)
	out = append(out, llm.Message{Role: llm.RoleUser, Content: text})
	return out
}

// SameLanguage reports whether two BCP-47 codes share a base language.
func SameLanguage(code, displayCode string) bool {
	return baseCode(code) == baseCode(displayCode)
}

func baseCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}

// AppendPersistent adds a committed line to the rolling display history,
// keeping only the trailing max runes.
func AppendPersistent(persistent, text string, max int) string {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
	case persistent == "":
		persistent = text
	default:
		persistent = persistent + " " + text
	}
	if max > 0 && utf8.RuneCountInString(persistent) > max {
		r := []rune(persistent)
		persistent = string(r[len(r)-max:])
	}
	return persistent
}
