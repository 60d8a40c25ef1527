package translate

import (
	"strings"
	"testing"
	"time"

	"github.com/chadiek/hudlink/internal/llm"
)

var testPolicy = Policy{MinWords: 3, Cooldown: 1500 * time.Millisecond, GrowthChars: 12, Cadence: 400 * time.Millisecond}

func TestTracker_Admit(t *testing.T) {
	tr := NewTracker(testPolicy)
	now := time.Unix(1000, 0)

	if tr.Admit("too short", false, false, now) {
		t.Fatalf("interim under the word minimum must wait")
	}
	if !tr.Admit("one two three", false, false, now) {
		t.Fatalf("interim with enough words should be admitted")
	}
	if tr.Admit("one two three four", false, false, now.Add(time.Second)) {
		t.Fatalf("interim inside the cooldown must wait")
	}
	if tr.Admit("one two three four five", false, true, now.Add(2*time.Second)) {
		t.Fatalf("interim while another is in flight must wait")
	}
	if !tr.Admit("one two three four five", false, false, now.Add(2*time.Second)) {
		t.Fatalf("interim after cooldown should be admitted")
	}
	if !tr.Admit("hi", true, true, now.Add(2*time.Second)) {
		t.Fatalf("finals are always admitted")
	}
	if tr.Admit("   ", true, false, now) {
		t.Fatalf("blank text is never admitted")
	}
}

func TestGate_Worthy(t *testing.T) {
	start := time.Unix(0, 0)
	g := NewGate(testPolicy, start)
	if g.Worthy("Hola", start.Add(10*time.Millisecond)) {
		t.Fatalf("small growth before cadence is not worthy")
	}
	if !g.Worthy("Hola, esto es una prueba", start.Add(20*time.Millisecond)) {
		t.Fatalf("growth beyond threshold is worthy")
	}
	if g.Worthy("Hola, esto es una prueba", start.Add(time.Second)) {
		t.Fatalf("unchanged text is never worthy")
	}
	if !g.Worthy("Hola, esto es una prueba.", start.Add(30*time.Millisecond)) {
		t.Fatalf("sentence end is worthy")
	}
	if !g.Worthy("Hola, esto es una prueba. Y", start.Add(500*time.Millisecond)) {
		t.Fatalf("cadence elapsed is worthy")
	}
}

func TestMessages_Shape(t *testing.T) {
	var hist []llm.Message
	for i := 0; i < 10; i++ {
		hist = append(hist, llm.Message{Role: llm.RoleUser, Content: "h"})
	}
	msgs := Messages("Spanish", hist, "Hello how are you")
	if msgs[0].Role != llm.RoleSystem || !strings.Contains(msgs[0].Content, "Spanish") {
		t.Fatalf("first message should be the instruction, got %+v", msgs[0])
	}
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleUser || last.Content != "Hello how are you" {
		t.Fatalf("last message should be the input, got %+v", last)
	}
	if len(msgs) != contextTurns+2 {
		t.Fatalf("history should be trimmed to %d turns, got %d messages", contextTurns, len(msgs))
	}
}

func TestSameLanguage(t *testing.T) {
	if !SameLanguage("en-US", "en") || !SameLanguage("EN", "en_GB") {
		t.Fatalf("base subtags should match")
	}
	if SameLanguage("es", "en") {
		t.Fatalf("different languages should not match")
	}
}

func TestAppendPersistent(t *testing.T) {
	p := AppendPersistent("", "Hola", 500)
	p = AppendPersistent(p, "  ¿qué tal? ", 500)
	if p != "Hola ¿qué tal?" {
		t.Fatalf("got %q", p)
	}
	if got := AppendPersistent(p, "", 500); got != p {
		t.Fatalf("blank commit should not change the buffer")
	}
	long := AppendPersistent(strings.Repeat("a", 10), "bbbbb", 8)
	if long != "aa bbbbb" {
		t.Fatalf("expected trailing 8 runes, got %q", long)
	}
}
