// Package state holds the per-user projection that presentation code reads:
// the latest displayable text, the candidate replies and the target language.
package state

import (
	"sync"
	"time"
)

// Candidate is one suggested reply: the form to speak and a short gloss.
type Candidate struct {
	Text  string `json:"text"`
	Gloss string `json:"gloss"`
}

// Entry is a snapshot of one user's shared state.
type Entry struct {
	Text         string      `json:"lastText"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	Candidates   []Candidate `json:"candidates"`
	Language     string      `json:"language"`
	LanguageCode string      `json:"languageCode"`
}

// Store maps user ids to entries. Writes are last-write-wins per user.
type Store struct {
	freshness time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
	subs    map[string]map[chan struct{}]struct{}
}

// NewStore creates a store whose text expires after freshness.
func NewStore(freshness time.Duration) *Store {
	return &Store{
		freshness: freshness,
		now:       time.Now,
		entries:   make(map[string]*Entry),
		subs:      make(map[string]map[chan struct{}]struct{}),
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Get returns a copy of the user's entry. Text older than the freshness
// window is reported as empty even if it has not been swept yet.
func (s *Store) Get(user string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Candidates = append([]Candidate(nil), e.Candidates...)
	if s.expired(e) {
		out.Text = ""
	}
	return out, true
}

// FreshText returns the user's displayable text, or "" if missing or stale.
func (s *Store) FreshText(user string) string {
	e, _ := s.Get(user)
	return e.Text
}

// SetText records displayable text and stamps it with the current time.
func (s *Store) SetText(user, text string) {
	s.update(user, func(e *Entry) {
		e.Text = text
		e.UpdatedAt = s.now()
	})
}

// ClearText empties the displayable text.
func (s *Store) ClearText(user string) {
	s.update(user, func(e *Entry) {
		e.Text = ""
		e.UpdatedAt = s.now()
	})
}

// SetCandidates replaces the candidate list. A nil list clears it.
func (s *Store) SetCandidates(user string, c []Candidate) {
	s.update(user, func(e *Entry) {
		e.Candidates = append([]Candidate(nil), c...)
	})
}

// SetLanguage persists the target language selection.
func (s *Store) SetLanguage(user, name, code string) {
	s.update(user, func(e *Entry) {
		e.Language = name
		e.LanguageCode = code
	})
}

// Delete removes the user's entry and notifies subscribers one last time.
func (s *Store) Delete(user string) {
	s.mu.Lock()
	_, ok := s.entries[user]
	delete(s.entries, user)
	s.mu.Unlock()
	if ok {
		s.publish(user)
	}
}

// Subscribe returns a channel signalled after every change to the user's entry.
// Signals coalesce: a slow reader sees at most one pending notification.
func (s *Store) Subscribe(user string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	set := s.subs[user]
	if set == nil {
		set = make(map[chan struct{}]struct{})
		s.subs[user] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if set := s.subs[user]; set != nil {
				delete(set, ch)
				if len(set) == 0 {
					delete(s.subs, user)
				}
			}
			s.mu.Unlock()
		})
	}
}

// Sweep clears text that has outlived the freshness window and returns the
// users whose entries changed.
func (s *Store) Sweep() []string {
	var cleared []string
	s.mu.Lock()
	for user, e := range s.entries {
		if e.Text != "" && s.expired(e) {
			e.Text = ""
			cleared = append(cleared, user)
		}
	}
	s.mu.Unlock()
	for _, user := range cleared {
		s.publish(user)
	}
	return cleared
}

func (s *Store) expired(e *Entry) bool {
	return s.freshness > 0 && s.now().Sub(e.UpdatedAt) > s.freshness
}

func (s *Store) update(user string, fn func(*Entry)) {
	s.mu.Lock()
	e, ok := s.entries[user]
	if !ok {
		e = &Entry{}
		s.entries[user] = e
	}
	fn(e)
	s.mu.Unlock()
	s.publish(user)
}

func (s *Store) publish(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[user] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
