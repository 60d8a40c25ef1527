package agent

import (
	"github.com/chadiek/hudlink/internal/reply"
	"github.com/chadiek/hudlink/internal/transcript"
)

// message is anything the session loop consumes.
type message interface{ isMessage() }

type (
	audioChunk struct{ pcm []byte }

	transcriptEvent struct {
		conn int
		ev   transcript.Event
	}
	sttConnected struct {
		conn int
		err  error
	}
	sttEnded struct{ conn int }

	translationDelta struct {
		token int64
		text  string
	}
	translationDone struct {
		token   int64
		final   bool
		text    string
		speaker string
		err     error
	}

	generate       struct{}
	generationDone struct {
		input string
		res   reply.Result
		err   error
	}
	candidatesExpired struct{ gen int }

	selectText  struct{ text string }
	selectIndex struct{ index int }
	cycle       struct{ direction string }
	buttonPress struct{ button, press string }

	doneSpeaking    struct{}
	speakingTimeout struct{ seq int }

	languageChanged struct{ name, code string }
	setIntent       struct{ text string }

	start struct{}
	stop  struct{}
	end   struct{}
)

func (audioChunk) isMessage()        {}
func (transcriptEvent) isMessage()   {}
func (sttConnected) isMessage()      {}
func (sttEnded) isMessage()          {}
func (translationDelta) isMessage()  {}
func (translationDone) isMessage()   {}
func (generate) isMessage()          {}
func (generationDone) isMessage()    {}
func (candidatesExpired) isMessage() {}
func (selectText) isMessage()        {}
func (selectIndex) isMessage()       {}
func (cycle) isMessage()             {}
func (buttonPress) isMessage()       {}
func (doneSpeaking) isMessage()      {}
func (speakingTimeout) isMessage()   {}
func (languageChanged) isMessage()   {}
func (setIntent) isMessage()         {}
func (start) isMessage()             {}
func (stop) isMessage()              {}
func (end) isMessage()               {}
