package agent

import (
	"context"

	"github.com/chadiek/hudlink/internal/companion"
	"github.com/chadiek/hudlink/internal/config"
	"github.com/chadiek/hudlink/internal/llm"
	"github.com/chadiek/hudlink/internal/reply"
	"github.com/chadiek/hudlink/internal/state"
	"github.com/chadiek/hudlink/internal/transcript"
)

// Transcriber is the minimal interface for realtime STT.
// It accepts PCM 16kHz little-endian mono buffers and emits transcript events.
type Transcriber interface {
	Connect(ctx context.Context, languageCode string) error
	SendPCM16KLE(pcm []byte) error
	Events() <-chan transcript.Event
	Close() error
}

// Generator produces candidate replies.
type Generator interface {
	Generate(ctx context.Context, history []llm.Message, input, intent, language string) (reply.Result, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Store          *state.Store
	NewTranscriber func(user string) Transcriber
	Model          llm.Client
	Replies        Generator
	Playback       companion.Sender
	Timing         config.Timing

	Language            string
	LanguageCode        string
	DisplayLanguageCode string
}
