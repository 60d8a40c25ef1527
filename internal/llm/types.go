// Package llm talks to chat-completion model services: streamed text for
// translation and schema-constrained JSON for reply generation.
package llm

import (
	"context"
	"errors"
)

// ErrMissingKey is returned when a client is built without credentials.
var ErrMissingKey = errors.New("llm: api key missing")

// Roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema names a JSON Schema the model output must satisfy.
// JSON uses the draft-07 subset both backends accept: type, properties,
// items, required and description.
type Schema struct {
	Name        string
	Description string
	JSON        map[string]any
}

// Client is a model backend.
type Client interface {
	// Stream starts a streamed completion. The returned Stream must be closed.
	Stream(ctx context.Context, msgs []Message) (*Stream, error)
	// JSON runs a single completion constrained to schema and returns the raw text.
	JSON(ctx context.Context, msgs []Message, schema Schema) (string, error)
}
