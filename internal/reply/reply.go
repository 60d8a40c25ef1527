// Package reply generates short candidate spoken replies for the wearer.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chadiek/hudlink/internal/llm"
	"github.com/chadiek/hudlink/internal/state"
)

// MaxCandidates is the most replies ever offered at once.
const MaxCandidates = 4

// ErrMalformed is returned when the model output cannot be decoded into a
// usable result.
var ErrMalformed = errors.New("reply: malformed model output")

// Candidate is one offered reply.
type Candidate = state.Candidate

// Result is a decoded generation.
type Result struct {
	Candidates []Candidate
	Filler     string
}

type wireResult struct {
	Responses []struct {
		Text  string `json:"text"`
		Gloss string `json:"gloss"`
	} `json:"responses"`
	Filler string `json:"filler"`
}

var schema = llm.Schema{
	Name:        "reply_candidates",
	Description: "Short replies the wearer could say next, plus a filler phrase.",
	JSON: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"responses": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text":  map[string]any{"type": "string", "description": "What to say, in the conversation language."},
						"gloss": map[string]any{"type": "string", "description": "A few words of meaning in the wearer's language."},
					},
					"required":             []string{"text", "gloss"},
					"additionalProperties": false,
				},
			},
			"filler": map[string]any{"type": "string", "description": "A brief natural filler to say while thinking; may be empty."},
		},
		"required":             []string{"responses", "filler"},
		"additionalProperties": false,
	},
}

// Schema returns the structured-output schema sent with each generation.
func Schema() llm.Schema { return schema }

// Engine runs structured generation calls.
type Engine struct {
	client llm.Client
}

// NewEngine wraps a model client.
func NewEngine(client llm.Client) *Engine { return &Engine{client: client} }

// Generate asks for up to MaxCandidates replies to input given the recent
// history. intent, when set, steers the replies. Output that cannot be parsed
// yields ErrMalformed.
func (e *Engine) Generate(ctx context.Context, history []llm.Message, input, intent, language string) (Result, error) {
	raw, err := e.client.JSON(ctx, Messages(history, input, intent, language), schema)
	if err != nil {
		return Result{}, fmt.Errorf("reply: generate: %w", err)
	}
	return Parse(raw)
}

// Messages builds the generation call.
func Messages(history []llm.Message, input, intent, language string) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You help someone hold a spoken conversation in %s. ", language)
	fmt.Fprintf(&sb, "Suggest up to %d short, natural replies they could say next, each in %s with a brief gloss in English. ", MaxCandidates, language)
	sb.WriteString("Also give a one or two word filler they can say while choosing.")
	if intent = strings.TrimSpace(intent); intent != "" {
		fmt.Fprintf(&sb, " The wearer wants to: %s.", intent)
	}
	out := make([]llm.Message, 0, len(history)+2)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: sb.String()})
	out = append(out, history...)
	if input = strings.TrimSpace(input); input != "" {
		out = append(out, llm.Message{Role: llm.RoleUser, Content: input})
	}
	return out
}

// Parse decodes raw model output. Blank candidates are dropped and at most
// MaxCandidates kept; a result with no candidates is malformed.
func Parse(raw string) (Result, error) {
	var w wireResult
	if err := llm.UnmarshalJSON(raw, &w); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	res := Result{Filler: strings.TrimSpace(w.Filler)}
	for _, r := range w.Responses {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		res.Candidates = append(res.Candidates, Candidate{Text: text, Gloss: strings.TrimSpace(r.Gloss)})
		if len(res.Candidates) == MaxCandidates {
			break
		}
	}
	if len(res.Candidates) == 0 {
		return Result{}, fmt.Errorf("%w: no candidates", ErrMalformed)
	}
	return res, nil
}

// Render formats candidates one per line, marking the selected one with ">".
func Render(cands []Candidate, selected int) string {
	lines := make([]string, 0, len(cands))
	for i, c := range cands {
		marker := "  "
		if i == selected {
			marker = "> "
		}
		line := fmt.Sprintf("%s%d. %s", marker, i+1, c.Text)
		if c.Gloss != "" {
			line += " (" + c.Gloss + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
