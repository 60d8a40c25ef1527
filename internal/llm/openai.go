package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// CerebrasBaseURL is the OpenAI-compatible Cerebras endpoint.
const CerebrasBaseURL = "https://api.cerebras.ai/v1"

// OpenAIClient speaks the OpenAI chat-completions protocol. With a base URL
// it serves any compatible provider, Cerebras by default.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client. baseURL may be empty for api.openai.com.
// Extra request options are appended last, so they win.
func NewOpenAIClient(apiKey, baseURL, model string, opts ...option.RequestOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrMissingKey
	}
	all := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	client := openai.NewClient(all...)
	return &OpenAIClient{client: &client, model: model}, nil
}

func (c *OpenAIClient) params(msgs []Message) openai.ChatCompletionNewParams {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Messages: out,
		Model:    c.model,
	}
}

// Stream implements Client.
func (c *OpenAIClient) Stream(ctx context.Context, msgs []Message) (*Stream, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("llm: no messages")
	}
	params := c.params(msgs)
	return NewStream(ctx, func(ctx context.Context, emit func(string) bool) error {
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if !emit(chunk.Choices[0].Delta.Content) {
				return nil
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("llm: openai stream: %w", err)
		}
		return nil
	}), nil
}

// JSON implements Client using a strict json_schema response format.
func (c *OpenAIClient) JSON(ctx context.Context, msgs []Message, schema Schema) (string, error) {
	params := c.params(msgs)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        schema.Name,
				Description: param.NewOpt(schema.Description),
				Schema:      schema.JSON,
				Strict:      param.NewOpt(true),
			},
		},
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: openai: empty choices")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("llm: openai refused: %s", msg.Refusal)
	}
	return strings.TrimSpace(msg.Content), nil
}
