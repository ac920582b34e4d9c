// Package genai adapts llm.Client to Google's Gemini API via
// google.golang.org/genai. Same adapter shape as llm/openai and
// llm/anthropic; grounded on the teacher's model/gemini provider
// (request/response translation against a single chat-shaped model) but
// rebuilt on the unified genai SDK instead of the teacher's
// hand-rolled REST client.
package genai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/agentrt/agentrt/llm"
)

// Client implements llm.Client via genai.Client.Models.GenerateContent.
type Client struct {
	sdk   *genai.Client
	model string
}

// New constructs a Client from an already-configured genai client.
func New(sdk *genai.Client, defaultModel string) (*Client, error) {
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("genai: default model is required")
	}
	return &Client{sdk: sdk, model: defaultModel}, nil
}

// NewFromConfig builds a genai client from an llm.Config.
func NewFromConfig(ctx context.Context, cfg llm.Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("genai: api key is required")
	}
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, err
	}
	return New(sdk, cfg.DefaultModel)
}

// Complete renders one GenerateContent call. A system-tagged message is
// sent as the request's SystemInstruction rather than as a conversation
// turn; when several are given, only the last one is kept.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, errors.New("genai: messages are required")
	}
	model := c.model
	if strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}

	var contents []*genai.Content
	var systemInstruction *genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}

	resp, err := c.sdk.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.Response{}, err
	}
	return translateResponse(resp), nil
}

func translateResponse(resp *genai.GenerateContentResponse) llm.Response {
	out := llm.Response{}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	out.Message = llm.Message{Role: "assistant", Content: resp.Text()}
	return out
}
