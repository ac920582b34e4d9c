// Package anthropic adapts llm.Client to the Anthropic Messages API via
// github.com/anthropics/anthropic-sdk-go. Same adapter shape as
// llm/openai, grounded on goadesign-goa-ai's features/model/anthropic
// package — a system prompt pulled out of the message list (Anthropic
// takes it as a top-level field, not a role), the rest mapped 1:1.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentrt/agentrt/llm"
)

// Client implements llm.Client via the Anthropic Messages API.
type Client struct {
	sdk   anthropic.Client
	model string
}

// New constructs a Client from an already-configured anthropic-sdk-go
// client.
func New(sdk anthropic.Client, defaultModel string) (*Client, error) {
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	return &Client{sdk: sdk, model: defaultModel}, nil
}

// NewFromConfig builds an anthropic-sdk-go client from an llm.Config.
func NewFromConfig(cfg llm.Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return New(anthropic.NewClient(opts...), cfg.DefaultModel)
}

// Complete renders a message completion, pulling any "system"-role
// message out of req.Messages into Anthropic's dedicated System field.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, errors.New("anthropic: messages are required")
	}
	model := anthropic.Model(c.model)
	if strings.TrimSpace(req.Model) != "" {
		model = anthropic.Model(req.Model)
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system string
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = joinNonEmpty(system, m.Content)
			continue
		}
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: tool.InputSchema},
			},
		})
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, err
	}
	return translateResponse(resp), nil
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

func translateResponse(resp *anthropic.Message) llm.Response {
	out := llm.Response{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			args, _ := variant.Input.(map[string]any)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{Name: variant.Name, Arguments: args})
		}
	}
	out.Message = llm.Message{Role: "assistant", Content: text.String()}
	return out
}
