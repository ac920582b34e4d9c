// Package openai adapts llm.Client to the OpenAI Chat Completions API via
// the official github.com/openai/openai-go SDK. Grounded on
// goadesign-goa-ai's features/model/openai adapter (a client plus a
// default model; here New, NewFromConfig and Complete), ported
// from go-openai's client to openai-go's.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentrt/agentrt/llm"
)

// Client implements llm.Client via openai-go's chat completions endpoint.
type Client struct {
	sdk   openai.Client
	model string
}

// New constructs a Client from an already-configured openai-go client,
// so callers can inject request middleware, a custom HTTP client, or a
// test double that satisfies the same option surface.
func New(sdk openai.Client, defaultModel string) (*Client, error) {
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{sdk: sdk, model: defaultModel}, nil
}

// NewFromConfig builds an openai-go client from an llm.Config.
func NewFromConfig(cfg llm.Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return New(openai.NewClient(opts...), cfg.DefaultModel)
}

// Complete renders a chat completion using req.Model when set, and the
// configured default model otherwise.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, errors.New("openai: messages are required")
	}
	model := c.model
	if strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, toOpenAITool(tool))
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, err
	}
	return translateResponse(resp), nil
}

func toOpenAIMessages(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITool(def llm.ToolDefinition) openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  openai.FunctionParameters(def.InputSchema),
		},
	}
}

func translateResponse(resp *openai.ChatCompletion) llm.Response {
	out := llm.Response{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Message = llm.Message{Role: "assistant", Content: choice.Message.Content}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			Name:      call.Function.Name,
			Arguments: decodeArguments(call.Function.Arguments),
		})
	}
	return out
}

func decodeArguments(raw string) map[string]any {
	var args map[string]any
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"_raw": raw}
	}
	return args
}
