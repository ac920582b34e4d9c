// Package bedrock adapts llm.Client to AWS Bedrock's InvokeModel API via
// aws-sdk-go-v2/service/bedrockruntime. Unlike the other three provider
// adapters, Bedrock has no single request/response schema — each
// foundation model family defines its own JSON body — so this adapter
// targets the Anthropic-on-Bedrock body shape (the common case for this
// corpus's coding-agent use), documented in DESIGN.md as the one
// concretely wired body format; other families would need their own
// marshal/unmarshal pair behind the same Client.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/agentrt/agentrt/llm"
)

// Client implements llm.Client via bedrockruntime.Client.InvokeModel.
type Client struct {
	sdk   *bedrockruntime.Client
	model string
}

// New constructs a Client from an already-configured bedrockruntime
// client.
func New(sdk *bedrockruntime.Client, defaultModel string) (*Client, error) {
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{sdk: sdk, model: defaultModel}, nil
}

// NewFromConfig builds a bedrockruntime client from an llm.Config.
func NewFromConfig(ctx context.Context, cfg llm.Config) (*Client, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("bedrock: region is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return New(bedrockruntime.NewFromConfig(awsCfg), cfg.DefaultModel)
}

type anthropicOnBedrockRequest struct {
	AnthropicVersion string                     `json:"anthropic_version"`
	MaxTokens        int                        `json:"max_tokens"`
	Temperature      float64                    `json:"temperature,omitempty"`
	System           string                     `json:"system,omitempty"`
	Messages         []anthropicOnBedrockMessage `json:"messages"`
}

type anthropicOnBedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicOnBedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete invokes the configured model with the Anthropic-on-Bedrock
// body shape (anthropic_version "bedrock-2023-05-31").
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, errors.New("bedrock: messages are required")
	}
	model := c.model
	if strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := anthropicOnBedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
	}
	for _, m := range req.Messages {
		if m.Role == "system" {
			body.System = joinNonEmpty(body.System, m.Content)
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		body.Messages = append(body.Messages, anthropicOnBedrockMessage{Role: role, Content: m.Content})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return llm.Response{}, err
	}

	out, err := c.sdk.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        raw,
	})
	if err != nil {
		return llm.Response{}, err
	}

	var resp anthropicOnBedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
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

func translateResponse(resp anthropicOnBedrockResponse) llm.Response {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return llm.Response{
		Message:          llm.Message{Role: "assistant", Content: text.String()},
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}
}
