// Package openai implements model.Client on top of the OpenAI Chat
// Completions API. The teacher's features/model/openai/client.go
// targets github.com/sashabaranov/go-openai, but the teacher's own
// go.mod pins the official github.com/openai/openai-go SDK instead (no
// file in the corpus imports it directly — the same situation as
// internal/memory/mongo's v1/v2 mongo-driver mismatch). This adapter
// keeps the teacher's ChatClient-seam/Options/New/NewFromAPIKey shape
// but calls the official SDK's v1 API, which replaced the old
// openai.F(...)-wrapped field style with plain struct literals and
// param.Opt[T] for optional fields.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/magray/magray/internal/model"
)

// ChatClient captures the subset of the openai-go client used by the
// adapter, satisfied by *openai.ChatCompletionService or a test double.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements model.Client via the OpenAI Chat Completions API.
type Client struct {
	chat        ChatClient
	model       string
	maxTokens   int
	temperature float64
}

// New builds an OpenAI-backed model client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: opts.Client, model: modelID, maxTokens: opts.MaxTokens, temperature: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client using the default openai-go HTTP
// client.
func NewFromAPIKey(apiKey, defaultModel string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	opts.Client = &cli.Chat.Completions
	opts.DefaultModel = defaultModel
	return New(opts)
}

// Complete renders a chat completion using the configured OpenAI
// client.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case model.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case model.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	if maxTokens := c.effectiveMaxTokens(req.MaxTokens); maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(maxTokens))
	}
	if temp := c.effectiveTemperature(req.Temperature); temp > 0 {
		params.Temperature = param.NewOpt(temp)
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp), nil
}

func (c *Client) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.maxTokens
}

func (c *Client) effectiveTemperature(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	return c.temperature
}

func translateResponse(resp *openai.ChatCompletion) *model.Response {
	var text string
	var stop string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		stop = string(resp.Choices[0].FinishReason)
	}
	return &model.Response{
		Text:       text,
		StopReason: stop,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
}

var _ model.Client = (*Client)(nil)
