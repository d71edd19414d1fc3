package main

import (
	"errors"
	"os"

	"github.com/magray/magray/internal/model/anthropic"
	"github.com/magray/magray/internal/model/openai"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-latest"
	defaultOpenAIModel    = "gpt-4o-mini"
)

func newAnthropicClient() (*anthropic.Client, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set")
	}
	modelName := os.Getenv("MAGRAY_MODEL_NAME")
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	return anthropic.NewFromAPIKey(apiKey, modelName, anthropic.Options{})
}

func newOpenAIClient() (*openai.Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	modelName := os.Getenv("MAGRAY_MODEL_NAME")
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	return openai.NewFromAPIKey(apiKey, modelName, openai.Options{})
}
