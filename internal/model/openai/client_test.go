package openai_test

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/model"
	magrayopenai "github.com/magray/magray/internal/model/openai"
)

type fakeChatClient struct {
	response *openai.ChatCompletion
	err      error
	captured openai.ChatCompletionNewParams
}

func (f *fakeChatClient) New(_ context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.captured = params
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func TestClientCompleteTranslatesResponse(t *testing.T) {
	fake := &fakeChatClient{response: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{
				Message:      openai.ChatCompletionMessage{Content: "hello there"},
				FinishReason: "stop",
			},
		},
		Usage: openai.CompletionUsage{PromptTokens: 12, CompletionTokens: 7},
	}}
	client, err := magrayopenai.New(magrayopenai.Options{Client: fake, DefaultModel: "gpt-4o-mini", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", resp.Text)
	require.Equal(t, "stop", resp.StopReason)
	require.Equal(t, 12, resp.Usage.InputTokens)
	require.Equal(t, 7, resp.Usage.OutputTokens)
	require.Equal(t, int64(128), fake.captured.MaxTokens.Value)
}

func TestClientCompleteRejectsEmptyMessages(t *testing.T) {
	client, err := magrayopenai.New(magrayopenai.Options{Client: &fakeChatClient{}, DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), &model.Request{})
	require.Error(t, err)
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	_, err := magrayopenai.New(magrayopenai.Options{Client: &fakeChatClient{}})
	require.Error(t, err)
}
