package anthropic_test

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/model"
	"github.com/magray/magray/internal/model/anthropic"
)

type fakeMessagesClient struct {
	response *sdk.Message
	err      error
	captured sdk.MessageNewParams
}

func (f *fakeMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.captured = body
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func TestClientCompleteTranslatesResponse(t *testing.T) {
	fake := &fakeMessagesClient{response: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "hello there"}},
		StopReason: "end_turn",
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	client, err := anthropic.New(fake, anthropic.Options{DefaultModel: "claude-x", MaxTokens: 256})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", resp.Text)
	require.Equal(t, "end_turn", resp.StopReason)
	require.Equal(t, 10, resp.Usage.InputTokens)
	require.Equal(t, 5, resp.Usage.OutputTokens)
	require.Equal(t, int64(256), fake.captured.MaxTokens)
}

func TestClientCompleteRejectsEmptyMessages(t *testing.T) {
	client, err := anthropic.New(&fakeMessagesClient{}, anthropic.Options{DefaultModel: "claude-x", MaxTokens: 256})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), &model.Request{})
	require.Error(t, err)
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	_, err := anthropic.New(&fakeMessagesClient{}, anthropic.Options{})
	require.Error(t, err)
}
