package bedrock_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/model"
	"github.com/magray/magray/internal/model/bedrock"
)

type fakeRuntimeClient struct {
	output   *bedrockruntime.ConverseOutput
	err      error
	captured *bedrockruntime.ConverseInput
}

func (f *fakeRuntimeClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.captured = params
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func TestClientCompleteTranslatesResponse(t *testing.T) {
	fake := &fakeRuntimeClient{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "hello there"}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(5),
		},
	}}
	client, err := bedrock.New(bedrock.Options{Runtime: fake, DefaultModel: "anthropic.claude-x", MaxTokens: 256})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", resp.Text)
	require.Equal(t, string(brtypes.StopReasonEndTurn), resp.StopReason)
	require.Equal(t, 10, resp.Usage.InputTokens)
	require.Equal(t, 5, resp.Usage.OutputTokens)
	require.NotNil(t, fake.captured)
	require.Equal(t, "anthropic.claude-x", *fake.captured.ModelId)
}

func TestClientCompleteRejectsEmptyMessages(t *testing.T) {
	client, err := bedrock.New(bedrock.Options{Runtime: &fakeRuntimeClient{}, DefaultModel: "anthropic.claude-x"})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), &model.Request{})
	require.Error(t, err)
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	_, err := bedrock.New(bedrock.Options{Runtime: &fakeRuntimeClient{}})
	require.Error(t, err)
}
