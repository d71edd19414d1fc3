package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/model"
	"github.com/magray/magray/pkg/magray"
)

type stubLLM struct {
	text string
	err  error
}

func (s stubLLM) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.Response{Text: s.text}, nil
}

func TestIntentAnalyzerMatchesFileOperation(t *testing.T) {
	a := NewIntentAnalyzer(nil, nil)
	intent, err := a.Analyze(context.Background(), "read file /tmp/a.txt", magray.IntentContext{Timestamp: time.Now()})
	require.NoError(t, err)
	require.Equal(t, magray.IntentFileOperation, intent.Kind)
	require.Equal(t, "read", intent.Parameters["op"])
	require.Equal(t, "/tmp/a.txt", intent.Parameters["path"])
	require.GreaterOrEqual(t, intent.Confidence, DefaultConfidenceThreshold)
}

func TestIntentAnalyzerFallsBackToUnknownWithoutLLM(t *testing.T) {
	a := NewIntentAnalyzer(nil, nil)
	intent, err := a.Analyze(context.Background(), "blorp zzz unrecognizable", magray.IntentContext{})
	require.NoError(t, err)
	require.Equal(t, magray.IntentUnknown, intent.Kind)
}

func TestIntentAnalyzerUsesLLMFallbackBelowThreshold(t *testing.T) {
	a := NewIntentAnalyzer(stubLLM{text: "system_command"}, nil)
	a.Threshold = 0.95
	intent, err := a.Analyze(context.Background(), "run workflow deploy", magray.IntentContext{})
	require.NoError(t, err)
	require.Equal(t, magray.IntentSystemCommand, intent.Kind)
}

func TestIntentAnalyzerPublishesEvent(t *testing.T) {
	var published []magray.Event
	a := NewIntentAnalyzer(nil, func(ctx context.Context, ev magray.Event) error {
		published = append(published, ev)
		return nil
	})
	_, err := a.Analyze(context.Background(), "use tool file.list", magray.IntentContext{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.Equal(t, magray.TopicIntent+".analyzed", published[0].Topic)
}

func TestIntentAnalyzerUpdateConfidenceAdjustsPriors(t *testing.T) {
	a := NewIntentAnalyzer(nil, nil)
	before := a.GetStatistics()
	a.UpdateConfidence("i1", magray.IntentFileOperation, true)
	after := a.GetStatistics()

	var beforePrior, afterPrior float64
	for _, s := range before {
		if s.Kind == magray.IntentFileOperation {
			beforePrior = s.CurrentPrior
		}
	}
	for _, s := range after {
		if s.Kind == magray.IntentFileOperation {
			afterPrior = s.CurrentPrior
		}
	}
	require.Greater(t, afterPrior, beforePrior)
}
