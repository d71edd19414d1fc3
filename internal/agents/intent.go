// Package agents implements the five agent roles described in spec.md
// §4.5: IntentAnalyzer, Planner, Executor, Critic, and Scheduler. Each is a
// mailbox actor in the sense of internal/actor, but the per-role logic
// here is exercised directly (and unit-tested) independent of the actor
// wrapper, mirroring how the teacher separates its planner/runtime
// decision logic (runtime/agent/planner) from the workflow loop that
// drives it (runtime/agent/runtime/workflow_loop.go).
package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/magray/magray/internal/model"
	"github.com/magray/magray/pkg/magray"
)

// DefaultConfidenceThreshold is the default below which IntentAnalyzer
// falls back to an LLM pass, per spec.md §4.5.
const DefaultConfidenceThreshold = 0.8

// pattern is one rule the analyzer matches utterances against.
type pattern struct {
	kind       magray.IntentKind
	re         *regexp.Regexp
	paramNames []string
	prior      float64
}

// builtinPatterns mirrors the tagged variants in spec.md §3: each pattern
// captures the variant's parameters directly from the regex's named
// groups.
var builtinPatterns = []pattern{
	{kind: magray.IntentFileOperation, re: regexp.MustCompile(`(?i)^(?P<op>read|write|delete|list|move|copy)\s+(file\s+)?(?P<path>\S+)`), paramNames: []string{"op", "path"}, prior: 0.9},
	{kind: magray.IntentSystemCommand, re: regexp.MustCompile(`(?i)^(run|exec(ute)?)\s+(?P<cmd>.+)$`), paramNames: []string{"cmd"}, prior: 0.9},
	{kind: magray.IntentMemoryOperation, re: regexp.MustCompile(`(?i)^(remember|recall|forget)\s+(?P<op>.+)$`), paramNames: []string{"op"}, prior: 0.85},
	{kind: magray.IntentWorkflowExecution, re: regexp.MustCompile(`(?i)^(run workflow|start workflow)\s+(?P<name>\S+)`), paramNames: []string{"name"}, prior: 0.85},
	{kind: magray.IntentExecuteTool, re: regexp.MustCompile(`(?i)^(use|invoke|call)\s+tool\s+(?P<name>\S+)`), paramNames: []string{"name"}, prior: 0.9},
	{kind: magray.IntentAskQuestion, re: regexp.MustCompile(`(?i)^(what|why|how|when|where|who|is|are|can)\b`), paramNames: nil, prior: 0.7},
}

// Stats is the aggregate per-pattern performance surfaced by
// GetStatistics.
type Stats struct {
	Kind         magray.IntentKind
	Successes    int64
	Failures     int64
	CurrentPrior float64
}

// IntentAnalyzer maps (utterance, IntentContext) to Intent using rule
// patterns plus an optional LLM fallback when confidence falls below
// Threshold (spec.md §4.5). It is safe for concurrent use.
type IntentAnalyzer struct {
	Threshold float64
	LLM       model.Client
	Publish   func(context.Context, magray.Event) error

	mu       sync.Mutex
	patterns []pattern
	outcomes map[magray.IntentID]magray.IntentKind
}

// NewIntentAnalyzer constructs an analyzer with the built-in rule patterns
// and the given LLM fallback client (nil disables the fallback, in which
// case low-confidence utterances resolve to IntentUnknown).
func NewIntentAnalyzer(llm model.Client, publish func(context.Context, magray.Event) error) *IntentAnalyzer {
	patterns := make([]pattern, len(builtinPatterns))
	copy(patterns, builtinPatterns)
	return &IntentAnalyzer{
		Threshold: DefaultConfidenceThreshold,
		LLM:       llm,
		Publish:   publish,
		patterns:  patterns,
		outcomes:  make(map[magray.IntentID]magray.IntentKind),
	}
}

// Analyze resolves utterance against ictx, falling back to an LLM pass
// when the best rule match's confidence is below Threshold. It publishes
// intent.analyzed with the resolved Intent regardless of path taken.
func (a *IntentAnalyzer) Analyze(ctx context.Context, utterance string, ictx magray.IntentContext) (magray.Intent, error) {
	intent := a.matchRules(utterance, ictx)

	threshold := a.Threshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	if intent.Confidence < threshold && a.LLM != nil {
		llmIntent, err := a.fallbackToLLM(ctx, utterance, ictx)
		if err == nil {
			intent = llmIntent
		}
	}

	intent.ID = magray.IntentID(magray.NewID())
	intent.Context = ictx

	if a.Publish != nil {
		_ = a.Publish(ctx, magray.Event{
			Topic:         magray.TopicIntent + ".analyzed",
			CorrelationID: string(ictx.SessionID),
			Timestamp:     ictx.Timestamp,
			Payload:       intent,
		})
	}
	return intent, nil
}

func (a *IntentAnalyzer) matchRules(utterance string, _ magray.IntentContext) magray.Intent {
	a.mu.Lock()
	patterns := make([]pattern, len(a.patterns))
	copy(patterns, a.patterns)
	a.mu.Unlock()

	trimmed := strings.TrimSpace(utterance)
	var best *pattern
	var bestMatch []string
	for i := range patterns {
		p := &patterns[i]
		m := p.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		if best == nil || p.prior > best.prior {
			best = p
			bestMatch = m
		}
	}

	if best == nil {
		return magray.Intent{
			Kind:       magray.IntentUnknown,
			Parameters: map[string]any{"raw": utterance},
			Confidence: 0,
		}
	}

	params := map[string]any{}
	for _, name := range best.paramNames {
		idx := best.re.SubexpIndex(name)
		if idx >= 0 && idx < len(bestMatch) {
			params[name] = strings.TrimSpace(bestMatch[idx])
		}
	}
	return magray.Intent{
		Kind:       best.kind,
		Parameters: params,
		Confidence: best.prior,
	}
}

func (a *IntentAnalyzer) fallbackToLLM(ctx context.Context, utterance string, ictx magray.IntentContext) (magray.Intent, error) {
	var history strings.Builder
	for _, turn := range ictx.History {
		fmt.Fprintf(&history, "user: %s\nassistant: %s\n", turn.Utterance, turn.Response)
	}

	resp, err := a.LLM.Complete(ctx, &model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "Classify the user utterance into one of: execute_tool, ask_question, file_operation, memory_operation, workflow_execution, system_command, unknown. Respond with only the kind."},
			{Role: model.RoleUser, Content: history.String() + utterance},
		},
		MaxTokens: 16,
	})
	if err != nil {
		return magray.Intent{}, err
	}

	kind := magray.IntentKind(strings.TrimSpace(strings.ToLower(resp.Text)))
	switch kind {
	case magray.IntentExecuteTool, magray.IntentAskQuestion, magray.IntentFileOperation,
		magray.IntentMemoryOperation, magray.IntentWorkflowExecution, magray.IntentSystemCommand:
	default:
		kind = magray.IntentUnknown
	}
	return magray.Intent{
		Kind:       kind,
		Parameters: map[string]any{"raw": utterance},
		Confidence: 0.6,
	}, nil
}

// UpdateConfidence adjusts the analyzer's per-pattern priors based on
// whether a previously-resolved intent's execution succeeded, per
// spec.md §4.5's update_confidence(intent_id, success).
func (a *IntentAnalyzer) UpdateConfidence(intentID magray.IntentID, kind magray.IntentKind, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.outcomes[intentID] = kind
	for i := range a.patterns {
		if a.patterns[i].kind != kind {
			continue
		}
		const learningRate = 0.02
		if success {
			a.patterns[i].prior = minF(0.99, a.patterns[i].prior+learningRate)
		} else {
			a.patterns[i].prior = maxF(0.05, a.patterns[i].prior-learningRate)
		}
	}
}

// GetStatistics returns the current per-pattern priors, per spec.md
// §4.5's get_statistics.
func (a *IntentAnalyzer) GetStatistics() []Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Stats, 0, len(a.patterns))
	for _, p := range a.patterns {
		out = append(out, Stats{Kind: p.kind, CurrentPrior: p.prior})
	}
	return out
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
