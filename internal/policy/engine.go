// Package policy implements the secure-by-default gating engine described
// in spec.md §4.2: it evaluates (subject, action, args) against a merged
// rule set with last-match-wins semantics and a default of Ask. It is
// directly adapted from the teacher's features/policy/basic engine, which
// implements the same allow/block-list and retry-hint shape for a single
// in-process rule set; Engine here additionally merges rule sets from
// multiple sources (built-in, file, env path, env inline) per spec.md §4.2.
package policy

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/magray/magray/pkg/magray"
)

// Input describes one (subject, action, args) evaluation request.
type Input struct {
	SubjectKind magray.Subject
	Name        string
	Args        map[string]string
}

// Decision is the Engine's verdict for an Input, always carrying the
// winning rule's reason (or the default-Ask reason) for audit purposes.
type Decision struct {
	Action magray.PolicyAction
	RuleID string
	Reason string
}

// Engine evaluates policy decisions from a merged, ordered rule set.
// Last matching rule wins; the zero-value default is Ask per spec.md §4.2.
// Engine is safe for concurrent use: Decide only reads the rule set, and
// rule-set replacement (Reload) swaps a pointer under a lock.
type Engine struct {
	mu    sync.RWMutex
	rules []magray.PolicyRule
	// emergencyDisabled, when true, bypasses all evaluation and returns
	// Allow for every Input. Set through SetEmergencyDisable, whose callers
	// verify the signed token; engaging it calls the AuditFunc installed by
	// SetAuditFunc.
	emergencyDisabled bool
	audit             func(reason string)
}

// New constructs an Engine from built-in default rules plus any additional
// rule sources, applied in the merge order required by spec.md §4.2 and
// §6: built-in → file → env path → env inline, with later sources
// appending after earlier ones so last-match-wins favors them.
func New(sources ...[]magray.PolicyRule) *Engine {
	e := &Engine{rules: append([]magray.PolicyRule{}, builtinDefaults()...)}
	for _, src := range sources {
		e.rules = append(e.rules, src...)
	}
	return e
}

// SetAuditFunc installs a callback invoked whenever the emergency disable
// is engaged, carrying the reason for the audit trail (spec.md §4.2: "its
// use publishes policy.block{emergency} for audit").
func (e *Engine) SetAuditFunc(fn func(reason string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audit = fn
}

// SetEmergencyDisable toggles the emergency bypass. Callers are responsible
// for verifying the signed token carried in the env var before calling
// this; Engine itself does not parse or verify tokens since token format
// and trust roots are deployment-specific.
func (e *Engine) SetEmergencyDisable(disabled bool, reason string) {
	e.mu.Lock()
	e.emergencyDisabled = disabled
	audit := e.audit
	e.mu.Unlock()
	if disabled && audit != nil {
		audit(reason)
	}
}

// Reload atomically replaces the merged rule set, preserving the same
// built-in → file → env-path → env-inline ordering as New.
func (e *Engine) Reload(sources ...[]magray.PolicyRule) {
	rules := append([]magray.PolicyRule{}, builtinDefaults()...)
	for _, src := range sources {
		rules = append(rules, src...)
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
}

// Decide evaluates input against the merged rule set and returns the
// winning decision. Matching: a rule matches when SubjectKind matches,
// Name equals the rule's Name or the rule's Name is "*", and every
// key/value pair in WhenContainsArgs is present and string-equal in
// input.Args. Last matching rule wins; absent any match, the decision is
// Ask.
//
//nolint:unparam // ctx reserved for future remote policy lookups.
func (e *Engine) Decide(_ context.Context, input Input) (Decision, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.emergencyDisabled {
		return Decision{Action: magray.PolicyAllow, RuleID: "emergency", Reason: "emergency disable active"}, nil
	}

	decision := Decision{Action: magray.PolicyAsk, RuleID: "default", Reason: "no matching rule; default is Ask"}
	for i, rule := range e.rules {
		if !ruleMatches(rule, input) {
			continue
		}
		decision = Decision{
			Action: rule.Action,
			RuleID: ruleID(rule, i),
			Reason: rule.Reason,
		}
	}
	return decision, nil
}

func ruleMatches(rule magray.PolicyRule, input Input) bool {
	if rule.SubjectKind != input.SubjectKind {
		return false
	}
	if rule.Name != "*" && rule.Name != input.Name {
		return false
	}
	for k, v := range rule.WhenContainsArgs {
		if input.Args[k] != v {
			return false
		}
	}
	return true
}

func ruleID(rule magray.PolicyRule, index int) string {
	return strings.Join([]string{string(rule.SubjectKind), rule.Name, itoa(index)}, "/")
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// builtinDefaults returns the always-present baseline rules required by
// spec.md §4.2: deny shell.exec, ask for capability-elevated actions.
func builtinDefaults() []magray.PolicyRule {
	return []magray.PolicyRule{
		{SubjectKind: magray.SubjectCommand, Name: "*", Action: magray.PolicyDeny, Reason: "shell.exec denied by default"},
		{SubjectKind: magray.SubjectTool, Name: "*", Action: magray.PolicyAsk, Reason: "capability-elevated tool requires confirmation by default"},
	}
}

// ExtractDomain pulls the hostname out of a urlStr for web.* subject
// arg-constraint matching, per spec.md §4.2: "for web.*, the engine
// extracts domain from url".
func ExtractDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// ExtractKeywords tokenizes a search query into lowercase keywords for
// web.search arg-constraint matching, per spec.md §4.2: "for web.search,
// it extracts tokenized keywords from the query".
func ExtractKeywords(query string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(query), -1)
	return matches
}
