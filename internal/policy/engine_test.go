package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/pkg/magray"
)

func TestDefaultDecisionIsAsk(t *testing.T) {
	e := New()
	d, err := e.Decide(context.Background(), Input{SubjectKind: magray.SubjectTool, Name: "file.list"})
	require.NoError(t, err)
	require.Equal(t, magray.PolicyAsk, d.Action)
}

func TestShellExecDeniedByDefault(t *testing.T) {
	e := New()
	d, err := e.Decide(context.Background(), Input{SubjectKind: magray.SubjectCommand, Name: "rm"})
	require.NoError(t, err)
	require.Equal(t, magray.PolicyDeny, d.Action)
}

func TestLastMatchWins(t *testing.T) {
	e := New([]magray.PolicyRule{
		{SubjectKind: magray.SubjectTool, Name: "file.list", Action: magray.PolicyDeny},
		{SubjectKind: magray.SubjectTool, Name: "file.list", Action: magray.PolicyAllow, Reason: "later override"},
	})
	d, err := e.Decide(context.Background(), Input{SubjectKind: magray.SubjectTool, Name: "file.list"})
	require.NoError(t, err)
	require.Equal(t, magray.PolicyAllow, d.Action)
	require.Equal(t, "later override", d.Reason)
}

func TestWhenContainsArgsDomainMatching(t *testing.T) {
	e := New([]magray.PolicyRule{
		{
			SubjectKind:      magray.SubjectTool,
			Name:             "web.fetch",
			WhenContainsArgs: map[string]string{"domain": "example.com"},
			Action:           magray.PolicyDeny,
		},
	})

	denied, err := e.Decide(context.Background(), Input{
		SubjectKind: magray.SubjectTool,
		Name:        "web.fetch",
		Args:        map[string]string{"domain": ExtractDomain("https://example.com/x")},
	})
	require.NoError(t, err)
	require.Equal(t, magray.PolicyDeny, denied.Action)

	allowed, err := e.Decide(context.Background(), Input{
		SubjectKind: magray.SubjectTool,
		Name:        "web.fetch",
		Args:        map[string]string{"domain": ExtractDomain("https://other.com/x")},
	})
	require.NoError(t, err)
	require.Equal(t, magray.PolicyAsk, allowed.Action)
}

func TestWildcardNameMatches(t *testing.T) {
	e := New([]magray.PolicyRule{
		{SubjectKind: magray.SubjectTool, Name: "*", Action: magray.PolicyAllow},
	})
	d, err := e.Decide(context.Background(), Input{SubjectKind: magray.SubjectTool, Name: "anything.at.all"})
	require.NoError(t, err)
	require.Equal(t, magray.PolicyAllow, d.Action)
}

func TestEmergencyDisableAudits(t *testing.T) {
	e := New([]magray.PolicyRule{
		{SubjectKind: magray.SubjectCommand, Name: "*", Action: magray.PolicyDeny},
	})
	var reasons []string
	e.SetAuditFunc(func(reason string) { reasons = append(reasons, reason) })
	e.SetEmergencyDisable(true, "incident-123")

	d, err := e.Decide(context.Background(), Input{SubjectKind: magray.SubjectCommand, Name: "rm"})
	require.NoError(t, err)
	require.Equal(t, magray.PolicyAllow, d.Action)
	require.Equal(t, []string{"incident-123"}, reasons)
}

func TestExtractKeywordsTokenizes(t *testing.T) {
	require.Equal(t, []string{"weather", "in", "nyc"}, ExtractKeywords("weather in NYC"))
}

func TestParseJSONRoundTrip(t *testing.T) {
	rules, err := ParseJSON([]byte(`{"rules":[{"subject_kind":"tool","subject_name":"file.list","action":"allow","reason":"ok"}]}`))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, magray.PolicyAllow, rules[0].Action)
}
