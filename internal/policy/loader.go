package policy

import (
	"encoding/json"
	"os"

	"github.com/magray/magray/pkg/magray"
)

// FileDocument is the decoded shape of a policy.json file (spec.md §6).
type FileDocument struct {
	Rules []ruleDocument `json:"rules"`
}

type ruleDocument struct {
	SubjectKind      magray.Subject      `json:"subject_kind"`
	SubjectName      string              `json:"subject_name"`
	WhenContainsArgs map[string]string   `json:"when_contains_args,omitempty"`
	Action           magray.PolicyAction `json:"action"`
	Reason           string              `json:"reason,omitempty"`
}

func (d FileDocument) toRules() []magray.PolicyRule {
	rules := make([]magray.PolicyRule, 0, len(d.Rules))
	for _, r := range d.Rules {
		rules = append(rules, magray.PolicyRule{
			SubjectKind:      r.SubjectKind,
			Name:             r.SubjectName,
			WhenContainsArgs: r.WhenContainsArgs,
			Action:           r.Action,
			Reason:           r.Reason,
		})
	}
	return rules
}

// ParseJSON decodes a policy.json document (used for both file-sourced and
// env-inline rule sets, since both use the same wire shape per spec.md §6).
func ParseJSON(data []byte) ([]magray.PolicyRule, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc FileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, magray.WrapError(magray.ErrManifestInvalid, err, "parse policy document")
	}
	return doc.toRules(), nil
}

// LoadFile reads and parses the policy.json at path. A missing file is not
// an error: it simply contributes no rules, since ${MAGRAY_HOME}/policy.json
// is optional.
func LoadFile(path string) ([]magray.PolicyRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, magray.WrapError(magray.ErrInternal, err, "read policy file %q", path)
	}
	return ParseJSON(data)
}

// LoadFromEnv assembles the full merge chain described in spec.md §6:
// ${MAGRAY_HOME}/policy.json → MAGRAY_POLICY_PATH → MAGRAY_POLICY_JSON.
// The built-in defaults are added separately by Engine.New/Reload.
func LoadFromEnv(magrayHome string) ([][]magray.PolicyRule, error) {
	var chain [][]magray.PolicyRule

	if magrayHome != "" {
		rules, err := LoadFile(magrayHome + "/policy.json")
		if err != nil {
			return nil, err
		}
		chain = append(chain, rules)
	}

	if path := os.Getenv("MAGRAY_POLICY_PATH"); path != "" {
		rules, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, rules)
	}

	if inline := os.Getenv("MAGRAY_POLICY_JSON"); inline != "" {
		rules, err := ParseJSON([]byte(inline))
		if err != nil {
			return nil, err
		}
		chain = append(chain, rules)
	}

	return chain, nil
}
