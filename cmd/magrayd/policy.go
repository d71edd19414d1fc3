package main

import (
	"github.com/magray/magray/internal/config"
	"github.com/magray/magray/internal/policy"
	"github.com/magray/magray/pkg/magray"
)

// loadPolicyEngine builds a policy.Engine from cfg.PolicySources, each
// file loaded and merged in the order spec.md §6 requires (built-in
// defaults first, then each configured file in listed order, later
// sources winning ties under last-match-wins). The returned engine is
// passed to tools.NewDispatcher, which consults it via Decide before
// every tool invocation.
func loadPolicyEngine(cfg config.Config) (*policy.Engine, error) {
	sources := make([][]magray.PolicyRule, 0, len(cfg.PolicySources))
	for _, path := range cfg.PolicySources {
		rules, err := policy.LoadFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, rules)
	}
	return policy.New(sources...), nil
}
