// Package config loads the typed configuration spec.md §9 enumerates
// (connection_timeout_ms, heartbeat_interval_ms, max_execution_time_ms,
// max_steps, max_parallel, embedder, reranker, hnsw{...},
// layer_ttls{...}, policy_sources[...]) from MAGRAY_* environment
// variables, grounded on internal/policy/loader.go's direct-os.Getenv
// merge pattern (the only config-loading code in the corpus; the
// teacher's go.mod carries github.com/spf13/viper but nothing in the
// corpus imports it, so there's no third-party parser to ground this
// package on). Every duration/count knob is clamped to the ranges
// spec.md §6/§8 name, following internal/tools/mcp.go's clamp helper.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/magray/magray/internal/agents"
	"github.com/magray/magray/internal/memory"
	"github.com/magray/magray/pkg/magray"
)

// Clamp ranges named in spec.md §6.
const (
	minConnectionTimeout = time.Second
	maxConnectionTimeout = 5 * time.Minute
	minHeartbeatInterval = 10 * time.Second
	maxHeartbeatInterval = 10 * time.Minute
	minExecutionTime     = 5 * time.Second
	maxExecutionTime     = 30 * time.Minute

	// minPlanSteps/maxPlanSteps and minPlanParallel/maxPlanParallel bound
	// max_steps/max_parallel. spec.md names these as configurable but
	// does not give numeric bounds the way it does for the MCP timeouts,
	// so these follow agents.DefaultPlannerLimits' own 64/8 defaults with
	// generous headroom, an Open Question decision recorded in DESIGN.md.
	minPlanSteps    = 1
	maxPlanSteps    = 1000
	minPlanParallel = 1
	maxPlanParallel = 64
)

// HNSWConfig mirrors memory.HNSWParams so it can be parsed from the
// hnsw{M,ef_c,ef_s,dim} config object without internal/config importing
// memory's constructor signature directly into the parsing step.
type HNSWConfig struct {
	M              int
	EfConstruction int
	EfSearch       int
	Dim            int
}

// Params converts HNSWConfig into memory.HNSWParams, applying
// memory.DefaultHNSWParams(dim) for any field left at zero.
func (h HNSWConfig) Params() memory.HNSWParams {
	defaults := memory.DefaultHNSWParams(h.Dim)
	params := defaults
	if h.M > 0 {
		params.M = h.M
	}
	if h.EfConstruction > 0 {
		params.EfConstruction = h.EfConstruction
	}
	if h.EfSearch > 0 {
		params.EfSearch = h.EfSearch
	}
	if h.Dim > 0 {
		params.Dim = h.Dim
	}
	return params
}

// LayerTTLConfig carries the layer_ttls{interact,insights,assets} knob.
// A zero duration leaves the corresponding layer at pkg/magray.LayerTTL's
// built-in default.
type LayerTTLConfig struct {
	Interact time.Duration
	Insights time.Duration
	Assets   time.Duration
}

// Overrides converts LayerTTLConfig into the map memory.PromotionPolicy
// expects, omitting zero entries so they fall through to the default.
func (l LayerTTLConfig) Overrides() map[magray.MemoryLayer]time.Duration {
	overrides := make(map[magray.MemoryLayer]time.Duration, 3)
	if l.Interact > 0 {
		overrides[magray.LayerInteract] = l.Interact
	}
	if l.Insights > 0 {
		overrides[magray.LayerInsights] = l.Insights
	}
	if l.Assets > 0 {
		overrides[magray.LayerAssets] = l.Assets
	}
	return overrides
}

// Config is the full set of runtime knobs spec.md §9 names.
type Config struct {
	Home string

	ConnectionTimeout time.Duration
	HeartbeatInterval time.Duration
	MaxExecutionTime  time.Duration
	MaxSteps          int
	MaxParallel       int

	Embedder string
	Reranker string

	HNSW      HNSWConfig
	LayerTTLs LayerTTLConfig

	// PolicySources lists additional policy file paths merged after the
	// built-in defaults, before ${MAGRAY_HOME}/policy.json per
	// internal/policy's merge order.
	PolicySources []string
}

// Default returns the configuration in effect when no environment
// variable overrides anything.
func Default() Config {
	return Config{
		Home:              defaultHome(),
		ConnectionTimeout: 30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxExecutionTime:  5 * time.Minute,
		MaxSteps:          agents.DefaultPlannerLimits.MaxSteps,
		MaxParallel:       agents.DefaultPlannerLimits.MaxParallel,
		Embedder:          "cpu",
		Reranker:          "noop",
	}
}

// PlannerLimits converts Config's max_steps/max_parallel into
// agents.PlannerLimits.
func (c Config) PlannerLimits() agents.PlannerLimits {
	return agents.PlannerLimits{MaxSteps: c.MaxSteps, MaxParallel: c.MaxParallel}
}

// Load reads MAGRAY_* environment variables over Default(), clamping
// every duration/count knob to the ranges spec.md §6/§8 name. Malformed
// values (non-numeric where a number is expected) return an error
// naming the offending variable rather than silently falling back.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv("MAGRAY_HOME"); v != "" {
		cfg.Home = v
	}

	var err error
	if cfg.ConnectionTimeout, err = durationMS("MAGRAY_CONNECTION_TIMEOUT_MS", cfg.ConnectionTimeout, minConnectionTimeout, maxConnectionTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatInterval, err = durationMS("MAGRAY_HEARTBEAT_INTERVAL_MS", cfg.HeartbeatInterval, minHeartbeatInterval, maxHeartbeatInterval); err != nil {
		return Config{}, err
	}
	if cfg.MaxExecutionTime, err = durationMS("MAGRAY_MAX_EXECUTION_TIME_MS", cfg.MaxExecutionTime, minExecutionTime, maxExecutionTime); err != nil {
		return Config{}, err
	}
	if cfg.MaxSteps, err = clampedInt("MAGRAY_MAX_STEPS", cfg.MaxSteps, minPlanSteps, maxPlanSteps); err != nil {
		return Config{}, err
	}
	if cfg.MaxParallel, err = clampedInt("MAGRAY_MAX_PARALLEL", cfg.MaxParallel, minPlanParallel, maxPlanParallel); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("MAGRAY_EMBEDDER"); v != "" {
		cfg.Embedder = v
	}
	if v := os.Getenv("MAGRAY_RERANKER"); v != "" {
		cfg.Reranker = v
	}

	if cfg.HNSW.M, err = optionalInt("MAGRAY_HNSW_M"); err != nil {
		return Config{}, err
	}
	if cfg.HNSW.EfConstruction, err = optionalInt("MAGRAY_HNSW_EF_CONSTRUCTION"); err != nil {
		return Config{}, err
	}
	if cfg.HNSW.EfSearch, err = optionalInt("MAGRAY_HNSW_EF_SEARCH"); err != nil {
		return Config{}, err
	}
	if cfg.HNSW.Dim, err = optionalInt("MAGRAY_HNSW_DIM"); err != nil {
		return Config{}, err
	}

	if cfg.LayerTTLs.Interact, err = optionalDurationMS("MAGRAY_LAYER_TTL_INTERACT_MS"); err != nil {
		return Config{}, err
	}
	if cfg.LayerTTLs.Insights, err = optionalDurationMS("MAGRAY_LAYER_TTL_INSIGHTS_MS"); err != nil {
		return Config{}, err
	}
	if cfg.LayerTTLs.Assets, err = optionalDurationMS("MAGRAY_LAYER_TTL_ASSETS_MS"); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("MAGRAY_POLICY_SOURCES"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.PolicySources = append(cfg.PolicySources, s)
			}
		}
	}

	return cfg, nil
}

func defaultHome() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home + "/.magray"
	}
	return ".magray"
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func durationMS(key string, fallback, lo, hi time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return clamp(fallback, lo, hi), nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer number of milliseconds: %w", key, err)
	}
	return clamp(time.Duration(ms)*time.Millisecond, lo, hi), nil
}

func optionalDurationMS(key string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer number of milliseconds: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func clampedInt(key string, fallback, lo, hi int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return clampInt(fallback, lo, hi), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return clampInt(n, lo, hi), nil
}

func optionalInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}
