package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/config"
)

func TestDefaultIsWithinClampRanges(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, 30, int(cfg.ConnectionTimeout.Seconds()))
	require.Equal(t, 64, cfg.MaxSteps)
	require.Equal(t, 8, cfg.MaxParallel)
}

func TestLoadClampsConnectionTimeoutBelowMinimum(t *testing.T) {
	t.Setenv("MAGRAY_CONNECTION_TIMEOUT_MS", "10")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, int64(1), cfg.ConnectionTimeout.Milliseconds()/1000)
}

func TestLoadClampsConnectionTimeoutAboveMaximum(t *testing.T) {
	t.Setenv("MAGRAY_CONNECTION_TIMEOUT_MS", "99999999")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, int64(300), cfg.ConnectionTimeout.Milliseconds()/1000)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("MAGRAY_HEARTBEAT_INTERVAL_MS", "not-a-number")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadParsesPolicySources(t *testing.T) {
	t.Setenv("MAGRAY_POLICY_SOURCES", "/etc/magray/a.json, /etc/magray/b.json")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"/etc/magray/a.json", "/etc/magray/b.json"}, cfg.PolicySources)
}

func TestHNSWConfigParamsFallsBackToDefaults(t *testing.T) {
	params := config.HNSWConfig{Dim: 256}.Params()
	require.Equal(t, 256, params.Dim)
	require.Equal(t, 16, params.M)
}

func TestLayerTTLConfigOverridesOnlyNonZeroLayers(t *testing.T) {
	overrides := config.LayerTTLConfig{Insights: 0}.Overrides()
	require.Empty(t, overrides)
}
