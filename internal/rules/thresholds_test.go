package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadnexus/subiq/internal/model"
)

func writeThresholds(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadThresholds(t *testing.T) {
	path := writeThresholds(t, `
verticals:
  medicare:
    call: {premium: 0.40, standard: 0.25}
    lead: {premium: 0.30, standard: 0.15}
  auto:
    call: {premium: 0.55, standard: 0.35}
`)

	set, err := LoadThresholds(path)
	require.NoError(t, err)
	require.Len(t, set, 2)

	medicare := set[model.VerticalMedicare]
	require.NotNil(t, medicare.Call)
	assert.InDelta(t, 0.40, medicare.Call.Premium, 1e-9)
	assert.InDelta(t, 0.15, medicare.Lead.Standard, 1e-9)

	// Auto carries no lead thresholds; that is legal.
	assert.Nil(t, set[model.VerticalAuto].Lead)
}

func TestLoadThresholdsUnknownVertical(t *testing.T) {
	path := writeThresholds(t, `
verticals:
  plumbing:
    call: {premium: 0.40, standard: 0.25}
`)

	_, err := LoadThresholds(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plumbing")
}

func TestLoadThresholdsMissingFile(t *testing.T) {
	_, err := LoadThresholds(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestThresholdValidity(t *testing.T) {
	assert.True(t, (&RateThresholds{Premium: 0.40, Standard: 0.25}).valid())
	assert.False(t, (&RateThresholds{Premium: 0.25, Standard: 0.40}).valid())
	assert.False(t, (&RateThresholds{Premium: 0.40}).valid())
	assert.False(t, (*RateThresholds)(nil).valid())
}
