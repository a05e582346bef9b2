package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileNames_StableOrder(t *testing.T) {
	assert.Equal(t, []string{"news", "scalp", "swing"}, ProfileNames())
}

func TestResolveProfile_UnknownName(t *testing.T) {
	_, err := ResolveProfile("yolo", nil)
	assert.Error(t, err)
}

func TestResolveProfile_PresetUntouched(t *testing.T) {
	p, err := ResolveProfile("swing", nil)
	require.NoError(t, err)
	assert.Equal(t, "swing", p.Name)
	assert.Equal(t, 2.2, p.Momentum["ret_15"])
}

func TestResolveProfile_OverridesMergeOntoPreset(t *testing.T) {
	overrides := map[string]map[string]float64{
		"mom":  {"ret_15": 9.9},
		"cost": {"slip": 0.1},
	}
	p, err := ResolveProfile("scalp", overrides)
	require.NoError(t, err)

	assert.Equal(t, 9.9, p.Momentum["ret_15"])
	assert.Equal(t, 0.1, p.Cost["slip"])
	// Untouched keys keep the preset values.
	assert.Equal(t, 1.0, p.Momentum["ret_1"])
	assert.Equal(t, 3.0, p.Cost["spread"])
}

func TestResolveProfile_OverrideDoesNotMutatePreset(t *testing.T) {
	_, err := ResolveProfile("scalp", map[string]map[string]float64{
		"mom": {"ret_15": 42},
	})
	require.NoError(t, err)

	fresh, err := ResolveProfile("scalp", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.5, fresh.Momentum["ret_15"])
}

func TestResolveProfile_UnknownSectionRejected(t *testing.T) {
	_, err := ResolveProfile("scalp", map[string]map[string]float64{
		"nonsense": {"x": 1},
	})
	assert.Error(t, err)
}
