package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/modelregistry"
)

func registryWithModels(t *testing.T) *modelregistry.Registry {
	t.Helper()
	r := modelregistry.New()
	require.NoError(t, r.RegisterModel(domain.ModelMetadata{ModelID: "claude-haiku", Provider: "anthropic", Available: true}))
	require.NoError(t, r.RegisterModel(domain.ModelMetadata{ModelID: "claude-sonnet", Provider: "anthropic", Available: true}))
	require.NoError(t, r.RegisterModel(domain.ModelMetadata{ModelID: "claude-opus", Provider: "anthropic", Available: true}))
	return r
}

func TestAllocatePicksHighTierForOverallReading(t *testing.T) {
	r := registryWithModels(t)
	analysis := Analyze(Input{TaskType: TaskOverallReading, NumCards: 1})

	alloc, err := Allocate(analysis, TaskOverallReading, r, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, domain.TierHigh, alloc.Tier)
	assert.Equal(t, "claude-opus", alloc.ModelID)
}

func TestAllocateFailsWhenNoModelAvailable(t *testing.T) {
	r := modelregistry.New()
	analysis := Analyze(Input{TaskType: TaskCardInterpretation, NumCards: 1})

	_, err := Allocate(analysis, TaskCardInterpretation, r, "anthropic")
	assert.Error(t, err)
}

func TestAllocateMaxTokensHasHeadroomOverEstimate(t *testing.T) {
	r := registryWithModels(t)
	analysis := Analyze(Input{TaskType: TaskCardInterpretation, NumCards: 1})

	alloc, err := Allocate(analysis, TaskCardInterpretation, r, "anthropic")
	require.NoError(t, err)
	assert.Greater(t, alloc.Config.MaxTokens, analysis.EstOutputTokens)
}
