package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerationConfigValid(t *testing.T) {
	cfg, err := NewGenerationConfig(0.7, 2000, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.MaxTokens)
}

func TestNewGenerationConfigInvalid(t *testing.T) {
	_, err := NewGenerationConfig(3.0, 2000, 0.9)
	assert.Error(t, err)

	_, err = NewGenerationConfig(0.7, 0, 0.9)
	assert.Error(t, err)

	_, err = NewGenerationConfig(0.7, 2000, 1.5)
	assert.Error(t, err)
}

func TestWithMaxTokensDoesNotMutateOriginal(t *testing.T) {
	cfg, err := NewGenerationConfig(0.7, 1000, 1.0)
	require.NoError(t, err)

	bigger := cfg.WithMaxTokens(1500)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.Equal(t, 1500, bigger.MaxTokens)
}
