package cachekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute_Deterministic(t *testing.T) {
	a := Compute("gpt-4", map[string]any{"temperature": 0.0}, "sys", "user", 0)
	b := Compute("gpt-4", map[string]any{"temperature": 0.0}, "sys", "user", 0)
	assert.Equal(t, a, b)
}

func TestCompute_IterationParticipates(t *testing.T) {
	a := Compute("gpt-4", nil, "sys", "user", 0)
	b := Compute("gpt-4", nil, "sys", "user", 1)
	assert.NotEqual(t, a, b, "distinct iterations must not share a cache entry")
}

func TestCompute_KeyOrderIndependent(t *testing.T) {
	a := Compute("gpt-4", map[string]any{"temperature": 0.1, "top_p": 0.9}, "sys", "user", 0)
	b := Compute("gpt-4", map[string]any{"top_p": 0.9, "temperature": 0.1}, "sys", "user", 0)
	assert.Equal(t, a, b)
}

func TestCompute_PromptsParticipate(t *testing.T) {
	a := Compute("gpt-4", nil, "sys", "user1", 0)
	b := Compute("gpt-4", nil, "sys", "user2", 0)
	assert.NotEqual(t, a, b)
}
