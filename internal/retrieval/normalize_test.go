package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceToSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, DistanceToSimilarity(0), 1e-12)
	assert.InDelta(t, 0.5, DistanceToSimilarity(1), 1e-12)
	assert.InDelta(t, 0.25, DistanceToSimilarity(3), 1e-12)
	assert.InDelta(t, 1.0, DistanceToSimilarity(-5), 1e-12, "negative distances clamp to zero")
}

func TestDistanceToSimilarity_Monotonic(t *testing.T) {
	prev := DistanceToSimilarity(0)
	for d := 0.5; d < 100; d *= 2 {
		cur := DistanceToSimilarity(d)
		assert.Less(t, cur, prev, "d=%v", d)
		assert.Greater(t, cur, 0.0)
		prev = cur
	}
}

func TestRankToScore(t *testing.T) {
	assert.InDelta(t, 1.0, RankToScore(0), 1e-12)
	assert.InDelta(t, 0.5, RankToScore(1), 1e-12)
	assert.InDelta(t, 0.1, RankToScore(9), 1e-12)
	assert.InDelta(t, 1.0, RankToScore(-3), 1e-12, "negative ranks clamp to zero")
}
