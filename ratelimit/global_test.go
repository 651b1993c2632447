package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basuigw/gemigate/gwerrors"
)

func TestGlobalLimiter_UnconfiguredModelNeverThrottles(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{})
	assert.NoError(t, g.Reserve("gemini-2.0-flash", 1_000_000))
}

func TestGlobalLimiter_ReserveWithinBudgetSucceeds(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{
		"gemini-2.0-flash": {Limit: 1000, Window: time.Minute},
	})
	require.NoError(t, g.Reserve("gemini-2.0-flash", 400))
	assert.Equal(t, 400, g.TokenCount("gemini-2.0-flash"))
}

func TestGlobalLimiter_ReserveOverBudgetFails(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{
		"gemini-2.0-flash": {Limit: 1000, Window: time.Minute},
	})
	require.NoError(t, g.Reserve("gemini-2.0-flash", 900))

	err := g.Reserve("gemini-2.0-flash", 200)
	require.Error(t, err)
	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeRateLimitExceeded, gwErr.Code)
	assert.Equal(t, 429, gwErr.HTTPStatus)
}

func TestGlobalLimiter_ReserveExceedingTotalCapacityIsRequestTooLarge(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{
		"gemini-2.0-flash": {Limit: 1000, Window: time.Minute},
	})
	err := g.Reserve("gemini-2.0-flash", 1001)
	require.Error(t, err)
	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeRequestTooLarge, gwErr.Code)
}

// Adjust's zero-sum invariant: reserve N, adjust down to the actual
// observed count, and the window balances exactly to that actual count —
// no residue from the original estimate.
func TestGlobalLimiter_AdjustTruesUpToActualTokens(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{
		"gemini-2.0-flash": {Limit: 1000, Window: time.Minute},
	})
	require.NoError(t, g.Reserve("gemini-2.0-flash", 500))
	g.Adjust("gemini-2.0-flash", 500, 120)
	assert.Equal(t, 120, g.TokenCount("gemini-2.0-flash"))
}

func TestGlobalLimiter_AdjustOnFailureRollsBackFully(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{
		"gemini-2.0-flash": {Limit: 1000, Window: time.Minute},
	})
	require.NoError(t, g.Reserve("gemini-2.0-flash", 500))
	g.Adjust("gemini-2.0-flash", 500, 0)
	assert.Equal(t, 0, g.TokenCount("gemini-2.0-flash"))
}

func TestGlobalLimiter_AdjustNeverGoesNegative(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{
		"gemini-2.0-flash": {Limit: 1000, Window: time.Minute},
	})
	g.Adjust("gemini-2.0-flash", 500, 0)
	assert.Equal(t, 0, g.TokenCount("gemini-2.0-flash"))
}

func TestGlobalLimiter_WindowResetsAfterExpiry(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{
		"gemini-2.0-flash": {Limit: 100, Window: time.Millisecond},
	})
	require.NoError(t, g.Reserve("gemini-2.0-flash", 100))
	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, g.Reserve("gemini-2.0-flash", 100))
}

func TestGlobalLimiter_NonPositiveLimitIsUnconfigured(t *testing.T) {
	g := NewGlobalLimiter(map[string]ModelLimit{
		"gemini-2.0-flash": {Limit: 0, Window: time.Minute},
	})
	assert.NoError(t, g.Reserve("gemini-2.0-flash", 1_000_000))
}
