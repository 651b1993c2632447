// Package retrypolicy implements the unary retry decorator (C9): on a
// retryable upstream failure, consult the key pool for a rotated credential
// and retry, up to a configured attempt cap. The attempt-loop shape and
// structured logging are adapted from a fixed
// exponential-backoff delay to an immediate key-rotation retry (no delay
// between attempts — the bottleneck this policy addresses is "wrong
// credential", not "upstream momentarily overloaded").
package retrypolicy

import (
	"context"

	"go.uber.org/zap"

	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/keypool"
)

// DefaultRetryableStatuses is the default retryable-status set: only 503.
var DefaultRetryableStatuses = map[int]bool{503: true}

// Policy configures the unary retry decorator.
type Policy struct {
	MaxAttempts        int // total attempts, including the first; <= 0 means 1 (no retry)
	RetryableStatuses  map[int]bool
	Logger             *zap.Logger
}

// New builds a Policy. A nil/empty RetryableStatuses falls back to
// DefaultRetryableStatuses; maxAttempts <= 0 means no retry.
func New(maxAttempts int, retryableStatuses map[int]bool, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(retryableStatuses) == 0 {
		retryableStatuses = DefaultRetryableStatuses
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Policy{MaxAttempts: maxAttempts, RetryableStatuses: retryableStatuses, Logger: logger}
}

func (p *Policy) isRetryable(err error) bool {
	var gwErr *gwerrors.Error
	if !gwerrors.As(err, &gwErr) {
		return false
	}
	if !gwErr.Retryable {
		return false
	}
	return p.RetryableStatuses[gwErr.HTTPStatus]
}

// Call is the unary operation the policy wraps: given the credential to use
// on this attempt, perform the call.
type Call[T any] func(ctx context.Context, key string, attempt int) (T, error)

// Do executes fn against firstKey, rotating credentials via the key pool's
// HandleAPIFailure on each retryable failure, up to MaxAttempts. model is
// passed through to HandleAPIFailure for failure-metric attribution only.
// A non-retryable error, or rotation exhaustion, ends the loop immediately
// and returns the last error.
func Do[T any](ctx context.Context, p *Policy, pool *keypool.Pool, model, firstKey string, fn Call[T]) (T, error) {
	var zero T
	key := firstKey

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := fn(ctx, key, attempt)
		if err == nil {
			return result, nil
		}

		if !p.isRetryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			return zero, err
		}

		nextKey, ok := pool.HandleAPIFailure(model, key, attempt)
		if !ok {
			p.Logger.Warn("retry abandoned: no working credential left in pool",
				zap.Int("attempt", attempt))
			return zero, err
		}
		p.Logger.Debug("retrying with rotated credential",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		key = nextKey
	}

	return zero, gwerrors.New(gwerrors.CodeInternal, "retry loop exited without a result")
}
