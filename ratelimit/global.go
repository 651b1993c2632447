// Package ratelimit implements the gateway's two rate-limiter tiers: the
// per-model global token budget (C2) and the per-(model,key) RPM/TPM/RPD
// budget (C3). Both use fixed-window counters (the global tier guards each
// model's window with its own mutex; the per-key tier uses one mutex for
// its whole state), extended with a reserve/adjust two-phase protocol so a speculative
// reservation can be trued up against the tokens actually consumed once the
// upstream call completes.
package ratelimit

import (
	"sync"
	"time"

	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/metrics"
)

// ModelLimit configures one model's global token budget.
type ModelLimit struct {
	Limit  int           // L, tokens per window
	Window time.Duration // W
}

// GlobalLimiter enforces one fixed token window per configured model,
// reserved speculatively before the upstream call and trued up (adjusted)
// after. Unconfigured models are unthrottled.
type GlobalLimiter struct {
	mu      sync.RWMutex
	windows map[string]*modelWindow
	metrics *metrics.Collector
}

type modelWindow struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	tokenCount  int
}

// NewGlobalLimiter builds a limiter from a model -> ModelLimit config map.
// Models absent from limits are never throttled.
func NewGlobalLimiter(limits map[string]ModelLimit) *GlobalLimiter {
	g := &GlobalLimiter{windows: make(map[string]*modelWindow, len(limits))}
	now := time.Now()
	for model, lim := range limits {
		if lim.Limit <= 0 {
			continue
		}
		window := lim.Window
		if window <= 0 {
			window = time.Minute
		}
		g.windows[model] = &modelWindow{
			limit:       lim.Limit,
			window:      window,
			windowStart: now,
		}
	}
	return g
}

// WithMetrics attaches a Collector the limiter reports rejections and
// window state to. Returns g for chaining at construction time.
func (g *GlobalLimiter) WithMetrics(c *metrics.Collector) *GlobalLimiter {
	g.metrics = c
	return g
}

// Reserve speculatively debits estimatedTokens from model's window budget.
// A model with no configured limit always succeeds immediately.
func (g *GlobalLimiter) Reserve(model string, estimatedTokens int) error {
	g.mu.RLock()
	w, ok := g.windows[model]
	g.mu.RUnlock()
	if !ok {
		return nil
	}

	if estimatedTokens > w.limit {
		if g.metrics != nil {
			g.metrics.ObserveRateLimitRejection("global", model)
		}
		return gwerrors.New(gwerrors.CodeRequestTooLarge,
			"estimated tokens exceed the model's total window capacity").
			WithHTTPStatus(429)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.After(w.windowStart.Add(w.window)) {
		w.windowStart = now
		w.tokenCount = 0
	}

	if w.tokenCount+estimatedTokens > w.limit {
		resetIn := w.windowStart.Add(w.window).Sub(now)
		if resetIn < 0 {
			resetIn = 0
		}
		if g.metrics != nil {
			g.metrics.ObserveRateLimitRejection("global", model)
		}
		return gwerrors.New(gwerrors.CodeRateLimitExceeded,
			"global model rate limit exceeded").
			WithHTTPStatus(429).
			WithRetryAfter(int(resetIn.Seconds()))
	}

	w.tokenCount += estimatedTokens
	if g.metrics != nil {
		g.metrics.SetGlobalTokenCount(model, w.tokenCount)
	}
	return nil
}

// Adjust trues up model's window counter by (actualTokens - estimatedTokens),
// clamped at zero. Calling with actualTokens=0 fully rolls back a
// reservation on a failure path.
func (g *GlobalLimiter) Adjust(model string, estimatedTokens, actualTokens int) {
	g.mu.RLock()
	w, ok := g.windows[model]
	g.mu.RUnlock()
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.tokenCount += actualTokens - estimatedTokens
	if w.tokenCount < 0 {
		w.tokenCount = 0
	}
	if g.metrics != nil {
		g.metrics.SetGlobalTokenCount(model, w.tokenCount)
	}
}

// TokenCount returns the current window's token count for model, for tests
// and observability; 0 if the model is unconfigured.
func (g *GlobalLimiter) TokenCount(model string) int {
	g.mu.RLock()
	w, ok := g.windows[model]
	g.mu.RUnlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokenCount
}
