package ratelimit

import (
	"sync"
	"time"

	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/metrics"
)

// KeyLimits configures the optional RPM/TPM/RPD caps for one model. Zero
// means "no cap" for that dimension.
type KeyLimits struct {
	RPM int
	TPM int
	RPD int
}

// PerKeyLimiter enforces per-(model,credential) RPM/TPM/RPD
// counters, reserved before the upstream call via CheckAndReserve and
// either released (on failure) or trued up (on success) afterward. A
// single mutex guards the whole structure — contention is expected to be
// low relative to the upstream call itself.
type PerKeyLimiter struct {
	mu      sync.Mutex
	limits  map[string]KeyLimits // by model
	state   map[string]map[string]*keyState
	metrics *metrics.Collector
}

type keyState struct {
	rpmCount        int
	rpmWindowStart  time.Time
	tpmCount        int
	rpdCount        int
	rpdDay          time.Time // truncated to calendar day
}

// NewPerKeyLimiter builds a limiter from a model -> KeyLimits config map.
// Models absent from limits are never throttled.
func NewPerKeyLimiter(limits map[string]KeyLimits) *PerKeyLimiter {
	return &PerKeyLimiter{
		limits: limits,
		state:  make(map[string]map[string]*keyState),
	}
}

// WithMetrics attaches a Collector the limiter reports rejections to.
// Returns p for chaining at construction time.
func (p *PerKeyLimiter) WithMetrics(c *metrics.Collector) *PerKeyLimiter {
	p.metrics = c
	return p
}

func (p *PerKeyLimiter) stateFor(model, key string) *keyState {
	perModel, ok := p.state[model]
	if !ok {
		perModel = make(map[string]*keyState)
		p.state[model] = perModel
	}
	s, ok := perModel[key]
	if !ok {
		s = &keyState{}
		perModel[key] = s
	}
	return s
}

// advanceWindows lazily rolls the minute and day windows forward on
// access rather than on a background ticker.
func advanceWindows(s *keyState, now time.Time) {
	if s.rpmWindowStart.IsZero() || now.Sub(s.rpmWindowStart) >= time.Minute {
		s.rpmWindowStart = now
		s.rpmCount = 0
		s.tpmCount = 0
	}
	today := now.Truncate(24 * time.Hour)
	if s.rpdDay.IsZero() || today.After(s.rpdDay) {
		s.rpdDay = today
		s.rpdCount = 0
	}
}

// CheckAndReserve admits a request against model's per-key caps, or fails
// with RateLimitExceeded if any configured cap would be exceeded. A model
// with no configured per-key limits is a no-op.
func (p *PerKeyLimiter) CheckAndReserve(model, key string, tokens int) error {
	limits, configured := p.limits[model]
	if !configured {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stateFor(model, key)
	now := time.Now()
	advanceWindows(s, now)

	if limits.RPM > 0 && s.rpmCount+1 > limits.RPM {
		if p.metrics != nil {
			p.metrics.ObserveRateLimitRejection("perkey", model)
		}
		return gwerrors.New(gwerrors.CodeRateLimitExceeded, "per-key RPM limit exceeded").WithHTTPStatus(429)
	}
	if limits.TPM > 0 && s.tpmCount+tokens > limits.TPM {
		if p.metrics != nil {
			p.metrics.ObserveRateLimitRejection("perkey", model)
		}
		return gwerrors.New(gwerrors.CodeRateLimitExceeded, "per-key TPM limit exceeded").WithHTTPStatus(429)
	}
	if limits.RPD > 0 && s.rpdCount+1 > limits.RPD {
		if p.metrics != nil {
			p.metrics.ObserveRateLimitRejection("perkey", model)
		}
		return gwerrors.New(gwerrors.CodeRateLimitExceeded, "per-key RPD limit exceeded").WithHTTPStatus(429)
	}

	s.rpmCount++
	s.tpmCount += tokens
	s.rpdCount++
	return nil
}

// Release returns a reservation to budget (clamped at zero) on an upstream
// failure. Callers must NOT call this when the upstream itself reported
// quota exhaustion: the reservation mirrors the provider's own accounting
// in that case.
func (p *PerKeyLimiter) Release(model, key string, tokens int) {
	if _, configured := p.limits[model]; !configured {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	perModel, ok := p.state[model]
	if !ok {
		return
	}
	s, ok := perModel[key]
	if !ok {
		return
	}

	s.rpmCount--
	if s.rpmCount < 0 {
		s.rpmCount = 0
	}
	s.tpmCount -= tokens
	if s.tpmCount < 0 {
		s.tpmCount = 0
	}
	s.rpdCount--
	if s.rpdCount < 0 {
		s.rpdCount = 0
	}
}

// UpdateTokenUsage trues up the TPM counter by (actual - reserved), clamped
// at zero, once the upstream's real usage is known.
func (p *PerKeyLimiter) UpdateTokenUsage(model, key string, reserved, actual int) {
	if _, configured := p.limits[model]; !configured {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	perModel, ok := p.state[model]
	if !ok {
		return
	}
	s, ok := perModel[key]
	if !ok {
		return
	}

	s.tpmCount += actual - reserved
	if s.tpmCount < 0 {
		s.tpmCount = 0
	}
}
