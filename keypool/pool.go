// Package keypool implements the rotating credential pool (C4), narrowed
// to a single round-robin strategy: the fairness invariant ("given N valid
// credentials and M sequential calls under no failures, each credential is
// returned ⌊M/N⌋ or ⌈M/N⌉ times") is defined only for round robin, so
// weighted-random/priority/least-used strategies are dropped (see
// DESIGN.md). Credentials are loaded once from configuration rather than a
// database — persistence of key metadata is out of scope here.
package keypool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/basuigw/gemigate/metrics"
)

// reasonExhausted describes the state in which GetNextWorkingKey reports no
// key: every credential in the pool has failed past its threshold.
const reasonExhausted = "key pool exhausted: no valid credential available"

// Pool is a round-robin rotation over a fixed set of credentials, with
// per-credential consecutive-failure accounting. A single mutex covers the
// cursor and failure map.
type Pool struct {
	mu        sync.Mutex
	creds     []string
	cursor    int
	failures  map[string]int
	invalid   map[string]bool
	threshold int
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// New builds a Pool from an ordered list of credentials. failureThreshold
// is the consecutive-failure count above which a credential is flagged
// invalid and skipped during rotation (still retained in the pool).
func New(credentials []string, failureThreshold int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if failureThreshold < 0 {
		failureThreshold = 3
	}
	creds := make([]string, len(credentials))
	copy(creds, credentials)
	return &Pool{
		creds:     creds,
		failures:  make(map[string]int, len(creds)),
		invalid:   make(map[string]bool, len(creds)),
		threshold: failureThreshold,
		logger:    logger,
	}
}

// WithMetrics attaches a Collector the pool reports credential-failure and
// invalid-count observability to. Returns p for chaining at construction
// time.
func (p *Pool) WithMetrics(c *metrics.Collector) *Pool {
	p.metrics = c
	return p
}

// Len reports how many credentials (valid or not) the pool holds.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// GetNextWorkingKey advances the cursor round-robin until it lands on a
// valid credential, or reports exhaustion once every credential has been
// tried once.
func (p *Pool) GetNextWorkingKey() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextLocked()
}

func (p *Pool) nextLocked() (string, bool) {
	n := len(p.creds)
	if n == 0 {
		return "", false
	}
	for i := 0; i < n; i++ {
		idx := p.cursor % n
		p.cursor++
		cred := p.creds[idx]
		if !p.invalid[cred] {
			return cred, true
		}
	}
	return "", false
}

// HandleAPIFailure increments cred's consecutive-failure counter,
// invalidating it once the counter exceeds the configured threshold, and
// returns the next working credential for the caller to retry with. model
// is carried only for failure-metric attribution; attempt is the 1-based
// attempt number, carried for logging only.
func (p *Pool) HandleAPIFailure(model, cred string, attempt int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures[cred]++
	if p.failures[cred] > p.threshold {
		p.invalid[cred] = true
		p.logger.Warn("credential flagged invalid after repeated failures",
			zap.Int("consecutive_failures", p.failures[cred]),
			zap.Int("attempt", attempt))
	}

	if p.metrics != nil {
		p.metrics.IncKeyPoolFailure(model)
		p.metrics.SetKeyPoolInvalid(p.invalidCountLocked())
	}

	return p.nextLocked()
}

// invalidCountLocked counts currently-invalidated credentials. Callers must
// hold p.mu.
func (p *Pool) invalidCountLocked() int {
	n := 0
	for _, invalid := range p.invalid {
		if invalid {
			n++
		}
	}
	return n
}

// RecordSuccess resets cred's consecutive-failure counter.
func (p *Pool) RecordSuccess(cred string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[cred] = 0
}

// Revalidate clears cred's invalid flag and resets its failure count,
// returning it to rotation.
func (p *Pool) Revalidate(cred string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalid[cred] = false
	p.failures[cred] = 0
	if p.metrics != nil {
		p.metrics.SetKeyPoolInvalid(p.invalidCountLocked())
	}
}

// Snapshot describes one credential's current health, for diagnostics.
type Snapshot struct {
	Credential string
	Valid      bool
	Failures   int
}

// Stats returns a point-in-time view of every credential's health.
func (p *Pool) Stats() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Snapshot, 0, len(p.creds))
	for _, c := range p.creds {
		out = append(out, Snapshot{
			Credential: c,
			Valid:      !p.invalid[c],
			Failures:   p.failures[c],
		})
	}
	return out
}
