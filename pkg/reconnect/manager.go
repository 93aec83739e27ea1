package reconnect

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"premiummeter/pkg/logger"
)

// Manager paces retries of a failing dependency with capped exponential backoff.
// Safe for concurrent use.
type Manager struct {
	minBackoff        time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64

	mu                  sync.Mutex
	currentBackoff      time.Duration
	consecutiveFailures int
	lastFailure         time.Time

	logger *logger.Logger
}

// Config configures the reconnect manager
type Config struct {
	MinBackoff        time.Duration // Initial backoff (e.g. 500ms)
	MaxBackoff        time.Duration // Cap (e.g. 30s)
	BackoffMultiplier float64       // e.g. 2.0
	Jitter            float64       // fraction of the backoff added at random, 0..1
}

// NewManager creates a new reconnect manager with sensible defaults
func NewManager(config Config, log *logger.Logger) *Manager {
	if config.MinBackoff <= 0 {
		config.MinBackoff = 500 * time.Millisecond
	}
	if config.MaxBackoff < config.MinBackoff {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 2.0
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = 0
	}

	return &Manager{
		minBackoff:        config.MinBackoff,
		maxBackoff:        config.MaxBackoff,
		backoffMultiplier: config.BackoffMultiplier,
		jitter:            config.Jitter,
		currentBackoff:    config.MinBackoff,
		logger:            log,
	}
}

// RecordFailure registers a failed attempt and returns the delay to wait before the next one
func (m *Manager) RecordFailure() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	delay := m.currentBackoff
	m.consecutiveFailures++
	m.lastFailure = time.Now()

	next := time.Duration(float64(m.currentBackoff) * m.backoffMultiplier)
	m.currentBackoff = min(next, m.maxBackoff)

	if m.consecutiveFailures == 1 || m.consecutiveFailures%10 == 0 {
		m.logger.Warnw("Dependency failing, backing off",
			"consecutive_failures", m.consecutiveFailures,
			"backoff", delay,
		)
	}

	return withJitter(delay, m.jitter)
}

// RecordSuccess resets the backoff after a successful attempt
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures > 0 {
		m.logger.Infow("✅ Dependency recovered, resetting backoff",
			"previous_consecutive_failures", m.consecutiveFailures,
		)
	}
	m.currentBackoff = m.minBackoff
	m.consecutiveFailures = 0
}

// Wait sleeps for the delay of a newly recorded failure.
// It returns ctx.Err() when ctx ends first.
func (m *Manager) Wait(ctx context.Context) error {
	timer := time.NewTimer(m.RecordFailure())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time view of the manager
type Stats struct {
	ConsecutiveFailures int
	CurrentBackoff      time.Duration
	LastFailure         time.Time
}

// GetStats returns current reconnect manager stats
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		ConsecutiveFailures: m.consecutiveFailures,
		CurrentBackoff:      m.currentBackoff,
		LastFailure:         m.lastFailure,
	}
}

func withJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*fraction*float64(d))
}
