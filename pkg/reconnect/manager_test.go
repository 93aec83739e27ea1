package reconnect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"premiummeter/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(zap.NewNop())
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name         string
		config       Config
		expectedMin  time.Duration
		expectedMax  time.Duration
		expectedMult float64
	}{
		{
			name:         "all defaults",
			config:       Config{},
			expectedMin:  500 * time.Millisecond,
			expectedMax:  30 * time.Second,
			expectedMult: 2.0,
		},
		{
			name:         "custom",
			config:       Config{MinBackoff: time.Second, MaxBackoff: time.Minute, BackoffMultiplier: 3},
			expectedMin:  time.Second,
			expectedMax:  time.Minute,
			expectedMult: 3,
		},
		{
			name:         "max below min falls back",
			config:       Config{MinBackoff: time.Second, MaxBackoff: time.Millisecond},
			expectedMin:  time.Second,
			expectedMax:  30 * time.Second,
			expectedMult: 2.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.config, newTestLogger())
			assert.Equal(t, tt.expectedMin, m.minBackoff)
			assert.Equal(t, tt.expectedMax, m.maxBackoff)
			assert.Equal(t, tt.expectedMult, m.backoffMultiplier)
			assert.Equal(t, tt.expectedMin, m.GetStats().CurrentBackoff)
		})
	}
}

func TestRecordFailure_GrowsAndCaps(t *testing.T) {
	m := NewManager(Config{MinBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}, newTestLogger())

	assert.Equal(t, 100*time.Millisecond, m.RecordFailure())
	assert.Equal(t, 200*time.Millisecond, m.RecordFailure())
	assert.Equal(t, 300*time.Millisecond, m.RecordFailure())
	assert.Equal(t, 300*time.Millisecond, m.RecordFailure())

	stats := m.GetStats()
	assert.Equal(t, 4, stats.ConsecutiveFailures)
	assert.False(t, stats.LastFailure.IsZero())
}

func TestRecordSuccess_Resets(t *testing.T) {
	m := NewManager(Config{MinBackoff: 100 * time.Millisecond}, newTestLogger())
	m.RecordFailure()
	m.RecordFailure()

	m.RecordSuccess()

	stats := m.GetStats()
	assert.Zero(t, stats.ConsecutiveFailures)
	assert.Equal(t, 100*time.Millisecond, stats.CurrentBackoff)
	assert.Equal(t, 100*time.Millisecond, m.RecordFailure())
}

func TestRecordFailure_Jitter(t *testing.T) {
	m := NewManager(Config{MinBackoff: 100 * time.Millisecond, Jitter: 0.5}, newTestLogger())

	d := m.RecordFailure()
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.LessOrEqual(t, d, 150*time.Millisecond)
}

func TestWait(t *testing.T) {
	m := NewManager(Config{MinBackoff: 10 * time.Millisecond}, newTestLogger())

	start := time.Now()
	require.NoError(t, m.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, 1, m.GetStats().ConsecutiveFailures)
}

func TestWait_ContextCancellation(t *testing.T) {
	m := NewManager(Config{MinBackoff: time.Minute, MaxBackoff: time.Minute}, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(Config{MinBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond}, newTestLogger())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				m.RecordFailure()
				_ = m.GetStats()
			}
			m.RecordSuccess()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, m.GetStats().CurrentBackoff, 10*time.Millisecond)
}
