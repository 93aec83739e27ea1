package noop

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"premiummeter/pkg/errors"
)

func TestTracker_Tallies(t *testing.T) {
	tr := New()
	ctx := errors.WithQueryID(context.Background(), "q-1")

	assert.NoError(t, tr.CaptureError(ctx, errors.ErrUpstreamUnavailable, nil))
	assert.NoError(t, tr.CaptureError(ctx, nil, nil))
	assert.NoError(t, tr.CaptureMessage(context.Background(), "cache degraded", errors.LevelWarning, nil))
	tr.AddBreadcrumb(ctx, "validated", "query", errors.LevelInfo, nil)
	assert.NoError(t, tr.Flush(ctx))

	errs, msgs := tr.Captured()
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, msgs)
	assert.Equal(t, "q-1", tr.LastQueryID())
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.CaptureError(context.Background(), errors.ErrUpstreamUnavailable, nil)
		}()
	}
	wg.Wait()

	errs, _ := tr.Captured()
	assert.Equal(t, 50, errs)
	assert.Empty(t, tr.LastQueryID())
}
