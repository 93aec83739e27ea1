package noop

import (
	"context"
	"sync"

	"premiummeter/pkg/errors"
)

// Tracker keeps nothing but tallies. It stands in for Sentry when error tracking is
// disabled, and lets tests check that a failed query reached the tracker.
type Tracker struct {
	mu          sync.Mutex
	errors      int
	messages    int
	lastQueryID string
}

var _ errors.Tracker = (*Tracker)(nil)

// New creates a tracker with zeroed tallies
func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) CaptureError(ctx context.Context, err error, _ map[string]string) error {
	if err == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors++
	if id, ok := errors.QueryIDFrom(ctx); ok {
		t.lastQueryID = id
	}
	return nil
}

func (t *Tracker) CaptureMessage(ctx context.Context, _ string, _ errors.Level, _ map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages++
	if id, ok := errors.QueryIDFrom(ctx); ok {
		t.lastQueryID = id
	}
	return nil
}

// AddBreadcrumb is dropped; breadcrumbs only matter attached to a sent event
func (t *Tracker) AddBreadcrumb(context.Context, string, string, errors.Level, map[string]interface{}) {
}

func (t *Tracker) Flush(context.Context) error {
	return nil
}

// Captured returns how many errors and messages were handed over
func (t *Tracker) Captured() (errs, messages int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errors, t.messages
}

// LastQueryID returns the query id of the most recent captured event, if it carried one
func (t *Tracker) LastQueryID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastQueryID
}
