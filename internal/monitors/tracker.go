package monitors

import (
	"fmt"
	"time"

	"github.com/hearthwatch/hearthwatch/internal/cache"
)

// ProcessedTracker remembers which monitor events have already been
// handled so repeated poll cycles do not re-process them. Closed events
// are marked fully processed; open events only start-processed, since
// their closure still has to be observed.
type ProcessedTracker struct {
	started *cache.Cache[struct{}]
	full    *cache.Cache[struct{}]
}

// NewProcessedTracker creates a tracker whose marks expire after ttl.
func NewProcessedTracker(ttl time.Duration, opts ...cache.Option[struct{}]) (*ProcessedTracker, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("monitors: tracker ttl must be positive, got %s", ttl)
	}
	return &ProcessedTracker{
		started: cache.New(ttl, ttl, opts...),
		full:    cache.New(ttl, ttl, opts...),
	}, nil
}

// Mark records the processed status of every event contributing to the
// aggregated states of one poll cycle.
func (t *ProcessedTracker) Mark(states map[string]*AggregatedState) {
	for _, state := range states {
		for _, e := range state.AllEvents {
			t.started.Set(e.ID, struct{}{})
			if !e.Open() {
				t.full.Set(e.ID, struct{}{})
			}
		}
	}
}

// StartProcessed reports whether an event's start has been handled.
func (t *ProcessedTracker) StartProcessed(eventID string) bool {
	return t.started.Contains(eventID)
}

// FullyProcessed reports whether an event has been handled end to end.
func (t *ProcessedTracker) FullyProcessed(eventID string) bool {
	return t.full.Contains(eventID)
}

// Stop releases the tracker's cache resources.
func (t *ProcessedTracker) Stop() {
	t.started.Stop()
	t.full.Stop()
}
