package jobs

import (
	"time"

	"go.uber.org/zap"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
	"github.com/hearthwatch/hearthwatch/internal/metrics"
)

// AlertSweeper periodically prunes expired and acknowledged alerts from the
// collection and refreshes the active-alert gauge.
type AlertSweeper struct {
	collection *alerts.Collection
	log        *zap.SugaredLogger
}

// NewAlertSweeper creates the sweeper.
func NewAlertSweeper(collection *alerts.Collection, log *zap.SugaredLogger) *AlertSweeper {
	return &AlertSweeper{collection: collection, log: log}
}

// RunOnce performs one sweep and returns the number of alerts removed.
func (s *AlertSweeper) RunOnce() int {
	removed := s.collection.RemoveFinished()
	metrics.SetActiveAlerts(s.collection.Len())
	metrics.JobRun("alert_sweeper", nil)
	return removed
}

// Start begins periodic sweeps. Blocks until stop is closed.
func (s *AlertSweeper) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.RunOnce(); removed > 0 {
				s.log.Infow("alert sweep", "removed", removed, "remaining", s.collection.Len())
			}
		case <-stop:
			s.log.Info("alert sweeper stopped")
			return
		}
	}
}
