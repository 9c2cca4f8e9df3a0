// Package jobs holds the periodic pollers that drive the engine: the
// security auto-transition check and the alert expiry sweep. A cycle's
// failure is recorded as unhealthy status and never kills the poller.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hearthwatch/hearthwatch/internal/metrics"
	"github.com/hearthwatch/hearthwatch/internal/security"
)

// SecurityMonitor periodically applies time-of-day security automation.
type SecurityMonitor struct {
	manager *security.Manager
	log     *zap.SugaredLogger

	mu         sync.Mutex
	lastStatus string
	lastErr    error
}

// NewSecurityMonitor creates the monitor.
func NewSecurityMonitor(manager *security.Manager, log *zap.SugaredLogger) *SecurityMonitor {
	return &SecurityMonitor{manager: manager, log: log}
}

// RunOnce executes one automation check and returns its health status
// string. Panics are contained and reported as errors.
func (m *SecurityMonitor) RunOnce(ctx context.Context) (status string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("security check panicked: %v", r)
			status = ""
		}
		m.record(status, err)
		metrics.JobRun("security_monitor", err)
	}()

	return m.manager.RunAutoCheck(ctx)
}

// Start begins periodic checks. Blocks until stop is closed.
func (m *SecurityMonitor) Start(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, err := m.RunOnce(ctx)
			if err != nil {
				m.log.Errorw("security monitor cycle failed", "error", err)
			} else {
				m.log.Debugw("security monitor cycle", "status", status)
			}
		case <-stop:
			m.log.Info("security monitor stopped")
			return
		}
	}
}

func (m *SecurityMonitor) record(status string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastStatus = status
	m.lastErr = err
}

// Health returns the last cycle's status string and error.
func (m *SecurityMonitor) Health() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStatus, m.lastErr
}
