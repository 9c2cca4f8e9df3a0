// Package notify fans newly created alerts out to notification channels.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
)

// Notifier delivers one alert to a destination.
type Notifier interface {
	Name() string
	NotifyAlert(ctx context.Context, alert alerts.Alert) error
}

// Fanout dispatches alerts to every registered notifier. Delivery failures
// are logged and isolated per notifier; they never propagate to the alert
// path.
type Fanout struct {
	notifiers []Notifier
	log       *zap.SugaredLogger
}

// NewFanout creates a fanout over the given notifiers.
func NewFanout(log *zap.SugaredLogger, notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, log: log}
}

// Dispatch sends the alert to all notifiers.
func (f *Fanout) Dispatch(ctx context.Context, alert alerts.Alert) {
	for _, n := range f.notifiers {
		if err := n.NotifyAlert(ctx, alert); err != nil {
			f.log.Errorw("alert notification failed",
				"notifier", n.Name(), "alert", alert.ID, "error", err)
		}
	}
}
