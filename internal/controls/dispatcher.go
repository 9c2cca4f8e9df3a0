// Package controls is the boundary to the control-dispatch subsystem
// (switches, sirens, lights). The engine only ever invokes the Dispatcher
// interface; transport lives with the caller.
package controls

import (
	"context"

	"go.uber.org/zap"
)

// Dispatcher applies a value to a controller.
type Dispatcher interface {
	Dispatch(ctx context.Context, controllerKey, value string) error
}

// LoggingDispatcher records control invocations in the log. It stands in
// for a real controller transport in deployments that only want alerting.
type LoggingDispatcher struct {
	log *zap.SugaredLogger
}

// NewLoggingDispatcher creates a dispatcher that logs invocations.
func NewLoggingDispatcher(log *zap.SugaredLogger) *LoggingDispatcher {
	return &LoggingDispatcher{log: log}
}

// Dispatch implements Dispatcher.
func (d *LoggingDispatcher) Dispatch(_ context.Context, controllerKey, value string) error {
	d.log.Infow("control dispatched", "controller", controllerKey, "value", value)
	return nil
}
