// Package sensors holds the value objects exchanged with the sensor layer.
package sensors

import "time"

// Response is a single sensed value for an integration key at a point in time.
// It is the shape produced by entity-state polling and by monitor aggregation.
type Response struct {
	IntegrationKey string    `json:"integration_key"`
	Value          string    `json:"value"`
	Timestamp      time.Time `json:"timestamp"`
}
