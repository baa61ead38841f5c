package metrics

import (
	"context"
)

// Custom type to represent a metric name,
// providing a type-safe way to handle metric names.
type MetricName string

const (
	SnapshotEventReceived   MetricName = "snapshot.event.received"
	BaselineRequestReceived MetricName = "baseline.request.received"
	BaselineResolved        MetricName = "baseline.resolved"
	PlaceholderServed       MetricName = "baseline.placeholder.served"
	PreviewCreated          MetricName = "preview.created"
)

type MetricsSvc interface {
	Increment(metric MetricName, attrs map[string]string)
	Shutdown(ctx context.Context) error
}
