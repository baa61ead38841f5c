package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

var serviceName = semconv.ServiceNameKey.String("snapshotd")

var counterDefs = []struct {
	name        MetricName
	description string
	unit        string
}{
	{
		name:        SnapshotEventReceived,
		description: "Number of received 'snapshot captured' events",
		unit:        "{event}",
	},
	{
		name:        BaselineRequestReceived,
		description: "Number of received baseline image requests",
		unit:        "{request}",
	},
	{
		name:        BaselineResolved,
		description: "Number of baseline paths resolved to an existing file",
		unit:        "{request}",
	},
	{
		name:        PlaceholderServed,
		description: "Number of requests answered with the placeholder image",
		unit:        "{request}",
	},
	{
		name:        PreviewCreated,
		description: "Number of created preview images",
		unit:        "{preview}",
	},
}

type OtelMetricsSvc struct {
	counters      map[MetricName]metric.Int64Counter
	shutDownFuncs []func(ctx context.Context) error
}

func NewOtelMetricsSvc(ctx context.Context) (*OtelMetricsSvc, error) {
	shutDownFuncs, err := initOtel(ctx)
	if err != nil {
		return nil, err
	}
	meter := otel.Meter("snapshotd")

	counters := make(map[MetricName]metric.Int64Counter, len(counterDefs))
	for _, def := range counterDefs {
		counter, err := meter.Int64Counter(
			string(def.name),
			metric.WithDescription(def.description),
			metric.WithUnit(def.unit),
		)
		if err != nil {
			return nil, err
		}

		counters[def.name] = counter
	}

	return &OtelMetricsSvc{
		counters:      counters,
		shutDownFuncs: shutDownFuncs,
	}, nil
}

func (s *OtelMetricsSvc) Increment(
	metricName MetricName,
	attrs map[string]string,
) {
	counter, ok := s.counters[metricName]
	if !ok {
		slog.Warn("Unknown metric name", "metricName", metricName)
		return
	}

	// Convert attrs map to OpenTelemetry attributes
	kvAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		kvAttrs = append(kvAttrs, attribute.String(key, value))
	}

	counter.Add(
		context.Background(),
		1,
		metric.WithAttributeSet(attribute.NewSet(kvAttrs...)),
	)
}

func (s *OtelMetricsSvc) Shutdown(ctx context.Context) error {
	for _, shutdownFunc := range s.shutDownFuncs {
		if err := shutdownFunc(ctx); err != nil {
			slog.Error("Error during OpenTelemetry shutdown", "error", err)
			return err
		}
	}

	slog.Debug("OpenTelemetry services shutdown successfully")
	return nil
}

func initOtel(ctx context.Context) ([]func(ctx context.Context) error, error) {
	slog.Debug("Initializing OpenTelemetry")
	var shutDownFuncs []func(ctx context.Context) error

	// Connect to the OpenTelemetry collector
	conn, err := newCollectorGrpcConn()
	if err != nil {
		return nil, err
	}

	// Resource for the OpenTelemetry service
	res, err := newResource(ctx)
	if err != nil {
		return nil, err
	}

	meterProvider, err := newMeterProvider(ctx, res, conn)
	if err != nil {
		return nil, err
	}
	shutDownFuncs = append(shutDownFuncs, meterProvider.Shutdown)

	otel.SetMeterProvider(meterProvider)
	return shutDownFuncs, nil
}

func newResource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx, resource.WithAttributes(serviceName))
	if err != nil {
		return nil, fmt.Errorf(
			"failed to create resource for OpenTelemetry: %w",
			err,
		)
	}

	return res, nil
}

// Creates a new gRPC connection to the OpenTelemetry collector.
func newCollectorGrpcConn() (*grpc.ClientConn, error) {
	grpc_endpoint := os.Getenv("OTEL_COLLECTOR_GRPC_ENDPOINT")

	conn, err := grpc.NewClient(
		grpc_endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to create gRPC connection to collector: %w",
			err,
		)
	}

	return conn, nil
}

func newMeterProvider(
	ctx context.Context,
	res *resource.Resource,
	conn *grpc.ClientConn,
) (*sdkmetric.MeterProvider, error) {
	metricExporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithGRPCConn(conn),
	)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(3*time.Second),
		)),
	)

	return meterProvider, nil
}
