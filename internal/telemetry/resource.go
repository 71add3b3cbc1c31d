package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// attrComponent tags every exported span and metric with the gate's role, so
// the site's own telemetry can be told apart in a shared collector.
var attrComponent = attribute.String("school.component", "route-gate")

// newServiceResource describes this process to the collector. resource.New is
// used instead of merging with resource.Default to avoid schema URL conflicts.
func newServiceResource(ctx context.Context, name, version string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
			attrComponent,
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
