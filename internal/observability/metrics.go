package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const graphqlMeterName = "storefront.graphql"

var GraphQL *GraphQLMetrics

func init() {
	var err error
	GraphQL, err = initGraphQLMetrics()
	if err != nil {
		panic(fmt.Errorf("could not initialize graphql metrics: %w", err))
	}
}

// GraphQLMetrics records transport-level request metrics.
type GraphQLMetrics struct {
	meter    metric.Meter
	requests metric.Int64Counter
	failures metric.Int64Counter
	retries  metric.Int64Counter
	latency  metric.Int64Histogram
}

func initGraphQLMetrics() (*GraphQLMetrics, error) {
	result := &GraphQLMetrics{meter: otel.Meter(graphqlMeterName)}
	var errs error
	var err error

	counterName := fmt.Sprintf("%s.requests", graphqlMeterName)
	if result.requests, err = result.meter.Int64Counter(
		counterName,
		metric.WithUnit("1"),
		metric.WithDescription("the number of GraphQL requests sent")); err != nil {
		errs = handleInitCounterError(errs, err, counterName)
		result.requests = noop.Int64Counter{}
	}

	counterName = fmt.Sprintf("%s.failures", graphqlMeterName)
	if result.failures, err = result.meter.Int64Counter(
		counterName,
		metric.WithUnit("1"),
		metric.WithDescription("the number of GraphQL requests that failed")); err != nil {
		errs = handleInitCounterError(errs, err, counterName)
		result.failures = noop.Int64Counter{}
	}

	counterName = fmt.Sprintf("%s.retries", graphqlMeterName)
	if result.retries, err = result.meter.Int64Counter(
		counterName,
		metric.WithUnit("1"),
		metric.WithDescription("the number of times a read was retried")); err != nil {
		errs = handleInitCounterError(errs, err, counterName)
		result.retries = noop.Int64Counter{}
	}

	histName := fmt.Sprintf("%s.latency", graphqlMeterName)
	if result.latency, err = result.meter.Int64Histogram(
		histName,
		metric.WithUnit("ms"),
		metric.WithDescription("GraphQL request latency")); err != nil {
		errs = handleInitCounterError(errs, err, histName)
		result.latency = noop.Int64Histogram{}
	}

	return result, errs
}

func handleInitCounterError(errs error, err error, counterName string) error {
	return errors.Join(errs, fmt.Errorf("%q counter init failed; falling back to noop: %w", counterName, err))
}

// Request records the outcome of a single GraphQL round trip. errorKind is
// empty on success.
func (m *GraphQLMetrics) Request(ctx context.Context, kind, operation string, start time.Time, errorKind string) {
	attrs := []attribute.KeyValue{
		attribute.String(OperationKindAttribute, kind),
		attribute.String(OperationNameAttribute, operation),
		attribute.String(OutcomeStatusAttribute, SuccessOrFailureStatus(errorKind == "")),
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.latency.Record(ctx, time.Since(start).Milliseconds(), metric.WithAttributes(attrs...))
	if errorKind != "" {
		m.failures.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String(ErrorKindAttribute, errorKind))...))
	}
}

func (m *GraphQLMetrics) Retry(ctx context.Context, operation string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String(OperationNameAttribute, operation)))
}
