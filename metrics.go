// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package solidlsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for orchestrator operations.
var (
	tracer = otel.Tracer("solidlsp")
	meter  = otel.Meter("solidlsp")
)

// Metrics for symbol operations and instance lifecycle.
var (
	operationLatency metric.Float64Histogram
	operationTotal   metric.Int64Counter
	instanceRestarts metric.Int64Counter
	retryTotal       metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationLatency, err = meter.Float64Histogram(
			"solidlsp_operation_duration_seconds",
			metric.WithDescription("Duration of symbol operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		operationTotal, err = meter.Int64Counter(
			"solidlsp_operation_total",
			metric.WithDescription("Total number of symbol operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		instanceRestarts, err = meter.Int64Counter(
			"solidlsp_instance_restarts_total",
			metric.WithDescription("Total number of server instance restarts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		retryTotal, err = meter.Int64Counter(
			"solidlsp_operation_retries_total",
			metric.WithDescription("Operations retried after an instance restart"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startOperationSpan creates a span for a public symbol operation.
func startOperationSpan(ctx context.Context, operation, language, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "SolidLanguageServer."+operation,
		trace.WithAttributes(
			attribute.String("solidlsp.operation", operation),
			attribute.String("solidlsp.language", language),
			attribute.String("solidlsp.file", filePath),
		),
	)
}

// recordOperation records metrics for one completed public operation.
func recordOperation(ctx context.Context, operation, language string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("language", language),
		attribute.Bool("success", success),
	)
	operationLatency.Record(ctx, duration.Seconds(), attrs)
	operationTotal.Add(ctx, 1, attrs)
}

// recordRestart records an instance restart.
func recordRestart(ctx context.Context, language string) {
	if err := initMetrics(); err != nil {
		return
	}
	instanceRestarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
	))
}

// recordRetry records one post-restart retry of an operation.
func recordRetry(ctx context.Context, language, operation string) {
	if err := initMetrics(); err != nil {
		return
	}
	retryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("operation", operation),
	))
}
