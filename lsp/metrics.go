// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for LSP transport and process lifecycle.
var (
	tracer = otel.Tracer("solidlsp.lsp")
	meter  = otel.Meter("solidlsp.lsp")
)

// Metrics for LSP requests and server lifecycle.
var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	serverSpawns   metric.Int64Counter
	serverCrashes  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"lsp_request_duration_seconds",
			metric.WithDescription("Duration of LSP requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"lsp_request_total",
			metric.WithDescription("Total number of LSP requests"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverSpawns, err = meter.Int64Counter(
			"lsp_server_spawns_total",
			metric.WithDescription("Total number of language server spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverCrashes, err = meter.Int64Counter(
			"lsp_server_crashes_total",
			metric.WithDescription("Total number of language server crashes"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRequestSpan creates a span for an outbound LSP request.
func startRequestSpan(ctx context.Context, method, language string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Protocol.SendRequest",
		trace.WithAttributes(
			attribute.String("lsp.method", method),
			attribute.String("lsp.language", language),
		),
	)
}

// recordRequestMetrics records metrics for one completed request.
func recordRequestMetrics(ctx context.Context, method, language string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

// recordServerSpawn records a server spawn attempt.
func recordServerSpawn(ctx context.Context, language string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	))
}

// recordServerCrash records an unexpected server exit.
func recordServerCrash(ctx context.Context, language string) {
	if err := initMetrics(); err != nil {
		return
	}
	serverCrashes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
	))
}
