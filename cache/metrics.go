// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// Tracer for cache operations.
var cacheTracer = otel.Tracer("solidlsp.cache")

// Prometheus metrics for the two-tier symbol cache.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symbol_cache_hits_total",
		Help: "Symbol cache hits by tier",
	}, []string{"tier"})

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symbol_cache_misses_total",
		Help: "Symbol cache misses by tier and reason",
	}, []string{"tier", "reason"})

	cacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symbol_cache_invalidations_total",
		Help: "Cache invalidations by cause",
	}, []string{"cause"})

	cacheFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "symbol_cache_fetch_duration_seconds",
		Help:    "Time spent fetching document symbols from a language server",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "symbol_cache_entries",
		Help: "Current number of cache entries by tier",
	}, []string{"tier"})
)

// Miss reasons.
const (
	missReasonCold  = "cold"
	missReasonStale = "stale"
)

// Invalidation causes.
const (
	causeFingerprint = "fingerprint_change"
	causeFileEvent   = "file_event"
	causeRestart     = "instance_restart"
)
