// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Package metrics collects Prometheus metrics for the run server: HTTP
// request timings, run lifecycle transitions, lease contention, stream
// subscriber counts, and webhook delivery results.
package metrics
