// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Command runflow starts the run lifecycle server: an HTTP API for
// creating, streaming, resuming, and cancelling workflow runs, backed by
// a pluggable run store and a Prometheus metrics listener.
package main
