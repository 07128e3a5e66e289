// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Package api defines the request and response shapes of the Runflow HTTP
// API: threads, runs, streaming frames, and the aggregate thread state
// view.
package api
