// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Package server manages HTTP listener lifecycle: non-blocking start,
// graceful shutdown, and SIGINT/SIGTERM handling. The API and metrics
// listeners each run under their own Manager.
package server
