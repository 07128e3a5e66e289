// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Package handlers implements the Runflow HTTP endpoints: thread CRUD,
// run creation and lifecycle operations, SSE and websocket streaming, and
// health probes. All handlers use the standard net/http interface and the
// shared Response envelope with error-code to status mapping.
package handlers
