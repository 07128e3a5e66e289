// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Package run implements the run lifecycle: request validation, the
// orchestrator state machine, interrupt classification, stream fan-out,
// and webhook notification.
//
// A run moves pending -> running -> {interrupted, completed, failed}, with
// interrupted -> running on resume and any non-terminal state cancellable.
// Every persisted transition goes through the store's compare-and-set; the
// thread lease is the only cross-run synchronization primitive.
package run
