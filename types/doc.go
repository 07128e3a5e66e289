// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type contracts of the runflow server.

# Overview

types is the lowest-level common package. It depends on no internal
package and supplies the type contracts shared by run, store, workflow,
and api: run and thread records, lifecycle enums, the resume command,
interrupt payloads, and the structured error taxonomy.

# Core types

  - Run / Thread       — durable records with optimistic version counters
  - RunStatus          — pending → running → {interrupted, completed, failed},
    interrupted → running on resume, any non-terminal → cancelled
  - Command            — resume value plus optional state update
  - Interrupt          — one pending request for human input
  - MultitaskStrategy  — reject / enqueue / interrupt / parallel
  - StreamMode         — values / updates / messages / events / debug
  - Error / ErrorCode  — structured errors with HTTP status and retryable flag
*/
package types
