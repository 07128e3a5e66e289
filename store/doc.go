// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

/*
Package store provides durable persistence for runs and threads.

# Overview

RunStore is the narrow interface the orchestrator persists through. Every
write is an optimistic compare-and-set keyed by (id, version), and the
thread lease acquire/release is the only synchronization primitive shared
across runs. Three implementations ship:

  - MemoryStore — in-process maps, used by tests and embedded setups
  - GormStore   — GORM over SQLite (default), MySQL, or PostgreSQL
  - RedisStore  — JSON blobs with a Lua compare-and-set per record

All implementations report conflicts through the package sentinels
(ErrVersionConflict, ErrLeaseHeld, ErrNotFound, ErrAlreadyExists) so the
orchestrator's retry policy stays implementation agnostic.
*/
package store
