// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Package database manages the SQL connection pool behind the GORM-backed
// run store: pool sizing, liveness pings, and clean shutdown.
package database
