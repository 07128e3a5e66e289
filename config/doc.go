// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Package config defines the Runflow server configuration and its loader.
// Values resolve in order: built-in defaults, then the YAML config file,
// then RUNFLOW_-prefixed environment variables.
package config
