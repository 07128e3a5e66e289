// Copyright (c) Runflow Authors.
// Licensed under the MIT License.

// Package workflow is the graph execution engine: assistants are
// registered as node graphs, executions step through them one node at a
// time, and interrupt gates or in-node Interrupt calls suspend the run
// into a checkpoint that a later command resumes.
package workflow
