//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package dag

import (
	"time"

	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
)

// NodeState is the per-run state of one node.
type NodeState string

const (
	StatePending   NodeState = "pending"
	StateRunning   NodeState = "running"
	StateSucceeded NodeState = "succeeded"
	StateFailed    NodeState = "failed"
)

// Terminal reports whether no further transition is possible for the run.
func (s NodeState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// DAG represents a directed acyclic graph of tasks
type DAG struct {
	id           string
	name         string
	tasks        map[string]tasks.Task
	order        []string // insertion order
	dependencies map[string][]string
	metadata     DAGMetadata
}

// DAGMetadata contains DAG-level configuration
type DAGMetadata struct {
	Description    string
	Owner          string
	MaxParallelism int
	DefaultTimeout time.Duration
	DefaultRetries *tasks.RetryConfig
	Schedule       Schedule
}

// Schedule describes which logical dates the DAG runs for.
type Schedule struct {
	Interval      string // Preset such as "@daily"
	StartDate     time.Time
	EndDate       time.Time // Exclusive; zero means open ended
	Catchup       bool
	MaxActiveRuns int
}
