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

// dag_builder.go - Fluent API for DAG construction
package dag

import (
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
)

// DAGBuilder provides a fluent API for constructing DAGs. Errors are
// collected as tasks are added and reported together by Build.
type DAGBuilder struct {
	dag   *DAG
	hooks tasks.Hooks
	errs  []error
}

// NewDAG creates a new DAG builder. hooks are handed to every task that
// reaches the warehouse, credentials or storage.
func NewDAG(id, name string, hooks tasks.Hooks) *DAGBuilder {
	return &DAGBuilder{
		dag: &DAG{
			id:           id,
			name:         name,
			tasks:        make(map[string]tasks.Task),
			dependencies: make(map[string][]string),
			metadata: DAGMetadata{
				MaxParallelism: 4,
				Schedule: Schedule{
					Interval:      "@daily",
					MaxActiveRuns: 1,
				},
			},
		},
		hooks: hooks,
	}
}

// AddTask adds an already constructed task to the DAG
func (db *DAGBuilder) AddTask(task tasks.Task) *DAGBuilder {
	id := task.ID()
	if id == "" {
		db.errs = append(db.errs, errors.NotValidf("task with empty id"))
		return db
	}
	if _, exists := db.dag.tasks[id]; exists {
		db.errs = append(db.errs, errors.AlreadyExistsf("task %s", id))
		return db
	}
	db.dag.tasks[id] = task
	db.dag.order = append(db.dag.order, id)
	if deps := task.Dependencies(); len(deps) > 0 {
		db.dag.dependencies[id] = deps
	}
	return db
}

// AddMarker adds a no-op start or end marker
func (db *DAGBuilder) AddMarker(id string, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewMarkerTask(id, dedupe(dependencies), opts...))
}

// AddStageTask adds a task copying storage objects into a staging table
func (db *DAGBuilder) AddStageTask(id string, params tasks.StageParams, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewStageTask(id, params, db.hooks, dedupe(dependencies), opts...))
}

// AddLoadFactTask adds a task loading the fact table
func (db *DAGBuilder) AddLoadFactTask(id string, params tasks.LoadFactParams, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewLoadFactTask(id, params, db.hooks, dedupe(dependencies), opts...))
}

// AddLoadDimensionTask adds a task loading one dimension table
func (db *DAGBuilder) AddLoadDimensionTask(id string, params tasks.LoadDimensionParams, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewLoadDimensionTask(id, params, db.hooks, dedupe(dependencies), opts...))
}

// AddQualityCheckTask adds a task running data quality assertions
func (db *DAGBuilder) AddQualityCheckTask(id string, params tasks.QualityCheckParams, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	task, err := tasks.NewQualityCheckTask(id, params, db.hooks, dedupe(dependencies), opts...)
	if err != nil {
		db.errs = append(db.errs, err)
		return db
	}
	return db.AddTask(task)
}

// WithDescription sets the DAG description
func (db *DAGBuilder) WithDescription(description string) *DAGBuilder {
	db.dag.metadata.Description = description
	return db
}

// WithOwner sets the default owner for all tasks
func (db *DAGBuilder) WithOwner(owner string) *DAGBuilder {
	db.dag.metadata.Owner = owner
	return db
}

// WithMaxParallelism sets the maximum number of concurrent tasks
func (db *DAGBuilder) WithMaxParallelism(max int) *DAGBuilder {
	db.dag.metadata.MaxParallelism = max
	return db
}

// WithDefaultTimeout sets the default timeout for all tasks
func (db *DAGBuilder) WithDefaultTimeout(timeout time.Duration) *DAGBuilder {
	db.dag.metadata.DefaultTimeout = timeout
	return db
}

// WithDefaultRetries sets the retry policy for tasks that have none of their own
func (db *DAGBuilder) WithDefaultRetries(maxRetries int, delay time.Duration) *DAGBuilder {
	db.dag.metadata.DefaultRetries = &tasks.RetryConfig{MaxRetries: maxRetries, Delay: delay}
	return db
}

// WithSchedule sets the logical dates the DAG runs for
func (db *DAGBuilder) WithSchedule(schedule Schedule) *DAGBuilder {
	db.dag.metadata.Schedule = schedule
	return db
}

// Build applies DAG defaults to the tasks, validates and returns the constructed DAG
func (db *DAGBuilder) Build() (*DAG, error) {
	errs := append([]error(nil), db.errs...)

	if _, err := ParseInterval(db.dag.metadata.Schedule.Interval); err != nil {
		errs = append(errs, err)
	}
	if db.dag.metadata.MaxParallelism < 1 {
		errs = append(errs, errors.NotValidf("max parallelism %d", db.dag.metadata.MaxParallelism))
	}

	for _, id := range db.dag.order {
		task := db.dag.tasks[id]
		md := task.Metadata()
		if md.RetryConfig == nil && db.dag.metadata.DefaultRetries != nil {
			retries := *db.dag.metadata.DefaultRetries
			task.SetRetryConfig(&retries)
		}
		if md.Timeout == 0 && db.dag.metadata.DefaultTimeout > 0 {
			task.SetTimeout(db.dag.metadata.DefaultTimeout)
		}
		if md.Owner == "" && db.dag.metadata.Owner != "" {
			task.SetOwner(db.dag.metadata.Owner)
		}
	}

	errs = append(errs, db.dag.ValidateDAGStructure()...)
	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return nil, errors.NewNotValid(nil, "DAG "+db.dag.id+": "+strings.Join(msgs, "; "))
	}

	return db.dag, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
