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

// dag_executor.go - dependency-driven DAG execution
package dag

import (
	"context"
	"fmt"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/goetl-dwh/core"
	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
	"github.com/aaronlmathis/goetl-dwh/store"
)

// DAGExecutor runs a DAG for one logical date. A node is submitted to the
// worker pool once every predecessor has succeeded; the downstream subgraph
// of a failed node is never started and stays pending.
type DAGExecutor struct {
	maxWorkers int
	store      store.Store
}

// DAGExecutorOption configures a DAGExecutor
type DAGExecutorOption func(*DAGExecutor)

// WithMaxWorkers overrides the DAG's max parallelism
func WithMaxWorkers(workers int) DAGExecutorOption {
	return func(de *DAGExecutor) {
		if workers > 0 {
			de.maxWorkers = workers
		}
	}
}

// WithRunStore records run and node history in s
func WithRunStore(s store.Store) DAGExecutorOption {
	return func(de *DAGExecutor) {
		de.store = s
	}
}

// NewDAGExecutor creates a new DAG executor with options
func NewDAGExecutor(opts ...DAGExecutorOption) *DAGExecutor {
	de := &DAGExecutor{}
	for _, opt := range opts {
		opt(de)
	}
	return de
}

// TaskResult is the outcome of one node in one run.
type TaskResult struct {
	TaskID    string
	State     NodeState
	Attempts  int
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// DAGResult contains the results of DAG execution
type DAGResult struct {
	RunID       string
	RunDate     time.Time
	Success     bool
	StartTime   time.Time
	EndTime     time.Time
	Order       []string
	States      map[string]NodeState
	TaskResults map[string]TaskResult
	Error       error
}

// Failed returns the failed nodes in execution order.
func (r *DAGResult) Failed() []string {
	var failed []string
	for _, id := range r.Order {
		if r.States[id] == StateFailed {
			failed = append(failed, id)
		}
	}
	return failed
}

// Pending returns the nodes that never started, in execution order.
func (r *DAGResult) Pending() []string {
	var pending []string
	for _, id := range r.Order {
		if r.States[id] == StatePending {
			pending = append(pending, id)
		}
	}
	return pending
}

// Execute runs d for rc. The returned error is non-nil when any node failed
// or the run was cancelled; the result is returned in both cases.
func (de *DAGExecutor) Execute(ctx context.Context, d *DAG, rc core.RunContext) (*DAGResult, error) {
	order, err := d.GetExecutionOrder()
	if err != nil {
		return nil, errors.Annotate(err, "topological sort failed")
	}

	workers := de.maxWorkers
	if workers <= 0 {
		workers = d.GetMaxParallelism()
	}
	if workers <= 0 {
		workers = 1
	}

	logger := log.WithFields(log.Fields{"dag_id": d.GetID(), "run_id": rc.RunID})
	logger.WithField("run_date", rc.DS()).Infof("Starting run with %d workers", workers)

	states := make(map[string]NodeState, len(order))
	for _, id := range order {
		states[id] = StatePending
	}
	result := &DAGResult{
		RunID:       rc.RunID,
		RunDate:     rc.RunDate,
		StartTime:   time.Now(),
		Order:       order,
		TaskResults: make(map[string]TaskResult, len(order)),
	}
	de.clearRun(ctx, d, rc, logger)
	de.saveRun(ctx, d, result, StateRunning, logger)

	wp := workerpool.New(workers)
	defer wp.StopWait()

	done := make(chan TaskResult, len(order))
	inFlight := 0
	submit := func(id string) {
		task, _ := d.GetTask(id)
		states[id] = StateRunning
		inFlight++
		wp.Submit(func() {
			done <- de.executeTaskWithRetry(ctx, rc, task)
		})
	}

	for _, id := range d.Roots() {
		submit(id)
	}

	for inFlight > 0 {
		tr := <-done
		inFlight--
		states[tr.TaskID] = tr.State
		result.TaskResults[tr.TaskID] = tr
		de.saveTask(ctx, d, rc, tr, logger)

		if tr.State != StateSucceeded {
			logger.WithField("task", tr.TaskID).Errorf("Task failed after %d attempt(s): %v", tr.Attempts, tr.Err)
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		for _, down := range d.GetDownstreamTasks(tr.TaskID) {
			if states[down] == StatePending && dependenciesMet(d, states, down) {
				submit(down)
			}
		}
	}

	result.EndTime = time.Now()
	result.States = states
	result.Error = runError(ctx, result)
	result.Success = result.Error == nil

	runState := StateSucceeded
	if !result.Success {
		runState = StateFailed
		logger.WithField("failed", result.Failed()).Errorf("Run failed: %v", result.Error)
	} else {
		logger.Infof("Run succeeded in %v", result.EndTime.Sub(result.StartTime))
	}
	de.saveRun(ctx, d, result, runState, logger)

	return result, result.Error
}

// Backfill runs d once per date, one run at a time. Later dates still run
// when an earlier one fails; the error lists every failed date.
func (de *DAGExecutor) Backfill(ctx context.Context, d *DAG, dates []time.Time) ([]*DAGResult, error) {
	results := make([]*DAGResult, 0, len(dates))
	var failed []string
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return results, errors.Annotate(err, "backfill cancelled")
		}
		rc := core.NewRunContext("backfill__"+date.UTC().Format(time.RFC3339), date)
		res, err := de.Execute(ctx, d, rc)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			failed = append(failed, rc.DS())
		}
	}
	if len(failed) > 0 {
		return results, errors.Errorf("backfill: %d of %d run(s) failed: %v", len(failed), len(dates), failed)
	}
	return results, nil
}

func dependenciesMet(d *DAG, states map[string]NodeState, taskID string) bool {
	for _, dep := range d.dependencies[taskID] {
		if states[dep] != StateSucceeded {
			return false
		}
	}
	return true
}

func runError(ctx context.Context, result *DAGResult) error {
	failed := result.Failed()
	if len(failed) > 0 {
		first := result.TaskResults[failed[0]]
		if len(failed) == 1 {
			return fmt.Errorf("task %s failed: %w", first.TaskID, first.Err)
		}
		return fmt.Errorf("%d tasks failed %v, first %s: %w", len(failed), failed, first.TaskID, first.Err)
	}
	if pending := result.Pending(); len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return errors.Annotatef(err, "run cancelled with %d task(s) not started", len(pending))
		}
		return errors.Errorf("run finished with %d task(s) not started: %v", len(pending), pending)
	}
	return nil
}

// executeTaskWithRetry runs one task, retrying with a fixed delay per its RetryConfig.
func (de *DAGExecutor) executeTaskWithRetry(ctx context.Context, rc core.RunContext, task tasks.Task) TaskResult {
	metadata := task.Metadata()
	logger := log.WithFields(log.Fields{"task": task.ID(), "run_id": rc.RunID})

	maxRetries := 0
	var delay time.Duration
	if metadata.RetryConfig != nil {
		maxRetries = metadata.RetryConfig.MaxRetries
		delay = metadata.RetryConfig.Delay
	}

	tr := TaskResult{TaskID: task.ID(), StartTime: time.Now()}
	logger.Info("Task running")

attempts:
	for attempt := 0; attempt <= maxRetries; attempt++ {
		tr.Attempts = attempt + 1
		err := runAttempt(ctx, rc, task, metadata.Timeout)
		if err == nil {
			tr.State = StateSucceeded
			tr.Err = nil
			tr.EndTime = time.Now()
			logger.WithField("attempts", tr.Attempts).Infof("Task succeeded in %v", tr.EndTime.Sub(tr.StartTime))
			return tr
		}
		tr.Err = err

		if ctx.Err() != nil || attempt == maxRetries {
			break
		}
		logger.Warnf("Attempt %d failed, retrying in %v: %v", attempt+1, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			break attempts
		}
	}

	tr.State = StateFailed
	tr.EndTime = time.Now()
	return tr
}

func runAttempt(ctx context.Context, rc core.RunContext, task tasks.Task, timeout time.Duration) (err error) {
	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task %s panicked: %v", task.ID(), r)
		}
	}()
	return task.Execute(taskCtx, rc)
}

// clearRun drops node records left by an earlier attempt of the same run id,
// so nodes that stay Pending this time are not reported with stale states.
func (de *DAGExecutor) clearRun(ctx context.Context, d *DAG, rc core.RunContext, logger *log.Entry) {
	if de.store == nil {
		return
	}
	if err := ClearTaskRecords(context.WithoutCancel(ctx), de.store, d.GetID(), rc.RunID); err != nil {
		logger.Warnf("Failed to clear previous task records: %v", err)
	}
}

func (de *DAGExecutor) saveTask(ctx context.Context, d *DAG, rc core.RunContext, tr TaskResult, logger *log.Entry) {
	if de.store == nil {
		return
	}
	rec := TaskRecord{
		TaskID:    tr.TaskID,
		State:     tr.State,
		Attempts:  tr.Attempts,
		StartTime: tr.StartTime,
		EndTime:   tr.EndTime,
	}
	if tr.Err != nil {
		rec.Error = tr.Err.Error()
	}
	if err := SaveTaskRecord(context.WithoutCancel(ctx), de.store, d.GetID(), rc.RunID, rec); err != nil {
		logger.WithField("task", tr.TaskID).Warnf("Failed to save task record: %v", err)
	}
}

func (de *DAGExecutor) saveRun(ctx context.Context, d *DAG, result *DAGResult, state NodeState, logger *log.Entry) {
	if de.store == nil {
		return
	}
	rec := RunRecord{
		RunID:     result.RunID,
		RunDate:   result.RunDate,
		State:     state,
		StartTime: result.StartTime,
		EndTime:   result.EndTime,
	}
	if result.Error != nil {
		rec.Error = result.Error.Error()
	}
	if err := SaveRunRecord(context.WithoutCancel(ctx), de.store, d.GetID(), rec); err != nil {
		logger.Warnf("Failed to save run record: %v", err)
	}
}
