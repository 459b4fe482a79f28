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
	"fmt"
	"io"
	"time"

	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
)

// GetTasks returns all tasks in the DAG
func (d *DAG) GetTasks() map[string]tasks.Task {
	out := make(map[string]tasks.Task, len(d.tasks))
	for id, t := range d.tasks {
		out[id] = t
	}
	return out
}

// GetTask returns the task with the given id
func (d *DAG) GetTask(taskID string) (tasks.Task, bool) {
	t, ok := d.tasks[taskID]
	return t, ok
}

// TaskIDs returns task ids in the order they were added
func (d *DAG) TaskIDs() []string {
	return append([]string(nil), d.order...)
}

// GetDependencies returns the dependencies for a specific task
func (d *DAG) GetDependencies(taskID string) []string {
	return append([]string(nil), d.dependencies[taskID]...)
}

// GetTasksByKind returns tasks filtered by kind
func (d *DAG) GetTasksByKind(kind tasks.TaskKind) []tasks.Task {
	var result []tasks.Task
	for _, id := range d.order {
		if d.tasks[id].Kind() == kind {
			result = append(result, d.tasks[id])
		}
	}
	return result
}

// GetTaskCount returns the total number of tasks
func (d *DAG) GetTaskCount() int {
	return len(d.tasks)
}

// HasTask checks if a task exists in the DAG
func (d *DAG) HasTask(taskID string) bool {
	_, exists := d.tasks[taskID]
	return exists
}

// GetUpstreamTasks returns all tasks that this task depends on
func (d *DAG) GetUpstreamTasks(taskID string) []string {
	return d.GetDependencies(taskID)
}

// GetDownstreamTasks returns all tasks that depend on this task, in insertion order
func (d *DAG) GetDownstreamTasks(taskID string) []string {
	var downstream []string
	for _, id := range d.order {
		for _, dep := range d.dependencies[id] {
			if dep == taskID {
				downstream = append(downstream, id)
				break
			}
		}
	}
	return downstream
}

// DependsOn reports whether taskID depends on ancestor, directly or transitively.
func (d *DAG) DependsOn(taskID, ancestor string) bool {
	seen := make(map[string]bool)
	stack := d.GetDependencies(taskID)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == ancestor {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, d.dependencies[cur]...)
	}
	return false
}

// Roots returns the tasks without dependencies
func (d *DAG) Roots() []string {
	var roots []string
	for _, id := range d.order {
		if len(d.dependencies[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns the tasks nothing depends on
func (d *DAG) Leaves() []string {
	var leaves []string
	for _, id := range d.order {
		if len(d.GetDownstreamTasks(id)) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// GetMetadata returns the DAG's metadata
func (d *DAG) GetMetadata() DAGMetadata {
	return d.metadata
}

// GetID returns the DAG's unique identifier
func (d *DAG) GetID() string {
	return d.id
}

// GetName returns the DAG's name
func (d *DAG) GetName() string {
	return d.name
}

// GetDescription returns the DAG's description
func (d *DAG) GetDescription() string {
	return d.metadata.Description
}

// GetMaxParallelism returns the configured maximum parallelism
func (d *DAG) GetMaxParallelism() int {
	return d.metadata.MaxParallelism
}

// GetDefaultTimeout returns the default timeout for tasks
func (d *DAG) GetDefaultTimeout() time.Duration {
	return d.metadata.DefaultTimeout
}

// GetDefaultRetries returns the default retry configuration
func (d *DAG) GetDefaultRetries() *tasks.RetryConfig {
	return d.metadata.DefaultRetries
}

// GetSchedule returns the DAG's schedule
func (d *DAG) GetSchedule() Schedule {
	return d.metadata.Schedule
}

// PrintDAGStructure writes a human-readable DAG structure
func (d *DAG) PrintDAGStructure(w io.Writer) {
	fmt.Fprintf(w, "DAG: %s (%s)", d.name, d.id)
	if d.metadata.Description != "" {
		fmt.Fprintf(w, " - %s", d.metadata.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Schedule: %s from %s\n", d.metadata.Schedule.Interval, d.metadata.Schedule.StartDate.Format("2006-01-02"))
	fmt.Fprintf(w, "  Max Parallelism: %d\n", d.metadata.MaxParallelism)
	fmt.Fprintf(w, "  Tasks: %d\n", len(d.tasks))

	order, err := d.GetExecutionOrder()
	if err != nil {
		order = d.order
	}
	for _, id := range order {
		metadata := d.tasks[id].Metadata()
		fmt.Fprintf(w, "  %s [%s]\n", id, metadata.Kind)
		if deps := d.GetDependencies(id); len(deps) > 0 {
			fmt.Fprintf(w, "    <- depends on: %v\n", deps)
		}
		if metadata.RetryConfig != nil {
			fmt.Fprintf(w, "    Retries: %d every %v\n", metadata.RetryConfig.MaxRetries, metadata.RetryConfig.Delay)
		}
	}
}

// GetDAGMetrics returns metrics about the DAG structure
func (d *DAG) GetDAGMetrics() map[string]interface{} {
	kinds := make(map[string]int)
	for _, t := range d.tasks {
		kinds[string(t.Kind())]++
	}
	return map[string]interface{}{
		"dag_id":          d.id,
		"dag_name":        d.name,
		"total_tasks":     len(d.tasks),
		"tasks_by_kind":   kinds,
		"max_depth":       d.calculateMaxDepth(),
		"has_cycles":      d.hasCycle(),
		"execution_order": d.getExecutionOrderSafe(),
	}
}

// ValidateDAGStructure checks references, cycles, the single start and end
// node rule and per-task settings. It returns every problem found.
func (d *DAG) ValidateDAGStructure() []error {
	var errs []error

	for _, taskID := range d.order {
		for _, dep := range d.dependencies[taskID] {
			if !d.HasTask(dep) {
				errs = append(errs, fmt.Errorf("task %s depends on non-existent task %s", taskID, dep))
			}
			if dep == taskID {
				errs = append(errs, fmt.Errorf("task %s depends on itself", taskID))
			}
		}
	}

	if d.hasCycle() {
		errs = append(errs, fmt.Errorf("DAG contains cycles"))
	}

	if len(d.tasks) > 1 {
		if roots := d.Roots(); len(roots) != 1 {
			errs = append(errs, fmt.Errorf("DAG must have exactly one start node, found %d: %v", len(roots), roots))
		}
		if leaves := d.Leaves(); len(leaves) != 1 {
			errs = append(errs, fmt.Errorf("DAG must have exactly one end node, found %d: %v", len(leaves), leaves))
		}
	}

	for _, taskID := range d.order {
		metadata := d.tasks[taskID].Metadata()
		if metadata.Timeout < 0 {
			errs = append(errs, fmt.Errorf("task %s has invalid negative timeout", taskID))
		}
		if metadata.RetryConfig != nil {
			if metadata.RetryConfig.MaxRetries < 0 {
				errs = append(errs, fmt.Errorf("task %s has invalid negative retry count", taskID))
			}
			if metadata.RetryConfig.Delay < 0 {
				errs = append(errs, fmt.Errorf("task %s has invalid negative retry delay", taskID))
			}
		}
	}

	return errs
}

// GetExecutionOrder returns tasks in topological execution order
func (d *DAG) GetExecutionOrder() ([]string, error) {
	return d.topologicalSort()
}

func (d *DAG) getExecutionOrderSafe() []string {
	if order, err := d.GetExecutionOrder(); err == nil {
		return order
	}
	return []string{}
}

func (d *DAG) hasCycle() bool {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, taskID := range d.order {
		if !visited[taskID] {
			if d.dfsHasCycle(taskID, visited, recStack) {
				return true
			}
		}
	}
	return false
}

func (d *DAG) dfsHasCycle(taskID string, visited, recStack map[string]bool) bool {
	visited[taskID] = true
	recStack[taskID] = true

	for _, dep := range d.dependencies[taskID] {
		if !visited[dep] {
			if d.dfsHasCycle(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[taskID] = false
	return false
}

func (d *DAG) calculateMaxDepth() int {
	if d.hasCycle() {
		return -1
	}
	depths := make(map[string]int)

	var calculateDepth func(taskID string) int
	calculateDepth = func(taskID string) int {
		if depth, exists := depths[taskID]; exists {
			return depth
		}
		maxDepth := 0
		for _, dep := range d.dependencies[taskID] {
			if depDepth := calculateDepth(dep); depDepth > maxDepth {
				maxDepth = depDepth
			}
		}
		depths[taskID] = maxDepth + 1
		return depths[taskID]
	}

	maxOverall := 0
	for _, taskID := range d.order {
		if depth := calculateDepth(taskID); depth > maxOverall {
			maxOverall = depth
		}
	}
	return maxOverall
}

// topologicalSort performs Kahn's algorithm. Ties are broken by insertion
// order so the result is stable across runs.
func (d *DAG) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.tasks))
	for _, taskID := range d.order {
		for _, dep := range d.dependencies[taskID] {
			if d.HasTask(dep) {
				inDegree[taskID]++
			}
		}
	}

	var queue []string
	for _, taskID := range d.order {
		if inDegree[taskID] == 0 {
			queue = append(queue, taskID)
		}
	}

	result := make([]string, 0, len(d.tasks))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, taskID := range d.GetDownstreamTasks(current) {
			inDegree[taskID]--
			if inDegree[taskID] == 0 {
				queue = append(queue, taskID)
			}
		}
	}

	if len(result) != len(d.tasks) {
		return nil, fmt.Errorf("DAG contains cycles")
	}
	return result, nil
}
