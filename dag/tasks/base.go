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

// base.go - Task interface and base types
package tasks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// TaskKind identifies which of the pipeline's task behaviors a node carries.
type TaskKind string

const (
	KindStage         TaskKind = "stage"
	KindLoadFact      TaskKind = "load_fact"
	KindLoadDimension TaskKind = "load_dimension"
	KindQualityCheck  TaskKind = "quality_check"
	KindMarker        TaskKind = "marker"
)

// RetryConfig is the per-node retry policy handed to the executor.
// Tasks never retry themselves.
type RetryConfig struct {
	MaxRetries int
	Delay      time.Duration
}

// TaskMetadata holds descriptive, non-behavioral information about a task.
type TaskMetadata struct {
	Name        string
	Description string
	Kind        TaskKind
	Owner       string
	Tags        []string
	RetryConfig *RetryConfig
	Timeout     time.Duration
}

// Hooks are the external collaborators a task reaches through.
// Marker tasks need none of them.
type Hooks struct {
	Warehouse   core.Connector
	Credentials core.CredentialProvider
	Storage     core.ObjectStore
}

// Task defines the interface that all pipeline nodes implement.
type Task interface {
	ID() string
	Kind() TaskKind
	Dependencies() []string
	Execute(ctx context.Context, rc core.RunContext) error
	Metadata() TaskMetadata
	SetRetryConfig(config *RetryConfig)
	SetTimeout(timeout time.Duration)
	SetDescription(description string)
	SetTags(tags ...string)
	SetOwner(owner string)
}

// TaskOption is a functional option for configuring tasks
type TaskOption func(Task)

// WithRetries sets the retry policy for a task
func WithRetries(maxRetries int, delay time.Duration) TaskOption {
	return func(t Task) {
		t.SetRetryConfig(&RetryConfig{
			MaxRetries: maxRetries,
			Delay:      delay,
		})
	}
}

// WithTimeout sets the timeout for a task
func WithTimeout(timeout time.Duration) TaskOption {
	return func(t Task) {
		t.SetTimeout(timeout)
	}
}

// WithDescription sets the description for a task
func WithDescription(description string) TaskOption {
	return func(t Task) {
		t.SetDescription(description)
	}
}

// WithTags adds tags to a task
func WithTags(tags ...string) TaskOption {
	return func(t Task) {
		t.SetTags(tags...)
	}
}

// WithOwner sets the owner for a task
func WithOwner(owner string) TaskOption {
	return func(t Task) {
		t.SetOwner(owner)
	}
}

// baseTask carries identity, dependencies and metadata common to every kind.
type baseTask struct {
	id           string
	dependencies []string
	metadata     TaskMetadata
}

func newBaseTask(id string, kind TaskKind, dependencies []string) baseTask {
	return baseTask{
		id:           id,
		dependencies: append([]string(nil), dependencies...),
		metadata: TaskMetadata{
			Name: id,
			Kind: kind,
		},
	}
}

func (bt *baseTask) ID() string     { return bt.id }
func (bt *baseTask) Kind() TaskKind { return bt.metadata.Kind }

// Dependencies returns a copy so callers cannot mutate the graph wiring.
func (bt *baseTask) Dependencies() []string {
	return append([]string(nil), bt.dependencies...)
}

func (bt *baseTask) Metadata() TaskMetadata {
	md := bt.metadata
	md.Tags = append([]string(nil), bt.metadata.Tags...)
	return md
}

func (bt *baseTask) SetRetryConfig(config *RetryConfig) { bt.metadata.RetryConfig = config }
func (bt *baseTask) SetTimeout(timeout time.Duration)   { bt.metadata.Timeout = timeout }
func (bt *baseTask) SetDescription(description string) { bt.metadata.Description = description }
func (bt *baseTask) SetOwner(owner string)             { bt.metadata.Owner = owner }

func (bt *baseTask) SetTags(tags ...string) {
	bt.metadata.Tags = append(bt.metadata.Tags, tags...)
}

func (bt *baseTask) logger(rc core.RunContext) *log.Entry {
	return log.WithFields(log.Fields{
		"task":   bt.id,
		"kind":   bt.metadata.Kind,
		"run_id": rc.RunID,
	})
}

func applyOptions(t Task, options []TaskOption) {
	for _, opt := range options {
		opt(t)
	}
}
