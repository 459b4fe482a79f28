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

// load.go - LoadFactTask and LoadDimensionTask implementations
package tasks

import (
	"context"
	"fmt"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// LoadFactParams configures a LoadFactTask.
type LoadFactParams struct {
	Table             string
	SQL               string // Statement inserting derived rows into Table
	CredentialProfile string
	ConnectionProfile string
}

// LoadFactTask runs one statement that derives fact rows from the staging tables.
type LoadFactTask struct {
	baseTask
	params LoadFactParams
	hooks  Hooks
}

// NewLoadFactTask creates a new LoadFactTask
func NewLoadFactTask(id string, params LoadFactParams, hooks Hooks, dependencies []string, options ...TaskOption) *LoadFactTask {
	task := &LoadFactTask{
		baseTask: newBaseTask(id, KindLoadFact, dependencies),
		params:   params,
		hooks:    hooks,
	}
	applyOptions(task, options)
	return task
}

func (lt *LoadFactTask) Params() LoadFactParams { return lt.params }

func (lt *LoadFactTask) Execute(ctx context.Context, rc core.RunContext) error {
	logger := lt.logger(rc).WithField("table", lt.params.Table)

	conn, err := connect(ctx, lt.hooks.Warehouse, lt.params.ConnectionProfile)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Infof("Loading fact table %s from staging tables", lt.params.Table)
	return execute(ctx, conn, lt.params.Table, lt.params.SQL)
}

// LoadDimensionParams configures a LoadDimensionTask.
type LoadDimensionParams struct {
	Table             string
	SQL               string // Statement inserting derived rows into Table
	Truncate          bool   // Clear Table before inserting
	ConnectionProfile string
}

// LoadDimensionTask rebuilds or appends to a dimension table.
type LoadDimensionTask struct {
	baseTask
	params LoadDimensionParams
	hooks  Hooks
}

// NewLoadDimensionTask creates a new LoadDimensionTask
func NewLoadDimensionTask(id string, params LoadDimensionParams, hooks Hooks, dependencies []string, options ...TaskOption) *LoadDimensionTask {
	task := &LoadDimensionTask{
		baseTask: newBaseTask(id, KindLoadDimension, dependencies),
		params:   params,
		hooks:    hooks,
	}
	applyOptions(task, options)
	return task
}

func (lt *LoadDimensionTask) Params() LoadDimensionParams { return lt.params }

// TruncateStatement returns the statement used to clear a dimension table.
func TruncateStatement(table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s", table)
}

func (lt *LoadDimensionTask) Execute(ctx context.Context, rc core.RunContext) error {
	logger := lt.logger(rc).WithField("table", lt.params.Table)

	conn, err := connect(ctx, lt.hooks.Warehouse, lt.params.ConnectionProfile)
	if err != nil {
		return err
	}
	defer conn.Close()

	if lt.params.Truncate {
		logger.Infof("Truncating dimension table %s", lt.params.Table)
		if err := execute(ctx, conn, lt.params.Table, TruncateStatement(lt.params.Table)); err != nil {
			return err
		}
	}

	logger.Infof("Loading dimension table %s", lt.params.Table)
	return execute(ctx, conn, lt.params.Table, lt.params.SQL)
}
