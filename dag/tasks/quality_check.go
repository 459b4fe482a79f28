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

// quality_check.go - QualityCheckTask implementation
package tasks

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// QualityCheck is one assertion query and the scalar it must return.
type QualityCheck struct {
	SQL      string      `yaml:"check_sql"`
	Expected interface{} `yaml:"expected_result"`
	Table    string      `yaml:"table,omitempty"` // Optional, used for error reporting
}

// NewQualityCheck validates and builds a QualityCheck.
func NewQualityCheck(sql string, expected interface{}) (QualityCheck, error) {
	qc := QualityCheck{SQL: sql, Expected: expected}
	if err := qc.Validate(); err != nil {
		return QualityCheck{}, err
	}
	return qc, nil
}

// QualityCheckFromMap builds a check from a loosely typed map using the
// check_sql and expected_result keys. Missing keys fail immediately.
func QualityCheckFromMap(m map[string]interface{}) (QualityCheck, error) {
	rawSQL, ok := m["check_sql"]
	if !ok {
		return QualityCheck{}, errors.NotValidf("quality check without check_sql")
	}
	sql, err := cast.ToStringE(rawSQL)
	if err != nil {
		return QualityCheck{}, errors.Annotate(err, "check_sql")
	}
	expected, ok := m["expected_result"]
	if !ok {
		return QualityCheck{}, errors.NotValidf("quality check %q without expected_result", sql)
	}
	qc, err := NewQualityCheck(sql, expected)
	if err != nil {
		return QualityCheck{}, err
	}
	if table, ok := m["table"]; ok {
		qc.Table = cast.ToString(table)
	}
	return qc, nil
}

// Validate reports a check that cannot be run.
func (qc QualityCheck) Validate() error {
	if qc.SQL == "" {
		return errors.NotValidf("quality check with empty SQL")
	}
	if qc.Expected == nil {
		return errors.NotValidf("quality check %q with nil expected result", qc.SQL)
	}
	return nil
}

// Matches compares an actual scalar against the expected value. Values that
// both convert to numbers are compared numerically, everything else by its
// string form.
func (qc QualityCheck) Matches(actual interface{}) bool {
	if actual == nil {
		return false
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	a, aerr := cast.ToFloat64E(actual)
	e, eerr := cast.ToFloat64E(qc.Expected)
	if aerr == nil && eerr == nil {
		return a == e
	}
	return fmt.Sprint(actual) == fmt.Sprint(qc.Expected)
}

// QualityResult summarizes one quality-check run.
type QualityResult struct {
	Failed       int
	FailedChecks []string
}

// QualityCheckParams configures a QualityCheckTask.
type QualityCheckParams struct {
	Checks            []QualityCheck
	ConnectionProfile string
}

// QualityCheckTask runs every assertion and fails when any of them mismatches.
type QualityCheckTask struct {
	baseTask
	params QualityCheckParams
	hooks  Hooks
}

// NewQualityCheckTask creates a new QualityCheckTask. The check list is
// copied and must be non-empty.
func NewQualityCheckTask(id string, params QualityCheckParams, hooks Hooks, dependencies []string, options ...TaskOption) (*QualityCheckTask, error) {
	if len(params.Checks) == 0 {
		return nil, errors.NotValidf("quality check task %s with no checks", id)
	}
	for i, qc := range params.Checks {
		if err := qc.Validate(); err != nil {
			return nil, errors.Annotatef(err, "quality check task %s, check %d", id, i)
		}
	}
	params.Checks = append([]QualityCheck(nil), params.Checks...)

	task := &QualityCheckTask{
		baseTask: newBaseTask(id, KindQualityCheck, dependencies),
		params:   params,
		hooks:    hooks,
	}
	applyOptions(task, options)
	return task, nil
}

// Checks returns a copy of the configured assertions.
func (qt *QualityCheckTask) Checks() []QualityCheck {
	return append([]QualityCheck(nil), qt.params.Checks...)
}

// Run executes every check in order against conn and collects mismatches.
// A query error aborts the run and is returned as a StatementError.
func (qt *QualityCheckTask) Run(ctx context.Context, conn core.Warehouse, rc core.RunContext) (QualityResult, error) {
	logger := qt.logger(rc)
	var result QualityResult

	for _, qc := range qt.params.Checks {
		rows, err := conn.Query(ctx, qc.SQL)
		if err != nil {
			table := qc.Table
			if table == "" {
				table = qt.id
			}
			return result, &core.StatementError{Table: table, Statement: qc.SQL, Err: err}
		}

		actual, ok := rows.Scalar()
		if !ok || !qc.Matches(actual) {
			logger.WithFields(log.Fields{
				"check_sql": qc.SQL,
				"expected":  qc.Expected,
				"actual":    actual,
			}).Warn("Data quality check mismatch")
			result.Failed++
			result.FailedChecks = append(result.FailedChecks, qc.SQL)
			continue
		}
		logger.WithField("check_sql", qc.SQL).Debug("Data quality check passed")
	}
	return result, nil
}

func (qt *QualityCheckTask) Execute(ctx context.Context, rc core.RunContext) error {
	conn, err := connect(ctx, qt.hooks.Warehouse, qt.params.ConnectionProfile)
	if err != nil {
		return err
	}
	defer conn.Close()

	result, err := qt.Run(ctx, conn, rc)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return &core.QualityCheckFailure{Failed: result.FailedChecks}
	}
	qt.logger(rc).Infof("Data quality checks passed (%d checks)", len(qt.params.Checks))
	return nil
}
