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

package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Package core defines the error taxonomy for the warehouse loader.
//
// Every error a task returns is fatal for that task. Retrying is the caller's
// decision, never the task's.

// ErrNoObjects is returned when a stage source has no objects under the rendered key.
var ErrNoObjects = errors.New("no objects found")

// ConnectionError reports a failure to resolve credentials or to acquire a
// warehouse connection for a named profile.
type ConnectionError struct {
	Profile string // Credential or connection profile name
	Op      string // Operation that failed (e.g., "resolve_credentials", "connect")
	Err     error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s for profile %q: %v", e.Op, e.Profile, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StatementError reports a SQL statement that the warehouse rejected.
// Statement must never contain secrets; see RedactStatement.
type StatementError struct {
	Table     string
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement on table %s failed: %v", e.Table, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// QualityCheckFailure lists every assertion whose result did not match its
// expected value, in declaration order.
type QualityCheckFailure struct {
	Failed []string
}

func (e *QualityCheckFailure) Error() string {
	return fmt.Sprintf("data quality check failed: %d assertion(s) did not match: %s",
		len(e.Failed), strings.Join(e.Failed, "; "))
}

// RedactStatement masks every quoted literal equal to a secret. Longer
// secrets are masked first so one secret containing another is not split.
func RedactStatement(statement string, secrets ...string) string {
	ordered := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for _, s := range ordered {
		statement = strings.ReplaceAll(statement, "'"+s+"'", "'****'")
	}
	return statement
}
