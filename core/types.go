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
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record represents a single decoded source record, keyed by field name.
type Record map[string]interface{}

// Row is one result row returned by Warehouse.Query.
type Row []interface{}

// Rows is the full result set of a query.
type Rows []Row

// Scalar returns the first column of the first row.
// ok is false when the result set is empty or the first row has no columns.
func (r Rows) Scalar() (value interface{}, ok bool) {
	if len(r) == 0 || len(r[0]) == 0 {
		return nil, false
	}
	return r[0][0], true
}

// RunContext holds the values specific to one scheduled execution of the pipeline.
type RunContext struct {
	RunID   string
	RunDate time.Time
}

// NewRunContext creates a RunContext for the given logical date.
// An empty runID is replaced with a deterministic id derived from the date.
func NewRunContext(runID string, runDate time.Time) RunContext {
	if runID == "" {
		runID = "scheduled__" + runDate.UTC().Format(time.RFC3339)
	}
	return RunContext{RunID: runID, RunDate: runDate}
}

// DS returns the logical date stamp in YYYY-MM-DD form.
func (rc RunContext) DS() string {
	return rc.RunDate.Format("2006-01-02")
}

// Placeholders returns every placeholder a key pattern may reference.
// Year and month are rendered without zero padding.
func (rc RunContext) Placeholders() map[string]string {
	year := strconv.Itoa(rc.RunDate.Year())
	month := strconv.Itoa(int(rc.RunDate.Month()))
	ds := rc.DS()
	return map[string]string{
		"year":                 year,
		"month":                month,
		"day":                  ds,
		"ds":                   ds,
		"ds_nodash":            strings.ReplaceAll(ds, "-", ""),
		"execution_date.year":  year,
		"execution_date.month": month,
		"run_id":               rc.RunID,
	}
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Render substitutes {placeholder} fields in pattern from the run context.
// Unknown placeholders are reported as an error rather than left in the key.
func (rc RunContext) Render(pattern string) (string, error) {
	values := rc.Placeholders()
	var unknown []string

	rendered := placeholderPattern.ReplaceAllStringFunc(pattern, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := values[name]; ok {
			return v
		}
		unknown = append(unknown, name)
		return match
	})

	if len(unknown) > 0 {
		return "", fmt.Errorf("key pattern %q references unknown placeholders %v", pattern, unknown)
	}
	return rendered, nil
}
