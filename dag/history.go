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
	"context"
	"encoding/json"
	"time"

	"github.com/juju/errors"

	"github.com/aaronlmathis/goetl-dwh/store"
)

// TaskRecord is the persisted terminal record of one node in one run.
type TaskRecord struct {
	TaskID    string    `json:"task_id"`
	State     NodeState `json:"state"`
	Attempts  int       `json:"attempts"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Error     string    `json:"error,omitempty"`
}

// RunRecord is the persisted summary of one run.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	RunDate   time.Time `json:"run_date"`
	State     NodeState `json:"state"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Error     string    `json:"error,omitempty"`
}

func runsPrefix(dagID string) string {
	return dagID + "/runs"
}

func tasksPrefix(dagID, runID string) string {
	return dagID + "/runs/" + runID
}

// SaveRunRecord stores the summary of a run.
func SaveRunRecord(ctx context.Context, s store.Store, dagID string, rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.Set(ctx, runsPrefix(dagID), rec.RunID, data))
}

// SaveTaskRecord stores the terminal record of one node.
func SaveTaskRecord(ctx context.Context, s store.Store, dagID, runID string, rec TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.Set(ctx, tasksPrefix(dagID, runID), rec.TaskID, data))
}

// LoadRunRecord returns the summary of runID.
func LoadRunRecord(ctx context.Context, s store.Store, dagID, runID string) (RunRecord, error) {
	var rec RunRecord
	data, err := s.Get(ctx, runsPrefix(dagID), runID)
	if err != nil {
		return rec, errors.Trace(err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, errors.Annotatef(err, "decoding run %s", runID)
	}
	return rec, nil
}

// ListRuns returns every stored run summary ordered by run id.
func ListRuns(ctx context.Context, s store.Store, dagID string) ([]RunRecord, error) {
	var ids []string
	if err := s.List(ctx, runsPrefix(dagID), func(key string) bool {
		ids = append(ids, key)
		return true
	}); err != nil {
		return nil, errors.Trace(err)
	}

	runs := make([]RunRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := LoadRunRecord(ctx, s, dagID, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, nil
}

// LoadTaskRecords returns every node record stored for runID, keyed by task id.
func LoadTaskRecords(ctx context.Context, s store.Store, dagID, runID string) (map[string]TaskRecord, error) {
	prefix := tasksPrefix(dagID, runID)
	var ids []string
	if err := s.List(ctx, prefix, func(key string) bool {
		ids = append(ids, key)
		return true
	}); err != nil {
		return nil, errors.Trace(err)
	}

	records := make(map[string]TaskRecord, len(ids))
	for _, id := range ids {
		data, err := s.Get(ctx, prefix, id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		var rec TaskRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, errors.Annotatef(err, "decoding task record %s", id)
		}
		records[id] = rec
	}
	return records, nil
}

// ClearTaskRecords removes every node record of runID, keeping the run summary.
func ClearTaskRecords(ctx context.Context, s store.Store, dagID, runID string) error {
	prefix := tasksPrefix(dagID, runID)
	var ids []string
	if err := s.List(ctx, prefix, func(key string) bool {
		ids = append(ids, key)
		return true
	}); err != nil {
		return errors.Trace(err)
	}
	for _, id := range ids {
		if err := s.Remove(ctx, prefix, id); err != nil {
			return errors.Annotatef(err, "removing task record %s", id)
		}
	}
	return nil
}

// DeleteRun removes runID's summary and node records.
func DeleteRun(ctx context.Context, s store.Store, dagID, runID string) error {
	if err := ClearTaskRecords(ctx, s, dagID, runID); err != nil {
		return err
	}
	return errors.Trace(s.Remove(ctx, runsPrefix(dagID), runID))
}
