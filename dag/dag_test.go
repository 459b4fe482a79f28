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
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	jujuerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/goetl-dwh/core"
	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
	"github.com/aaronlmathis/goetl-dwh/internal/testutil"
	"github.com/aaronlmathis/goetl-dwh/store/mem"
)

var runDate = time.Date(2018, 11, 5, 0, 0, 0, 0, time.UTC)

// flakyTask fails its first failures executions.
type flakyTask struct {
	*tasks.MarkerTask
	failures int32
	calls    int32
}

func (f *flakyTask) Execute(ctx context.Context, rc core.RunContext) error {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return fmt.Errorf("transient failure %d", f.calls)
	}
	return nil
}

// blockingTask waits for its context to end.
type blockingTask struct {
	*tasks.MarkerTask
}

func (b *blockingTask) Execute(ctx context.Context, rc core.RunContext) error {
	<-ctx.Done()
	return ctx.Err()
}

func load(table string) tasks.LoadFactParams {
	return tasks.LoadFactParams{Table: table, SQL: "INSERT INTO " + table + " SELECT 1", ConnectionProfile: "redshift"}
}

// diamond builds start -> (a, b) -> c -> end.
func diamond(t *testing.T, conn *testutil.FakeConnector, opts ...func(*DAGBuilder)) *DAG {
	t.Helper()
	b := NewDAG("diamond", "Diamond", tasks.Hooks{Warehouse: conn}).
		AddMarker("start", nil).
		AddLoadFactTask("a", load("a"), []string{"start"}).
		AddLoadFactTask("b", load("b"), []string{"start"}).
		AddLoadFactTask("c", load("c"), []string{"a", "b"}).
		AddMarker("end", []string{"c"})
	for _, opt := range opts {
		opt(b)
	}
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

func TestDAGStructure(t *testing.T) {
	d := diamond(t, testutil.NewFakeConnector())

	order, err := d.GetExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "a", "b", "c", "end"}, order)

	assert.Equal(t, []string{"start"}, d.Roots())
	assert.Equal(t, []string{"end"}, d.Leaves())
	assert.Equal(t, []string{"a", "b"}, d.GetDownstreamTasks("start"))
	assert.Equal(t, []string{"a", "b"}, d.GetUpstreamTasks("c"))
	assert.True(t, d.DependsOn("end", "a"))
	assert.False(t, d.DependsOn("a", "b"))
	assert.Len(t, d.GetTasksByKind(tasks.KindLoadFact), 3)
	assert.Equal(t, 5, d.GetTaskCount())

	metrics := d.GetDAGMetrics()
	assert.Equal(t, 4, metrics["max_depth"])
	assert.Equal(t, false, metrics["has_cycles"])
}

func TestBuildErrors(t *testing.T) {
	hooks := tasks.Hooks{Warehouse: testutil.NewFakeConnector()}

	tests := []struct {
		name    string
		builder *DAGBuilder
		want    string
	}{
		{
			name: "duplicate id",
			builder: NewDAG("d", "d", hooks).
				AddMarker("start", nil).
				AddMarker("start", nil),
			want: "already exists",
		},
		{
			name: "missing dependency",
			builder: NewDAG("d", "d", hooks).
				AddMarker("start", nil).
				AddMarker("end", []string{"ghost"}),
			want: "non-existent task ghost",
		},
		{
			name: "cycle",
			builder: NewDAG("d", "d", hooks).
				AddMarker("start", nil).
				AddMarker("a", []string{"start", "b"}).
				AddMarker("b", []string{"a"}).
				AddMarker("end", []string{"b"}),
			want: "cycles",
		},
		{
			name: "two start nodes",
			builder: NewDAG("d", "d", hooks).
				AddMarker("s1", nil).
				AddMarker("s2", nil).
				AddMarker("end", []string{"s1", "s2"}),
			want: "exactly one start node",
		},
		{
			name: "two end nodes",
			builder: NewDAG("d", "d", hooks).
				AddMarker("start", nil).
				AddMarker("e1", []string{"start"}).
				AddMarker("e2", []string{"start"}),
			want: "exactly one end node",
		},
		{
			name: "empty quality checks",
			builder: NewDAG("d", "d", hooks).
				AddMarker("start", nil).
				AddQualityCheckTask("qc", tasks.QualityCheckParams{}, []string{"start"}),
			want: "no checks",
		},
		{
			name: "unsupported schedule",
			builder: NewDAG("d", "d", hooks).
				AddMarker("start", nil).
				WithSchedule(Schedule{Interval: "0 * * * *"}),
			want: "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, jujuerrors.Is(err, jujuerrors.NotValid))
		})
	}
}

func TestBuildAppliesDefaults(t *testing.T) {
	conn := testutil.NewFakeConnector()
	d := diamond(t, conn, func(b *DAGBuilder) {
		b.WithDefaultRetries(3, 5*time.Minute).WithOwner("udacity").WithDefaultTimeout(time.Hour)
	})

	for _, id := range d.TaskIDs() {
		task, _ := d.GetTask(id)
		md := task.Metadata()
		require.NotNil(t, md.RetryConfig, id)
		assert.Equal(t, 3, md.RetryConfig.MaxRetries)
		assert.Equal(t, 5*time.Minute, md.RetryConfig.Delay)
		assert.Equal(t, "udacity", md.Owner)
		assert.Equal(t, time.Hour, md.Timeout)
	}
}

func TestExecuteSuccess(t *testing.T) {
	conn := testutil.NewFakeConnector()
	d := diamond(t, conn)
	s := mem.NewMemStore()
	rc := core.NewRunContext("", runDate)

	result, err := NewDAGExecutor(WithMaxWorkers(2), WithRunStore(s)).Execute(context.Background(), d, rc)
	require.NoError(t, err)
	assert.True(t, result.Success)
	for _, id := range d.TaskIDs() {
		assert.Equal(t, StateSucceeded, result.States[id], id)
		assert.Equal(t, 1, result.TaskResults[id].Attempts)
	}

	stmts := conn.Statements()
	require.Len(t, stmts, 3)
	assert.Equal(t, "INSERT INTO c SELECT 1", stmts[2])
	assert.Equal(t, conn.Opened(), conn.Closed())

	records, err := LoadTaskRecords(context.Background(), s, "diamond", rc.RunID)
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, StateSucceeded, records["c"].State)

	runs, err := ListRuns(context.Background(), s, "diamond")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StateSucceeded, runs[0].State)
	assert.Equal(t, rc.RunID, runs[0].RunID)
}

func TestExecuteFailureLeavesDownstreamPending(t *testing.T) {
	conn := testutil.NewFakeConnector()
	conn.FailExec("INSERT INTO b", errors.New("constraint violation"))
	d := diamond(t, conn)
	s := mem.NewMemStore()
	rc := core.NewRunContext("manual", runDate)

	result, err := NewDAGExecutor(WithRunStore(s)).Execute(context.Background(), d, rc)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	assert.Equal(t, StateSucceeded, result.States["start"])
	assert.Equal(t, StateSucceeded, result.States["a"])
	assert.Equal(t, StateFailed, result.States["b"])
	assert.Equal(t, StatePending, result.States["c"])
	assert.Equal(t, StatePending, result.States["end"])
	assert.Equal(t, []string{"b"}, result.Failed())
	assert.Equal(t, []string{"c", "end"}, result.Pending())

	var stmtErr *core.StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Equal(t, "b", stmtErr.Table)
	assert.Contains(t, err.Error(), "task b failed")

	assert.NotContains(t, conn.Statements(), "INSERT INTO c SELECT 1")

	run, err := LoadRunRecord(context.Background(), s, "diamond", "manual")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, run.State)
	assert.Contains(t, run.Error, "constraint violation")

	records, err := LoadTaskRecords(context.Background(), s, "diamond", "manual")
	require.NoError(t, err)
	assert.NotContains(t, records, "c")
	assert.Equal(t, "b", records["b"].TaskID)
}

func TestExecuteRerunDropsStaleRecords(t *testing.T) {
	conn := testutil.NewFakeConnector()
	d := diamond(t, conn)
	s := mem.NewMemStore()
	rc := core.NewRunContext("manual", runDate)
	executor := NewDAGExecutor(WithRunStore(s))

	_, err := executor.Execute(context.Background(), d, rc)
	require.NoError(t, err)

	conn.FailExec("INSERT INTO a", errors.New("relation does not exist"))
	_, err = executor.Execute(context.Background(), d, rc)
	require.Error(t, err)

	records, err := LoadTaskRecords(context.Background(), s, "diamond", "manual")
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, StateFailed, records["a"].State)
	assert.NotContains(t, records, "c")
	assert.NotContains(t, records, "end")
}

func TestDeleteRun(t *testing.T) {
	d := diamond(t, testutil.NewFakeConnector())
	s := mem.NewMemStore()
	rc := core.NewRunContext("manual", runDate)

	_, err := NewDAGExecutor(WithRunStore(s)).Execute(context.Background(), d, rc)
	require.NoError(t, err)

	require.NoError(t, DeleteRun(context.Background(), s, "diamond", "manual"))
	runs, err := ListRuns(context.Background(), s, "diamond")
	require.NoError(t, err)
	assert.Empty(t, runs)
	records, err := LoadTaskRecords(context.Background(), s, "diamond", "manual")
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = LoadRunRecord(context.Background(), s, "diamond", "manual")
	assert.True(t, jujuerrors.Is(err, jujuerrors.NotFound))
}

func TestExecuteRetries(t *testing.T) {
	flaky := &flakyTask{MarkerTask: tasks.NewMarkerTask("flaky", []string{"start"}, tasks.WithRetries(2, time.Millisecond)), failures: 2}
	d, err := NewDAG("retry", "Retry", tasks.Hooks{}).
		AddMarker("start", nil).
		AddTask(flaky).
		AddMarker("end", []string{"flaky"}).
		Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor().Execute(context.Background(), d, core.NewRunContext("", runDate))
	require.NoError(t, err)
	assert.Equal(t, 3, result.TaskResults["flaky"].Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&flaky.calls))
}

func TestExecuteRetriesExhausted(t *testing.T) {
	flaky := &flakyTask{MarkerTask: tasks.NewMarkerTask("flaky", []string{"start"}, tasks.WithRetries(1, 0)), failures: 5}
	d, err := NewDAG("retry", "Retry", tasks.Hooks{}).
		AddMarker("start", nil).
		AddTask(flaky).
		AddMarker("end", []string{"flaky"}).
		Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor().Execute(context.Background(), d, core.NewRunContext("", runDate))
	require.Error(t, err)
	assert.Equal(t, 2, result.TaskResults["flaky"].Attempts)
	assert.Equal(t, StateFailed, result.States["flaky"])
	assert.Equal(t, StatePending, result.States["end"])
}

func TestExecuteTimeout(t *testing.T) {
	slow := &blockingTask{MarkerTask: tasks.NewMarkerTask("slow", []string{"start"}, tasks.WithTimeout(10*time.Millisecond))}
	d, err := NewDAG("timeout", "Timeout", tasks.Hooks{}).
		AddMarker("start", nil).
		AddTask(slow).
		AddMarker("end", []string{"slow"}).
		Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor().Execute(context.Background(), d, core.NewRunContext("", runDate))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, StateFailed, result.States["slow"])
}

func TestBackfill(t *testing.T) {
	conn := testutil.NewFakeConnector()
	d := diamond(t, conn)
	s := mem.NewMemStore()

	dates, err := d.GetSchedule().DatesBetween(runDate, runDate.AddDate(0, 0, 3))
	require.NoError(t, err)

	results, err := NewDAGExecutor(WithRunStore(s)).Backfill(context.Background(), d, dates)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "backfill__2018-11-05T00:00:00Z", results[0].RunID)
	assert.Equal(t, "backfill__2018-11-07T00:00:00Z", results[2].RunID)
	assert.Len(t, conn.Statements(), 9)

	runs, err := ListRuns(context.Background(), s, "diamond")
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestBackfillReportsFailedDates(t *testing.T) {
	conn := testutil.NewFakeConnector()
	conn.FailExec("INSERT INTO a", errors.New("boom"))
	d := diamond(t, conn)

	dates := []time.Time{runDate, runDate.AddDate(0, 0, 1)}
	results, err := NewDAGExecutor().Backfill(context.Background(), d, dates)
	require.Error(t, err)
	assert.Len(t, results, 2)
	assert.Contains(t, err.Error(), "2 of 2")
	assert.Contains(t, err.Error(), "2018-11-06")
}

func TestRenderDOT(t *testing.T) {
	d := diamond(t, testutil.NewFakeConnector())

	dot := RenderDOT(d, nil)
	assert.Contains(t, dot, `digraph "diamond" {`)
	assert.Contains(t, dot, `"start" -> "a"`)
	assert.Contains(t, dot, `"b" -> "c"`)
	assert.Contains(t, dot, `"start" [label="start" shape="circle"]`)
	assert.NotContains(t, dot, "filled")

	dot = RenderDOT(d, map[string]TaskRecord{
		"a": {TaskID: "a", State: StateSucceeded},
		"b": {TaskID: "b", State: StateFailed},
	})
	assert.Contains(t, dot, `"a" [label="a" shape="record" style="filled" color="green"]`)
	assert.Contains(t, dot, `"b" [label="b" shape="record" style="filled" color="red"]`)
}

func TestScheduleDates(t *testing.T) {
	s := Schedule{
		Interval:  "@daily",
		StartDate: time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2018, 12, 1, 0, 0, 0, 0, time.UTC),
	}

	dates, err := s.DatesBetween(s.StartDate, s.EndDate)
	require.NoError(t, err)
	assert.Len(t, dates, 30)
	assert.Equal(t, s.StartDate, dates[0])
	assert.Equal(t, time.Date(2018, 11, 30, 0, 0, 0, 0, time.UTC), dates[29])

	_, err = s.DatesBetween(s.EndDate, s.StartDate)
	assert.Error(t, err)

	now := time.Date(2018, 11, 4, 12, 0, 0, 0, time.UTC)
	due, err := s.DueDates(now)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{time.Date(2018, 11, 3, 0, 0, 0, 0, time.UTC)}, due)

	s.Catchup = true
	due, err = s.DueDates(now)
	require.NoError(t, err)
	assert.Len(t, due, 3)

	due, err = s.DueDates(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, due, 30)

	_, err = ParseInterval("*/5 * * * *")
	assert.Error(t, err)
}
