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

package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	jujuerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/goetl-dwh/core"
	"github.com/aaronlmathis/goetl-dwh/internal/testutil"
)

var runDate = time.Date(2018, 11, 5, 0, 0, 0, 0, time.UTC)

func newHooks() (Hooks, *testutil.FakeConnector, *testutil.MemObjectStore) {
	conn := testutil.NewFakeConnector()
	store := testutil.NewMemObjectStore()
	return Hooks{
		Warehouse: conn,
		Credentials: testutil.StaticCredentials{
			"aws_credentials": {AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "SECRETEXAMPLE"},
		},
		Storage: store,
	}, conn, store
}

func TestRenderCopyStatement(t *testing.T) {
	got := RenderCopyStatement("staging_events", "s3://bucket/key", "AKIA123", "SECRET456", "s3://udacity-dend/log_json_path.json")
	want := "COPY staging_events FROM 's3://bucket/key' ACCESS_KEY_ID 'AKIA123' SECRET_ACCESS_KEY 'SECRET456' FORMAT AS JSON 's3://udacity-dend/log_json_path.json'"
	assert.Equal(t, want, got)
}

func TestRenderCredentialCopyStatement(t *testing.T) {
	longLived := core.Credentials{AccessKeyID: "AKIA123", SecretAccessKey: "SECRET456"}
	assert.Equal(t,
		RenderCopyStatement("staging_events", "s3://bucket/key", "AKIA123", "SECRET456", "auto"),
		RenderCredentialCopyStatement("staging_events", "s3://bucket/key", longLived, "auto"))

	temporary := longLived
	temporary.SessionToken = "FwoGZXIvYXdzEXAMPLE"
	got := RenderCredentialCopyStatement("staging_events", "s3://bucket/key", temporary, "auto")
	want := "COPY staging_events FROM 's3://bucket/key' ACCESS_KEY_ID 'AKIA123' SECRET_ACCESS_KEY 'SECRET456' SESSION_TOKEN 'FwoGZXIvYXdzEXAMPLE' FORMAT AS JSON 'auto'"
	assert.Equal(t, want, got)
}

func TestStageTaskSessionTokenRedacted(t *testing.T) {
	hooks, conn, _ := newHooks()
	hooks.Credentials = testutil.StaticCredentials{
		"aws_credentials": {AccessKeyID: "ASIAEXAMPLE", SecretAccessKey: "SECRETEXAMPLE", SessionToken: "TOKENEXAMPLE"},
	}
	conn.FailExec("COPY staging_events", errors.New("S3ServiceException: Access Denied"))
	task := NewStageTask("Stage_events", StageParams{
		Table:             "staging_events",
		Bucket:            "udacity-dend",
		KeyPattern:        "log_data",
		JSONPaths:         JSONPathsAuto,
		CredentialProfile: "aws_credentials",
		ConnectionProfile: "redshift",
	}, hooks, nil)

	err := task.Execute(context.Background(), core.NewRunContext("", runDate))
	require.Error(t, err)
	var stmtErr *core.StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Contains(t, stmtErr.Statement, "SESSION_TOKEN '****'")
	assert.NotContains(t, stmtErr.Statement, "TOKENEXAMPLE")
	assert.NotContains(t, err.Error(), "TOKENEXAMPLE")
}

func TestStageTaskExecute(t *testing.T) {
	hooks, conn, _ := newHooks()
	task := NewStageTask("Stage_events", StageParams{
		Table:             "staging_events",
		Bucket:            "udacity-dend",
		KeyPattern:        "log_data/{year}/{month}/{day}-events.json",
		JSONPaths:         "s3://udacity-dend/log_json_path.json",
		CredentialProfile: "aws_credentials",
		ConnectionProfile: "redshift",
	}, hooks, []string{"Begin_execution"})

	err := task.Execute(context.Background(), core.NewRunContext("", runDate))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"COPY staging_events FROM 's3://udacity-dend/log_data/2018/11/2018-11-05-events.json' ACCESS_KEY_ID 'AKIAEXAMPLE' SECRET_ACCESS_KEY 'SECRETEXAMPLE' FORMAT AS JSON 's3://udacity-dend/log_json_path.json'",
	}, conn.Statements())
	assert.Equal(t, 1, conn.Opened())
	assert.Equal(t, 1, conn.Closed())
	assert.Equal(t, "redshift", conn.Recorded()[0].Profile)
}

func TestStageTaskDefaultsToAuto(t *testing.T) {
	hooks, conn, _ := newHooks()
	task := NewStageTask("Stage_songs", StageParams{
		Table:             "staging_songs",
		Bucket:            "udacity-dend",
		KeyPattern:        "song_data",
		CredentialProfile: "aws_credentials",
		ConnectionProfile: "redshift",
	}, hooks, nil)

	require.NoError(t, task.Execute(context.Background(), core.NewRunContext("", runDate)))
	stmts := conn.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t, "COPY staging_songs FROM 's3://udacity-dend/song_data' ACCESS_KEY_ID 'AKIAEXAMPLE' SECRET_ACCESS_KEY 'SECRETEXAMPLE' FORMAT AS JSON 'auto'", stmts[0])
}

func TestStageTaskClearBeforeCopy(t *testing.T) {
	hooks, conn, _ := newHooks()
	task := NewStageTask("Stage_songs", StageParams{
		Table:             "staging_songs",
		Bucket:            "udacity-dend",
		KeyPattern:        "song_data",
		CredentialProfile: "aws_credentials",
		ConnectionProfile: "redshift",
		ClearBeforeCopy:   true,
	}, hooks, nil)

	require.NoError(t, task.Execute(context.Background(), core.NewRunContext("", runDate)))
	stmts := conn.Statements()
	require.Len(t, stmts, 2)
	assert.Equal(t, "DELETE FROM staging_songs", stmts[0])
	assert.Contains(t, stmts[1], "COPY staging_songs")
}

func TestStageTaskCredentialFailure(t *testing.T) {
	hooks, conn, _ := newHooks()
	task := NewStageTask("Stage_events", StageParams{
		Table:             "staging_events",
		Bucket:            "udacity-dend",
		KeyPattern:        "log_data",
		CredentialProfile: "missing",
		ConnectionProfile: "redshift",
	}, hooks, nil)

	err := task.Execute(context.Background(), core.NewRunContext("", runDate))
	var connErr *core.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "missing", connErr.Profile)
	assert.Equal(t, "resolve_credentials", connErr.Op)
	assert.Empty(t, conn.Statements())
	assert.Equal(t, 0, conn.Opened())
}

func TestStageTaskStatementFailureRedactsSecrets(t *testing.T) {
	hooks, conn, _ := newHooks()
	conn.FailExec("COPY staging_events", errors.New("S3ServiceException: Access Denied"))
	task := NewStageTask("Stage_events", StageParams{
		Table:             "staging_events",
		Bucket:            "udacity-dend",
		KeyPattern:        "log_data",
		CredentialProfile: "aws_credentials",
		ConnectionProfile: "redshift",
	}, hooks, nil)

	err := task.Execute(context.Background(), core.NewRunContext("", runDate))
	var stmtErr *core.StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Equal(t, "staging_events", stmtErr.Table)
	assert.NotContains(t, stmtErr.Statement, "SECRETEXAMPLE")
	assert.NotContains(t, stmtErr.Statement, "AKIAEXAMPLE")
	assert.Contains(t, err.Error(), "staging_events")
	assert.Equal(t, 1, conn.Closed())
}

func TestStageTaskRequireObjects(t *testing.T) {
	hooks, conn, store := newHooks()
	params := StageParams{
		Table:             "staging_events",
		Bucket:            "udacity-dend",
		KeyPattern:        "log_data/{year}/{month}/{day}-events.json",
		CredentialProfile: "aws_credentials",
		ConnectionProfile: "redshift",
		RequireObjects:    true,
	}
	rc := core.NewRunContext("", runDate)

	err := NewStageTask("Stage_events", params, hooks, nil).Execute(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoObjects))
	assert.Empty(t, conn.Statements())

	store.Put("udacity-dend", "log_data/2018/11/2018-11-05-events.json", []byte(`{"ts":1}`))
	require.NoError(t, NewStageTask("Stage_events", params, hooks, nil).Execute(context.Background(), rc))
	assert.Len(t, conn.Statements(), 1)
}

func TestStageTaskSourceCheckErrors(t *testing.T) {
	hooks, conn, _ := newHooks()
	params := StageParams{
		Table:             "staging_events",
		Bucket:            "udacity-dend",
		KeyPattern:        "log_data/{year}/{month}/{day}-events.json",
		CredentialProfile: "aws_credentials",
		ConnectionProfile: "redshift",
		RequireObjects:    true,
	}
	rc := core.NewRunContext("", runDate)

	err := NewStageTask("Stage_events", params, hooks, nil).Execute(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, jujuerrors.Is(err, core.ErrNoObjects))
	assert.Contains(t, err.Error(), "s3://udacity-dend/log_data/2018/11/2018-11-05-events.json")

	hooks.Storage = nil
	err = NewStageTask("Stage_events", params, hooks, nil).Execute(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, jujuerrors.Is(err, jujuerrors.NotValid))
	assert.False(t, errors.Is(err, core.ErrNoObjects))
	assert.Empty(t, conn.Statements())
}

func TestStageTaskUnknownPlaceholder(t *testing.T) {
	hooks, conn, _ := newHooks()
	task := NewStageTask("Stage_events", StageParams{
		Table:             "staging_events",
		Bucket:            "udacity-dend",
		KeyPattern:        "log_data/{hour}",
		CredentialProfile: "aws_credentials",
		ConnectionProfile: "redshift",
	}, hooks, nil)

	require.Error(t, task.Execute(context.Background(), core.NewRunContext("", runDate)))
	assert.Equal(t, 0, conn.Opened())
}

func TestLoadFactTask(t *testing.T) {
	hooks, conn, _ := newHooks()
	sql := "INSERT INTO songplays (playid) SELECT 1"
	task := NewLoadFactTask("Load_songplays_fact_table", LoadFactParams{
		Table:             "songplays",
		SQL:               sql,
		ConnectionProfile: "redshift",
	}, hooks, []string{"Stage_events", "Stage_songs"})

	require.NoError(t, task.Execute(context.Background(), core.NewRunContext("", runDate)))
	assert.Equal(t, []string{sql}, conn.Statements())
	assert.Equal(t, 1, conn.RowCount("songplays"))
	assert.Equal(t, KindLoadFact, task.Kind())
	assert.Equal(t, []string{"Stage_events", "Stage_songs"}, task.Dependencies())
}

func TestLoadFactTaskStatementFailure(t *testing.T) {
	hooks, conn, _ := newHooks()
	conn.FailExec("songplays", errors.New(`relation "songplays" does not exist`))
	task := NewLoadFactTask("Load_songplays_fact_table", LoadFactParams{
		Table:             "songplays",
		SQL:               "INSERT INTO songplays SELECT 1",
		ConnectionProfile: "redshift",
	}, hooks, nil)

	err := task.Execute(context.Background(), core.NewRunContext("", runDate))
	var stmtErr *core.StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Equal(t, "songplays", stmtErr.Table)
	assert.Equal(t, conn.Opened(), conn.Closed())
}

func TestLoadTasksConnectionFailure(t *testing.T) {
	hooks, conn, _ := newHooks()
	conn.ConnectErr = errors.New("dial tcp: connection refused")

	err := NewLoadFactTask("f", LoadFactParams{Table: "songplays", SQL: "INSERT INTO songplays SELECT 1", ConnectionProfile: "redshift"}, hooks, nil).
		Execute(context.Background(), core.NewRunContext("", runDate))
	var connErr *core.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "connect", connErr.Op)
	assert.Equal(t, "redshift", connErr.Profile)

	err = NewLoadFactTask("f", LoadFactParams{Table: "songplays"}, Hooks{}, nil).
		Execute(context.Background(), core.NewRunContext("", runDate))
	assert.True(t, errors.As(err, &connErr))
}

func TestLoadDimensionTruncate(t *testing.T) {
	tests := []struct {
		name      string
		truncate  bool
		wantRows  []int
		wantFirst string
	}{
		{"truncate keeps row count stable", true, []int{3, 3}, "TRUNCATE TABLE users"},
		{"append duplicates rows", false, []int{3, 6}, "INSERT INTO users SELECT DISTINCT userid FROM staging_events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks, conn, _ := newHooks()
			conn.SetBatchRows("users", 3)
			task := NewLoadDimensionTask("Load_user_dim_table", LoadDimensionParams{
				Table:             "users",
				SQL:               "INSERT INTO users SELECT DISTINCT userid FROM staging_events",
				Truncate:          tt.truncate,
				ConnectionProfile: "redshift",
			}, hooks, []string{"Load_songplays_fact_table"})

			for i, want := range tt.wantRows {
				require.NoError(t, task.Execute(context.Background(), core.NewRunContext("", runDate)))
				assert.Equal(t, want, conn.RowCount("users"), "run %d", i+1)
			}
			assert.Equal(t, tt.wantFirst, conn.Statements()[0])

			truncates := 0
			for _, s := range conn.Statements() {
				if s == TruncateStatement("users") {
					truncates++
				}
			}
			if tt.truncate {
				assert.Equal(t, 2, truncates)
			} else {
				assert.Zero(t, truncates)
			}
			assert.Equal(t, 2, conn.Closed())
		})
	}
}

func TestLoadDimensionTruncateFailureSkipsInsert(t *testing.T) {
	hooks, conn, _ := newHooks()
	conn.FailExec("TRUNCATE", errors.New("permission denied"))
	task := NewLoadDimensionTask("Load_user_dim_table", LoadDimensionParams{
		Table:             "users",
		SQL:               "INSERT INTO users SELECT 1",
		Truncate:          true,
		ConnectionProfile: "redshift",
	}, hooks, nil)

	err := task.Execute(context.Background(), core.NewRunContext("", runDate))
	require.Error(t, err)
	assert.Len(t, conn.Statements(), 1)
	assert.Equal(t, 1, conn.Closed())
}

func TestMarkerTask(t *testing.T) {
	task := NewMarkerTask("Begin_execution", nil, WithOwner("udacity"), WithDescription("start"))
	assert.NoError(t, task.Execute(context.Background(), core.NewRunContext("", runDate)))
	assert.Equal(t, KindMarker, task.Kind())
	assert.Equal(t, "udacity", task.Metadata().Owner)
	assert.Equal(t, "start", task.Metadata().Description)
	assert.Empty(t, task.Dependencies())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, task.Execute(ctx, core.NewRunContext("", runDate)), context.Canceled)
}

func TestTaskOptionsAndCopies(t *testing.T) {
	deps := []string{"a", "b"}
	task := NewMarkerTask("end", deps,
		WithRetries(3, 5*time.Minute),
		WithTimeout(time.Hour),
		WithTags("dwh", "marker"),
	)
	deps[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, task.Dependencies())
	md := task.Metadata()
	require.NotNil(t, md.RetryConfig)
	assert.Equal(t, 3, md.RetryConfig.MaxRetries)
	assert.Equal(t, 5*time.Minute, md.RetryConfig.Delay)
	assert.Equal(t, time.Hour, md.Timeout)
	assert.Equal(t, []string{"dwh", "marker"}, md.Tags)

	got := task.Dependencies()
	got[0] = "x"
	assert.Equal(t, "a", task.Dependencies()[0])
}
