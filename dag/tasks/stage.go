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

// stage.go - StageTask implementation
package tasks

import (
	"context"
	"fmt"

	"github.com/juju/errors"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// JSONPathsAuto lets the warehouse map JSON keys to columns by name.
const JSONPathsAuto = "auto"

// copySQL is the warehouse bulk-load statement. Its layout is a fixed contract.
const copySQL = "COPY %s FROM '%s' ACCESS_KEY_ID '%s' SECRET_ACCESS_KEY '%s'%s FORMAT AS JSON '%s'"

// sessionTokenClause is only rendered for temporary credentials.
const sessionTokenClause = " SESSION_TOKEN '%s'"

// StageParams configures a StageTask.
type StageParams struct {
	Table             string // Target staging table
	Bucket            string // Source bucket
	KeyPattern        string // Source key, may contain run placeholders such as {year}
	JSONPaths         string // JSONPaths file URL, or "auto"
	CredentialProfile string
	ConnectionProfile string
	ClearBeforeCopy   bool // Delete existing staging rows before copying
	RequireObjects    bool // List the source first and fail when nothing is there
}

// RenderCopyStatement builds the bulk-load statement for one staging table.
func RenderCopyStatement(table, s3Path, accessKey, secretKey, jsonPaths string) string {
	return fmt.Sprintf(copySQL, table, s3Path, accessKey, secretKey, "", jsonPaths)
}

// RenderCredentialCopyStatement is RenderCopyStatement for resolved
// credentials. A session token adds a SESSION_TOKEN clause; without one the
// statement is identical to RenderCopyStatement.
func RenderCredentialCopyStatement(table, s3Path string, creds core.Credentials, jsonPaths string) string {
	token := ""
	if creds.SessionToken != "" {
		token = fmt.Sprintf(sessionTokenClause, creds.SessionToken)
	}
	return fmt.Sprintf(copySQL, table, s3Path, creds.AccessKeyID, creds.SecretAccessKey, token, jsonPaths)
}

// S3Path returns the s3:// URL for a bucket and key.
func S3Path(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// StageTask copies JSON objects from object storage into a staging table.
type StageTask struct {
	baseTask
	params StageParams
	hooks  Hooks
}

// NewStageTask creates a new StageTask. An empty JSONPaths defaults to "auto".
func NewStageTask(id string, params StageParams, hooks Hooks, dependencies []string, options ...TaskOption) *StageTask {
	if params.JSONPaths == "" {
		params.JSONPaths = JSONPathsAuto
	}
	task := &StageTask{
		baseTask: newBaseTask(id, KindStage, dependencies),
		params:   params,
		hooks:    hooks,
	}
	applyOptions(task, options)
	return task
}

// Params returns the task's staging parameters.
func (st *StageTask) Params() StageParams { return st.params }

// RenderKey resolves the key pattern against the run context.
func (st *StageTask) RenderKey(rc core.RunContext) (string, error) {
	return rc.Render(st.params.KeyPattern)
}

func (st *StageTask) Execute(ctx context.Context, rc core.RunContext) error {
	logger := st.logger(rc).WithField("table", st.params.Table)

	key, err := st.RenderKey(rc)
	if err != nil {
		return err
	}
	s3Path := S3Path(st.params.Bucket, key)

	if st.params.RequireObjects {
		if err := st.checkSource(ctx, key); err != nil {
			return err
		}
	}

	if st.hooks.Credentials == nil {
		return &core.ConnectionError{Profile: st.params.CredentialProfile, Op: "resolve_credentials", Err: errors.New("no credential provider configured")}
	}
	logger.Debug("Resolving storage credentials")
	creds, err := st.hooks.Credentials.Resolve(ctx, st.params.CredentialProfile)
	if err != nil {
		return asConnectionError(st.params.CredentialProfile, "resolve_credentials", err)
	}

	conn, err := connect(ctx, st.hooks.Warehouse, st.params.ConnectionProfile)
	if err != nil {
		return err
	}
	defer conn.Close()

	if st.params.ClearBeforeCopy {
		logger.Infof("Clearing data from %s", st.params.Table)
		if err := execute(ctx, conn, st.params.Table, fmt.Sprintf("DELETE FROM %s", st.params.Table)); err != nil {
			return err
		}
	}

	logger.WithField("source", s3Path).Infof("Copying data from S3 into %s", st.params.Table)
	stmt := RenderCredentialCopyStatement(st.params.Table, s3Path, creds, st.params.JSONPaths)
	return execute(ctx, conn, st.params.Table, stmt, creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
}

func (st *StageTask) checkSource(ctx context.Context, key string) error {
	if st.hooks.Storage == nil {
		return errors.NotValidf("stage %s source check without object store", st.id)
	}
	keys, err := st.hooks.Storage.List(ctx, st.params.Bucket, key)
	if err != nil {
		return errors.Annotatef(err, "stage %s: listing %s", st.id, S3Path(st.params.Bucket, key))
	}
	if len(keys) == 0 {
		return errors.Annotatef(core.ErrNoObjects, "stage %s: %s", st.id, S3Path(st.params.Bucket, key))
	}
	return nil
}
