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

// Package pipeline declares the warehouse loading DAG: two staging copies,
// one fact load, four dimension loads and a quality gate between start and
// end markers.
package pipeline

import (
	"github.com/juju/errors"

	"github.com/aaronlmathis/goetl-dwh/config"
	"github.com/aaronlmathis/goetl-dwh/dag"
	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
)

// Node ids.
const (
	BeginExecution    = "Begin_execution"
	StageEvents       = "Stage_events"
	StageSongs        = "Stage_songs"
	LoadSongplays     = "Load_songplays_fact_table"
	LoadUsers         = "Load_user_dim_table"
	LoadSongs         = "Load_song_dim_table"
	LoadArtists       = "Load_artist_dim_table"
	LoadTime          = "Load_time_dim_table"
	RunQualityChecks  = "Run_data_quality_checks"
	StopExecution     = "Stop_execution"
	stagingEventsName = "staging_events"
	stagingSongsName  = "staging_songs"
)

// Build declares the pipeline described by cfg. Configured quality checks
// replace the defaults derived from the manifest.
func Build(cfg *config.Config, hooks tasks.Hooks) (*dag.DAG, error) {
	if cfg == nil {
		return nil, errors.NotValidf("nil config")
	}
	schedule, err := cfg.Schedule()
	if err != nil {
		return nil, errors.Trace(err)
	}
	checks, err := cfg.Checks()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(checks) == 0 {
		checks = DefaultQualityChecks()
	}

	dc := cfg.DAG
	b := dag.NewDAG(dc.ID, dc.Description, hooks).
		WithDescription(dc.Description).
		WithOwner(dc.Owner).
		WithSchedule(schedule).
		WithMaxParallelism(dc.MaxWorkers).
		WithDefaultRetries(dc.Retries, dc.RetryDelay).
		WithDefaultTimeout(dc.TaskTimeout)

	b.AddMarker(BeginExecution, nil, tasks.WithDescription("Start of the run"))

	sources := map[string]config.SourceConfig{
		stagingEventsName: dc.Events,
		stagingSongsName:  dc.Songs,
	}
	var staged []string
	for _, t := range TablesByRole(RoleStaging) {
		src := sources[t.Name]
		b.AddStageTask(t.TaskID, tasks.StageParams{
			Table:             t.Name,
			Bucket:            dc.Bucket,
			KeyPattern:        src.KeyPattern,
			JSONPaths:         src.JSONPaths,
			CredentialProfile: dc.CredentialProfile,
			ConnectionProfile: dc.ConnectionProfile,
			ClearBeforeCopy:   dc.ClearStaging,
			RequireObjects:    dc.RequireObjects,
		}, []string{BeginExecution},
			tasks.WithDescription("Copy "+src.KeyPattern+" into "+t.Name),
			tasks.WithTags("stage", t.Name))
		staged = append(staged, t.TaskID)
	}

	var facts []string
	for _, t := range TablesByRole(RoleFact) {
		b.AddLoadFactTask(t.TaskID, tasks.LoadFactParams{
			Table:             t.Name,
			SQL:               t.InsertStatement(),
			CredentialProfile: dc.CredentialProfile,
			ConnectionProfile: dc.ConnectionProfile,
		}, staged,
			tasks.WithDescription("Load fact table "+t.Name),
			tasks.WithTags("fact", t.Name))
		facts = append(facts, t.TaskID)
	}

	var dims []string
	for _, t := range TablesByRole(RoleDimension) {
		b.AddLoadDimensionTask(t.TaskID, tasks.LoadDimensionParams{
			Table:             t.Name,
			SQL:               t.InsertStatement(),
			Truncate:          dc.TruncateDims,
			ConnectionProfile: dc.ConnectionProfile,
		}, facts,
			tasks.WithDescription("Load dimension table "+t.Name),
			tasks.WithTags("dimension", t.Name))
		dims = append(dims, t.TaskID)
	}

	b.AddQualityCheckTask(RunQualityChecks, tasks.QualityCheckParams{
		Checks:            checks,
		ConnectionProfile: dc.ConnectionProfile,
	}, dims, tasks.WithDescription("Assert loaded tables are consistent"))

	b.AddMarker(StopExecution, []string{RunQualityChecks}, tasks.WithDescription("End of the run"))

	return b.Build()
}
