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

package main

import (
	"context"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/goetl-dwh/config"
	"github.com/aaronlmathis/goetl-dwh/credentials"
	"github.com/aaronlmathis/goetl-dwh/dag"
	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
	"github.com/aaronlmathis/goetl-dwh/pipeline"
	"github.com/aaronlmathis/goetl-dwh/storage"
	"github.com/aaronlmathis/goetl-dwh/store"
	"github.com/aaronlmathis/goetl-dwh/store/mem"
	"github.com/aaronlmathis/goetl-dwh/store/postgres"
	"github.com/aaronlmathis/goetl-dwh/warehouse"
)

// app holds the collaborators shared by the commands for one invocation.
type app struct {
	cfg       *config.Config
	connector *warehouse.Connector
	creds     *credentials.Provider
	history   store.Store
	objects   *storage.S3Store
}

func newApp(cfg *config.Config) (*app, error) {
	connector, err := warehouse.NewConnector(cfg.Connections,
		warehouse.WithStatementTimeout(cfg.DAG.TaskTimeout))
	if err != nil {
		return nil, errors.Trace(err)
	}
	creds, err := credentials.NewProvider(cfg.Credentials)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &app{cfg: cfg, connector: connector, creds: creds}, nil
}

// objectStore opens the S3 store authenticated by the DAG's credential profile.
func (a *app) objectStore(ctx context.Context) (*storage.S3Store, error) {
	if a.objects != nil {
		return a.objects, nil
	}
	profile, err := a.creds.Profile(a.cfg.DAG.CredentialProfile)
	if err != nil {
		return nil, err
	}
	s, err := storage.NewS3StoreFromProfile(ctx, profile)
	if err != nil {
		return nil, err
	}
	a.objects = s
	return s, nil
}

// runStore opens the configured run history backend.
func (a *app) runStore(ctx context.Context) (store.Store, error) {
	if a.history != nil {
		return a.history, nil
	}
	var (
		s   store.Store
		err error
	)
	switch a.cfg.Store.Backend {
	case "postgres":
		profile, ok := a.cfg.Connections[a.cfg.Store.ConnectionProfile]
		if !ok {
			return nil, errors.NotFoundf("store connection profile %s", a.cfg.Store.ConnectionProfile)
		}
		s, err = postgres.NewPostgresStore(ctx, profile.DSN())
		if err != nil {
			return nil, errors.Annotate(err, "opening run history")
		}
	default:
		s = mem.NewMemStore()
	}
	a.history = s
	return s, nil
}

func (a *app) hooks(ctx context.Context) (tasks.Hooks, error) {
	hooks := tasks.Hooks{Warehouse: a.connector, Credentials: a.creds}
	if a.cfg.DAG.RequireObjects {
		objects, err := a.objectStore(ctx)
		if err != nil {
			return tasks.Hooks{}, err
		}
		hooks.Storage = objects
	}
	return hooks, nil
}

func (a *app) buildDAG(ctx context.Context) (*dag.DAG, error) {
	hooks, err := a.hooks(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.Build(a.cfg, hooks)
}

func (a *app) executor(ctx context.Context) (*dag.DAGExecutor, error) {
	s, err := a.runStore(ctx)
	if err != nil {
		return nil, err
	}
	return dag.NewDAGExecutor(
		dag.WithMaxWorkers(a.cfg.DAG.MaxWorkers),
		dag.WithRunStore(s),
	), nil
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.WithError(err).Warn("Closing run history")
		}
	}
	if err := a.connector.Close(); err != nil {
		log.WithError(err).Warn("Closing warehouse pools")
	}
}
