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
	"fmt"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/goetl-dwh/core"
	"github.com/aaronlmathis/goetl-dwh/pipeline"
	"github.com/aaronlmathis/goetl-dwh/storage"
)

func newInitSchemaCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the staging, fact and dimension tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profile := c.app.cfg.DAG.ConnectionProfile
			conn, err := c.app.connector.Connect(ctx, profile)
			if err != nil {
				return err
			}
			defer conn.Close()

			for _, t := range pipeline.Manifest {
				log.WithField("table", t.Name).Info("Creating table")
				if err := conn.Execute(ctx, t.DDL); err != nil {
					return &core.StatementError{Table: t.Name, Statement: t.DDL, Err: err}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d tables on %s\n", len(pipeline.Manifest), profile)
			return nil
		},
	}
}

func newInspectCmd(c *cli) *cobra.Command {
	var source, date string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Count the JSON records a stage source would load for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := c.app.cfg

			var pattern string
			switch source {
			case "events":
				pattern = cfg.DAG.Events.KeyPattern
			case "songs":
				pattern = cfg.DAG.Songs.KeyPattern
			default:
				return errors.NotValidf("--source %q (want events or songs)", source)
			}

			runDate, err := parseDate("date", date)
			if err != nil {
				return err
			}
			if runDate.IsZero() {
				if runDate, err = cfg.StartDate(); err != nil {
					return err
				}
			}
			rc := core.NewRunContext("inspect", runDate)

			objects, err := c.app.objectStore(ctx)
			if err != nil {
				return err
			}
			bodies, err := objects.Fetch(ctx, cfg.DAG.Bucket, pattern, rc)
			if err != nil {
				return err
			}

			total := 0
			for i, body := range bodies {
				n, err := storage.CountRecords(ctx, body)
				if err != nil {
					return errors.Annotatef(err, "object %d", i)
				}
				total += n
			}
			key, _ := rc.Render(pattern)
			fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s: %d object(s), %d record(s)\n", cfg.DAG.Bucket, key, len(bodies), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "events", "Stage source to inspect (events or songs)")
	cmd.Flags().StringVar(&date, "date", "", "Logical date (YYYY-MM-DD), defaults to the DAG start date")
	return cmd
}
