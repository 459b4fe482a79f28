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
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/goetl-dwh/core"
	"github.com/aaronlmathis/goetl-dwh/dag"
)

func newRunCmd(c *cli) *cobra.Command {
	var date, runID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for one logical date, or for the dates now due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := c.app.buildDAG(ctx)
			if err != nil {
				return err
			}
			executor, err := c.app.executor(ctx)
			if err != nil {
				return err
			}

			runDate, err := parseDate("date", date)
			if err != nil {
				return err
			}
			if !runDate.IsZero() {
				result, err := executor.Execute(ctx, d, core.NewRunContext(runID, runDate))
				printResult(cmd.OutOrStdout(), result)
				return err
			}

			dates, err := d.GetSchedule().DueDates(time.Now().UTC())
			if err != nil {
				return err
			}
			if len(dates) == 0 {
				log.WithField("dag_id", d.GetID()).Info("No logical dates are due")
				return nil
			}
			results, err := executor.Backfill(ctx, d, dates)
			for _, result := range results {
				printResult(cmd.OutOrStdout(), result)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Logical date to run (YYYY-MM-DD)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id, defaults to scheduled__<date>")
	return cmd
}

func newBackfillCmd(c *cli) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run every logical date in [from, to) one at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := c.app.buildDAG(ctx)
			if err != nil {
				return err
			}
			executor, err := c.app.executor(ctx)
			if err != nil {
				return err
			}

			schedule := d.GetSchedule()
			start, err := parseDate("from", from)
			if err != nil {
				return err
			}
			if start.IsZero() {
				start = schedule.StartDate
			}
			end, err := parseDate("to", to)
			if err != nil {
				return err
			}
			if end.IsZero() {
				end = schedule.EndDate
			}

			dates, err := schedule.DatesBetween(start, end)
			if err != nil {
				return err
			}
			results, err := executor.Backfill(ctx, d, dates)
			for _, result := range results {
				printResult(cmd.OutOrStdout(), result)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First logical date (YYYY-MM-DD), defaults to the DAG start date")
	cmd.Flags().StringVar(&to, "to", "", "Exclusive end date (YYYY-MM-DD), defaults to the DAG end date")
	return cmd
}

func printResult(w io.Writer, result *dag.DAGResult) {
	if result == nil {
		return
	}
	status := "succeeded"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "%s %s %s in %v\n", result.RunID, result.RunDate.Format(dateLayout), status, result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	for _, id := range result.Order {
		tr, ok := result.TaskResults[id]
		if !ok {
			fmt.Fprintf(w, "  %-28s %s\n", id, result.States[id])
			continue
		}
		fmt.Fprintf(w, "  %-28s %s (attempts %d)", id, tr.State, tr.Attempts)
		if tr.Err != nil {
			fmt.Fprintf(w, ": %v", tr.Err)
		}
		fmt.Fprintln(w)
	}
}
