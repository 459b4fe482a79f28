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

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/goetl-dwh/dag"
	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
)

func newGraphCmd(c *cli) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the pipeline as a Graphviz digraph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := c.app.buildDAG(ctx)
			if err != nil {
				return err
			}

			var records map[string]dag.TaskRecord
			if runID != "" {
				s, err := c.app.runStore(ctx)
				if err != nil {
					return err
				}
				records, err = dag.LoadTaskRecords(ctx, s, d.GetID(), runID)
				if err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), dag.RenderDOT(d, records))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Color nodes by their state in this recorded run")
	return cmd
}

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the pipeline structure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.app.buildDAG(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			d.PrintDAGStructure(out)

			metrics := d.GetDAGMetrics()
			fmt.Fprintf(out, "  Depth: %v\n", metrics["max_depth"])
			for _, kind := range []tasks.TaskKind{tasks.KindStage, tasks.KindLoadFact, tasks.KindLoadDimension, tasks.KindQualityCheck, tasks.KindMarker} {
				fmt.Fprintf(out, "  %s tasks: %d\n", kind, len(d.GetTasksByKind(kind)))
			}
			return nil
		},
	}
}

func newHistoryCmd(c *cli) *cobra.Command {
	var runID, deleteRun string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, or the node records of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.app.runStore(ctx)
			if err != nil {
				return err
			}
			dagID := c.app.cfg.DAG.ID
			out := cmd.OutOrStdout()

			if deleteRun != "" {
				if err := dag.DeleteRun(ctx, s, dagID, deleteRun); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted run %s\n", deleteRun)
				return nil
			}

			if runID == "" {
				runs, err := dag.ListRuns(ctx, s, dagID)
				if err != nil {
					return err
				}
				for _, r := range runs {
					fmt.Fprintf(out, "%s\t%s\t%s", r.RunID, r.RunDate.Format(dateLayout), r.State)
					if r.Error != "" {
						fmt.Fprintf(out, "\t%s", r.Error)
					}
					fmt.Fprintln(out)
				}
				return nil
			}

			d, err := c.app.buildDAG(ctx)
			if err != nil {
				return err
			}
			records, err := dag.LoadTaskRecords(ctx, s, dagID, runID)
			if err != nil {
				return err
			}
			order, err := d.GetExecutionOrder()
			if err != nil {
				return err
			}
			for _, id := range order {
				rec, ok := records[id]
				if !ok {
					fmt.Fprintf(out, "%s\t%s\n", id, dag.StatePending)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%d\t%v", id, rec.State, rec.Attempts, rec.EndTime.Sub(rec.StartTime))
				if rec.Error != "" {
					fmt.Fprintf(out, "\t%s", rec.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Show the node records of this run")
	cmd.Flags().StringVar(&deleteRun, "delete", "", "Remove this run and its node records")
	return cmd
}
