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
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/goetl-dwh/config"
)

const dateLayout = "2006-01-02"

type cli struct {
	configPath string
	app        *app
}

// close releases whatever the command opened. It runs on error paths too.
func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "dwhload",
		Short:         "Load S3 event and song data into a Redshift star schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Log.Apply(); err != nil {
				return err
			}
			c.app, err = newApp(cfg)
			return err
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "dwhload.yaml", "Path to the YAML configuration")

	root.AddCommand(
		newRunCmd(c),
		newBackfillCmd(c),
		newGraphCmd(c),
		newValidateCmd(c),
		newInitSchemaCmd(c),
		newInspectCmd(c),
		newHistoryCmd(c),
	)
	return root
}

// parseDate parses a YYYY-MM-DD flag value; empty returns the zero time.
func parseDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errors.NotValidf("--%s %q", flag, value)
	}
	return t, nil
}
