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

	"github.com/aaronlmathis/goetl-dwh/core"
)

// connect acquires a warehouse connection, classifying failures as ConnectionError.
func connect(ctx context.Context, connector core.Connector, profile string) (core.Warehouse, error) {
	if connector == nil {
		return nil, &core.ConnectionError{Profile: profile, Op: "connect", Err: errors.New("no warehouse connector configured")}
	}
	conn, err := connector.Connect(ctx, profile)
	if err != nil {
		return nil, asConnectionError(profile, "connect", err)
	}
	return conn, nil
}

func asConnectionError(profile, op string, err error) error {
	var connErr *core.ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &core.ConnectionError{Profile: profile, Op: op, Err: err}
}

// execute runs stmt and wraps a failure as a StatementError with secrets masked.
func execute(ctx context.Context, conn core.Warehouse, table, stmt string, secrets ...string) error {
	if err := conn.Execute(ctx, stmt); err != nil {
		return &core.StatementError{
			Table:     table,
			Statement: core.RedactStatement(stmt, secrets...),
			Err:       err,
		}
	}
	return nil
}
