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

package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/goetl-dwh/core"
)

func testProfile() Profile {
	return Profile{
		Host:     "dwh.example.us-west-2.redshift.amazonaws.com",
		Port:     5439,
		User:     "awsuser",
		Password: "s3cret",
		Database: "dev",
		SSLMode:  "require",
	}
}

func mockConnector(t *testing.T) (*Connector, sqlmock.Sqlmock, *int) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	opened := 0
	c, err := NewConnector(map[string]Profile{"redshift": testProfile()},
		WithOpener(func(driverName, dsn string) (*sql.DB, error) {
			assert.Equal(t, "postgres", driverName)
			opened++
			return db, nil
		}))
	require.NoError(t, err)
	return c, mock, &opened
}

func TestProfile(t *testing.T) {
	p := testProfile()
	assert.NoError(t, p.Validate())
	assert.Equal(t, "host=dwh.example.us-west-2.redshift.amazonaws.com port=5439 user=awsuser password=s3cret dbname=dev sslmode=require", p.DSN())

	p.Password = "it's here"
	assert.Contains(t, p.DSN(), `password='it\'s here'`)

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"no host", func(p *Profile) { p.Host = "" }},
		{"bad port", func(p *Profile) { p.Port = 70000 }},
		{"no user", func(p *Profile) { p.User = "" }},
		{"no database", func(p *Profile) { p.Database = "" }},
		{"bad sslmode", func(p *Profile) { p.SSLMode = "sometimes" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProfile()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestConnectorExecuteAndQuery(t *testing.T) {
	c, mock, opened := mockConnector(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE TABLE users")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM users WHERE userid IS null")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT level, total FROM summary")).
		WillReturnRows(sqlmock.NewRows([]string{"level", "total"}).
			AddRow([]byte("free"), []byte("12.50")).
			AddRow("paid", nil))

	conn, err := c.Connect(ctx, "redshift")
	require.NoError(t, err)

	require.NoError(t, conn.Execute(ctx, "TRUNCATE TABLE users"))

	rows, err := conn.Query(ctx, "SELECT count(*) FROM users WHERE userid IS null")
	require.NoError(t, err)
	v, ok := rows.Scalar()
	require.True(t, ok)
	assert.Equal(t, int64(0), v)

	rows, err = conn.Query(ctx, "SELECT level, total FROM summary")
	require.NoError(t, err)
	assert.Equal(t, core.Rows{{"free", "12.50"}, {"paid", nil}}, rows)

	require.NoError(t, conn.Close())

	conn, err = c.Connect(ctx, "redshift")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, *opened)

	mock.ExpectClose()
	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectorStatementError(t *testing.T) {
	c, mock, _ := mockConnector(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO songplays")).WillReturnError(errors.New(`relation "songplays" does not exist`))

	conn, err := c.Connect(ctx, "redshift")
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Execute(ctx, "INSERT INTO songplays SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestConnectorUnknownProfile(t *testing.T) {
	c, _, opened := mockConnector(t)

	_, err := c.Connect(context.Background(), "missing")
	var connErr *core.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "lookup", connErr.Op)
	assert.Equal(t, "missing", connErr.Profile)
	assert.Zero(t, *opened)
}

func TestConnectorPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	c, err := NewConnector(map[string]Profile{"redshift": testProfile()},
		WithOpener(func(string, string) (*sql.DB, error) { return db, nil }))
	require.NoError(t, err)

	_, err = c.Connect(context.Background(), "redshift")
	var connErr *core.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "ping", connErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnectorValidation(t *testing.T) {
	bad := testProfile()
	bad.Host = ""
	_, err := NewConnector(map[string]Profile{"redshift": bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redshift")

	_, err = NewConnector(nil, WithConnectionPool(2, 5, 0, 0))
	assert.Error(t, err)
}
