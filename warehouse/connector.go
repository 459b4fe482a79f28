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

// Package warehouse provides the database/sql backed core.Connector used to
// reach Redshift or any PostgreSQL compatible warehouse through lib/pq.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/juju/errors"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// ConnectorOptions configures connection pooling for every profile.
type ConnectorOptions struct {
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
	StatementTimeout time.Duration // Zero means no per-statement deadline
	Opener           func(driverName, dsn string) (*sql.DB, error)
}

// ConnectorOption represents a configuration function for ConnectorOptions.
type ConnectorOption func(*ConnectorOptions)

// WithConnectionPool configures the connection pool.
func WithConnectionPool(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) ConnectorOption {
	return func(opts *ConnectorOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
		opts.ConnMaxIdleTime = maxIdleTime
	}
}

// WithStatementTimeout bounds each Execute and Query call.
func WithStatementTimeout(timeout time.Duration) ConnectorOption {
	return func(opts *ConnectorOptions) {
		opts.StatementTimeout = timeout
	}
}

// WithOpener replaces sql.Open, mainly so tests can inject sqlmock.
func WithOpener(opener func(driverName, dsn string) (*sql.DB, error)) ConnectorOption {
	return func(opts *ConnectorOptions) {
		opts.Opener = opener
	}
}

func (opts *ConnectorOptions) withDefaults() *ConnectorOptions {
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 1 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.Opener == nil {
		opts.Opener = sql.Open
	}
	return opts
}

func validateOptions(opts *ConnectorOptions) error {
	if opts.MaxIdleConns > opts.MaxOpenConns {
		return errors.NotValidf("max idle connections %d above max open connections %d", opts.MaxIdleConns, opts.MaxOpenConns)
	}
	if opts.StatementTimeout < 0 {
		return errors.NotValidf("negative statement timeout")
	}
	return nil
}

// Connector hands out pooled connections per named profile. Pools are
// opened lazily on first use and live until Close.
type Connector struct {
	mu       sync.Mutex
	profiles map[string]Profile
	pools    map[string]*sql.DB
	options  ConnectorOptions
}

var _ core.Connector = (*Connector)(nil)

// NewConnector creates a Connector for the given profiles.
func NewConnector(profiles map[string]Profile, opts ...ConnectorOption) (*Connector, error) {
	options := &ConnectorOptions{}
	for _, opt := range opts {
		opt(options)
	}
	options = options.withDefaults()

	if err := validateOptions(options); err != nil {
		return nil, err
	}
	copied := make(map[string]Profile, len(profiles))
	for name, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, errors.Annotatef(err, "connection profile %s", name)
		}
		copied[name] = p
	}

	return &Connector{
		profiles: copied,
		pools:    make(map[string]*sql.DB),
		options:  *options,
	}, nil
}

// Connect borrows one connection from the profile's pool. The caller must
// Close it to hand it back.
func (c *Connector) Connect(ctx context.Context, profile string) (core.Warehouse, error) {
	db, err := c.DB(ctx, profile)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, &core.ConnectionError{Profile: profile, Op: "acquire", Err: err}
	}
	return &Conn{conn: conn, profile: profile, timeout: c.options.StatementTimeout}, nil
}

// DB returns the pool for profile, opening and pinging it on first use.
func (c *Connector) DB(ctx context.Context, profile string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.pools[profile]; ok {
		return db, nil
	}
	p, ok := c.profiles[profile]
	if !ok {
		return nil, &core.ConnectionError{Profile: profile, Op: "lookup", Err: errors.NotFoundf("connection profile %s", profile)}
	}

	start := time.Now()
	db, err := c.options.Opener("postgres", p.DSN())
	if err != nil {
		return nil, &core.ConnectionError{Profile: profile, Op: "open", Err: err}
	}
	db.SetMaxOpenConns(c.options.MaxOpenConns)
	db.SetMaxIdleConns(c.options.MaxIdleConns)
	db.SetConnMaxLifetime(c.options.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.options.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &core.ConnectionError{Profile: profile, Op: "ping", Err: err}
	}
	log.WithFields(log.Fields{"profile": profile, "host": p.Host}).
		Debugf("Opened warehouse pool in %v", time.Since(start))

	c.pools[profile] = db
	return db, nil
}

// Close closes every pool opened by the connector.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, db := range c.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = errors.Annotatef(err, "closing pool %s", name)
		}
		delete(c.pools, name)
	}
	return firstErr
}

// Conn is one borrowed warehouse connection.
type Conn struct {
	conn    *sql.Conn
	profile string
	timeout time.Duration
}

var _ core.Warehouse = (*Conn)(nil)

func (c *Conn) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Execute runs a statement that returns no rows.
func (c *Conn) Execute(ctx context.Context, statement string) error {
	ctx, cancel := c.statementContext(ctx)
	defer cancel()

	_, err := c.conn.ExecContext(ctx, statement)
	return err
}

// Query runs a statement and returns every row with driver values normalized.
func (c *Conn) Query(ctx context.Context, statement string) (core.Rows, error) {
	ctx, cancel := c.statementContext(ctx)
	defer cancel()

	rows, err := c.conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Annotate(err, "reading columns")
	}

	var result core.Rows
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Annotate(err, "scanning row")
		}
		row := make(core.Row, len(values))
		for i, v := range values {
			row[i] = convertSQLValue(v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Close returns the connection to its pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// convertSQLValue converts SQL driver values to plain Go scalars. lib/pq
// returns NUMERIC and text columns as []byte; both become strings.
func convertSQLValue(value interface{}) interface{} {
	if value == nil {
		return nil
	}

	if b, ok := value.([]byte); ok {
		return string(b)
	}

	switch v := value.(type) {
	case time.Time, bool, int64, float64, string:
		return v
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		case reflect.Float32:
			return rv.Float()
		default:
			return fmt.Sprintf("%v", v)
		}
	}
}
