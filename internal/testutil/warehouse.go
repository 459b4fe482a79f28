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

// Package testutil provides in-memory stand-ins for the warehouse, the
// credential provider and object storage.
package testutil

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// Statement is one statement recorded by a FakeConnector.
type Statement struct {
	Profile string
	SQL     string
	Query   bool
}

var (
	insertPattern   = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+([A-Za-z0-9_.]+)`)
	copyPattern     = regexp.MustCompile(`(?is)^\s*COPY\s+([A-Za-z0-9_.]+)`)
	truncatePattern = regexp.MustCompile(`(?is)^\s*TRUNCATE\s+TABLE\s+([A-Za-z0-9_.]+)`)
	deletePattern   = regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+([A-Za-z0-9_.]+)`)
)

// FakeConnector is a core.Connector that records every statement and keeps a
// per-table row count. INSERT and COPY add rows, TRUNCATE and DELETE clear them.
type FakeConnector struct {
	mu sync.Mutex

	statements []Statement
	rowCounts  map[string]int
	batchRows  map[string]int
	queryRows  map[string]core.Rows
	execErrs   map[string]error
	queryErrs  map[string]error

	ConnectErr error

	opened int
	closed int
}

// NewFakeConnector creates an empty FakeConnector.
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{
		rowCounts: make(map[string]int),
		batchRows: make(map[string]int),
		queryRows: make(map[string]core.Rows),
		execErrs:  make(map[string]error),
		queryErrs: make(map[string]error),
	}
}

// SetBatchRows sets how many rows one INSERT or COPY adds to table. Defaults to 1.
func (f *FakeConnector) SetBatchRows(table string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchRows[table] = n
}

// SetQueryResult registers the rows returned for an exact query string.
func (f *FakeConnector) SetQueryResult(sql string, rows core.Rows) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryRows[sql] = rows
}

// FailExec makes every executed statement containing substr fail with err.
func (f *FakeConnector) FailExec(substr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execErrs[substr] = err
}

// FailQuery makes the exact query sql fail with err.
func (f *FakeConnector) FailQuery(sql string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErrs[sql] = err
}

func (f *FakeConnector) Connect(ctx context.Context, profile string) (core.Warehouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	f.opened++
	return &fakeConn{connector: f, profile: profile}, nil
}

// Statements returns the SQL of every recorded statement in execution order.
func (f *FakeConnector) Statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.statements))
	for _, s := range f.statements {
		out = append(out, s.SQL)
	}
	return out
}

// Recorded returns a copy of every recorded statement.
func (f *FakeConnector) Recorded() []Statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Statement(nil), f.statements...)
}

// RowCount returns the simulated row count of table.
func (f *FakeConnector) RowCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rowCounts[table]
}

// Opened returns how many connections were handed out.
func (f *FakeConnector) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Closed returns how many connections were released.
func (f *FakeConnector) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeConnector) exec(profile, sql string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, Statement{Profile: profile, SQL: sql})

	for substr, err := range f.execErrs {
		if strings.Contains(sql, substr) {
			return err
		}
	}

	switch {
	case insertPattern.MatchString(sql):
		f.addRows(insertPattern.FindStringSubmatch(sql)[1])
	case copyPattern.MatchString(sql):
		f.addRows(copyPattern.FindStringSubmatch(sql)[1])
	case truncatePattern.MatchString(sql):
		f.rowCounts[truncatePattern.FindStringSubmatch(sql)[1]] = 0
	case deletePattern.MatchString(sql):
		f.rowCounts[deletePattern.FindStringSubmatch(sql)[1]] = 0
	}
	return nil
}

func (f *FakeConnector) addRows(table string) {
	n, ok := f.batchRows[table]
	if !ok {
		n = 1
	}
	f.rowCounts[table] += n
}

func (f *FakeConnector) query(profile, sql string) (core.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, Statement{Profile: profile, SQL: sql, Query: true})

	if err, ok := f.queryErrs[sql]; ok {
		return nil, err
	}
	return f.queryRows[sql], nil
}

type fakeConn struct {
	connector *FakeConnector
	profile   string
	closed    bool
}

func (c *fakeConn) Execute(ctx context.Context, statement string) error {
	if c.closed {
		return fmt.Errorf("connection to %s already closed", c.profile)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.connector.exec(c.profile, statement)
}

func (c *fakeConn) Query(ctx context.Context, statement string) (core.Rows, error) {
	if c.closed {
		return nil, fmt.Errorf("connection to %s already closed", c.profile)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.connector.query(c.profile, statement)
}

func (c *fakeConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.connector.mu.Lock()
	c.connector.closed++
	c.connector.mu.Unlock()
	return nil
}

// StaticCredentials is a core.CredentialProvider backed by a fixed map.
type StaticCredentials map[string]core.Credentials

func (s StaticCredentials) Resolve(ctx context.Context, profile string) (core.Credentials, error) {
	creds, ok := s[profile]
	if !ok {
		return core.Credentials{}, fmt.Errorf("credential profile %q not found", profile)
	}
	return creds, nil
}

// MemObjectStore is a core.ObjectStore held in memory.
type MemObjectStore struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte
}

// NewMemObjectStore creates an empty MemObjectStore.
func NewMemObjectStore() *MemObjectStore {
	return &MemObjectStore{objects: make(map[string]map[string][]byte)}
}

// Put stores body under bucket/key.
func (m *MemObjectStore) Put(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[bucket] == nil {
		m.objects[bucket] = make(map[string][]byte)
	}
	m.objects[bucket][key] = append([]byte(nil), body...)
}

func (m *MemObjectStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key := range m.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemObjectStore) Fetch(ctx context.Context, bucket, keyPattern string, rc core.RunContext) ([][]byte, error) {
	prefix, err := rc.Render(keyPattern)
	if err != nil {
		return nil, err
	}
	keys, err := m.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, 0, len(keys))
	for _, key := range keys {
		out = append(out, append([]byte(nil), m.objects[bucket][key]...))
	}
	return out, nil
}
