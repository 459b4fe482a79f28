//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// Portions adapted from the store packages of github.com/warriorguo/workflow.
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

package postgres

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	_ "github.com/lib/pq"

	"github.com/aaronlmathis/goetl-dwh/store"
)

var (
	_ store.Store = &pgStore{}
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS dwh_run_history (
	prefix VARCHAR(255) NOT NULL,
	key VARCHAR(255) NOT NULL,
	value BYTEA,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (prefix, key)
)`

// pgStore implements Store on a PostgreSQL table
type pgStore struct {
	db *sql.DB
}

// NewPostgresStore opens dsn with the postgres driver and prepares the history table.
func NewPostgresStore(ctx context.Context, dsn string) (store.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open postgres connection")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "failed to ping postgres")
	}

	s, err := NewPostgresStoreWithDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithDB creates a store on an existing database handle
func NewPostgresStoreWithDB(ctx context.Context, db *sql.DB) (store.Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	s := &pgStore{db: db}
	if err := s.initTable(ctx); err != nil {
		return nil, errors.Annotatef(err, "failed to initialize table")
	}
	return s, nil
}

func (p *pgStore) initTable(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTableSQL); err != nil {
		return errors.Annotatef(err, "failed to create table")
	}
	return nil
}

func (p *pgStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	query := `SELECT value FROM dwh_run_history WHERE prefix = $1 AND key = $2`

	var value []byte
	err := p.db.QueryRowContext(ctx, query, prefix, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundf("%s/%s", prefix, key)
		}
		return nil, errors.Annotatef(err, "failed to get value for prefix=%s, key=%s", prefix, key)
	}
	return value, nil
}

func (p *pgStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	query := `
		INSERT INTO dwh_run_history (prefix, key, value, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (prefix, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := p.db.ExecContext(ctx, query, prefix, key, value); err != nil {
		return errors.Annotatef(err, "failed to set value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (p *pgStore) Remove(ctx context.Context, prefix, key string) error {
	query := `DELETE FROM dwh_run_history WHERE prefix = $1 AND key = $2`
	if _, err := p.db.ExecContext(ctx, query, prefix, key); err != nil {
		return errors.Annotatef(err, "failed to remove value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (p *pgStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	query := `SELECT key FROM dwh_run_history WHERE prefix = $1 ORDER BY key`

	rows, err := p.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return errors.Annotatef(err, "failed to list keys for prefix=%s", prefix)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return errors.Annotatef(err, "failed to scan key")
		}
		if !iterator(key) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Annotatef(err, "error iterating rows")
	}
	return nil
}

func (p *pgStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
