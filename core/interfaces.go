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

package core

import (
	"context"
)

// Package core defines the collaborator interfaces shared by the warehouse loader.
//
// Tasks never talk to Redshift, AWS or S3 directly. They go through the three
// narrow interfaces below, which keeps every task testable against in-memory fakes.

// Warehouse is a single borrowed connection to the relational warehouse.
// A Warehouse is acquired at task entry and must be closed before the task returns.
type Warehouse interface {
	// Execute runs a statement that returns no rows.
	Execute(ctx context.Context, statement string) error
	// Query runs a statement and returns every result row.
	Query(ctx context.Context, statement string) (Rows, error)
	// Close releases the connection back to its pool.
	Close() error
}

// Connector hands out Warehouse connections for a named connection profile.
type Connector interface {
	Connect(ctx context.Context, profile string) (Warehouse, error)
}

// Credentials are the storage access keys handed to the warehouse bulk loader.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// CredentialProvider resolves storage credentials for a named credential profile.
type CredentialProvider interface {
	Resolve(ctx context.Context, profile string) (Credentials, error)
}

// ObjectStore is the subset of object storage the pipeline relies on.
type ObjectStore interface {
	// List returns the keys under prefix in bucket, in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	// Fetch renders keyPattern against rc and returns the contents of every
	// object stored under the rendered key.
	Fetch(ctx context.Context, bucket, keyPattern string, rc RunContext) ([][]byte, error)
}
