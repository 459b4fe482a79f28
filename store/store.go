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

// Package store persists small keyed blobs grouped under a prefix. The
// executor keeps run history in it.
package store

import "context"

// Store is a prefix/key blob store.
type Store interface {
	// Get returns a NotFound error when prefix/key does not exist.
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	// Remove of a missing prefix/key is not an error.
	Remove(ctx context.Context, prefix, key string) error
	// List calls iterator for each key under prefix in lexical order until it returns false.
	List(ctx context.Context, prefix string, iterator func(key string) bool) error
	Close() error
}
