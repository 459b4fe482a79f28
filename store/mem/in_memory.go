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

package mem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/aaronlmathis/goetl-dwh/store"
)

var (
	_ store.Store = &memStore{}
)

// NewMemStore returns a Store held in process memory. History is lost on exit.
func NewMemStore() store.Store {
	return &memStore{
		m:              make(map[string][]byte),
		mockErrHandler: defaultNoErr,
	}
}

// NewMemStoreWithErrHandler returns a memory Store whose every call returns
// errHandler's result, for exercising store failures.
func NewMemStoreWithErrHandler(errHandler func() error) store.Store {
	return &memStore{
		m:              make(map[string][]byte),
		mockErrHandler: errHandler,
	}
}

func defaultNoErr() error {
	return nil
}

type memStore struct {
	mu sync.Mutex

	mockErrHandler func() error

	m map[string][]byte
}

func composeKey(prefix, key string) string {
	return prefix + "|" + key
}

func (m *memStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mockErrHandler(); err != nil {
		return nil, err
	}
	value, ok := m.m[composeKey(prefix, key)]
	if !ok {
		return nil, errors.NotFoundf("%s/%s", prefix, key)
	}
	return append([]byte(nil), value...), nil
}

func (m *memStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mockErrHandler(); err != nil {
		return err
	}
	m.m[composeKey(prefix, key)] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Remove(ctx context.Context, prefix, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mockErrHandler(); err != nil {
		return err
	}
	delete(m.m, composeKey(prefix, key))
	return nil
}

func (m *memStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	m.mu.Lock()
	if err := m.mockErrHandler(); err != nil {
		m.mu.Unlock()
		return err
	}
	prefix += "|"
	matchedKeys := make([]string, 0)
	for key := range m.m {
		if strings.HasPrefix(key, prefix) {
			matchedKeys = append(matchedKeys, strings.TrimPrefix(key, prefix))
		}
	}
	m.mu.Unlock()

	sort.Strings(matchedKeys)
	for _, key := range matchedKeys {
		if !iterator(key) {
			break
		}
	}
	return nil
}

func (m *memStore) Close() error {
	return nil
}
