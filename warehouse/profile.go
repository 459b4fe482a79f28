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
	"fmt"

	"github.com/juju/errors"
)

// Profile describes how to reach one warehouse database. Redshift speaks the
// PostgreSQL wire protocol, so the same profile serves both.
type Profile struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" default:"5439"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"dev"`
	SSLMode  string `yaml:"sslmode" default:"require"` // disable, require, verify-ca, verify-full
}

// DSN builds a lib/pq connection string from the profile
func (p Profile) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, quoteDSNValue(p.Password), p.Database, p.SSLMode,
	)
}

// Validate checks the profile for missing or invalid fields
func (p Profile) Validate() error {
	if p.Host == "" {
		return errors.NotValidf("empty host")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.NotValidf("port %d", p.Port)
	}
	if p.User == "" {
		return errors.NotValidf("empty user")
	}
	if p.Database == "" {
		return errors.NotValidf("empty database")
	}
	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[p.SSLMode] {
		return errors.NotValidf("sslmode %q", p.SSLMode)
	}
	return nil
}

// quoteDSNValue quotes values lib/pq would otherwise split on.
func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	needsQuote := false
	for _, r := range v {
		if r == ' ' || r == '\'' || r == '\\' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return v
	}
	out := []rune{'\''}
	for _, r := range v {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(append(out, '\''))
}
