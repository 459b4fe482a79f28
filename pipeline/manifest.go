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

// manifest.go - Declarative table list driving graph building and checks
package pipeline

import (
	"fmt"
	"strings"

	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
)

// Role is a table's place in the warehouse.
type Role string

const (
	RoleStaging   Role = "staging"
	RoleFact      Role = "fact"
	RoleDimension Role = "dimension"
)

// Table describes one warehouse table and the node that fills it.
type Table struct {
	Name      string
	Role      Role
	TaskID    string
	KeyColumn string   // Column that must never be null after a load
	Columns   []string // Insert column list, empty for staging tables
	Select    string   // Query producing the rows to insert
	DDL       string
}

// InsertStatement returns the INSERT ... SELECT that loads the table.
func (t Table) InsertStatement() string {
	return fmt.Sprintf("INSERT INTO %s (%s)\n%s", t.Name, strings.Join(t.Columns, ", "), t.Select)
}

// Manifest lists every table in creation order.
var Manifest = []Table{
	{Name: "staging_events", Role: RoleStaging, TaskID: StageEvents, DDL: createStagingEvents},
	{Name: "staging_songs", Role: RoleStaging, TaskID: StageSongs, DDL: createStagingSongs},
	{
		Name:      "songplays",
		Role:      RoleFact,
		TaskID:    LoadSongplays,
		KeyColumn: "playid",
		Columns:   []string{"playid", "start_time", "userid", "level", "songid", "artistid", "sessionid", "location", "user_agent"},
		Select:    selectSongplays,
		DDL:       createSongplays,
	},
	{
		Name:      "users",
		Role:      RoleDimension,
		TaskID:    LoadUsers,
		KeyColumn: "userid",
		Columns:   []string{"userid", "first_name", "last_name", "gender", "level"},
		Select:    selectUsers,
		DDL:       createUsers,
	},
	{
		Name:      "songs",
		Role:      RoleDimension,
		TaskID:    LoadSongs,
		KeyColumn: "songid",
		Columns:   []string{"songid", "title", "artistid", "year", "duration"},
		Select:    selectSongs,
		DDL:       createSongs,
	},
	{
		Name:      "artists",
		Role:      RoleDimension,
		TaskID:    LoadArtists,
		KeyColumn: "artistid",
		Columns:   []string{"artistid", "name", "location", "lattitude", "longitude"},
		Select:    selectArtists,
		DDL:       createArtists,
	},
	{
		Name:      "time",
		Role:      RoleDimension,
		TaskID:    LoadTime,
		KeyColumn: "start_time",
		Columns:   []string{"start_time", "hour", "day", "week", "month", "year", "weekday"},
		Select:    selectTime,
		DDL:       createTime,
	},
}

// TablesByRole returns the manifest entries with the given role, in order.
func TablesByRole(role Role) []Table {
	var out []Table
	for _, t := range Manifest {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out
}

// LookupTable finds a manifest entry by table name.
func LookupTable(name string) (Table, bool) {
	for _, t := range Manifest {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// DefaultQualityChecks asserts that no dimension row has a null key column.
func DefaultQualityChecks() []tasks.QualityCheck {
	dims := TablesByRole(RoleDimension)
	checks := make([]tasks.QualityCheck, 0, len(dims))
	for _, t := range dims {
		checks = append(checks, tasks.QualityCheck{
			SQL:      fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS null", t.Name, t.KeyColumn),
			Expected: 0,
			Table:    t.Name,
		})
	}
	return checks
}

// SchemaStatements returns the CREATE TABLE statements for every table.
func SchemaStatements() []string {
	stmts := make([]string, 0, len(Manifest))
	for _, t := range Manifest {
		stmts = append(stmts, t.DDL)
	}
	return stmts
}
