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

package dag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
)

// RenderDOT renders d as a Graphviz digraph. When records is non-nil each
// node recorded for a run is filled with its state color.
func RenderDOT(d *DAG, records map[string]TaskRecord) string {
	r := &dotRenderer{records: records}

	order, err := d.GetExecutionOrder()
	if err != nil {
		order = d.TaskIDs()
	}

	r.write("digraph %s {", strconv.Quote(d.GetID()))
	r.write("rankdir=LR")
	for _, id := range order {
		task, _ := d.GetTask(id)
		r.write("%s [label=%s shape=%s%s]", strconv.Quote(id), strconv.Quote(id), strconv.Quote(shapeFor(task.Kind())), r.attr(id))
	}
	for _, id := range order {
		for _, dep := range d.GetDependencies(id) {
			r.write("%s -> %s", strconv.Quote(dep), strconv.Quote(id))
		}
	}
	r.write("label=%s", strconv.Quote(d.GetName()))
	r.write("}")
	return r.sb.String()
}

type dotRenderer struct {
	records map[string]TaskRecord
	sb      strings.Builder
}

func (r *dotRenderer) write(format string, args ...interface{}) {
	r.sb.WriteString(fmt.Sprintf(format, args...))
	r.sb.WriteString("\n")
}

func (r *dotRenderer) attr(id string) string {
	record, ok := r.records[id]
	if !ok {
		return ""
	}
	return fmt.Sprintf(" style=\"filled\" color=%s", strconv.Quote(stateColor(record.State)))
}

func stateColor(state NodeState) string {
	switch state {
	case StateRunning:
		return "yellow"
	case StateSucceeded:
		return "green"
	case StateFailed:
		return "red"
	default:
		return "white"
	}
}

func shapeFor(kind tasks.TaskKind) string {
	switch kind {
	case tasks.KindMarker:
		return "circle"
	case tasks.KindQualityCheck:
		return "diamond"
	default:
		return "record"
	}
}
