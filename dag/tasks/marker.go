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

package tasks

import (
	"context"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// MarkerTask is a no-op node bounding the pipeline graph.
type MarkerTask struct {
	baseTask
}

// NewMarkerTask creates a new MarkerTask
func NewMarkerTask(id string, dependencies []string, options ...TaskOption) *MarkerTask {
	task := &MarkerTask{baseTask: newBaseTask(id, KindMarker, dependencies)}
	applyOptions(task, options)
	return task
}

func (mt *MarkerTask) Execute(ctx context.Context, rc core.RunContext) error {
	mt.logger(rc).Debug("Marker reached")
	return ctx.Err()
}
