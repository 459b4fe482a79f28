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
	"time"

	"github.com/juju/errors"
)

var intervals = map[string]time.Duration{
	"@hourly": time.Hour,
	"@daily":  24 * time.Hour,
	"@weekly": 7 * 24 * time.Hour,
}

// ParseInterval resolves a schedule preset. Cron expressions are not supported.
func ParseInterval(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, errors.NotSupportedf("schedule interval %q", interval)
	}
	return d, nil
}

// DatesBetween returns every logical date in [from, to) stepping by the interval.
func (s Schedule) DatesBetween(from, to time.Time) ([]time.Time, error) {
	step, err := ParseInterval(s.Interval)
	if err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, errors.NotValidf("date range %s to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	var dates []time.Time
	for d := from; d.Before(to); d = d.Add(step) {
		dates = append(dates, d)
	}
	return dates, nil
}

// DueDates returns the logical dates whose interval has closed by now,
// within the schedule window. Without catchup only the latest is returned.
func (s Schedule) DueDates(now time.Time) ([]time.Time, error) {
	step, err := ParseInterval(s.Interval)
	if err != nil {
		return nil, err
	}
	if s.StartDate.IsZero() {
		return nil, errors.NotValidf("schedule without start date")
	}

	var dates []time.Time
	for d := s.StartDate; !d.Add(step).After(now); d = d.Add(step) {
		if !s.EndDate.IsZero() && !d.Before(s.EndDate) {
			break
		}
		dates = append(dates, d)
	}
	if !s.Catchup && len(dates) > 1 {
		dates = dates[len(dates)-1:]
	}
	return dates, nil
}
