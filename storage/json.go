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

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/juju/errors"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// JSONReader decodes a stream of JSON objects, one after another. Both
// line-delimited event logs and single-object song files decode the same way.
type JSONReader struct {
	decoder *json.Decoder
	closer  io.Closer
	count   int
}

// NewJSONReader creates a new JSON reader over r
func NewJSONReader(r io.ReadCloser) *JSONReader {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	return &JSONReader{
		decoder: decoder,
		closer:  r,
	}
}

// Read returns the next record, or io.EOF at the end of the stream.
func (j *JSONReader) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !j.decoder.More() {
		return nil, io.EOF
	}

	var record core.Record
	if err := j.decoder.Decode(&record); err != nil {
		return nil, errors.Annotatef(err, "decoding record %d", j.count+1)
	}
	j.count++
	return record, nil
}

// Close closes the underlying stream
func (j *JSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// CountRecords returns how many JSON objects data holds.
func CountRecords(ctx context.Context, data []byte) (int, error) {
	reader := NewJSONReader(io.NopCloser(bytes.NewReader(data)))
	defer reader.Close()

	n := 0
	for {
		_, err := reader.Read(ctx)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
