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

// Package storage implements core.ObjectStore on Amazon S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/goetl-dwh/core"
	"github.com/aaronlmathis/goetl-dwh/credentials"
)

// S3StoreError provides structured error information for S3 operations
type S3StoreError struct {
	Op  string // Operation that failed (e.g., "list_objects", "get_object", "read")
	Key string
	Err error
}

func (e *S3StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3 %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3 %s: %v", e.Op, e.Err)
}

func (e *S3StoreError) Unwrap() error {
	return e.Err
}

// S3API is the part of the S3 client the store uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3StoreOptions configures the S3 store
type S3StoreOptions struct {
	MaxKeys    int32 // Page size for listings
	MaxObjects int   // Upper bound on objects fetched at once, zero for no limit
}

// S3StoreOption represents a configuration function for S3Store
type S3StoreOption func(*S3StoreOptions)

// WithMaxKeys sets the listing page size
func WithMaxKeys(n int32) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.MaxKeys = n
	}
}

// WithMaxObjects caps how many objects Fetch downloads
func WithMaxObjects(n int) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.MaxObjects = n
	}
}

// S3Store lists and fetches objects from S3.
type S3Store struct {
	client S3API
	opts   S3StoreOptions
}

var _ core.ObjectStore = (*S3Store)(nil)

// NewS3Store creates a store over an existing client
func NewS3Store(client S3API, options ...S3StoreOption) *S3Store {
	opts := S3StoreOptions{MaxKeys: 1000}
	for _, option := range options {
		option(&opts)
	}
	return &S3Store{client: client, opts: opts}
}

// NewS3StoreFromConfig creates a store from an SDK configuration
func NewS3StoreFromConfig(cfg aws.Config, endpoint string, forcePathStyle bool, options ...S3StoreOption) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = forcePathStyle
	})
	return NewS3Store(client, options...)
}

// NewS3StoreFromProfile creates a store authenticated by a credential profile
func NewS3StoreFromProfile(ctx context.Context, profile credentials.Profile, options ...S3StoreOption) (*S3Store, error) {
	cfg, err := profile.AWSConfig(ctx)
	if err != nil {
		return nil, &S3StoreError{Op: "create_aws_config", Err: err}
	}
	return NewS3StoreFromConfig(cfg, profile.Endpoint, profile.ForcePathStyle, options...), nil
}

// List returns every key under prefix in lexical order
func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input, func(o *s3.ListObjectsV2PaginatorOptions) {
		o.Limit = s.opts.MaxKeys
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &S3StoreError{Op: "list_objects", Key: "s3://" + bucket + "/" + prefix, Err: err}
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Fetch renders keyPattern against rc and downloads every object under it
func (s *S3Store) Fetch(ctx context.Context, bucket, keyPattern string, rc core.RunContext) ([][]byte, error) {
	prefix, err := rc.Render(keyPattern)
	if err != nil {
		return nil, &S3StoreError{Op: "render_key", Key: keyPattern, Err: err}
	}

	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	if s.opts.MaxObjects > 0 && len(keys) > s.opts.MaxObjects {
		keys = keys[:s.opts.MaxObjects]
	}

	log.WithFields(log.Fields{"bucket": bucket, "prefix": prefix, "run_id": rc.RunID}).
		Debugf("Fetching %d object(s)", len(keys))

	objects := make([][]byte, 0, len(keys))
	for _, key := range keys {
		body, err := s.get(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		objects = append(objects, body)
	}
	return objects, nil
}

func (s *S3Store) get(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &S3StoreError{Op: "get_object", Key: key, Err: err}
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, &S3StoreError{Op: "read", Key: key, Err: err}
	}
	return body, nil
}
