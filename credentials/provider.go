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

// Package credentials resolves named AWS credential profiles into the access
// keys the warehouse bulk loader needs.
package credentials

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/juju/errors"

	"github.com/aaronlmathis/goetl-dwh/core"
)

// Profile describes one credential source. Static keys win over AWSProfile;
// with neither set the SDK default chain is used.
type Profile struct {
	AWSProfile      string `yaml:"aws_profile"`
	Region          string `yaml:"region" default:"us-west-2"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	Endpoint        string `yaml:"endpoint"` // S3-compatible endpoint, optional
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// Static reports whether the profile carries explicit keys.
func (p Profile) Static() bool {
	return p.AccessKeyID != ""
}

// Validate checks that static keys are complete.
func (p Profile) Validate() error {
	if p.AccessKeyID != "" && p.SecretAccessKey == "" {
		return errors.NotValidf("access key without secret")
	}
	if p.AccessKeyID == "" && p.SecretAccessKey != "" {
		return errors.NotValidf("secret without access key")
	}
	return nil
}

func (p Profile) staticProvider() aws.CredentialsProvider {
	return aws.NewCredentialsCache(
		awscreds.NewStaticCredentialsProvider(p.AccessKeyID, p.SecretAccessKey, p.SessionToken),
	)
}

// AWSConfig loads an SDK configuration for the profile.
func (p Profile) AWSConfig(ctx context.Context) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if p.Region != "" {
		configOpts = append(configOpts, config.WithRegion(p.Region))
	}
	if p.Static() {
		configOpts = append(configOpts, config.WithCredentialsProvider(p.staticProvider()))
	} else if p.AWSProfile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(p.AWSProfile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, errors.Annotatef(err, "loading AWS config")
	}
	return cfg, nil
}

// Provider implements core.CredentialProvider over a set of named profiles.
type Provider struct {
	profiles map[string]Profile
}

var _ core.CredentialProvider = (*Provider)(nil)

// NewProvider creates a Provider for the given profiles.
func NewProvider(profiles map[string]Profile) (*Provider, error) {
	copied := make(map[string]Profile, len(profiles))
	for name, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, errors.Annotatef(err, "credential profile %s", name)
		}
		copied[name] = p
	}
	return &Provider{profiles: copied}, nil
}

// Profile returns the named profile.
func (p *Provider) Profile(name string) (Profile, error) {
	profile, ok := p.profiles[name]
	if !ok {
		return Profile{}, errors.NotFoundf("credential profile %s", name)
	}
	return profile, nil
}

// Resolve retrieves the current keys for the named profile.
func (p *Provider) Resolve(ctx context.Context, name string) (core.Credentials, error) {
	profile, err := p.Profile(name)
	if err != nil {
		return core.Credentials{}, err
	}

	var provider aws.CredentialsProvider
	if profile.Static() {
		provider = profile.staticProvider()
	} else {
		cfg, err := profile.AWSConfig(ctx)
		if err != nil {
			return core.Credentials{}, err
		}
		if cfg.Credentials == nil {
			return core.Credentials{}, errors.NotFoundf("credentials for profile %s", name)
		}
		provider = cfg.Credentials
	}

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return core.Credentials{}, errors.Annotatef(err, "retrieving credentials for profile %s", name)
	}
	return core.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, nil
}
