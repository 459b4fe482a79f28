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

// Package config loads the loader's YAML configuration.
package config

import (
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/goetl-dwh/credentials"
	"github.com/aaronlmathis/goetl-dwh/dag"
	"github.com/aaronlmathis/goetl-dwh/dag/tasks"
	"github.com/aaronlmathis/goetl-dwh/warehouse"
)

const dateLayout = "2006-01-02"

// Environment variables that override secrets in the file.
const (
	EnvAWSKey      = "AWS_KEY"
	EnvAWSSecret   = "AWS_SECRET"
	EnvDWHPassword = "DWH_PASSWORD"
)

// Config is the root of the configuration file.
type Config struct {
	DAG           DAGConfig                      `yaml:"dag"`
	Connections   map[string]warehouse.Profile   `yaml:"connections"`
	Credentials   map[string]credentials.Profile `yaml:"credentials"`
	QualityChecks []map[string]interface{}       `yaml:"quality_checks"`
	Store         StoreConfig                    `yaml:"store"`
	Log           LogConfig                      `yaml:"log"`
}

// DAGConfig holds the pipeline's schedule, defaults and sources.
type DAGConfig struct {
	ID                string        `yaml:"id" default:"sparkify_dwh"`
	Description       string        `yaml:"description" default:"Load and transform data in Redshift"`
	Owner             string        `yaml:"owner" default:"udacity"`
	StartDate         string        `yaml:"start_date" default:"2018-11-01"`
	EndDate           string        `yaml:"end_date" default:"2018-12-01"`
	Schedule          string        `yaml:"schedule" default:"@daily"`
	Retries           int           `yaml:"retries" default:"3"`
	RetryDelay        time.Duration `yaml:"retry_delay" default:"5m"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	MaxActiveRuns     int           `yaml:"max_active_runs" default:"1"`
	Catchup           bool          `yaml:"catchup"`
	MaxWorkers        int           `yaml:"max_workers" default:"4"`
	ConnectionProfile string        `yaml:"connection_profile" default:"redshift"`
	CredentialProfile string        `yaml:"credential_profile" default:"aws_credentials"`
	Bucket            string        `yaml:"bucket" default:"udacity-dend"`
	TruncateDims      bool          `yaml:"truncate_dimensions" default:"true"`
	ClearStaging      bool          `yaml:"clear_staging"`
	RequireObjects    bool          `yaml:"require_objects"`
	Events            SourceConfig  `yaml:"events"`
	Songs             SourceConfig  `yaml:"songs"`
}

// SourceConfig locates one staging source in the bucket.
type SourceConfig struct {
	KeyPattern string `yaml:"key_pattern"`
	JSONPaths  string `yaml:"json_paths"`
}

// StoreConfig selects where run history is kept.
type StoreConfig struct {
	Backend           string `yaml:"backend" default:"memory"` // memory or postgres
	ConnectionProfile string `yaml:"connection_profile"` // PostgreSQL profile, never the warehouse one
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"` // text or json
}

// Default returns a configuration with every default applied and no profiles.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults, overrides from the environment and validates path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML data into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Annotate(err, "decoding yaml")
	}
	cfg.applyDefaults()
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DAG.Events.KeyPattern == "" {
		c.DAG.Events.KeyPattern = "log_data/{execution_date.year}/{execution_date.month}/{ds}-events.json"
	}
	if c.DAG.Events.JSONPaths == "" {
		c.DAG.Events.JSONPaths = "s3://" + c.DAG.Bucket + "/log_json_path.json"
	}
	if c.DAG.Songs.KeyPattern == "" {
		c.DAG.Songs.KeyPattern = "song_data"
	}
	if c.DAG.Songs.JSONPaths == "" {
		c.DAG.Songs.JSONPaths = tasks.JSONPathsAuto
	}

	for name, p := range c.Connections {
		defaults.SetDefaults(&p)
		c.Connections[name] = p
	}
	for name, p := range c.Credentials {
		defaults.SetDefaults(&p)
		c.Credentials[name] = p
	}
}

// applyEnv fills secrets for the DAG's default profiles from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	key, hasKey := lookup(EnvAWSKey)
	secret, hasSecret := lookup(EnvAWSSecret)
	if hasKey && hasSecret && key != "" {
		if c.Credentials == nil {
			c.Credentials = make(map[string]credentials.Profile)
		}
		p, ok := c.Credentials[c.DAG.CredentialProfile]
		if !ok {
			defaults.SetDefaults(&p)
		}
		p.AccessKeyID = key
		p.SecretAccessKey = secret
		c.Credentials[c.DAG.CredentialProfile] = p
	}

	if password, ok := lookup(EnvDWHPassword); ok {
		if p, exists := c.Connections[c.DAG.ConnectionProfile]; exists {
			p.Password = password
			c.Connections[c.DAG.ConnectionProfile] = p
		}
	}
}

// Validate checks dates, schedule, profile references and logging settings.
func (c *Config) Validate() error {
	start, err := c.StartDate()
	if err != nil {
		return err
	}
	end, err := c.EndDate()
	if err != nil {
		return err
	}
	if !end.IsZero() && !end.After(start) {
		return errors.NotValidf("end_date %s not after start_date %s", c.DAG.EndDate, c.DAG.StartDate)
	}
	if _, err := dag.ParseInterval(c.DAG.Schedule); err != nil {
		return err
	}
	if c.DAG.ID == "" {
		return errors.NotValidf("empty dag id")
	}
	if c.DAG.Retries < 0 {
		return errors.NotValidf("negative retries")
	}
	if c.DAG.RetryDelay < 0 || c.DAG.TaskTimeout < 0 {
		return errors.NotValidf("negative retry_delay or task_timeout")
	}
	if c.DAG.MaxWorkers < 1 {
		return errors.NotValidf("max_workers %d", c.DAG.MaxWorkers)
	}
	if c.DAG.MaxActiveRuns != 1 {
		return errors.NotSupportedf("max_active_runs %d", c.DAG.MaxActiveRuns)
	}

	conn, ok := c.Connections[c.DAG.ConnectionProfile]
	if !ok {
		return errors.NotFoundf("connection profile %s", c.DAG.ConnectionProfile)
	}
	if err := conn.Validate(); err != nil {
		return errors.Annotatef(err, "connection profile %s", c.DAG.ConnectionProfile)
	}
	for name, p := range c.Connections {
		if err := p.Validate(); err != nil {
			return errors.Annotatef(err, "connection profile %s", name)
		}
	}
	if _, ok := c.Credentials[c.DAG.CredentialProfile]; !ok {
		return errors.NotFoundf("credential profile %s", c.DAG.CredentialProfile)
	}
	for name, p := range c.Credentials {
		if err := p.Validate(); err != nil {
			return errors.Annotatef(err, "credential profile %s", name)
		}
	}

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		// History needs BYTEA and ON CONFLICT, which the warehouse lacks.
		if c.Store.ConnectionProfile == "" {
			return errors.NotValidf("postgres store without connection_profile")
		}
		if c.Store.ConnectionProfile == c.DAG.ConnectionProfile {
			return errors.NotValidf("postgres store on warehouse profile %s", c.Store.ConnectionProfile)
		}
		if _, ok := c.Connections[c.Store.ConnectionProfile]; !ok {
			return errors.NotFoundf("store connection profile %s", c.Store.ConnectionProfile)
		}
	default:
		return errors.NotSupportedf("store backend %q", c.Store.Backend)
	}

	if _, err := c.Checks(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NotValidf("log level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.NotValidf("log format %q", c.Log.Format)
	}
	return nil
}

// StartDate parses dag.start_date.
func (c *Config) StartDate() (time.Time, error) {
	t, err := time.Parse(dateLayout, c.DAG.StartDate)
	if err != nil {
		return time.Time{}, errors.NotValidf("start_date %q", c.DAG.StartDate)
	}
	return t, nil
}

// EndDate parses dag.end_date; empty means open ended.
func (c *Config) EndDate() (time.Time, error) {
	if c.DAG.EndDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, c.DAG.EndDate)
	if err != nil {
		return time.Time{}, errors.NotValidf("end_date %q", c.DAG.EndDate)
	}
	return t, nil
}

// Schedule returns the DAG schedule described by the config.
func (c *Config) Schedule() (dag.Schedule, error) {
	start, err := c.StartDate()
	if err != nil {
		return dag.Schedule{}, err
	}
	end, err := c.EndDate()
	if err != nil {
		return dag.Schedule{}, err
	}
	return dag.Schedule{
		Interval:      c.DAG.Schedule,
		StartDate:     start,
		EndDate:       end,
		Catchup:       c.DAG.Catchup,
		MaxActiveRuns: c.DAG.MaxActiveRuns,
	}, nil
}

// Checks converts the configured quality checks. An empty list is returned
// as nil so callers can fall back to the defaults.
func (c *Config) Checks() ([]tasks.QualityCheck, error) {
	if len(c.QualityChecks) == 0 {
		return nil, nil
	}
	checks := make([]tasks.QualityCheck, 0, len(c.QualityChecks))
	for i, m := range c.QualityChecks {
		qc, err := tasks.QualityCheckFromMap(m)
		if err != nil {
			return nil, errors.Annotatef(err, "quality_checks[%d]", i)
		}
		checks = append(checks, qc)
	}
	return checks, nil
}

// Apply configures the logrus root logger.
func (l LogConfig) Apply() error {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return errors.NotValidf("log level %q", l.Level)
	}
	log.SetLevel(level)

	switch l.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return errors.NotValidf("log format %q", l.Format)
	}
	return nil
}
