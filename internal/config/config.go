// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config holds the service configuration and the helpers to carry it
// in a context.
package config

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"go.chromium.org/luci/common/errors"
)

// Config is the root of the service configuration file.
type Config struct {
	// AppID is the application ID. Bucket names are derived from it.
	AppID string `yaml:"app_id"`
	// BlobsBucket backs blob keys stored in entities.
	BlobsBucket string `yaml:"blobs_bucket"`
	// DeploymentBucket defaults to "<app_id>-deployment".
	DeploymentBucket string `yaml:"deployment_bucket"`
	// SegregateProjects gives every project its own platform, buckets and
	// settings entity.
	SegregateProjects bool            `yaml:"segregate_projects"`
	Export            *Export         `yaml:"export"`
	ProjectSetup      []*ProjectSetup `yaml:"project_setup"`
	Github            *Github         `yaml:"github"`
}

// Export configures the entity exporter and importer.
type Export struct {
	Bucket string `yaml:"bucket"`
	// EnvSubstitutions are applied to environment strings on import.
	EnvSubstitutions map[string]string `yaml:"env_substitutions"`
	// Kinds restricts the migrated kinds. Empty means all of them.
	Kinds []string `yaml:"kinds"`
}

// ExternalConfig points jobs at an external reproduction infrastructure.
type ExternalConfig struct {
	ReproductionTopic   string `yaml:"reproduction_topic"`
	UpdatesSubscription string `yaml:"updates_subscription"`
}

// ProjectSetup is a single project source.
type ProjectSetup struct {
	// Source is either "oss-fuzz" or a gs:// path to a projects.json file.
	Source                 string            `yaml:"source"`
	BuildType              string            `yaml:"build_type"`
	BuildBuckets           map[string]string `yaml:"build_buckets"`
	AddInfoLabels          bool              `yaml:"add_info_labels"`
	AddRevisionMappings    bool              `yaml:"add_revision_mappings"`
	JobSuffix              string            `yaml:"job_suffix"`
	ExperimentalSanitizers []string          `yaml:"experimental_sanitizers"`
	ExternalConfig         *ExternalConfig   `yaml:"external_config"`
	// AdditionalVars holds an "all" block of variables and
	// "<engine>: <sanitizer>: {...}" blocks.
	AdditionalVars map[string]map[string]interface{} `yaml:"additional_vars"`
}

// Github configures access to the GitHub contents API.
type Github struct {
	// CredentialsSecret is a Secret Manager secret version resource holding
	// "client_id;client_secret".
	CredentialsSecret string `yaml:"credentials_secret"`
	APIURL            string `yaml:"api_url"`
}

// OSSFuzzSource is the ProjectSetup source for the OSS-Fuzz GitHub registry.
const OSSFuzzSource = "oss-fuzz"

// IsOSSFuzz reports whether the source is the OSS-Fuzz registry.
func (p *ProjectSetup) IsOSSFuzz() bool {
	return p.Source == OSSFuzzSource
}

// IsExternal reports whether the source produces externally reproduced jobs.
func (p *ProjectSetup) IsExternal() bool {
	return p.ExternalConfig != nil && p.ExternalConfig.ReproductionTopic != "" && p.ExternalConfig.UpdatesSubscription != ""
}

// GetDeploymentBucket returns the deployment bucket.
func (c *Config) GetDeploymentBucket() string {
	if c.DeploymentBucket != "" {
		return c.DeploymentBucket
	}
	return c.AppID + "-deployment"
}

// BucketDomain is the domain suffix for application owned buckets.
func (c *Config) BucketDomain() string {
	return c.AppID + ".appspot.com"
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Annotate(err, "parse config").Err()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var merr errors.MultiError
	for i, ps := range c.ProjectSetup {
		if ps.Source == "" {
			merr = append(merr, errors.Reason("project_setup[%d]: empty source", i).Err())
		} else if !ps.IsOSSFuzz() && !strings.HasPrefix(ps.Source, "gs://") {
			merr = append(merr, errors.Reason("project_setup[%d]: unsupported source %q", i, ps.Source).Err())
		}
		if ps.BuildType == "" {
			merr = append(merr, errors.Reason("project_setup[%d]: empty build_type", i).Err())
		}
		for engine, vars := range ps.AdditionalVars {
			if engine == "all" {
				continue
			}
			for sanitizer, v := range vars {
				if _, ok := v.(map[string]interface{}); !ok && v != nil {
					merr = append(merr, errors.Reason("project_setup[%d]: additional_vars.%s.%s is %T, want a mapping", i, engine, sanitizer, v).Err())
				}
			}
		}
	}
	if c.Export != nil {
		for _, k := range c.Export.Kinds {
			switch k {
			case "fuzzer", "job", "jobtemplate", "databundle":
			default:
				merr = append(merr, errors.Reason("export: unknown kind %q", k).Err())
			}
		}
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}

type key string

var configKey key = "clusterfuzz config"

// Use installs the config into the context.
func Use(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// Get returns the config stored in the context.
//
// Panics if there is none.
func Get(ctx context.Context) *Config {
	return ctx.Value(configKey).(*Config)
}
