// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package model defines the datastore kinds shared with the rest of the
// fuzzing control plane.
package model

import (
	"context"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/gae/service/datastore"
)

// Kind names. They are shared with other services and must not change.
const (
	JobKind                    = "Job"
	JobTemplateKind            = "JobTemplate"
	FuzzerKind                 = "Fuzzer"
	DataBundleKind             = "DataBundle"
	OssFuzzProjectKind         = "OssFuzzProject"
	ExternalUserPermissionKind = "ExternalUserPermission"
	FuzzerJobKind              = "FuzzerJob"
	ConfigKind                 = "Config"
)

// PermissionEntityKind is the kind of entity an ExternalUserPermission
// applies to.
type PermissionEntityKind int64

const (
	PermissionFuzzer   PermissionEntityKind = 0
	PermissionJob      PermissionEntityKind = 1
	PermissionUploader PermissionEntityKind = 2
)

// AutoCCType controls whether a permitted user is CCed on bugs.
type AutoCCType int64

const (
	AutoCCNone     AutoCCType = 0
	AutoCCAll      AutoCCType = 1
	AutoCCSecurity AutoCCType = 2
)

// Job is a fuzzing job definition.
type Job struct {
	_kind                       string                `gae:"$kind,Job"`
	Name                        string                `gae:"$id"`
	Project                     string                `gae:"project"`
	Platform                    string                `gae:"platform"`
	EnvironmentString           string                `gae:"environment_string,noindex"`
	Templates                   []string              `gae:"templates"`
	CustomBinaryKey             string                `gae:"custom_binary_key"`
	CustomBinaryFilename        string                `gae:"custom_binary_filename"`
	Description                 string                `gae:"description,noindex"`
	ExternalReproductionTopic   string                `gae:"external_reproduction_topic"`
	ExternalUpdatesSubscription string                `gae:"external_updates_subscription"`
	Extra                       datastore.PropertyMap `gae:",extra"`
}

// JobTemplate holds environment variables shared by several jobs.
type JobTemplate struct {
	_kind             string                `gae:"$kind,JobTemplate"`
	Name              string                `gae:"$id"`
	EnvironmentString string                `gae:"environment_string,noindex"`
	Extra             datastore.PropertyMap `gae:",extra"`
}

// Fuzzer is a fuzzer (engine or blackbox) and the jobs it runs on.
type Fuzzer struct {
	_kind          string                `gae:"$kind,Fuzzer"`
	Name           string                `gae:"$id"`
	DataBundleName string                `gae:"data_bundle_name"`
	Jobs           []string              `gae:"jobs"`
	BlobstoreKey   string                `gae:"blobstore_key"`
	SampleTestcase string                `gae:"sample_testcase"`
	Filename       string                `gae:"filename"`
	ExecutablePath string                `gae:"executable_path"`
	Timeout        int64                 `gae:"timeout"`
	Builtin        bool                  `gae:"builtin"`
	Extra          datastore.PropertyMap `gae:",extra"`
}

// DataBundle is a corpus of data files stored in its own bucket.
type DataBundle struct {
	_kind      string                `gae:"$kind,DataBundle"`
	Name       string                `gae:"$id"`
	BucketName string                `gae:"bucket_name"`
	Extra      datastore.PropertyMap `gae:",extra"`
}

// OssFuzzProject holds per-project settings.
type OssFuzzProject struct {
	_kind     string  `gae:"$kind,OssFuzzProject"`
	Name      string  `gae:"$id"`
	CPUWeight float64 `gae:"cpu_weight"`
	// DiskSizeGB is zero when unset.
	DiskSizeGB     int64    `gae:"disk_size_gb"`
	ServiceAccount string   `gae:"service_account"`
	HighEnd        bool     `gae:"high_end"`
	CCs            []string `gae:"ccs"`
}

// ExternalUserPermission grants an external user access to an entity.
type ExternalUserPermission struct {
	_kind      string               `gae:"$kind,ExternalUserPermission"`
	ID         int64                `gae:"$id"`
	Email      string               `gae:"email"`
	EntityName string               `gae:"entity_name"`
	EntityKind PermissionEntityKind `gae:"entity_kind"`
	IsPrefix   bool                 `gae:"is_prefix"`
	AutoCC     AutoCCType           `gae:"auto_cc"`
}

// FuzzerJob maps a fuzzer to a job it runs on.
type FuzzerJob struct {
	_kind      string  `gae:"$kind,FuzzerJob"`
	ID         int64   `gae:"$id"`
	Fuzzer     string  `gae:"fuzzer"`
	Job        string  `gae:"job"`
	Platform   string  `gae:"platform"`
	Weight     float64 `gae:"weight"`
	Multiplier float64 `gae:"multiplier"`
}

// Config is the singleton holding global settings.
type Config struct {
	_kind             string `gae:"$kind,Config"`
	ID                int64  `gae:"$id"`
	GithubCredentials string `gae:"github_credentials,noindex"`
}

// Silence staticcheck warnings about unused fields.
var (
	_ = Job{}._kind
	_ = JobTemplate{}._kind
	_ = Fuzzer{}._kind
	_ = DataBundle{}._kind
	_ = OssFuzzProject{}._kind
	_ = ExternalUserPermission{}._kind
	_ = FuzzerJob{}._kind
	_ = Config{}._kind
)

// configID is the ID of the Config singleton.
const configID = 1

// IsExternal reports whether the job is reproduced by an external
// infrastructure.
func (j *Job) IsExternal() bool {
	return j.ExternalReproductionTopic != "" && j.ExternalUpdatesSubscription != ""
}

// Environment parses the job environment string.
func (j *Job) Environment() map[string]string {
	return ParseEnvironment(j.EnvironmentString)
}

// IsManaged reports whether the job was generated by project setup.
func (j *Job) IsManaged() bool {
	return j.Environment()["MANAGED"] == "True"
}

// ParseEnvironment parses "KEY = VALUE" lines. Blank lines and lines starting
// with '#' are ignored.
func ParseEnvironment(env string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(env, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// GetConfig returns the Config singleton, or an empty one if absent.
func GetConfig(ctx context.Context) (*Config, error) {
	cfg := &Config{ID: configID}
	switch err := datastore.Get(ctx, cfg); {
	case err == datastore.ErrNoSuchEntity:
		return &Config{ID: configID}, nil
	case err != nil:
		return nil, errors.Annotate(err, "get config").Err()
	}
	return cfg, nil
}

// PutConfig stores the Config singleton.
func PutConfig(ctx context.Context, cfg *Config) error {
	cfg.ID = configID
	return errors.Annotate(datastore.Put(ctx, cfg), "put config").Err()
}
