// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package model

import (
	"context"
	"sort"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"
)

// batchSize bounds the number of entities written in a single RPC.
const batchSize = 500

// ListNames returns the sorted key names of every entity of the kind.
func ListNames(ctx context.Context, kind string) ([]string, error) {
	var keys []*datastore.Key
	q := datastore.NewQuery(kind).KeysOnly(true)
	if err := datastore.GetAll(ctx, q, &keys); err != nil {
		return nil, errors.Annotate(err, "list %s names", kind).Err()
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.StringID())
	}
	sort.Strings(names)
	return names, nil
}

// DeleteByName deletes the named entities of the kind. Missing entities are
// not an error.
func DeleteByName(ctx context.Context, kind string, names []string) error {
	keys := make([]*datastore.Key, 0, len(names))
	for _, n := range names {
		keys = append(keys, datastore.NewKey(ctx, kind, n, 0, nil))
	}
	return deleteKeys(ctx, keys)
}

// DeleteAll deletes the given entities.
func DeleteAll(ctx context.Context, entities interface{}) error {
	if err := datastore.Delete(ctx, entities); err != nil {
		return errors.Annotate(err, "delete entities").Err()
	}
	return nil
}

func deleteKeys(ctx context.Context, keys []*datastore.Key) error {
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := datastore.Delete(ctx, keys[start:end]); err != nil {
			return errors.Annotate(err, "delete %d keys", end-start).Err()
		}
		logging.Debugf(ctx, "Deleted %d entities", end-start)
	}
	return nil
}

// AllJobs returns every Job.
func AllJobs(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	if err := datastore.GetAll(ctx, datastore.NewQuery(JobKind), &jobs); err != nil {
		return nil, errors.Annotate(err, "query jobs").Err()
	}
	return jobs, nil
}

// GetJob returns the named Job, or nil if it does not exist.
func GetJob(ctx context.Context, name string) (*Job, error) {
	job := &Job{Name: name}
	switch err := datastore.Get(ctx, job); {
	case err == datastore.ErrNoSuchEntity:
		return nil, nil
	case err != nil:
		return nil, errors.Annotate(err, "get job %q", name).Err()
	}
	return job, nil
}

// AllFuzzers returns every Fuzzer.
func AllFuzzers(ctx context.Context) ([]*Fuzzer, error) {
	var fuzzers []*Fuzzer
	if err := datastore.GetAll(ctx, datastore.NewQuery(FuzzerKind), &fuzzers); err != nil {
		return nil, errors.Annotate(err, "query fuzzers").Err()
	}
	return fuzzers, nil
}

// AllFuzzerJobs returns every FuzzerJob mapping.
func AllFuzzerJobs(ctx context.Context) ([]*FuzzerJob, error) {
	var mappings []*FuzzerJob
	if err := datastore.GetAll(ctx, datastore.NewQuery(FuzzerJobKind), &mappings); err != nil {
		return nil, errors.Annotate(err, "query fuzzer jobs").Err()
	}
	return mappings, nil
}

// JobPermissions returns every ExternalUserPermission on jobs.
func JobPermissions(ctx context.Context) ([]*ExternalUserPermission, error) {
	var perms []*ExternalUserPermission
	q := datastore.NewQuery(ExternalUserPermissionKind).Eq("entity_kind", int64(PermissionJob))
	if err := datastore.GetAll(ctx, q, &perms); err != nil {
		return nil, errors.Annotate(err, "query job permissions").Err()
	}
	return perms, nil
}

// AllOssFuzzProjects returns every OssFuzzProject.
func AllOssFuzzProjects(ctx context.Context) ([]*OssFuzzProject, error) {
	var projects []*OssFuzzProject
	if err := datastore.GetAll(ctx, datastore.NewQuery(OssFuzzProjectKind), &projects); err != nil {
		return nil, errors.Annotate(err, "query project settings").Err()
	}
	return projects, nil
}
