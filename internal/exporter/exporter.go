// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package exporter mirrors fuzzing entities and their blobs between
// deployments through an export bucket.
package exporter

import (
	"context"

	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/letitz/clusterfuzz/internal/config"
	"github.com/letitz/clusterfuzz/internal/external/gcs"
	"github.com/letitz/clusterfuzz/internal/model"
)

// migratedKind describes a kind handled by the exporter.
type migratedKind struct {
	prefix     string
	kind       string
	blobFields []string
}

var migratedKinds = []migratedKind{
	{prefix: "fuzzer", kind: model.FuzzerKind, blobFields: []string{"blobstore_key", "sample_testcase"}},
	{prefix: "job", kind: model.JobKind, blobFields: []string{"custom_binary_key"}},
	{prefix: "jobtemplate", kind: model.JobTemplateKind},
	{prefix: "databundle", kind: model.DataBundleKind},
}

// Migrators returns one EntityMigrator per configured kind.
func Migrators(ctx context.Context, c gcs.Client) ([]*EntityMigrator, error) {
	cfg := config.Get(ctx).Export
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.Reason("export bucket is not configured").Err()
	}
	wanted := map[string]bool{}
	for _, k := range cfg.Kinds {
		wanted[k] = true
	}
	var out []*EntityMigrator
	for _, mk := range migratedKinds {
		if len(wanted) > 0 && !wanted[mk.prefix] {
			continue
		}
		out = append(out, &EntityMigrator{
			Kind:          mk.kind,
			BlobFields:    mk.blobFields,
			Prefix:        mk.prefix,
			Syncer:        &StorageRSync{Client: c},
			Storage:       c,
			Bucket:        cfg.Bucket,
			Substitutions: cfg.EnvSubstitutions,
		})
	}
	return out, nil
}

// Export exports every configured kind.
func Export(ctx context.Context, c gcs.Client) (err error) {
	defer func() {
		exportTick.Add(ctx, 1, err == nil)
	}()
	return runAll(ctx, c, "export", func(ctx context.Context, m *EntityMigrator) error {
		n, err := m.Export(ctx)
		exportedEntities.Add(ctx, int64(n), m.Prefix)
		return err
	})
}

// Import imports every configured kind.
func Import(ctx context.Context, c gcs.Client) (err error) {
	defer func() {
		importTick.Add(ctx, 1, err == nil)
	}()
	return runAll(ctx, c, "import", func(ctx context.Context, m *EntityMigrator) error {
		n, err := m.Import(ctx)
		importedEntities.Add(ctx, int64(n), m.Prefix)
		return err
	})
}

// runAll runs op for every kind concurrently. A failing kind does not stop
// the others.
func runAll(ctx context.Context, c gcs.Client, what string, op func(context.Context, *EntityMigrator) error) error {
	migrators, err := Migrators(ctx, c)
	if err != nil {
		return err
	}
	errs := make(errors.MultiError, len(migrators))
	var g errgroup.Group
	for i, m := range migrators {
		i, m := i, m
		g.Go(func() error {
			if err := op(ctx, m); err != nil {
				errs[i] = errors.Annotate(err, "%s %s", what, m.Prefix).Err()
			}
			return nil
		})
	}
	_ = g.Wait()
	if errs.First() != nil {
		logging.Errorf(ctx, "%s finished with errors: %s", what, errs)
		return errs
	}
	logging.Infof(ctx, "%s finished for %d kinds", what, len(migrators))
	return nil
}
